// Copyright (c) 2024 ASIPI IT
// SPDX-License-Identifier: BSD-2-Clause

/*
Package compression handles gzip-compressed statement files.

Banks often deliver camt files as .xml.gz, and the service archives raw
uploads compressed.

# Compression

	c := compression.NewCompressor()
	archived, err := c.Compress(raw)

# Uploads

MaybeDecompress inflates gzip input and passes anything else through
unchanged, so callers need not trust file names:

	data, err := c.MaybeDecompress(upload)

Decompressed output is bounded by the compressor limit (see WithLimit), which
protects the parser from decompression bombs.

# Content Types

ShouldCompress reports whether a content type is worth archiving compressed.
Already compressed media (gzip, zip, images, video) are stored as they are.
*/
package compression
