// Copyright (c) 2024 ASIPI IT
// SPDX-License-Identifier: BSD-2-Clause

/*
Package dedup detects statements that were already received.

Banks resend statements, and users upload the same file twice. A Detector
remembers keys for a window and reports repeats inside it:

	d := dedup.NewDetector(24 * time.Hour)
	defer d.Close()

	if d.Seen(dedup.Key(msgID, dedup.Checksum(raw))) {
	    // already processed
	}

Expired keys are purged by a background goroutine owned by the detector;
Close stops it.
*/
package dedup
