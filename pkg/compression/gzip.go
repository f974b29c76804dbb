package compression

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
)

const (
	// ContentTypeGzip is the media type of gzip data
	ContentTypeGzip = "application/gzip"

	// DefaultLimit bounds decompressed output
	DefaultLimit int64 = 64 << 20
)

// ErrTooLarge indicates decompressed data exceeding the compressor limit
var ErrTooLarge = errors.New("compression: decompressed data exceeds limit")

var gzipMagic = []byte{0x1f, 0x8b}

// Compressor compresses and inflates gzip data
type Compressor struct {
	level int
	limit int64
}

// Option configures a Compressor
type Option func(*Compressor)

// WithLevel sets the gzip compression level
func WithLevel(level int) Option {
	return func(c *Compressor) {
		c.level = level
	}
}

// WithLimit bounds the size of decompressed output. Zero or less disables the bound.
func WithLimit(limit int64) Option {
	return func(c *Compressor) {
		c.limit = limit
	}
}

// NewCompressor creates a compressor with the default level and limit
func NewCompressor(opts ...Option) *Compressor {
	c := &Compressor{
		level: gzip.DefaultCompression,
		limit: DefaultLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compress compresses data using gzip
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress inflates gzip data
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer reader.Close()

	var src io.Reader = reader
	if c.limit > 0 {
		src = io.LimitReader(reader, c.limit+1)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, src)
	if err != nil {
		return nil, fmt.Errorf("failed to read compressed data: %w", err)
	}
	if c.limit > 0 && n > c.limit {
		return nil, ErrTooLarge
	}

	return buf.Bytes(), nil
}

// MaybeDecompress inflates data when it starts with the gzip magic number and
// returns it unchanged otherwise
func (c *Compressor) MaybeDecompress(data []byte) ([]byte, error) {
	if !IsGzip(data) {
		return data, nil
	}
	return c.Decompress(data)
}

// IsGzip reports whether data starts with the gzip magic number
func IsGzip(data []byte) bool {
	return bytes.HasPrefix(data, gzipMagic)
}

// ShouldCompress reports whether content of the given type is worth compressing.
// Parameters such as charset are ignored.
func ShouldCompress(contentType string) bool {
	compressedTypes := map[string]bool{
		"application/gzip":   true,
		"application/zip":    true,
		"application/x-gzip": true,
		"image/jpeg":         true,
		"image/png":          true,
		"video/mp4":          true,
		"audio/mp3":          true,
	}

	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	return !compressedTypes[mediaType]
}
