package tier

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// compress gzips a payload for storage below the hot tier.
func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("tier: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("tier: compress close: %w", err)
	}
	return buf.Bytes(), nil
}

// decompress reverses compress.
func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tier: decompress: %w", err)
	}
	defer func() { _ = r.Close() }()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("tier: decompress read: %w", err)
	}
	return out, nil
}
