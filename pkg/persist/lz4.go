package persist

import (
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// LZ4Codec wraps another codec with LZ4 frame compression. Snapshot
// exports use it over JSON: node/edge sets compress well and stay
// inspectable with standard lz4 tooling.
type LZ4Codec struct {
	Inner Codec
}

// NewLZ4Codec wraps inner with LZ4 compression.
func NewLZ4Codec(inner Codec) *LZ4Codec {
	return &LZ4Codec{Inner: inner}
}

// Encode compresses the inner codec's output.
func (c *LZ4Codec) Encode(w io.Writer, state any) error {
	zw := lz4.NewWriter(w)

	if err := c.Inner.Encode(zw, state); err != nil {
		_ = zw.Close()

		return fmt.Errorf("lz4 encode: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("lz4 flush: %w", err)
	}

	return nil
}

// Decode decompresses before handing off to the inner codec.
func (c *LZ4Codec) Decode(r io.Reader, state any) error {
	zr := lz4.NewReader(r)

	if err := c.Inner.Decode(zr, state); err != nil {
		return fmt.Errorf("lz4 decode: %w", err)
	}

	return nil
}

// Extension appends ".lz4" to the inner codec's extension.
func (c *LZ4Codec) Extension() string {
	return c.Inner.Extension() + ".lz4"
}
