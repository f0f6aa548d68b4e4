package docufort

import (
	"encoding/binary"

	"github.com/klauspost/compress/zstd"
)

// Compressor implements the shrink-or-discard compression contract used
// by content components: compress into a scratch buffer, and only keep
// the compressed form if it is strictly smaller than the input. The
// original's zstd::bulk::compress_to_buffer usage in write_content_component.
type Compressor interface {
	// Compress returns the compressed bytes, or ok=false if compressing
	// did not shrink the input (callers must then store it uncompressed).
	Compress(data []byte) (out []byte, ok bool)
	// Decompress restores the original bytes given the compressed form
	// and the original uncompressed length.
	Decompress(compressed []byte, uncompressedLen uint32) ([]byte, error)
}

// zstdCompressor wraps klauspost/compress/zstd, the pure-Go path
// grailbio-base's own zstd wrapper falls back to when cgo is
// unavailable.
type zstdCompressor struct {
	level zstd.EncoderLevel
}

// NewZstdCompressor builds a Compressor using the given zstd
// compression level (zstd.SpeedDefault if 0).
func NewZstdCompressor(level zstd.EncoderLevel) Compressor {
	if level == 0 {
		level = zstd.SpeedDefault
	}
	return &zstdCompressor{level: level}
}

func (z *zstdCompressor) Compress(data []byte) ([]byte, bool) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(z.level))
	if err != nil {
		return nil, false
	}
	defer enc.Close()
	compressed := enc.EncodeAll(data, make([]byte, 0, len(data)))
	if 4+len(compressed) >= len(data) {
		return nil, false
	}
	out := make([]byte, 4+len(compressed))
	binary.BigEndian.PutUint32(out[:4], uint32(len(data)))
	copy(out[4:], compressed)
	return out, true
}

func (z *zstdCompressor) Decompress(compressed []byte, uncompressedLen uint32) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out := make([]byte, 0, uncompressedLen)
	return dec.DecodeAll(compressed, out)
}
