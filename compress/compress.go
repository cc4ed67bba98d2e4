// Package compress provides the lossless payload compressors used by ttlkv.
// Implementations must be deterministic and safe for concurrent use.
package compress

import (
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

type Compressor interface {
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// S2 is the default compressor: Snappy-compatible LZ77, fast and allocation-light.
// The zero value is ready to use.
type S2 struct {
	// Better trades speed for a higher ratio.
	Better bool
}

var _ Compressor = S2{}

func (c S2) Compress(src []byte) ([]byte, error) {
	if c.Better {
		return s2.EncodeBetter(nil, src), nil
	}
	return s2.Encode(nil, src), nil
}

func (S2) Decompress(src []byte) ([]byte, error) {
	return s2.Decode(nil, src)
}

// Zstd favours ratio over speed. Construct with NewZstd; the encoder and
// decoder are reused across calls.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var _ Compressor = (*Zstd)(nil)

func NewZstd(level zstd.EncoderLevel) (*Zstd, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		_ = enc.Close()
		return nil, err
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

func (z *Zstd) Compress(src []byte) ([]byte, error) {
	return z.enc.EncodeAll(src, nil), nil
}

func (z *Zstd) Decompress(src []byte) ([]byte, error) {
	return z.dec.DecodeAll(src, nil)
}

// Close releases the decoder goroutines.
func (z *Zstd) Close() {
	_ = z.enc.Close()
	z.dec.Close()
}

// None stores payloads as-is.
type None struct{}

func (None) Compress(src []byte) ([]byte, error)   { return src, nil }
func (None) Decompress(src []byte) ([]byte, error) { return src, nil }
