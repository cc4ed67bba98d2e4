package codec

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// CBOR serializes values with fxamacker/cbor. Build one with NewCBOR or
// MustCBOR; the zero value refuses to encode.
//
// Deterministic mode uses Core Deterministic Encoding (RFC 8949 4.2.1), which
// sorts map keys for any map type. Times are written as CBOR epoch times
// with microsecond precision, independent of the value's location.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

var errZeroCBOR = errors.New("CBOR used without NewCBOR")

func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeUnixMicro

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, wrap("cbor", "encode", err)
	}
	// duplicate keys would make a stored value ambiguous
	dm, err := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		return CBOR[V]{}, wrap("cbor", "decode", err)
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

func MustCBOR[V any](deterministic bool) CBOR[V] {
	c, err := NewCBOR[V](deterministic)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) {
	if c.enc == nil {
		return nil, wrap("cbor", "encode", errZeroCBOR)
	}
	b, err := c.enc.Marshal(v)
	return b, wrap("cbor", "encode", err)
}

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	if c.dec == nil {
		return v, wrap("cbor", "decode", errZeroCBOR)
	}
	return v, wrap("cbor", "decode", c.dec.Unmarshal(b, &v))
}
