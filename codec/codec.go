// Package codec serializes values to the bytes ttlkv compresses and stores.
//
// Change detection in ttlkv compares values, not encodings, so codecs do not
// need to be canonical; deterministic ones still keep stored payloads stable.
package codec

import "fmt"

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Error wraps a serializer failure with the codec and direction that hit it.
type Error struct {
	Codec string // "json", "msgpack", "cbor", "protobuf", "string"
	Op    string // "encode" or "decode"
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("codec %s %s: %v", e.Codec, e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func wrap(codec, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Codec: codec, Op: op, Err: err}
}
