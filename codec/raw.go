package codec

import (
	"errors"
	"unicode/utf8"
)

// Bytes stores []byte values as-is; they are still compressed and framed.
// Decode returns a private copy so callers may mutate it.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

// String stores text as UTF-8. Invalid UTF-8 is rejected on both sides, so a
// payload written by a different codec surfaces as a decode error.
type String struct{}

var errNotUTF8 = errors.New("not valid UTF-8")

func (String) Encode(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, wrap("string", "encode", errNotUTF8)
	}
	return []byte(s), nil
}

func (String) Decode(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", wrap("string", "decode", errNotUTF8)
	}
	return string(b), nil
}
