package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

// Protobuf stores proto messages. Encoding is deterministic so a rewrite of
// an unchanged message produces the same record bytes. Decode discards
// unknown fields written by a newer schema rather than carrying them along.
type Protobuf[T proto.Message] struct {
	newMsg func() T
	dec    proto.UnmarshalOptions
}

var errNoCtor = errors.New("protobuf codec without a message constructor")

// NewProtobuf takes a constructor for an empty message, e.g.
// func() *pb.Session { return &pb.Session{} }.
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{newMsg: ctor, dec: proto.UnmarshalOptions{DiscardUnknown: true}}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(v)
	return b, wrap("protobuf", "encode", err)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	if c.newMsg == nil {
		var zero T
		return zero, wrap("protobuf", "decode", errNoCtor)
	}
	m := c.newMsg()
	return m, wrap("protobuf", "decode", c.dec.Unmarshal(b, m))
}
