package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack serializes with vmihailenco/msgpack/v5. The zero value is ready to
// use. Keys of map[string]string, map[string]bool and map[string]any are
// written sorted; other map types follow Go's iteration order, so their
// encodings are not byte-stable. Fields without a `msgpack` tag fall back to
// their `json` tag, so one set of tags serves both codecs.
type Msgpack[V any] struct{}

var _ Codec[struct{}] = Msgpack[struct{}]{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, wrap("msgpack", "encode", err)
	}
	return buf.Bytes(), nil
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	return v, wrap("msgpack", "decode", dec.Decode(&v))
}
