package codec

import (
	"bytes"
	"encoding/json"
)

// JSON is the default codec. HTML escaping is disabled so payloads stay as
// small as the value allows. The zero value is ready to use.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, wrap("json", "encode", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	return v, wrap("json", "decode", json.Unmarshal(b, &v))
}
