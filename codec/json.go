package codec

import "encoding/json"

// JSON is a Codec backed by encoding/json. Handy for small descriptor assets
// (atlas frames, nine-slice insets) that are authored by hand.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
