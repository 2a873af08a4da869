package codec

// Bytes is an identity codec for []byte values. Use it when the UI layer uploads
// compressed data itself (GPU-native formats) and only wants the pool's retention
// and coalescing.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return b, nil }

// String is a trivial codec for text assets (SVG sources, font fallback lists).
// By convention this assumes UTF-8 and performs no validation.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
