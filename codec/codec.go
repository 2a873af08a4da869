// Package codec turns resident bytes into resources. A Streamer calls Decode on the
// owner goroutine when a load completes, so decoders should not do I/O.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
