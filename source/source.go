// Package source defines where a streamer fetches asset bytes from.
package source

import (
	"context"
	"errors"
)

// ErrNotFound reports that the source has no asset for a key.
var ErrNotFound = errors.New("source: not found")

// Source fetches the encoded bytes of one asset. Must be safe for concurrent use.
type Source interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context, key string) ([]byte, error)

func (f Func) Fetch(ctx context.Context, key string) ([]byte, error) { return f(ctx, key) }
