// Package genstore keeps per-asset residency generations for the streamer.
//
// Evicting an asset bumps its generation. A fetch records the generation it started
// under, skips its write if the generation moved meanwhile, and stamps the stored
// frame with it; Resolve drops frames from an older generation. This keeps a hot
// reload from being undone by a fetch that was already in flight.
//
// Use LocalGenStore (default) for a single process, or RedisGenStore when residency
// lives in a shared redis and several processes evict.
package genstore

import (
	"context"
	"time"
)

type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
