// Package provider defines the residency store used by texpool's streamer.
//
// A resident entry is the fetched, not yet decoded, form of an asset. The store may
// drop entries at any time (eviction, TTL, memory pressure); the streamer treats a
// missing entry as "not resident" and the pool reports the load as failed.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// Important: the keyspaces "res:<ns>:" and "res#<ns>:" are owned by the streamer. External code MUST
// NOT write values under it. Foreign writes fail frame validation and are deleted.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<= 0 means no expiry). May ignore cost
	// if unsupported. Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
