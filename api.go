package texpool

import (
	"context"
)

// Ready receives the result of a Request. ok == false means the resource could not be
// loaded (or the key was null) and the caller should show its placeholder.
type Ready[R any] func(res R, ok bool)

// Handle is a load in progress, as returned by Loader.Start.
type Handle interface {
	// Cancel stops the load on a best-effort basis. After Cancel returns the loader
	// must not invoke the load's done callback.
	Cancel()
}

// Loader is the asynchronous fetch primitive a Pool drives.
//
// Start begins loading key and returns immediately. done must be invoked exactly once,
// on the pool's owner goroutine, unless the handle is cancelled first. It may be invoked
// from within Start. Resolve returns the resource if it is resident right now; the pool
// calls it when done fires.
type Loader[R any] interface {
	Start(key Key, done func()) (Handle, error)
	Resolve(key Key) (R, bool)
}

// SyncLoader is implemented by loaders that can make a key resident while the caller
// blocks. Pool.Preload needs it.
type SyncLoader interface {
	LoadNow(ctx context.Context, key Key) error
}

// BatchLoader is an optional SyncLoader extension that loads several keys in parallel.
// The returned map holds an entry only for keys that failed.
type BatchLoader interface {
	SyncLoader
	LoadMany(ctx context.Context, keys []Key) map[Key]error
}

// Options tune a Pool. Only Loader is required.
type Options[R any] struct {
	Loader Loader[R]

	Name   string // used in logs; "" => "texpool"
	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	// ResolveResident lets Request satisfy a table miss synchronously when the loader
	// already holds the resource. Off by default: a miss always starts a load.
	ResolveResident bool

	// CloseLoader makes Close also close the loader when it has a Close(ctx) error method.
	// Set it only when the pool exclusively owns the loader.
	CloseLoader bool
}

func New[R any](opts Options[R]) (*Pool[R], error) {
	return newPool[R](opts)
}
