// Package asynchook moves Hooks calls off the pool's owner goroutine onto a small
// worker pool. Events are dropped when the queue is full so a slow sink never stalls
// a frame.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{StaleEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	pool, _ := texpool.New[*texture.Texture](texpool.Options[*texture.Texture]{
//	    Loader: s,
//	    Hooks:  hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/texpool"
)

type Hooks struct {
	inner   texpool.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards q against send-after-close
	closed  bool
	dropped atomic.Uint64
}

var _ texpool.Hooks = (*Hooks)(nil)

func New(inner texpool.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = texpool.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close flushes queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped is the number of events discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) LoadStarted(k string) { h.try(func() { h.inner.LoadStarted(k) }) }
func (h *Hooks) LoadStartFailed(k string, err error) {
	h.try(func() { h.inner.LoadStartFailed(k, err) })
}
func (h *Hooks) LoadFailed(k string) { h.try(func() { h.inner.LoadFailed(k) }) }
func (h *Hooks) FanOut(k string, delivered, pending int) {
	h.try(func() { h.inner.FanOut(k, delivered, pending) })
}
func (h *Hooks) StaleDropped(k, rk string) { h.try(func() { h.inner.StaleDropped(k, rk) }) }
func (h *Hooks) RequesterGone(k string)    { h.try(func() { h.inner.RequesterGone(k) }) }
func (h *Hooks) Cleared(n int)             { h.try(func() { h.inner.Cleared(n) }) }
func (h *Hooks) Shutdown(cancelled, dropped int) {
	h.try(func() { h.inner.Shutdown(cancelled, dropped) })
}
