package texpool

import (
	"context"
	"weak"

	"github.com/unkn0wn-root/texpool/internal/util"
)

const (
	defaultName  = "texpool"
	minSlotSweep = 64
)

type load struct {
	id     uint64
	handle Handle
}

type waiter[R any] struct {
	gated      bool // false => fire-and-forget, never filtered
	owner      weak.Pointer[Owner]
	requestKey RequestKey
	expected   Key
	ready      Ready[R]
}

type listener[R any] struct {
	id uint64
	fn func(Key, R, bool)
}

// Pool is the resource cache. Create it with New. Not safe for concurrent use.
type Pool[R any] struct {
	name        string
	loader      Loader[R]
	log         Logger
	hooks       Hooks
	resident    bool
	closeLoader bool

	loaded   map[Key]R
	inflight map[Key]*load
	waiters  map[Key][]waiter[R]
	latest   map[slot]Key
	sweepAt  int // len(latest) that triggers the next dead-owner sweep

	listeners  []listener[R]
	nextLoad   uint64
	nextListen uint64
	closed     bool
}

func newPool[R any](opts Options[R]) (*Pool[R], error) {
	if opts.Loader == nil {
		return nil, ErrNoLoader
	}
	p := &Pool[R]{
		loader:      opts.Loader,
		resident:    opts.ResolveResident,
		closeLoader: opts.CloseLoader,
		loaded:      make(map[Key]R),
		inflight:    make(map[Key]*load),
		waiters:     make(map[Key][]waiter[R]),
		latest:      make(map[slot]Key),
		sweepAt:     minSlotSweep,
	}

	// defaults
	p.name = util.Coalesce(opts.Name, defaultName)
	p.log = WithFields(opts.Logger, Fields{"pool": p.name})
	p.hooks = util.Coalesce[Hooks](opts.Hooks, NopHooks{})

	return p, nil
}

// GetLoaded returns the resource for key if it has been resolved and is retained.
// It never starts a load.
func (p *Pool[R]) GetLoaded(key Key) (R, bool) {
	r, ok := p.loaded[key]
	return r, ok
}

// Request delivers the resource for key to ready, synchronously when it is already
// retained and otherwise once the (shared) load completes.
//
// owner and rk are optional. With an owner, ready is withheld if the owner is released
// before completion. With both, ready is also withheld if a later Request for the same
// (owner, rk) asked for a different key.
func (p *Pool[R]) Request(key Key, owner *Owner, rk RequestKey, ready Ready[R]) {
	if ready == nil {
		return
	}
	if p.closed {
		p.log.Debug("request after close dropped", Fields{"key": key})
		return
	}
	if key.IsNull() {
		var zero R
		ready(zero, false)
		return
	}

	var wp weak.Pointer[Owner]
	if owner != nil {
		wp = weak.Make(owner)
		if rk != "" {
			// must precede the hit check: any completion already queued for this
			// slot compares against this entry
			p.latest[slot{owner: wp, key: rk}] = key
			if len(p.latest) >= p.sweepAt {
				p.pruneSlots()
			}
		}
	}

	if r, ok := p.loaded[key]; ok {
		ready(r, true)
		return
	}
	if p.resident {
		if r, ok := p.loader.Resolve(key); ok {
			p.loaded[key] = r
			ready(r, true)
			return
		}
	}

	ws := p.waiters[key]
	dup := false
	if owner != nil {
		for _, w := range ws {
			if w.gated && w.owner == wp && w.requestKey == rk {
				dup = true
				break
			}
		}
	}
	if !dup {
		p.waiters[key] = append(ws, waiter[R]{
			gated:      owner != nil,
			owner:      wp,
			requestKey: rk,
			expected:   key,
			ready:      ready,
		})
	}

	p.ensureLoad(key)
}

// Prefetch starts loads for keys that are neither retained nor in flight.
func (p *Pool[R]) Prefetch(keys ...Key) {
	for _, k := range keys {
		p.Request(k, nil, "", func(R, bool) {})
	}
}

func (p *Pool[R]) ensureLoad(key Key) {
	if _, ok := p.inflight[key]; ok {
		return
	}

	p.nextLoad++
	ld := &load{id: p.nextLoad}
	p.inflight[key] = ld // before Start: done may run inside it
	p.hooks.LoadStarted(string(key))

	id := ld.id
	h, err := p.loader.Start(key, func() { p.complete(key, id) })
	if err != nil {
		if cur, ok := p.inflight[key]; ok && cur == ld {
			delete(p.inflight, key)
		}
		p.log.Warn("load start failed", Fields{"key": key, "err": err})
		p.hooks.LoadStartFailed(string(key), err)
		var zero R
		p.fanOut(key, zero, false)
		return
	}
	if cur, ok := p.inflight[key]; ok && cur == ld {
		ld.handle = h
	}
}

// complete is the loader's done callback for load id.
func (p *Pool[R]) complete(key Key, id uint64) {
	if p.closed {
		return
	}
	ld, ok := p.inflight[key]
	if !ok || ld.id != id {
		p.log.Debug("ignored superseded completion", Fields{"key": key, "load": id})
		return
	}
	delete(p.inflight, key)

	res, ok := p.loader.Resolve(key)
	if ok {
		p.loaded[key] = res
	} else {
		p.log.Debug("load failed", Fields{"key": key})
		p.hooks.LoadFailed(string(key))
	}
	p.fanOut(key, res, ok)
}

func (p *Pool[R]) fanOut(key Key, res R, ok bool) {
	// take ownership: callbacks may Request key again and start a fresh list
	ws := p.waiters[key]
	delete(p.waiters, key)

	delivered := 0
	for _, w := range ws {
		if p.closed {
			return
		}
		if !p.deliverable(key, w) {
			continue
		}
		w.ready(res, ok)
		delivered++
	}
	if p.closed {
		return
	}
	p.hooks.FanOut(string(key), delivered, len(ws))

	if len(p.listeners) == 0 {
		return
	}
	ls := make([]listener[R], len(p.listeners))
	copy(ls, p.listeners)
	for _, l := range ls {
		if p.closed {
			return
		}
		l.fn(key, res, ok)
	}
}

func (p *Pool[R]) deliverable(key Key, w waiter[R]) bool {
	if !w.gated {
		return true
	}
	if !alive(w.owner) {
		if w.requestKey != "" {
			delete(p.latest, slot{owner: w.owner, key: w.requestKey})
		}
		p.hooks.RequesterGone(string(key))
		return false
	}
	if w.requestKey == "" {
		return true
	}
	latest, ok := p.latest[slot{owner: w.owner, key: w.requestKey}]
	if !ok || latest != w.expected {
		p.log.Debug("stale completion dropped", Fields{"key": key, "requestKey": w.requestKey, "latest": latest})
		p.hooks.StaleDropped(string(key), string(w.requestKey))
		return false
	}
	return true
}

// Unbind forgets what (owner, rk) last asked for. A pending callback registered under
// that slot is withheld when its load completes.
func (p *Pool[R]) Unbind(owner *Owner, rk RequestKey) {
	if owner == nil || rk == "" {
		return
	}
	delete(p.latest, slot{owner: weak.Make(owner), key: rk})
}

// Listen registers fn to observe every completed load after its waiters ran.
// Call stop to unregister.
func (p *Pool[R]) Listen(fn func(key Key, res R, ok bool)) (stop func()) {
	if fn == nil || p.closed {
		return func() {}
	}
	p.nextListen++
	id := p.nextListen
	p.listeners = append(p.listeners, listener[R]{id: id, fn: fn})
	return func() {
		for i, l := range p.listeners {
			if l.id == id {
				p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
				return
			}
		}
	}
}

// ClearAll drops every retained resource. Loads in flight and their waiters are kept.
func (p *Pool[R]) ClearAll() {
	n := len(p.loaded)
	clear(p.loaded)
	p.log.Debug("cleared retained resources", Fields{"count": n})
	p.hooks.Cleared(n)
}

// Stats is a point-in-time view of the pool's tables.
type Stats struct {
	Loaded    int
	InFlight  int
	Waiting   int // callbacks, across all keys
	Slots     int // freshness entries
	Listeners int
}

// pruneSlots forgets freshness entries whose owner is released or collected and
// returns how many it removed. A pending waiter for such an owner is still dropped
// at fan-out by the liveness check.
func (p *Pool[R]) pruneSlots() int {
	n := 0
	for s := range p.latest {
		if !alive(s.owner) {
			delete(p.latest, s)
			n++
		}
	}
	p.sweepAt = max(minSlotSweep, 2*len(p.latest))
	if n > 0 {
		p.log.Debug("dead owner slots pruned", Fields{"pruned": n, "slots": len(p.latest)})
	}
	return n
}

// Stats reports current pool sizes. Slots counts only entries for live owners.
func (p *Pool[R]) Stats() Stats {
	p.pruneSlots()
	s := Stats{
		Loaded:    len(p.loaded),
		InFlight:  len(p.inflight),
		Slots:     len(p.latest),
		Listeners: len(p.listeners),
	}
	for _, ws := range p.waiters {
		s.Waiting += len(ws)
	}
	return s
}

// Close cancels every load in flight and empties the pool without invoking any pending
// callback. Later requests are dropped. Safe to call more than once.
func (p *Pool[R]) Close(ctx context.Context) error {
	if p.closed {
		return nil
	}
	p.closed = true

	cancelled := 0
	for _, ld := range p.inflight {
		if ld.handle != nil {
			ld.handle.Cancel()
			cancelled++
		}
	}
	dropped := 0
	for _, ws := range p.waiters {
		dropped += len(ws)
	}

	clear(p.inflight)
	clear(p.waiters)
	clear(p.latest)
	clear(p.loaded)
	p.listeners = nil

	p.log.Info("pool closed", Fields{"cancelled": cancelled, "droppedWaiters": dropped})
	p.hooks.Shutdown(cancelled, dropped)

	if p.closeLoader {
		if c, ok := p.loader.(interface{ Close(context.Context) error }); ok {
			return c.Close(ctx)
		}
	}
	return nil
}
