package texpool

// Slot holds the resource currently shown by a reusable UI element (a brush).
// The zero value is an empty slot.
type Slot[R any] struct {
	key   Key
	res   R
	bound bool
}

// Get returns the bound resource; ok is false while the slot is empty.
func (s *Slot[R]) Get() (R, bool) { return s.res, s.bound }

// Key returns the key of the last resource set on the slot.
func (s *Slot[R]) Key() Key { return s.key }

func (s *Slot[R]) Clear() {
	var zero R
	s.key, s.res, s.bound = "", zero, false
}

func (s *Slot[R]) set(key Key, res R, ok bool) {
	if !ok {
		s.Clear()
		return
	}
	s.key, s.res, s.bound = key, res, true
}

type BindOptions struct {
	// RequestKey identifies the slot on its owner. Set it for any slot that is rebound
	// over time so an older load cannot overwrite a newer binding.
	RequestKey RequestKey

	// KeepWhileLoading leaves the previous resource visible until the new one arrives.
	// By default the slot is cleared so a placeholder shows.
	KeepWhileLoading bool
}

// Bind points slot at key. Hits are applied before Bind returns; misses are applied
// when the load completes, provided owner is still alive and slot was not rebound.
func Bind[R any](p *Pool[R], key Key, owner *Owner, s *Slot[R], opts BindOptions) {
	if p == nil || s == nil {
		return
	}
	if key.IsNull() {
		p.Unbind(owner, opts.RequestKey)
		if !opts.KeepWhileLoading {
			s.Clear()
		}
		return
	}
	if _, ok := p.GetLoaded(key); !ok && !opts.KeepWhileLoading {
		s.Clear()
	}
	// hits go through Request too so the freshness entry moves to key
	p.Request(key, owner, opts.RequestKey, func(res R, ok bool) {
		s.set(key, res, ok)
	})
}
