package texpool

import (
	"sync/atomic"
	"weak"
)

// Key identifies a loadable resource, usually an asset path or URL.
// The empty Key is the null reference.
type Key string

func (k Key) IsNull() bool { return k == "" }

// RequestKey names a reusable slot on an Owner, e.g. "icon:3" or "portrait".
// The empty RequestKey means the request is not bound to a slot.
type RequestKey string

// Owner is the identity of a requester (a widget, a panel, a carousel).
// Pools hold it only through a weak pointer: once the Owner is released or
// garbage collected, callbacks registered on its behalf are dropped.
type Owner struct {
	name     string
	released atomic.Bool
}

func NewOwner(name string) *Owner { return &Owner{name: name} }

// Release marks the owner destroyed. Pending callbacks for it will not fire.
// Release cannot be undone.
func (o *Owner) Release() { o.released.Store(true) }

func (o *Owner) Released() bool { return o.released.Load() }

func (o *Owner) String() string { return o.name }

// slot is a freshness table key. weak.Pointer values made from the same *Owner
// compare equal, also after the owner is collected.
type slot struct {
	owner weak.Pointer[Owner]
	key   RequestKey
}

func alive(w weak.Pointer[Owner]) bool {
	o := w.Value()
	return o != nil && !o.Released()
}
