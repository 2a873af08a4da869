package texpool

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"weak"
)

type fakeHandle struct {
	l         *fakeLoader
	cancelled bool
}

func (h *fakeHandle) Cancel() {
	h.cancelled = true
	h.l.cancels++
}

type fakeStart struct {
	done func()
	h    *fakeHandle
}

// fakeLoader is driven by the test: loads complete only when finish is called.
type fakeLoader struct {
	starts   map[Key]int
	pending  map[Key][]fakeStart
	resident map[Key]string
	startErr map[Key]error
	cancels  int

	// doneInStart completes loads from inside Start with this value.
	doneInStart bool
}

var _ Loader[string] = (*fakeLoader)(nil)

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		starts:   make(map[Key]int),
		pending:  make(map[Key][]fakeStart),
		resident: make(map[Key]string),
		startErr: make(map[Key]error),
	}
}

func (l *fakeLoader) Start(key Key, done func()) (Handle, error) {
	l.starts[key]++
	if err := l.startErr[key]; err != nil {
		return nil, err
	}
	h := &fakeHandle{l: l}
	if l.doneInStart {
		l.resident[key] = "tex:" + string(key)
		done()
		return h, nil
	}
	l.pending[key] = append(l.pending[key], fakeStart{done: done, h: h})
	return h, nil
}

func (l *fakeLoader) Resolve(key Key) (string, bool) {
	v, ok := l.resident[key]
	return v, ok
}

// finish completes every outstanding load of key. ok=false simulates a failed load.
func (l *fakeLoader) finish(key Key, ok bool) {
	if ok {
		l.resident[key] = "tex:" + string(key)
	} else {
		delete(l.resident, key)
	}
	ps := l.pending[key]
	delete(l.pending, key)
	for _, p := range ps {
		if !p.h.cancelled {
			p.done()
		}
	}
}

// finishIgnoringCancel models a loader whose completion races past Cancel.
func (l *fakeLoader) finishIgnoringCancel(key Key) {
	l.resident[key] = "tex:" + string(key)
	ps := l.pending[key]
	delete(l.pending, key)
	for _, p := range ps {
		p.done()
	}
}

type call struct {
	res string
	ok  bool
}

type recorder struct {
	calls []call
}

func (r *recorder) ready(res string, ok bool) { r.calls = append(r.calls, call{res, ok}) }

type countingHooks struct {
	NopHooks
	started, startFailed, failed, stale, gone, cleared int
	shutdownLoads, shutdownWaiters                     int
}

func (h *countingHooks) LoadStarted(string)            { h.started++ }
func (h *countingHooks) LoadStartFailed(string, error) { h.startFailed++ }
func (h *countingHooks) LoadFailed(string)             { h.failed++ }
func (h *countingHooks) StaleDropped(string, string)   { h.stale++ }
func (h *countingHooks) RequesterGone(string)          { h.gone++ }
func (h *countingHooks) Cleared(n int)                 { h.cleared += n }
func (h *countingHooks) Shutdown(l, w int)             { h.shutdownLoads, h.shutdownWaiters = l, w }

func newTestPool(t *testing.T, l Loader[string], optsOpt func(*Options[string])) *Pool[string] {
	t.Helper()
	opts := Options[string]{Loader: l}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	p, err := New[string](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestNewRequiresLoader(t *testing.T) {
	if _, err := New[string](Options[string]{}); !errors.Is(err, ErrNoLoader) {
		t.Fatalf("expected ErrNoLoader, got %v", err)
	}
}

func TestNullKeyShortCircuit(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)
	owner := NewOwner("widget")

	var r recorder
	p.Request("", owner, "icon", r.ready)

	if len(r.calls) != 1 || r.calls[0].ok {
		t.Fatalf("expected one synchronous miss, got %+v", r.calls)
	}
	if got := p.Stats(); got != (Stats{}) {
		t.Fatalf("null key mutated tables: %+v", got)
	}
	if len(l.starts) != 0 {
		t.Fatalf("null key started a load: %v", l.starts)
	}
}

func TestUngatedRequestDeliversOnce(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)

	var r recorder
	p.Request("icon_a", nil, "", r.ready)
	if len(r.calls) != 0 {
		t.Fatalf("miss must not complete synchronously: %+v", r.calls)
	}

	l.finish("icon_a", true)
	if len(r.calls) != 1 || r.calls[0] != (call{"tex:icon_a", true}) {
		t.Fatalf("got %+v", r.calls)
	}

	// a late duplicate completion must not re-deliver
	l.finish("icon_a", true)
	if len(r.calls) != 1 {
		t.Fatalf("callback fired twice: %+v", r.calls)
	}
}

func TestCoalescesLoadsPerKey(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)

	var a, b recorder
	p.Request("icon_a", nil, "", a.ready)
	p.Request("icon_a", nil, "", b.ready)
	p.Request("icon_a", NewOwner("w"), "slot", func(string, bool) {})

	if l.starts["icon_a"] != 1 {
		t.Fatalf("expected exactly one load, got %d", l.starts["icon_a"])
	}
	if s := p.Stats(); s.InFlight != 1 || s.Waiting != 3 {
		t.Fatalf("stats: %+v", s)
	}

	l.finish("icon_a", true)
	if len(a.calls) != 1 || len(b.calls) != 1 {
		t.Fatalf("both ungated callers must fire once: a=%+v b=%+v", a.calls, b.calls)
	}
}

func TestSyncHitAfterResolve(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)

	p.Request("icon_a", nil, "", func(string, bool) {})
	l.finish("icon_a", true)

	if v, ok := p.GetLoaded("icon_a"); !ok || v != "tex:icon_a" {
		t.Fatalf("GetLoaded: %q %v", v, ok)
	}

	var r recorder
	p.Request("icon_a", NewOwner("w"), "slot", r.ready)
	if len(r.calls) != 1 || !r.calls[0].ok {
		t.Fatalf("hit must complete synchronously, got %+v", r.calls)
	}
	if l.starts["icon_a"] != 1 {
		t.Fatalf("hit started a new load")
	}
}

func TestGetLoadedNeverLoads(t *testing.T) {
	l := newFakeLoader()
	l.resident["icon_a"] = "tex:icon_a"
	p := newTestPool(t, l, nil)

	if _, ok := p.GetLoaded("icon_a"); ok {
		t.Fatalf("GetLoaded must only consult the retained table")
	}
	if len(l.starts) != 0 {
		t.Fatalf("GetLoaded started a load")
	}
}

func TestStaleCompletionSuppressed(t *testing.T) {
	l := newFakeLoader()
	hooks := &countingHooks{}
	p := newTestPool(t, l, func(o *Options[string]) { o.Hooks = hooks })
	widget := NewOwner("WidgetX")

	var first, second recorder
	p.Request("hero_1.png", widget, "portrait", first.ready)
	p.Request("hero_2.png", widget, "portrait", second.ready)

	l.finish("hero_1.png", true)
	if len(first.calls) != 0 {
		t.Fatalf("stale callback fired: %+v", first.calls)
	}
	if hooks.stale != 1 {
		t.Fatalf("expected one stale drop, got %d", hooks.stale)
	}
	// the stale load still fills the table
	if _, ok := p.GetLoaded("hero_1.png"); !ok {
		t.Fatalf("resolved resource must be retained even when no waiter receives it")
	}

	l.finish("hero_2.png", true)
	if len(second.calls) != 1 || second.calls[0] != (call{"tex:hero_2.png", true}) {
		t.Fatalf("fresh callback: %+v", second.calls)
	}
	runtime.KeepAlive(widget)
}

func TestStaleFailureAlsoSuppressed(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)
	w := NewOwner("w")

	var first recorder
	p.Request("a", w, "slot", first.ready)
	p.Request("b", w, "slot", func(string, bool) {})
	l.finish("a", false)

	if len(first.calls) != 0 {
		t.Fatalf("stale waiter must be dropped on failure too: %+v", first.calls)
	}
}

func TestRebindBackToOriginalKey(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)
	w := NewOwner("w")

	var a1, b, a2 recorder
	p.Request("a", w, "slot", a1.ready)
	p.Request("b", w, "slot", b.ready)
	p.Request("a", w, "slot", a2.ready) // deduped against the first waiter for "a"

	l.finish("b", true)
	l.finish("a", true)

	if len(b.calls) != 0 {
		t.Fatalf("b was superseded: %+v", b.calls)
	}
	if len(a1.calls) != 1 || !a1.calls[0].ok {
		t.Fatalf("first a waiter should be delivered: %+v", a1.calls)
	}
	if len(a2.calls) != 0 {
		t.Fatalf("duplicate slot waiter must not be registered: %+v", a2.calls)
	}
	runtime.KeepAlive(w)
}

func TestDedupSameSlot(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)
	w := NewOwner("w")

	for i := 0; i < 5; i++ {
		p.Request("a", w, "slot", func(string, bool) {})
	}
	if s := p.Stats(); s.Waiting != 1 || s.Slots != 1 {
		t.Fatalf("expected a single bounded waiter, got %+v", s)
	}

	// a different slot on the same owner is a different waiter
	p.Request("a", w, "other", func(string, bool) {})
	if s := p.Stats(); s.Waiting != 2 {
		t.Fatalf("expected 2 waiters, got %+v", s)
	}
	runtime.KeepAlive(w)
}

func TestShutdownSilencesWaiters(t *testing.T) {
	l := newFakeLoader()
	hooks := &countingHooks{}
	p, err := New[string](Options[string]{Loader: l, Hooks: hooks})
	if err != nil {
		t.Fatal(err)
	}

	var r recorder
	w := NewOwner("w")
	p.Request("a", nil, "", r.ready)
	p.Request("b", w, "", r.ready)
	p.Request("c", w, "icon", r.ready)
	p.Request("loaded", nil, "", func(string, bool) {})
	l.finish("loaded", true)

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if l.cancels != 3 {
		t.Fatalf("expected 3 cancelled loads, got %d", l.cancels)
	}
	if hooks.shutdownLoads != 3 || hooks.shutdownWaiters != 3 {
		t.Fatalf("shutdown hook: loads=%d waiters=%d", hooks.shutdownLoads, hooks.shutdownWaiters)
	}
	if s := p.Stats(); s != (Stats{}) {
		t.Fatalf("tables not emptied: %+v", s)
	}

	// completions that slip past Cancel must still be ignored
	for _, k := range []Key{"a", "b", "c"} {
		l.finishIgnoringCancel(k)
	}
	if len(r.calls) != 0 {
		t.Fatalf("callbacks fired after shutdown: %+v", r.calls)
	}
	if _, ok := p.GetLoaded("loaded"); ok {
		t.Fatalf("loaded table survived shutdown")
	}

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestRequestAfterCloseDropped(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)
	_ = p.Close(context.Background())

	called := false
	p.Request("a", nil, "", func(string, bool) { called = true })
	p.Request("", nil, "", func(string, bool) { called = true })
	if called || len(l.starts) != 0 {
		t.Fatalf("closed pool must drop requests (called=%v starts=%v)", called, l.starts)
	}
}

func TestClearAllRetriggersLoad(t *testing.T) {
	l := newFakeLoader()
	hooks := &countingHooks{}
	p := newTestPool(t, l, func(o *Options[string]) { o.Hooks = hooks })

	p.Request("a", nil, "", func(string, bool) {})
	l.finish("a", true)
	p.Request("pending", nil, "", func(string, bool) {})

	p.ClearAll()
	if _, ok := p.GetLoaded("a"); ok {
		t.Fatalf("GetLoaded after ClearAll should miss")
	}
	if hooks.cleared != 1 {
		t.Fatalf("cleared hook: %d", hooks.cleared)
	}
	if s := p.Stats(); s.InFlight != 1 || s.Waiting != 1 {
		t.Fatalf("ClearAll must keep loads and waiters: %+v", s)
	}

	var r recorder
	p.Request("a", nil, "", r.ready)
	if l.starts["a"] != 2 {
		t.Fatalf("expected a second load after ClearAll, got %d", l.starts["a"])
	}
	l.finish("a", true)
	if len(r.calls) != 1 || !r.calls[0].ok {
		t.Fatalf("reload: %+v", r.calls)
	}
	if _, ok := p.GetLoaded("a"); !ok {
		t.Fatalf("table not repopulated")
	}
}

func TestLoadFailureNotPoisoned(t *testing.T) {
	l := newFakeLoader()
	hooks := &countingHooks{}
	p := newTestPool(t, l, func(o *Options[string]) { o.Hooks = hooks })

	var r recorder
	p.Request("a", nil, "", r.ready)
	l.finish("a", false)

	if len(r.calls) != 1 || r.calls[0].ok {
		t.Fatalf("failure should deliver a miss: %+v", r.calls)
	}
	if _, ok := p.GetLoaded("a"); ok {
		t.Fatalf("failure must not populate the table")
	}
	if hooks.failed != 1 {
		t.Fatalf("failed hook: %d", hooks.failed)
	}

	p.Request("a", nil, "", r.ready)
	if l.starts["a"] != 2 {
		t.Fatalf("key should be retried, starts=%d", l.starts["a"])
	}
	l.finish("a", true)
	if len(r.calls) != 2 || !r.calls[1].ok {
		t.Fatalf("retry: %+v", r.calls)
	}
}

func TestStartFailureCompletesImmediately(t *testing.T) {
	l := newFakeLoader()
	l.startErr["a"] = errors.New("streaming manager unavailable")
	hooks := &countingHooks{}
	p := newTestPool(t, l, func(o *Options[string]) { o.Hooks = hooks })

	var r recorder
	p.Request("a", nil, "", r.ready)
	if len(r.calls) != 1 || r.calls[0].ok {
		t.Fatalf("start failure should complete with a miss: %+v", r.calls)
	}
	if s := p.Stats(); s.InFlight != 0 || s.Waiting != 0 {
		t.Fatalf("key left stuck: %+v", s)
	}
	if hooks.startFailed != 1 {
		t.Fatalf("startFailed hook: %d", hooks.startFailed)
	}

	delete(l.startErr, "a")
	p.Request("a", nil, "", r.ready)
	if l.starts["a"] != 2 {
		t.Fatalf("expected retry, starts=%d", l.starts["a"])
	}
}

func TestDoneInsideStart(t *testing.T) {
	l := newFakeLoader()
	l.doneInStart = true
	p := newTestPool(t, l, nil)

	var r recorder
	p.Request("a", nil, "", r.ready)
	if len(r.calls) != 1 || !r.calls[0].ok {
		t.Fatalf("synchronous completion: %+v", r.calls)
	}
	if s := p.Stats(); s.InFlight != 0 || s.Loaded != 1 {
		t.Fatalf("stats: %+v", s)
	}
}

func TestSupersededCompletionIgnored(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)

	var r recorder
	p.Request("a", nil, "", r.ready)
	stale := l.pending["a"][0].done
	l.finish("a", true)

	// second load for the same key after a clear
	p.ClearAll()
	p.Request("a", nil, "", r.ready)

	stale() // old load's done fires again
	if len(r.calls) != 1 {
		t.Fatalf("superseded completion delivered: %+v", r.calls)
	}
	if s := p.Stats(); s.InFlight != 1 {
		t.Fatalf("superseded completion retired the current load: %+v", s)
	}
	l.finish("a", true)
	if len(r.calls) != 2 {
		t.Fatalf("current load not delivered: %+v", r.calls)
	}
}

func TestReleasedOwnerDropped(t *testing.T) {
	l := newFakeLoader()
	hooks := &countingHooks{}
	p := newTestPool(t, l, func(o *Options[string]) { o.Hooks = hooks })

	w := NewOwner("w")
	var r recorder
	p.Request("a", w, "icon", r.ready)
	p.Request("b", w, "", r.ready)
	w.Release()

	l.finish("a", true)
	l.finish("b", true)
	if len(r.calls) != 0 {
		t.Fatalf("released owner received callbacks: %+v", r.calls)
	}
	if hooks.gone != 2 {
		t.Fatalf("gone hook: %d", hooks.gone)
	}
	if s := p.Stats(); s.Slots != 0 {
		t.Fatalf("freshness slot for released owner not pruned: %+v", s)
	}
}

func TestReleasedOwnerSlotsSweptOnRequest(t *testing.T) {
	l := newFakeLoader()
	l.doneInStart = true
	p := newTestPool(t, l, nil)

	// every request is a synchronous hit, so no waiter ever reaches fan-out
	for i := 0; i < minSlotSweep; i++ {
		o := NewOwner("w")
		p.Request("a", o, "icon", func(string, bool) {})
		o.Release()
	}
	if n := len(p.latest); n != 1 {
		t.Fatalf("expected only the newest slot to survive the sweep, got %d", n)
	}
	if s := p.Stats(); s.Slots != 0 {
		t.Fatalf("released owner slots not pruned: %+v", s)
	}
}

func TestStatsKeepsLiveOwnerSlots(t *testing.T) {
	l := newFakeLoader()
	l.doneInStart = true
	p := newTestPool(t, l, nil)

	live := NewOwner("live")
	gone := NewOwner("gone")
	p.Request("a", live, "icon", func(string, bool) {})
	p.Request("a", gone, "icon", func(string, bool) {})
	gone.Release()

	if s := p.Stats(); s.Slots != 1 {
		t.Fatalf("expected the live slot only, got %+v", s)
	}
	if _, ok := p.latest[slot{owner: weak.Make(live), key: "icon"}]; !ok {
		t.Fatal("live owner slot was pruned")
	}
	runtime.KeepAlive(live)
}

func TestCollectedOwnerDropped(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)

	called := false
	func() {
		w := NewOwner("transient")
		p.Request("a", w, "icon", func(string, bool) { called = true })
	}()
	runtime.GC()
	runtime.GC()

	l.finish("a", true)
	if called {
		t.Fatalf("collected owner received a callback")
	}
}

func TestOwnerWithoutRequestKeyIsNotStalenessGated(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)
	w := NewOwner("w")

	var r recorder
	p.Request("a", w, "", r.ready)
	p.Request("b", w, "", func(string, bool) {})
	l.finish("a", true)

	if len(r.calls) != 1 {
		t.Fatalf("live owner without request key must be delivered: %+v", r.calls)
	}
	runtime.KeepAlive(w)
}

func TestUnbindWithholdsPending(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)
	w := NewOwner("w")

	var r recorder
	p.Request("a", w, "icon", r.ready)
	p.Unbind(w, "icon")
	l.finish("a", true)

	if len(r.calls) != 0 {
		t.Fatalf("unbound slot delivered: %+v", r.calls)
	}
}

func TestReentrantRequestDuringFanOut(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)

	var inner recorder
	p.Request("a", nil, "", func(string, bool) {
		p.ClearAll()
		p.Request("a", nil, "", inner.ready)
	})
	l.finish("a", true)

	if l.starts["a"] != 2 {
		t.Fatalf("re-request during fan-out should start a fresh load, starts=%d", l.starts["a"])
	}
	if len(inner.calls) != 0 {
		t.Fatalf("inner waiter delivered by the outer fan-out: %+v", inner.calls)
	}
	l.finish("a", true)
	if len(inner.calls) != 1 {
		t.Fatalf("inner waiter: %+v", inner.calls)
	}
}

func TestCloseFromCallbackStopsFanOut(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)

	var second recorder
	p.Request("a", nil, "", func(string, bool) { _ = p.Close(context.Background()) })
	p.Request("a", nil, "", second.ready)
	l.finish("a", true)

	if len(second.calls) != 0 {
		t.Fatalf("callback fired after teardown began: %+v", second.calls)
	}
}

func TestDeliveryOrderIsRegistrationOrder(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)

	var order []int
	for i := 0; i < 4; i++ {
		i := i
		p.Request("a", nil, "", func(string, bool) { order = append(order, i) })
	}
	l.finish("a", true)
	for i, v := range order {
		if v != i {
			t.Fatalf("order: %v", order)
		}
	}
}

func TestResolveResidentFastPath(t *testing.T) {
	l := newFakeLoader()
	l.resident["a"] = "tex:a"
	p := newTestPool(t, l, func(o *Options[string]) { o.ResolveResident = true })

	var r recorder
	p.Request("a", nil, "", r.ready)
	if len(r.calls) != 1 || !r.calls[0].ok || l.starts["a"] != 0 {
		t.Fatalf("resident fast path: calls=%+v starts=%d", r.calls, l.starts["a"])
	}
	if _, ok := p.GetLoaded("a"); !ok {
		t.Fatalf("fast path should retain the resource")
	}
}

func TestPrefetch(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)

	p.Prefetch("a", "b", "", "a")
	if l.starts["a"] != 1 || l.starts["b"] != 1 {
		t.Fatalf("starts: %v", l.starts)
	}
	l.finish("a", true)
	if _, ok := p.GetLoaded("a"); !ok {
		t.Fatalf("prefetched key not retained")
	}
}

func TestListen(t *testing.T) {
	l := newFakeLoader()
	p := newTestPool(t, l, nil)

	var seen []Key
	waiterRan := false
	p.Request("a", nil, "", func(string, bool) { waiterRan = true })
	stop := p.Listen(func(k Key, _ string, ok bool) {
		if !waiterRan {
			t.Errorf("listener ran before waiters")
		}
		seen = append(seen, k)
	})
	l.finish("a", true)

	stop()
	p.Request("b", nil, "", func(string, bool) {})
	l.finish("b", true)

	if len(seen) != 1 || seen[0] != "a" {
		t.Fatalf("listener saw %v", seen)
	}
	if p.Stats().Listeners != 0 {
		t.Fatalf("listener not removed")
	}
}

type closingLoader struct {
	*fakeLoader
	closed bool
}

func (c *closingLoader) Close(context.Context) error { c.closed = true; return nil }

func TestCloseLoaderOption(t *testing.T) {
	cl := &closingLoader{fakeLoader: newFakeLoader()}
	p, err := New[string](Options[string]{Loader: cl, CloseLoader: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !cl.closed {
		t.Fatalf("loader not closed")
	}

	cl2 := &closingLoader{fakeLoader: newFakeLoader()}
	p2, _ := New[string](Options[string]{Loader: cl2})
	_ = p2.Close(context.Background())
	if cl2.closed {
		t.Fatalf("loader closed without CloseLoader")
	}
}
