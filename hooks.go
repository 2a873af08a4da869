package texpool

// Hooks are lightweight callbacks for pool events.
// They run on the owner goroutine in the middle of Request and fan-out, so
// implementations must be cheap and non-blocking (wrap slow sinks with hooks/async).
type Hooks interface {
	// A load was handed to the loader.
	LoadStarted(key string)

	// The loader refused to start a load; waiters were completed with a miss.
	LoadStartFailed(key string, err error)

	// A load completed but the loader could not resolve the resource.
	LoadFailed(key string)

	// Fan-out for key finished; delivered of pending callbacks were invoked.
	FanOut(key string, delivered, pending int)

	// A callback was withheld because its slot was rebound to another key.
	StaleDropped(key, requestKey string)

	// A callback was withheld because its owner was released or collected.
	RequesterGone(key string)

	// ClearAll dropped n resolved resources.
	Cleared(n int)

	// Close cancelled loads and discarded waiters without invoking them.
	Shutdown(cancelledLoads, droppedWaiters int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) LoadStarted(string)            {}
func (NopHooks) LoadStartFailed(string, error) {}
func (NopHooks) LoadFailed(string)             {}
func (NopHooks) FanOut(string, int, int)       {}
func (NopHooks) StaleDropped(string, string)   {}
func (NopHooks) RequesterGone(string)          {}
func (NopHooks) Cleared(int)                   {}
func (NopHooks) Shutdown(int, int)             {}
