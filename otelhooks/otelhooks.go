// Package otelhooks exports pool events as OpenTelemetry counters.
//
// Keys are not recorded as attributes; asset keys are unbounded and would explode
// metric cardinality. Pools are told apart by the "pool" attribute.
package otelhooks

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/texpool"
)

type Hooks struct {
	attrs metric.MeasurementOption

	loads       metric.Int64Counter
	startFailed metric.Int64Counter
	failed      metric.Int64Counter
	delivered   metric.Int64Counter
	withheld    metric.Int64Counter
	cleared     metric.Int64Counter
	dropped     metric.Int64Counter
}

var _ texpool.Hooks = (*Hooks)(nil)

// New registers the instruments on meter. pool labels every measurement.
func New(meter metric.Meter, pool string) (*Hooks, error) {
	h := &Hooks{attrs: metric.WithAttributes(attribute.String("pool", pool))}

	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&h.loads, "texpool.loads", "Loads handed to the loader", "{load}"},
		{&h.startFailed, "texpool.load.start_errors", "Loads the loader refused to start", "{load}"},
		{&h.failed, "texpool.load.failures", "Loads that completed without a resource", "{load}"},
		{&h.delivered, "texpool.callbacks.delivered", "Callbacks invoked after a load", "{callback}"},
		{&h.withheld, "texpool.callbacks.withheld", "Callbacks withheld as stale or orphaned", "{callback}"},
		{&h.cleared, "texpool.cleared", "Resources dropped by ClearAll", "{resource}"},
		{&h.dropped, "texpool.shutdown.dropped", "Callbacks discarded by Close", "{callback}"},
	} {
		ctr, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
		*c.dst = ctr
	}
	return h, nil
}

func (h *Hooks) add(c metric.Int64Counter, n int, extra ...attribute.KeyValue) {
	if n <= 0 {
		return
	}
	if len(extra) == 0 {
		c.Add(context.Background(), int64(n), h.attrs)
		return
	}
	c.Add(context.Background(), int64(n), h.attrs, metric.WithAttributes(extra...))
}

func (h *Hooks) LoadStarted(string)            { h.add(h.loads, 1) }
func (h *Hooks) LoadStartFailed(string, error) { h.add(h.startFailed, 1) }
func (h *Hooks) LoadFailed(string)             { h.add(h.failed, 1) }
func (h *Hooks) FanOut(_ string, delivered, _ int) {
	h.add(h.delivered, delivered)
}
func (h *Hooks) StaleDropped(string, string) {
	h.add(h.withheld, 1, attribute.String("reason", "stale"))
}
func (h *Hooks) RequesterGone(string) {
	h.add(h.withheld, 1, attribute.String("reason", "requester_gone"))
}
func (h *Hooks) Cleared(n int)                      { h.add(h.cleared, n) }
func (h *Hooks) Shutdown(_ int, droppedWaiters int) { h.add(h.dropped, droppedWaiters) }
