// Package sloghooks logs pool events with log/slog.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/texpool"
	"github.com/unkn0wn-root/texpool/internal/util"
)

type Options struct {
	// Sampling to avoid floods (scrolling lists drop many stale callbacks); 0/1 = log all.
	StaleEvery uint64
	GoneEvery  uint64
	// LogLoads logs every LoadStarted and FanOut at Debug.
	LogLoads bool
	// Optional key redactor (keys can be signed URLs). Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	staleCtr atomic.Uint64
	goneCtr  atomic.Uint64
}

var _ texpool.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.Redact(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) LoadStarted(key string) {
	if h.l == nil || !h.opts.LogLoads {
		return
	}
	h.l.Debug("texpool.load_started", "key", h.redact(key))
}

func (h *Hooks) LoadStartFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("texpool.load_start_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) LoadFailed(key string) {
	if h.l == nil {
		return
	}
	h.l.Info("texpool.load_failed", "key", h.redact(key))
}

func (h *Hooks) FanOut(key string, delivered, pending int) {
	if h.l == nil || !h.opts.LogLoads {
		return
	}
	h.l.Debug("texpool.fan_out",
		"key", h.redact(key),
		"delivered", delivered,
		"pending", pending)
}

func (h *Hooks) StaleDropped(key, requestKey string) {
	if h.l == nil || !sample(h.opts.StaleEvery, &h.staleCtr) {
		return
	}
	h.l.Debug("texpool.stale_dropped",
		"key", h.redact(key),
		"request_key", requestKey)
}

func (h *Hooks) RequesterGone(key string) {
	if h.l == nil || !sample(h.opts.GoneEvery, &h.goneCtr) {
		return
	}
	h.l.Debug("texpool.requester_gone", "key", h.redact(key))
}

func (h *Hooks) Cleared(n int) {
	if h.l == nil {
		return
	}
	h.l.Info("texpool.cleared", "count", n)
}

func (h *Hooks) Shutdown(cancelled, dropped int) {
	if h.l == nil {
		return
	}
	h.l.Info("texpool.shutdown",
		"cancelled_loads", cancelled,
		"dropped_waiters", dropped)
}
