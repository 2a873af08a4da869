// Package dispatch hands work from background goroutines back to the goroutine that
// owns a texpool.Pool. Loaders call Post from any goroutine; the owner calls Drain
// once per frame (or runs Run) and every posted function executes there.
package dispatch

import (
	"context"
	"sync"
)

type Queue struct {
	mu     sync.Mutex
	q      []func()
	wake   chan struct{} // cap 1; signalled when q goes non-empty
	done   chan struct{}
	closed bool
	once   sync.Once
}

func New() *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post queues f. It reports false, and drops f, once the queue is closed.
func (q *Queue) Post(f func()) bool {
	if f == nil {
		return false
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.q = append(q.q, f)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Drain runs the functions queued at call time on the calling goroutine and returns
// how many ran. Work posted by those functions waits for the next Drain.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.q
	q.q = nil
	q.mu.Unlock()

	for i, f := range batch {
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return i
		}
		f()
	}
	return len(batch)
}

// Wait blocks until work is queued, the queue is closed, or ctx is done. A closed
// queue reports ErrClosed even if a wake signal is still buffered.
func (q *Queue) Wait(ctx context.Context) error {
	if ready, err := q.state(); ready || err != nil {
		return err
	}
	select {
	case <-q.wake:
		_, err := q.state()
		return err
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) state() (ready bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, ErrClosed
	}
	return len(q.q) > 0, nil
}

// Run drains the queue as work arrives until ctx is done or the queue is closed.
func (q *Queue) Run(ctx context.Context) error {
	for {
		if err := q.Wait(ctx); err != nil {
			return err
		}
		q.Drain()
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.q)
}

// Close drops pending work and rejects later posts. Safe to call more than once.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.q = nil
		q.mu.Unlock()
		close(q.done)
	})
}
