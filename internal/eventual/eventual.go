// Package eventual provides a single-slot latest-value cell shared between
// one writer and many concurrent readers.
package eventual

import (
	"context"
	"sync"
	"sync/atomic"
)

// Eventual holds the most recently published value of type T. Readers either
// observe the latest value or block until the first one is published.
// Publication is a single atomic pointer swap, so all concurrent readers see
// the same immutable value and torn reads are impossible.
type Eventual[T any] struct {
	value atomic.Pointer[T]

	readyOnce sync.Once
	ready     chan struct{}
}

// New creates an empty Eventual. Value blocks until the first Publish.
func New[T any]() *Eventual[T] {
	return &Eventual[T]{
		ready: make(chan struct{}),
	}
}

// Publish stores v as the current value, replacing whichever was current,
// and wakes any readers waiting on the first value.
func (e *Eventual[T]) Publish(v T) {
	e.value.Store(&v)
	e.readyOnce.Do(func() {
		close(e.ready)
	})
}

// Value returns the latest published value. If nothing has been published
// yet, it suspends the caller until the first Publish or until ctx is done.
// After the first publish it is a non-blocking atomic read.
func (e *Eventual[T]) Value(ctx context.Context) (T, error) {
	select {
	case <-e.ready:
		return *e.value.Load(), nil
	default:
	}

	select {
	case <-e.ready:
		return *e.value.Load(), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Latest returns the latest published value without blocking. The boolean
// reports whether a value has ever been published.
func (e *Eventual[T]) Latest() (T, bool) {
	if p := e.value.Load(); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// Ready reports whether at least one value has been published.
func (e *Eventual[T]) Ready() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}
