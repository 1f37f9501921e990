// Package stream provides a close-once streamable value. A producer pushes
// incremental updates and closes the value exactly once; any number of
// consumers observe the updates in emission order.
package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Update and Close once the value has been closed.
var ErrClosed = errors.New("stream: value is closed")

// Update is one observation of a streamed value. Value holds the full content
// after the update; Delta holds what the producer passed in. The terminal
// update has Done set and carries the final content.
type Update[T any] struct {
	Value T
	Delta T
	Done  bool
}

// Value is a streamable value in either the open or the closed phase.
type Value[T any] struct {
	mu     sync.Mutex
	cur    T
	merge  func(cur, delta T) T
	closed bool
	done   chan struct{}
	subs   []*subscriber[T]
}

// New returns an open value whose updates replace the current content.
func New[T any](initial T) *Value[T] {
	return NewWithMerge(initial, func(_, delta T) T { return delta })
}

// NewWithMerge returns an open value whose updates are folded into the
// current content with merge.
func NewWithMerge[T any](initial T, merge func(cur, delta T) T) *Value[T] {
	return &Value[T]{
		cur:   initial,
		merge: merge,
		done:  make(chan struct{}),
	}
}

// NewText returns an open string value that appends each delta.
func NewText() *Value[string] {
	return NewWithMerge("", func(cur, delta string) string { return cur + delta })
}

// Update folds delta into the value and notifies subscribers.
func (v *Value[T]) Update(delta T) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}
	v.cur = v.merge(v.cur, delta)
	v.broadcast(Update[T]{Value: v.cur, Delta: delta})
	return nil
}

// Close moves the value to the closed phase. When final is given it replaces
// the current content.
func (v *Value[T]) Close(final ...T) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}
	var delta T
	if len(final) > 0 {
		v.cur = final[0]
		delta = final[0]
	}
	v.closed = true
	v.broadcast(Update[T]{Value: v.cur, Delta: delta, Done: true})
	v.subs = nil
	close(v.done)
	return nil
}

// Value returns the current content.
func (v *Value[T]) Value() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Closed reports whether Close has been called.
func (v *Value[T]) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Done returns a channel closed when the value is closed.
func (v *Value[T]) Done() <-chan struct{} {
	return v.done
}

// Wait blocks until the value is closed or ctx is done.
func (v *Value[T]) Wait(ctx context.Context) error {
	select {
	case <-v.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel that first carries the current content, then
// every later update in order, and finally the terminal update, after which
// it is closed. Subscribing to a closed value yields only the terminal
// update. The channel is also closed when ctx is done.
func (v *Value[T]) Subscribe(ctx context.Context) <-chan Update[T] {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		out := make(chan Update[T], 1)
		out <- Update[T]{Value: v.cur, Done: true}
		close(out)
		return out
	}

	s := &subscriber[T]{
		queue: []Update[T]{{Value: v.cur}},
		wake:  make(chan struct{}, 1),
		out:   make(chan Update[T]),
	}
	v.subs = append(v.subs, s)
	go func() {
		if !s.pump(ctx) {
			v.unsubscribe(s)
		}
	}()
	return s.out
}

// unsubscribe drops s so later updates are no longer queued for it.
func (v *Value[T]) unsubscribe(s *subscriber[T]) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, sub := range v.subs {
		if sub == s {
			v.subs = append(v.subs[:i], v.subs[i+1:]...)
			break
		}
	}
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
}

// broadcast queues u on every subscriber. Caller must hold v.mu.
func (v *Value[T]) broadcast(u Update[T]) {
	for _, s := range v.subs {
		s.push(u)
	}
}

// subscriber buffers updates without bound so producers never block on a
// slow consumer.
type subscriber[T any] struct {
	mu    sync.Mutex
	queue []Update[T]
	wake  chan struct{}
	out   chan Update[T]
}

func (s *subscriber[T]) push(u Update[T]) {
	s.mu.Lock()
	s.queue = append(s.queue, u)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump delivers queued updates to out. It reports whether the terminal
// update was delivered; false means ctx ended first.
func (s *subscriber[T]) pump(ctx context.Context) bool {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return false
			}
		}
		u := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- u:
		case <-ctx.Done():
			return false
		}
		if u.Done {
			return true
		}
	}
}
