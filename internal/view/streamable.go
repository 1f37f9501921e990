package view

import (
	"context"

	"github.com/user/bookbot/internal/stream"
)

// Streamable is a view node that can be re-rendered while work is in
// progress and is finalized exactly once.
type Streamable struct {
	v *stream.Value[Node]
}

// NewStreamable returns an open streamable node showing initial.
func NewStreamable(initial Node) *Streamable {
	return &Streamable{v: stream.New(initial)}
}

// Update replaces the displayed node. It fails with stream.ErrClosed after
// Done.
func (s *Streamable) Update(n Node) error {
	return s.v.Update(n)
}

// Done finalizes the node, optionally replacing it one last time.
func (s *Streamable) Done(final ...Node) error {
	return s.v.Close(final...)
}

// Value returns the node currently displayed.
func (s *Streamable) Value() Node {
	return s.v.Value()
}

func (s *Streamable) Closed() bool {
	return s.v.Closed()
}

// Finished returns a channel closed once Done has been called.
func (s *Streamable) Finished() <-chan struct{} {
	return s.v.Done()
}

func (s *Streamable) Wait(ctx context.Context) error {
	return s.v.Wait(ctx)
}

func (s *Streamable) Subscribe(ctx context.Context) <-chan stream.Update[Node] {
	return s.v.Subscribe(ctx)
}
