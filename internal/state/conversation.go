package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/go-cmp/cmp"

	"github.com/user/bookbot/internal/types"
)

var (
	ErrAlreadyDone   = errors.New("state: conversation already finalized for this turn")
	ErrNotAppendOnly = errors.New("state: update does not extend the committed messages")
)

// CommitHook observes a conversation once it is finalized.
type CommitHook func(ctx context.Context, conv types.Conversation)

// Mutable is the read-modify-write handle a single turn holds over a
// conversation. Staged updates are visible through Get to the owning turn
// but not through Committed until Done.
//
// A Mutable must only be used by one turn; concurrent turns on the same
// conversation id are not supported and must be serialized by the caller.
type Mutable struct {
	mu        sync.Mutex
	committed types.Conversation
	working   types.Conversation
	version   int
	done      bool
	hooks     []CommitHook
}

// NewMutable opens a turn-scoped handle over conv. Hooks run, in order, when
// Done finalizes the turn.
func NewMutable(conv types.Conversation, hooks ...CommitHook) *Mutable {
	c := conv.Clone()
	return &Mutable{
		committed: c,
		working:   c,
		hooks:     hooks,
	}
}

// Get returns the working snapshot, including staged messages.
func (m *Mutable) Get() types.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.working.Clone()
}

// Committed returns the last finalized snapshot.
func (m *Mutable) Committed() types.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed.Clone()
}

// Version counts accepted updates, including the final one.
func (m *Mutable) Version() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Finalized reports whether Done has been called.
func (m *Mutable) Finalized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Update stages next as the working state without finalizing it.
func (m *Mutable) Update(next types.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage(next)
}

// Append stages the working state extended by msgs.
func (m *Mutable) Append(msgs ...types.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage(m.working.With(msgs...))
}

// Done stages final and finalizes it, running the commit hooks.
func (m *Mutable) Done(ctx context.Context, final types.Conversation) error {
	m.mu.Lock()
	if err := m.finalize(final); err != nil {
		m.mu.Unlock()
		return err
	}
	snapshot := m.committed.Clone()
	m.mu.Unlock()

	m.runHooks(ctx, snapshot)
	return nil
}

// Finish appends msgs to the working state and finalizes it as one atomic
// step.
func (m *Mutable) Finish(ctx context.Context, msgs ...types.Message) error {
	m.mu.Lock()
	if err := m.finalize(m.working.With(msgs...)); err != nil {
		m.mu.Unlock()
		return err
	}
	snapshot := m.committed.Clone()
	m.mu.Unlock()

	m.runHooks(ctx, snapshot)
	return nil
}

// finalize stages final and commits it. Caller must hold m.mu.
func (m *Mutable) finalize(final types.Conversation) error {
	if err := m.stage(final); err != nil {
		return err
	}
	m.done = true
	m.committed = m.working.Clone()
	return nil
}

// stage validates and installs next. Caller must hold m.mu.
func (m *Mutable) stage(next types.Conversation) error {
	if m.done {
		return ErrAlreadyDone
	}
	if err := extends(m.committed, next); err != nil {
		return err
	}
	m.working = next.Clone()
	m.version++
	return nil
}

func (m *Mutable) runHooks(ctx context.Context, conv types.Conversation) {
	for _, hook := range m.hooks {
		hook(ctx, conv)
	}
}

// extends checks that next keeps every message of base, in place.
func extends(base, next types.Conversation) error {
	if base.ChatID != "" && next.ChatID != base.ChatID {
		return fmt.Errorf("%w: chat id %s != %s", ErrNotAppendOnly, next.ChatID, base.ChatID)
	}
	if len(next.Messages) < len(base.Messages) {
		return fmt.Errorf("%w: %d messages < %d committed", ErrNotAppendOnly, len(next.Messages), len(base.Messages))
	}
	for i, msg := range base.Messages {
		if !cmp.Equal(next.Messages[i], msg) {
			return fmt.Errorf("%w: message %d (%s) changed", ErrNotAppendOnly, i, msg.ID)
		}
	}
	return nil
}
