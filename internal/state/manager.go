package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/bookbot/internal/types"
)

// Manager hands out turn handles for conversations. It keeps the last
// committed snapshot of every conversation seen by this process, so
// anonymous conversations survive across turns, and falls back to the
// persister to rehydrate chats after a restart.
type Manager struct {
	mu        sync.RWMutex
	live      map[types.ChatID]types.Conversation
	persister *Persister
}

// NewManager creates a manager. persister may be nil, in which case
// conversations only live in memory.
func NewManager(persister *Persister) *Manager {
	return &Manager{
		live:      make(map[types.ChatID]types.Conversation),
		persister: persister,
	}
}

// Begin opens a turn handle over the conversation with the given id,
// creating an empty one on first use. Committing the handle updates the
// in-memory snapshot and persists the chat under key. The stored history is
// loaded even if ctx is already cancelled; a failed load is an error, never
// an empty conversation, so a turn can't commit over history it never saw.
func (m *Manager) Begin(ctx context.Context, id types.ChatID, key types.SessionKey) (*Mutable, error) {
	conv, _, err := m.Snapshot(context.WithoutCancel(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("begin turn on %s: %w", id, err)
	}
	hooks := []CommitHook{m.remember}
	if m.persister != nil {
		hooks = append(hooks, m.persister.Hook(key))
	}
	return NewMutable(conv, hooks...), nil
}

// Snapshot returns the last committed state of the conversation. The
// boolean is false when the conversation is unknown, in which case an empty
// conversation with the given id is returned.
func (m *Manager) Snapshot(ctx context.Context, id types.ChatID) (types.Conversation, bool, error) {
	m.mu.RLock()
	conv, ok := m.live[id]
	m.mu.RUnlock()
	if ok {
		return conv.Clone(), true, nil
	}

	if m.persister != nil {
		stored, ok, err := m.persister.Load(ctx, id)
		if err != nil {
			return types.Conversation{}, false, err
		}
		if ok {
			m.mu.Lock()
			// A turn may have committed while we were loading.
			if cur, exists := m.live[id]; exists {
				stored = cur
			} else {
				m.live[id] = stored
			}
			m.mu.Unlock()
			return stored.Clone(), true, nil
		}
	}
	return types.Conversation{ChatID: id}, false, nil
}

// Forget drops the in-memory snapshot of a conversation.
func (m *Manager) Forget(id types.ChatID) {
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
}

func (m *Manager) remember(_ context.Context, conv types.Conversation) {
	m.mu.Lock()
	m.live[conv.ChatID] = conv.Clone()
	m.mu.Unlock()
}
