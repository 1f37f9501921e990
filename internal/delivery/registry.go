// internal/delivery/registry.go
package delivery

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Handler delivers an out-of-turn message, such as an appointment
// reminder, to the session identified by sessionKey.
type Handler func(sessionKey, message string) error

// Registry routes messages to the front-end that owns a session, chosen by
// session key prefix (e.g. "telegram:", "http:").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for session keys starting with prefix. A later
// registration for the same prefix replaces the earlier one.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Deliver calls the handler with the longest prefix matching sessionKey.
// Sessions from front-ends that cannot receive pushed messages have no
// handler; for those an error is returned.
func (r *Registry) Deliver(sessionKey, message string) error {
	r.mu.RLock()
	var (
		best    string
		handler Handler
	)
	for prefix, h := range r.handlers {
		if strings.HasPrefix(sessionKey, prefix) && len(prefix) >= len(best) {
			best, handler = prefix, h
		}
	}
	r.mu.RUnlock()

	if handler == nil {
		return fmt.Errorf("no delivery handler for session key: %s", sessionKey)
	}
	if err := handler(sessionKey, message); err != nil {
		return fmt.Errorf("deliver via %s: %w", best, err)
	}
	slog.Debug("message delivered", "session_key", sessionKey, "route", best)
	return nil
}
