// Package state holds the turn-scoped conversation handle and the chat
// stores that persist finalized conversations.
package state

import "github.com/user/bookbot/internal/types"

// Compile-time interface compliance checks.
var _ types.ChatStore = (*FileStore)(nil)
var _ types.ChatStore = (*SQLiteStore)(nil)
var _ types.ChatStore = (*MemoryStore)(nil)
