package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/user/bookbot/internal/types"
)

// MemoryStore keeps chats in process memory. Stored chats are deep copies so
// callers cannot mutate them after saving.
type MemoryStore struct {
	mu    sync.RWMutex
	chats map[types.ChatID][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chats: make(map[types.ChatID][]byte)}
}

func (s *MemoryStore) SaveChat(_ context.Context, chat *types.Chat) error {
	data, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("marshal chat: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.ID] = data
	return nil
}

func (s *MemoryStore) GetChat(_ context.Context, id types.ChatID) (*types.Chat, error) {
	s.mu.RLock()
	data, ok := s.chats[id]
	s.mu.RUnlock()
	if !ok {
		return nil, types.ErrChatNotFound
	}
	return decodeChat(data)
}

func (s *MemoryStore) ListChats(_ context.Context, userID string) ([]*types.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := make([]*types.Chat, 0, len(s.chats))
	for _, data := range s.chats {
		chat, err := decodeChat(data)
		if err != nil {
			return nil, err
		}
		if userID != "" && chat.UserID != userID {
			continue
		}
		chats = append(chats, chat)
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, nil
}

func (s *MemoryStore) DeleteChat(_ context.Context, id types.ChatID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, id)
	return nil
}

func decodeChat(data []byte) (*types.Chat, error) {
	var chat types.Chat
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, fmt.Errorf("unmarshal chat: %w", err)
	}
	return &chat, nil
}
