package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/user/bookbot/internal/types"
)

// FileStore is a JSON-file-backed chat store.
// Each chat is stored at chats/<chatID>.json.
type FileStore struct {
	root string
	mu   sync.RWMutex
}

// NewFileStore creates a new file-backed FileStore rooted at the given directory.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) chatsDir() string {
	return filepath.Join(s.root, "chats")
}

func (s *FileStore) chatPath(id types.ChatID) (string, error) {
	name := string(id)
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid chat id: %q", name)
	}
	return filepath.Join(s.chatsDir(), name+".json"), nil
}

func (s *FileStore) readChat(path string) (*types.Chat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.ErrChatNotFound
		}
		return nil, fmt.Errorf("read chat file: %w", err)
	}

	var chat types.Chat
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, fmt.Errorf("unmarshal chat: %w", err)
	}
	return &chat, nil
}

// SaveChat writes the chat atomically, replacing any previous version.
func (s *FileStore) SaveChat(_ context.Context, chat *types.Chat) error {
	path, err := s.chatPath(chat.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(chat, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chat: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.chatsDir(), 0o755); err != nil {
		return fmt.Errorf("create chats dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp chat: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp chat: %w", err)
	}
	return nil
}

// GetChat returns the chat with the given ID.
func (s *FileStore) GetChat(_ context.Context, id types.ChatID) (*types.Chat, error) {
	path, err := s.chatPath(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readChat(path)
}

// ListChats returns the user's chats, newest first. An empty userID lists
// every chat.
func (s *FileStore) ListChats(_ context.Context, userID string) ([]*types.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.chatsDir(), "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob chats: %w", err)
	}

	chats := make([]*types.Chat, 0, len(matches))
	for _, path := range matches {
		chat, err := s.readChat(path)
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

// DeleteChat removes the chat file. Deleting a missing chat is not an error.
func (s *FileStore) DeleteChat(_ context.Context, id types.ChatID) error {
	path, err := s.chatPath(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove chat: %w", err)
	}
	return nil
}
