package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/bookbot/internal/auth"
	"github.com/user/bookbot/internal/types"
)

func sampleChat(id types.ChatID, user string, created time.Time) *types.Chat {
	return &types.Chat{
		ID:        id,
		Title:     "hello",
		UserID:    user,
		CreatedAt: created,
		Path:      "/chat/" + string(id),
		Messages: []types.Message{
			{ID: "m1", Role: types.RoleUser, Content: types.Text("hello")},
			{ID: "m2", Role: types.RoleAssistant, Content: types.Parts(types.Part{
				Type:       types.PartToolCall,
				ToolName:   "showStockPrice",
				ToolCallID: "call-1",
				Args:       json.RawMessage(`{"symbol":"DOGE","price":0.1,"delta":0.01}`),
			})},
		},
	}
}

func stores(t *testing.T) map[string]types.ChatStore {
	t.Helper()
	dir := t.TempDir()
	sqlite, err := OpenSQLiteStore(context.Background(), filepath.Join(dir, "chats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]types.ChatStore{
		"file":   NewFileStore(dir),
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestChatStores(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

			_, err := store.GetChat(ctx, "missing")
			assert.True(t, errors.Is(err, types.ErrChatNotFound))

			older := sampleChat("chat-a", "u1", base)
			newer := sampleChat("chat-b", "u1", base.Add(time.Hour))
			other := sampleChat("chat-c", "u2", base)
			for _, c := range []*types.Chat{older, newer, other} {
				require.NoError(t, store.SaveChat(ctx, c))
			}
			// Saving the same chat again must not duplicate or corrupt it.
			require.NoError(t, store.SaveChat(ctx, older))

			got, err := store.GetChat(ctx, "chat-a")
			require.NoError(t, err)
			assert.Equal(t, older.Title, got.Title)
			assert.True(t, older.CreatedAt.Equal(got.CreatedAt))
			require.Len(t, got.Messages, 2)
			assert.JSONEq(t, string(older.Messages[1].Content.Parts[0].Args), string(got.Messages[1].Content.Parts[0].Args))

			list, err := store.ListChats(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, types.ChatID("chat-b"), list[0].ID)

			all, err := store.ListChats(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)

			require.NoError(t, store.DeleteChat(ctx, "chat-a"))
			_, err = store.GetChat(ctx, "chat-a")
			assert.ErrorIs(t, err, types.ErrChatNotFound)
		})
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store := NewFileStore(t.TempDir())
	err := store.SaveChat(context.Background(), &types.Chat{ID: "../escape"})
	assert.Error(t, err)
}

func TestPersisterAnonymousIsNoop(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := NewPersister(store, auth.Anonymous{})

	conv := types.Conversation{ChatID: "c1", Messages: []types.Message{userMsg("hi")}}
	require.NoError(t, p.Save(ctx, conv, ""))

	all, err := store.ListChats(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)

	_, ok, err := p.Load(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersisterLookupFailureIsNoop(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := NewPersister(store, auth.Func(func(context.Context) (*types.Session, error) {
		return nil, errors.New("auth backend down")
	}))

	conv := types.Conversation{ChatID: "c1", Messages: []types.Message{userMsg("hi")}}
	require.NoError(t, p.Save(ctx, conv, ""))
	all, err := store.ListChats(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPersisterSavesAndLoads(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := NewPersister(store, auth.Static{UserID: "u1"})
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return created }

	long := bytes.Repeat([]byte("a"), 150)
	conv := types.Conversation{ChatID: "c1", Messages: []types.Message{userMsg(string(long))}}
	require.NoError(t, p.Save(ctx, conv, "telegram:1:2"))

	p.now = func() time.Time { return created.Add(time.Hour) }
	conv = conv.With(userMsg("again"))
	require.NoError(t, p.Save(ctx, conv, ""))

	chat, err := store.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, chat.Title, 100)
	assert.Equal(t, "u1", chat.UserID)
	assert.Equal(t, "/chat/c1", chat.Path)
	assert.True(t, created.Equal(chat.CreatedAt), "createdAt must survive later saves")
	assert.Equal(t, types.SessionKey("telegram:1:2"), chat.SessionKey)

	loaded, ok, err := p.Load(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, loaded.Messages, 2)

	other := NewPersister(store, auth.Static{UserID: "u2"})
	_, ok, err = other.Load(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok, "chats are only rehydrated for their owner")
}

func TestExportYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportYAML(&buf, sampleChat("chat-a", "u1", time.Unix(0, 0).UTC())))

	out := buf.String()
	assert.Contains(t, out, "id: chat-a")
	assert.Contains(t, out, "toolName: showStockPrice")
	assert.Contains(t, out, "symbol: DOGE")
}
