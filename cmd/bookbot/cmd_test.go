package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/bookbot/internal/config"
	"github.com/user/bookbot/internal/stream"
	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/internal/view"
)

func TestPrintViewStreamsText(t *testing.T) {
	text := stream.NewText()
	v := view.NewStreamable(view.SpinnerMessage())

	var out bytes.Buffer
	done := make(chan view.Node)
	go func() { done <- printView(context.Background(), &out, v) }()

	require.NoError(t, v.Update(view.BotText(text)))
	require.NoError(t, text.Update("Hello"))
	require.NoError(t, text.Update(", Jane"))
	require.NoError(t, text.Close())
	require.NoError(t, v.Done(view.BotMessage("Hello, Jane")))

	select {
	case final := <-done:
		assert.Equal(t, view.KindBotMessage, final.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("printView did not return")
	}
	assert.Contains(t, out.String(), "Hello")
	assert.Contains(t, out.String(), "Jane")
}

func TestPrintViewReturnsPendingPurchase(t *testing.T) {
	v := view.NewStreamable(view.Card(view.KindPurchase, view.Purchase{
		Symbol: "DOGE", Price: 10, NumberOfShares: 5, Status: view.PurchaseRequiresAction,
	}))
	require.NoError(t, v.Done())

	var out bytes.Buffer
	final := printView(context.Background(), &out, v)
	p, ok := view.PendingPurchase(final)
	require.True(t, ok)
	assert.Equal(t, 5, p.NumberOfShares)
	assert.Contains(t, out.String(), "DOGE")
}

func TestShowChatSkipsSystemNotes(t *testing.T) {
	chat := &types.Chat{
		ID:        "c1",
		Title:     "book a checkup",
		CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Messages: []types.Message{
			{ID: "m1", Role: types.RoleUser, Content: types.Text("book a checkup")},
			{ID: "m2", Role: types.RoleSystem, Content: types.Text("[User has selected an invalid amount]")},
			{ID: "m3", Role: types.RoleAssistant, Content: types.Text("Booked.")},
		},
	}
	var out bytes.Buffer
	require.NoError(t, showChat(&out, chat))
	assert.Contains(t, out.String(), "book a checkup")
	assert.Contains(t, out.String(), "Booked.")
	assert.NotContains(t, out.String(), "invalid amount")
}

func TestOpenStoreRejectsUnknownKind(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir(), Store: "postgres"}
	_, _, err := openStore(context.Background(), cfg)
	assert.Error(t, err)

	cfg.Store = "sqlite"
	store, closeStore, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeStore()
	_, err = store.ListChats(context.Background(), "")
	assert.NoError(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
