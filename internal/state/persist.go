package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/bookbot/internal/auth"
	"github.com/user/bookbot/internal/types"
)

const maxTitleRunes = 100

// Persister bridges finalized conversations to a ChatStore. Every operation
// is a no-op when the auth boundary yields no session.
type Persister struct {
	store types.ChatStore
	auth  auth.Authenticator
	now   func() time.Time
}

func NewPersister(store types.ChatStore, authn auth.Authenticator) *Persister {
	if authn == nil {
		authn = auth.Anonymous{}
	}
	return &Persister{store: store, auth: authn, now: time.Now}
}

// Hook returns a commit hook that saves the conversation and logs failures.
func (p *Persister) Hook(key types.SessionKey) CommitHook {
	return func(ctx context.Context, conv types.Conversation) {
		if err := p.Save(ctx, conv, key); err != nil {
			slog.Error("save chat failed", "chat_id", string(conv.ChatID), "error", err)
		}
	}
}

// Save writes conv as a Chat owned by the session user. It returns nil
// without writing when there is no session or nothing to save.
func (p *Persister) Save(ctx context.Context, conv types.Conversation, key types.SessionKey) error {
	session, err := p.session(ctx)
	if err != nil || session == nil || p.store == nil {
		return err
	}
	if len(conv.Messages) == 0 {
		return nil
	}

	createdAt := p.now()
	existing, err := p.store.GetChat(ctx, conv.ChatID)
	switch {
	case err == nil:
		createdAt = existing.CreatedAt
		if key == "" {
			key = existing.SessionKey
		}
	case !errors.Is(err, types.ErrChatNotFound):
		return fmt.Errorf("load existing chat: %w", err)
	}

	chat := &types.Chat{
		ID:         conv.ChatID,
		Title:      title(conv),
		UserID:     session.UserID,
		CreatedAt:  createdAt,
		Messages:   conv.Messages,
		Path:       "/chat/" + string(conv.ChatID),
		SessionKey: key,
	}
	if err := p.store.SaveChat(ctx, chat); err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

// Load returns the stored conversation for id when the session user owns
// it. The boolean is false for anonymous callers, missing chats and chats
// owned by someone else. Any other store failure is returned, because
// treating it as a missing chat would let the next commit overwrite the
// stored history.
func (p *Persister) Load(ctx context.Context, id types.ChatID) (types.Conversation, bool, error) {
	session, err := p.session(ctx)
	if err != nil || session == nil || p.store == nil {
		return types.Conversation{}, false, nil
	}
	chat, err := p.store.GetChat(ctx, id)
	if errors.Is(err, types.ErrChatNotFound) {
		return types.Conversation{}, false, nil
	}
	if err != nil {
		return types.Conversation{}, false, fmt.Errorf("load chat %s: %w", id, err)
	}
	if chat.UserID != session.UserID {
		return types.Conversation{}, false, nil
	}
	return chat.Conversation(), true, nil
}

// List returns the session user's chats, or nothing when anonymous.
func (p *Persister) List(ctx context.Context) ([]*types.Chat, error) {
	session, err := p.session(ctx)
	if err != nil || session == nil || p.store == nil {
		return nil, nil
	}
	return p.store.ListChats(ctx, session.UserID)
}

func (p *Persister) session(ctx context.Context) (*types.Session, error) {
	session, err := p.auth.Session(ctx)
	if err != nil {
		slog.Warn("session lookup failed", "error", err)
		return nil, nil
	}
	return session, nil
}

func title(conv types.Conversation) string {
	if len(conv.Messages) == 0 {
		return ""
	}
	text := []rune(conv.Messages[0].Content.Text)
	if len(text) > maxTitleRunes {
		text = text[:maxTitleRunes]
	}
	return string(text)
}
