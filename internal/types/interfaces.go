package types

import (
	"context"
	"errors"
)

var ErrChatNotFound = errors.New("chat not found")

type ChatStore interface {
	SaveChat(ctx context.Context, chat *Chat) error
	GetChat(ctx context.Context, id ChatID) (*Chat, error)
	ListChats(ctx context.Context, userID string) ([]*Chat, error)
	DeleteChat(ctx context.Context, id ChatID) error
}
