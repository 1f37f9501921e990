// Package auth is the identity boundary. A nil session means the caller is
// anonymous, which turns persistence and rehydration into no-ops.
package auth

import (
	"context"

	"github.com/user/bookbot/internal/types"
)

type Authenticator interface {
	Session(ctx context.Context) (*types.Session, error)
}

// Static authenticates every request as the same configured user. An empty
// user id behaves like Anonymous.
type Static struct {
	UserID string
}

func (s Static) Session(context.Context) (*types.Session, error) {
	if s.UserID == "" {
		return nil, nil
	}
	return &types.Session{UserID: s.UserID}, nil
}

// Anonymous never yields a session.
type Anonymous struct{}

func (Anonymous) Session(context.Context) (*types.Session, error) {
	return nil, nil
}

// Func adapts a function to Authenticator.
type Func func(ctx context.Context) (*types.Session, error)

func (f Func) Session(ctx context.Context) (*types.Session, error) {
	return f(ctx)
}

type ctxKey struct{}

// WithSession attaches a session to ctx for front-ends that authenticate per
// request.
func WithSession(ctx context.Context, s *types.Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext reads the session attached by WithSession, falling back to
// next when none is present.
func FromContext(next Authenticator) Authenticator {
	return Func(func(ctx context.Context) (*types.Session, error) {
		if s, ok := ctx.Value(ctxKey{}).(*types.Session); ok && s != nil {
			return s, nil
		}
		if next == nil {
			return nil, nil
		}
		return next.Session(ctx)
	})
}
