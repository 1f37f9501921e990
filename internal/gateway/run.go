package gateway

import (
	"context"
	"time"

	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/internal/view"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Purchase is the payload of a purchase confirmation run.
type Purchase struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Amount int     `json:"amount"`
}

// Run tracks a single turn against a conversation: either a user message
// (Text) or a purchase confirmation (Purchase).
type Run struct {
	ID         types.RunID
	ChatID     types.ChatID
	SessionKey types.SessionKey
	Text       string
	Purchase   *Purchase
	Status     RunStatus
	CreatedAt  time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
	Error      error

	// OnStart receives the turn's view handles as soon as the turn has
	// started. It is called at most once, from the lane goroutine.
	OnStart func(views ...*view.Streamable)
	// OnError is called when the run could not start a turn.
	OnError func(err error)

	// Ctx is the request context. Turns detach from its cancellation.
	Ctx context.Context
}

// NewRun creates a Run in the Queued state for a user message.
func NewRun(chatID types.ChatID, key types.SessionKey, text string) *Run {
	return &Run{
		ID:         types.NewRunID(),
		ChatID:     chatID,
		SessionKey: key,
		Text:       text,
		Status:     RunStatusQueued,
		CreatedAt:  time.Now(),
	}
}

// NewPurchaseRun creates a Run in the Queued state for a purchase
// confirmation.
func NewPurchaseRun(chatID types.ChatID, key types.SessionKey, p Purchase) *Run {
	run := NewRun(chatID, key, "")
	run.Purchase = &p
	return run
}

func (r *Run) start(views ...*view.Streamable) {
	if r.OnStart != nil {
		r.OnStart(views...)
	}
}

func (r *Run) fail(err error) {
	if r.OnError != nil {
		r.OnError(err)
	}
}

// Started hands the turn's view handles to the requester.
func (r *Run) Started(views ...*view.Streamable) {
	now := time.Now()
	r.StartedAt = &now
	r.Status = RunStatusRunning
	r.start(views...)
}
