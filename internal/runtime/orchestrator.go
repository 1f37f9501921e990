package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	ctxengine "github.com/user/bookbot/internal/context"
	"github.com/user/bookbot/internal/gateway"
	"github.com/user/bookbot/internal/state"
	"github.com/user/bookbot/internal/stream"
	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/internal/view"
	"github.com/user/bookbot/pkg/llm"
)

// MaxShares bounds a single purchase.
const MaxShares = 1000

// completion is closed once a turn has committed and closed its views.
type completion struct {
	done chan struct{}
}

func newCompletion() completion {
	return completion{done: make(chan struct{})}
}

// Done returns a channel closed when the turn has finished.
func (c completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the turn has finished or ctx is done.
func (c completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Turn is one user message being answered. View starts as a spinner and is
// closed exactly once.
type Turn struct {
	completion
	ID   types.TurnID
	View *view.Streamable
}

// PurchaseTurn is a purchase confirmation in progress. Purchasing shows the
// progress of the purchase; Message carries the confirmation shown to the
// user once it completes.
type PurchaseTurn struct {
	completion
	ID         types.TurnID
	Purchasing *view.Streamable
	Message    *view.Streamable
}

// Orchestrator runs turns: it calls the model, streams text or dispatches
// the selected tool, and finalizes the conversation exactly once per turn.
type Orchestrator struct {
	provider      llm.Provider
	engine        *ctxengine.Engine
	registry      *Registry
	dispatcher    *Dispatcher
	conversations *state.Manager
	retry         *gateway.RetryPolicy
	latency       time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetryPolicy sets the policy used when opening the model stream.
func WithRetryPolicy(p *gateway.RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// WithToolLatency sets the simulated latency of tool bodies and purchases.
func WithToolLatency(d time.Duration) Option {
	return func(o *Orchestrator) { o.latency = d }
}

// New creates an Orchestrator. conversations may be nil when the caller
// only uses SubmitUserMessage and ConfirmPurchase directly.
func New(provider llm.Provider, engine *ctxengine.Engine, registry *Registry, conversations *state.Manager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:      provider,
		engine:        engine,
		registry:      registry,
		conversations: conversations,
		retry:         gateway.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.dispatcher = NewDispatcher(registry, o.latency)
	return o
}

// ProcessRun executes a gateway run and returns once the turn has finished.
// This is the function passed to Gateway.SetProcessor.
func (o *Orchestrator) ProcessRun(run *gateway.Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if o.conversations == nil {
		return fmt.Errorf("orchestrator has no conversation manager")
	}
	conv, err := o.conversations.Begin(ctx, run.ChatID, run.SessionKey)
	if err != nil {
		return err
	}

	if p := run.Purchase; p != nil {
		pt, err := o.ConfirmPurchase(ctx, conv, p.Symbol, p.Price, p.Amount)
		if err != nil {
			return err
		}
		run.Started(pt.Purchasing, pt.Message)
		<-pt.Done()
		return nil
	}

	turn, err := o.SubmitUserMessage(ctx, conv, run.Text)
	if err != nil {
		return err
	}
	run.Started(turn.View)
	<-turn.Done()
	return nil
}

// SubmitUserMessage stages the user's message on conv and answers it in the
// background. The returned turn's view is usable immediately. The model
// call and any tool body are detached from ctx cancellation; abandoning the
// request still lets the turn commit.
func (o *Orchestrator) SubmitUserMessage(ctx context.Context, conv *state.Mutable, content string) (*Turn, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("message content is empty")
	}
	if err := conv.Append(types.Message{
		ID:      types.NewMessageID(),
		Role:    types.RoleUser,
		Content: types.Text(content),
	}); err != nil {
		return nil, fmt.Errorf("stage user message: %w", err)
	}

	turn := &Turn{
		completion: newCompletion(),
		ID:         types.NewTurnID(),
		View:       view.NewStreamable(view.SpinnerMessage()),
	}
	go o.answer(context.WithoutCancel(ctx), conv, turn)
	return turn, nil
}

func (o *Orchestrator) answer(ctx context.Context, conv *state.Mutable, turn *Turn) {
	defer close(turn.done)
	log := slog.With("chat_id", string(conv.Get().ChatID), "turn_id", string(turn.ID))

	messages, err := o.engine.BuildPrompt(conv.Get(), o.registry.Names())
	if err != nil {
		log.Error("build prompt", "error", err)
		o.abort(ctx, conv, turn, err)
		return
	}

	var deltas <-chan llm.Delta
	err = o.retry.ExecuteContext(ctx, func(ctx context.Context) error {
		var err error
		deltas, err = o.provider.Stream(ctx, messages, o.registry.AsLLMTools())
		return err
	})
	if err != nil {
		log.Error("model call failed", "error", err)
		o.abort(ctx, conv, turn, err)
		return
	}

	var (
		text      *stream.Value[string]
		calls     []llm.ToolCall
		streamErr error
	)
	for d := range deltas {
		if d.Err != nil {
			streamErr = d.Err
			continue
		}
		if d.Content != "" {
			if text == nil {
				text = stream.NewText()
			}
			_ = text.Update(d.Content)
			_ = turn.View.Update(view.BotText(text))
		}
		if d.Done {
			calls = d.ToolCalls
		}
	}
	if streamErr != nil {
		log.Warn("model stream ended with error", "error", streamErr)
	}

	switch {
	case text != nil:
		if len(calls) > 0 {
			log.Warn("ignoring tool calls after text", "count", len(calls))
		}
		_ = text.Close()
		final := text.Value()
		if err := conv.Finish(ctx, types.Message{
			ID:      types.NewMessageID(),
			Role:    types.RoleAssistant,
			Content: types.Text(final),
		}); err != nil {
			log.Error("commit assistant message", "error", err)
		}
		_ = turn.View.Done(view.BotMessage(final))

	case len(calls) > 0:
		if len(calls) > 1 {
			log.Warn("model requested several tools, using the first", "count", len(calls))
		}
		tc := calls[0]
		call := &Call{
			ID:   types.ToolCallID(tc.ID),
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		}
		_ = o.dispatcher.Dispatch(ctx, conv, call, turn.View).Wait(ctx)

	case streamErr != nil:
		o.abort(ctx, conv, turn, streamErr)

	default:
		// Nothing usable came back: keep the user's message, show nothing.
		if err := conv.Done(ctx, conv.Get()); err != nil {
			log.Error("commit empty turn", "error", err)
		}
		_ = turn.View.Done(view.BotMessage(""))
	}
}

// abort finalizes a turn whose model call failed. Only the user's message
// is committed.
func (o *Orchestrator) abort(ctx context.Context, conv *state.Mutable, turn *Turn, cause error) {
	if err := conv.Done(ctx, conv.Get()); err != nil {
		slog.Error("commit failed turn", "error", err)
	}
	msg := "Sorry, I couldn't reach the assistant. Please try again."
	if errors.Is(cause, context.DeadlineExceeded) {
		msg = "Sorry, the assistant took too long to answer. Please try again."
	}
	_ = turn.View.Done(view.ErrorMessage(msg))
}

// ConfirmPurchase executes a purchase the user confirmed from a purchase
// card. Progress is streamed to Purchasing; the recorded fact is a system
// note the model sees on later turns.
func (o *Orchestrator) ConfirmPurchase(ctx context.Context, conv *state.Mutable, symbol string, price float64, amount int) (*PurchaseTurn, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	pt := &PurchaseTurn{
		completion: newCompletion(),
		ID:         types.NewTurnID(),
		Purchasing: view.NewStreamable(view.Progress(fmt.Sprintf("Purchasing %d $%s...", amount, symbol))),
		Message:    view.NewStreamable(view.Node{}),
	}
	bg := context.WithoutCancel(ctx)

	if amount <= 0 || amount > MaxShares {
		go func() {
			defer close(pt.done)
			if err := conv.Finish(bg, systemNote("[User has selected an invalid amount]")); err != nil {
				slog.Error("commit rejected purchase", "error", err)
			}
			_ = pt.Purchasing.Done(view.ErrorMessage("Invalid amount"))
			_ = pt.Message.Done()
		}()
		return pt, nil
	}

	go func() {
		defer close(pt.done)
		call := &Call{Name: "confirmPurchase", Latency: o.latency}

		_ = call.Pause(bg)
		_ = pt.Purchasing.Update(view.Progress(fmt.Sprintf("Purchasing %d $%s... working on it...", amount, symbol)))
		_ = call.Pause(bg)

		total := math.Round(float64(amount)*price*100) / 100
		note := fmt.Sprintf("[User has purchased %d shares of %s at %s. Total cost = %s]",
			amount, symbol, formatFloat(price), formatFloat(total))
		if err := conv.Finish(bg, systemNote(note)); err != nil {
			slog.Error("commit purchase", "error", err)
		}

		_ = pt.Purchasing.Done(view.BotMessage(fmt.Sprintf("You have successfully purchased %d $%s. Total cost: %s",
			amount, symbol, view.FormatNumber(total))))
		_ = pt.Message.Done(view.SystemMessage(fmt.Sprintf("You have purchased %d shares of %s at $%s. Total cost = %s",
			amount, symbol, formatFloat(price), view.FormatNumber(total))))
	}()
	return pt, nil
}

func systemNote(text string) types.Message {
	return types.Message{ID: types.NewMessageID(), Role: types.RoleSystem, Content: types.Text(text)}
}

// formatFloat prints v with the shortest exact representation, so 0.1 stays
// "0.1" and 5 stays "5".
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
