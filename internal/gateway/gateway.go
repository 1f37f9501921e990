package gateway

import (
	"context"
	"fmt"

	"github.com/user/bookbot/internal/view"
)

// Gateway accepts turns from the front-ends (HTTP, Telegram, CLI) and
// serializes them per conversation through its Queue.
type Gateway struct {
	Queue *Queue

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway with the given concurrency limit for simultaneous
// turns across conversations.
func New(maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	return &Gateway{
		Queue: NewQueue(concurrency),
	}
}

// SetProcessor sets the function that executes a run. It must return only
// after the turn has committed, and return an error only when no turn was
// started.
func (g *Gateway) SetProcessor(fn func(*Run) error) {
	g.Queue.SetProcessor(fn)
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context and stops the queue.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// HandleInbound enqueues run without waiting for it to start.
func (g *Gateway) HandleInbound(ctx context.Context, run *Run) error {
	if run.Ctx == nil {
		run.Ctx = ctx
	}
	if err := g.Queue.Enqueue(run); err != nil {
		return fmt.Errorf("enqueue run: %w", err)
	}
	return nil
}

// Submit enqueues run and waits until its turn has started, returning the
// turn's view handles. If ctx ends first the run still executes; only the
// wait is abandoned.
func (g *Gateway) Submit(ctx context.Context, run *Run) ([]*view.Streamable, error) {
	started := make(chan []*view.Streamable, 1)
	failed := make(chan error, 1)

	onStart, onError := run.OnStart, run.OnError
	run.OnStart = func(views ...*view.Streamable) {
		if onStart != nil {
			onStart(views...)
		}
		started <- views
	}
	run.OnError = func(err error) {
		if onError != nil {
			onError(err)
		}
		select {
		case failed <- err:
		default:
		}
	}

	if err := g.HandleInbound(ctx, run); err != nil {
		return nil, err
	}

	select {
	case views := <-started:
		return views, nil
	case err := <-failed:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
