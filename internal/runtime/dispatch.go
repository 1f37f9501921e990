package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/bookbot/internal/state"
	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/internal/view"
)

// Dispatcher runs tool calls against a turn's conversation handle and view
// node.
type Dispatcher struct {
	registry *Registry
	latency  time.Duration
}

// NewDispatcher creates a dispatcher over registry. latency is passed to
// every call and drives Call.Pause.
func NewDispatcher(registry *Registry, latency time.Duration) *Dispatcher {
	return &Dispatcher{registry: registry, latency: latency}
}

// Pending reports when a dispatched call has committed its records and
// closed its view node.
type Pending struct {
	done chan struct{}
}

// Done returns a channel closed when the call has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the call has finished or ctx is done.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch shows the tool's placeholder on node, validates the arguments and
// runs the tool body in the background. The body is detached from ctx
// cancellation so an abandoned request still completes its commit. The
// call record, its result and any system notes are appended to conv in one
// finalizing step, after which node is closed with the final view.
func (d *Dispatcher) Dispatch(ctx context.Context, conv *state.Mutable, call *Call, node *view.Streamable) *Pending {
	p := &Pending{done: make(chan struct{})}
	if call.ID == "" {
		call.ID = types.NewToolCallID()
	}
	if call.Latency == 0 {
		call.Latency = d.latency
	}
	bg := context.WithoutCancel(ctx)
	log := slog.With("chat_id", string(conv.Get().ChatID), "tool", call.Name, "call_id", string(call.ID))

	tool, ok := d.registry.Get(call.Name)
	placeholder := view.Spinner()
	if ok && !tool.Placeholder().IsZero() {
		placeholder = tool.Placeholder()
	}
	_ = node.Update(placeholder)

	if !ok {
		log.Warn("unknown tool requested")
		go func() {
			defer close(p.done)
			d.reject(bg, conv, call, node, fmt.Errorf("unknown tool %q", call.Name))
		}()
		return p
	}
	if err := d.registry.Validate(call.Name, call.Args); err != nil {
		log.Warn("tool arguments rejected", "error", err)
		go func() {
			defer close(p.done)
			d.reject(bg, conv, call, node, err)
		}()
		return p
	}

	go func() {
		defer close(p.done)
		final, err := runBody(bg, tool, call, node)
		if err != nil {
			log.Error("tool body failed", "error", err)
			d.fail(bg, conv, call, node, err)
			return
		}

		result, err := json.Marshal(final.Result)
		if err != nil {
			log.Error("marshal tool result", "error", err)
			d.fail(bg, conv, call, node, err)
			return
		}
		if err := conv.Finish(bg, toolRecords(call, result, final.Notes)...); err != nil {
			log.Error("commit tool result", "error", err)
		}
		_ = node.Done(final.View)
		log.Debug("tool call finished")
	}()
	return p
}

// runBody drives the tool's step sequence, streaming intermediate views to
// node. It returns the first final step. A panic or a sequence that ends
// without a final step is reported as an error.
func runBody(ctx context.Context, tool Tool, call *Call, node *view.Streamable) (final Step, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()

	got := false
	for step := range tool.Generate(ctx, call) {
		if step.Final {
			final, got = step, true
			break
		}
		if !step.View.IsZero() {
			_ = node.Update(step.View)
		}
	}
	if !got {
		return Step{}, fmt.Errorf("tool %s ended without a result", call.Name)
	}
	return final, nil
}

// reject records a call whose arguments could not be accepted. The model
// sees the call, an error result and a system note explaining the rejection.
func (d *Dispatcher) reject(ctx context.Context, conv *state.Mutable, call *Call, node *view.Streamable, cause error) {
	result, _ := json.Marshal(map[string]string{"error": cause.Error()})
	note := fmt.Sprintf("[Tool %s rejected the arguments: %v]", call.Name, cause)
	if err := conv.Finish(ctx, toolRecords(call, result, []string{note})...); err != nil {
		slog.Error("commit rejected tool call", "tool", call.Name, "error", err)
	}
	_ = node.Done(view.ErrorMessage(fmt.Sprintf("Sorry, I couldn't run %s.", call.Name)))
}

// fail records a call whose body could not produce a result.
func (d *Dispatcher) fail(ctx context.Context, conv *state.Mutable, call *Call, node *view.Streamable, cause error) {
	result, _ := json.Marshal(map[string]string{"error": cause.Error()})
	if err := conv.Finish(ctx, toolRecords(call, result, nil)...); err != nil {
		slog.Error("commit failed tool call", "tool", call.Name, "error", err)
	}
	_ = node.Done(view.ErrorMessage("Something went wrong. Please try again."))
}

// toolRecords builds the assistant call message, the tool result message
// and one system message per note, in commit order.
func toolRecords(call *Call, result json.RawMessage, notes []string) []types.Message {
	args := call.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	} else if !json.Valid(args) {
		// Keep malformed model output as a JSON string so the record stays
		// encodable.
		args, _ = json.Marshal(string(call.Args))
	}
	msgs := []types.Message{
		{
			ID:   types.NewMessageID(),
			Role: types.RoleAssistant,
			Content: types.Parts(types.Part{
				Type:       types.PartToolCall,
				ToolName:   call.Name,
				ToolCallID: call.ID,
				Args:       args,
			}),
		},
		{
			ID:   types.NewMessageID(),
			Role: types.RoleTool,
			Content: types.Parts(types.Part{
				Type:       types.PartToolResult,
				ToolName:   call.Name,
				ToolCallID: call.ID,
				Result:     result,
			}),
		},
	}
	for _, note := range notes {
		msgs = append(msgs, types.Message{ID: types.NewMessageID(), Role: types.RoleSystem, Content: types.Text(note)})
	}
	return msgs
}
