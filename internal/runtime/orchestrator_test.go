package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/bookbot/internal/auth"
	ctxengine "github.com/user/bookbot/internal/context"
	"github.com/user/bookbot/internal/gateway"
	"github.com/user/bookbot/internal/runtime"
	"github.com/user/bookbot/internal/runtime/tools"
	"github.com/user/bookbot/internal/state"
	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/internal/view"
	"github.com/user/bookbot/pkg/llm"
)

// scriptProvider streams a fixed list of deltas per call and records the
// prompts it was given.
type scriptProvider struct {
	mu      sync.Mutex
	scripts [][]llm.Delta
	err     error
	prompts [][]llm.Message
}

func (p *scriptProvider) Complete(context.Context, []llm.Message, []llm.Tool) (*llm.Response, error) {
	return nil, errors.New("not used")
}

func (p *scriptProvider) Stream(_ context.Context, messages []llm.Message, _ []llm.Tool) (<-chan llm.Delta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, messages)
	if p.err != nil {
		return nil, p.err
	}
	var script []llm.Delta
	if len(p.scripts) > 0 {
		script, p.scripts = p.scripts[0], p.scripts[1:]
	}
	ch := make(chan llm.Delta, len(script))
	for _, d := range script {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func toolCall(name, args string) llm.Delta {
	return llm.Delta{Done: true, ToolCalls: []llm.ToolCall{{
		ID:       "call_1",
		Type:     "function",
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}}}
}

func newOrchestrator(t *testing.T, p llm.Provider, conversations *state.Manager) *runtime.Orchestrator {
	t.Helper()
	engine, err := ctxengine.New("gpt-4", 8192, 1024)
	require.NoError(t, err)
	fast := &gateway.RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}
	return runtime.New(p, engine, tools.Default(), conversations, runtime.WithRetryPolicy(fast))
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("turn did not finish")
	}
}

func TestSubmitUserMessageBooksAppointment(t *testing.T) {
	p := &scriptProvider{scripts: [][]llm.Delta{{
		toolCall("scheduleAppointment",
			`{"appointment":{"name":"Jane","email":"jane@x.com","date":"2024-05-01","time":"15:00","description":"checkup"}}`),
	}}}
	o := newOrchestrator(t, p, nil)
	conv := state.NewMutable(types.Conversation{ChatID: "c1"})

	turn, err := o.SubmitUserMessage(context.Background(), conv, "Book me a checkup tomorrow at 3pm, I'm Jane, jane@x.com")
	require.NoError(t, err)
	waitDone(t, turn.Done())

	msgs := conv.Committed().Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
	assert.Equal(t, types.RoleTool, msgs[2].Role)

	call := msgs[1].Content.Parts[0]
	result := msgs[2].Content.Parts[0]
	assert.Equal(t, types.ToolCallID("call_1"), call.ToolCallID)
	assert.Equal(t, call.ToolCallID, result.ToolCallID)
	assert.Equal(t, "scheduleAppointment", result.ToolName)

	final := turn.View.Value()
	require.True(t, turn.View.Closed())
	require.Equal(t, view.KindBotCard, final.Kind)
	assert.Equal(t, view.KindAppointment, final.Children[0].Kind)
	booked := final.Children[0].Data.(view.Appointment)
	assert.Equal(t, "jane@x.com", booked.Email)
}

func TestSubmitUserMessageStreamsText(t *testing.T) {
	p := &scriptProvider{scripts: [][]llm.Delta{{
		{Content: "Hello"},
		{Content: ", Jane"},
		{Done: true},
	}}}
	o := newOrchestrator(t, p, nil)
	conv := state.NewMutable(types.Conversation{ChatID: "c1"})

	turn, err := o.SubmitUserMessage(context.Background(), conv, "hi")
	require.NoError(t, err)
	assert.Equal(t, view.KindSpinnerMessage, turn.View.Value().Kind)
	waitDone(t, turn.Done())

	final := turn.View.Value()
	assert.Equal(t, view.KindBotMessage, final.Kind)
	assert.Equal(t, "Hello, Jane", final.Content())

	msgs := conv.Committed().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello, Jane", msgs[1].Content.Text)
}

func TestSubmitUserMessageEmptyCompletion(t *testing.T) {
	p := &scriptProvider{scripts: [][]llm.Delta{{{Done: true}}}}
	o := newOrchestrator(t, p, nil)
	conv := state.NewMutable(types.Conversation{ChatID: "c1"})

	turn, err := o.SubmitUserMessage(context.Background(), conv, "anything")
	require.NoError(t, err)
	waitDone(t, turn.Done())

	assert.True(t, conv.Finalized())
	require.Len(t, conv.Committed().Messages, 1)
	assert.True(t, turn.View.Closed())
}

func TestSubmitUserMessageProviderError(t *testing.T) {
	p := &scriptProvider{err: &llm.APIError{StatusCode: 400, Body: "bad request"}}
	o := newOrchestrator(t, p, nil)
	conv := state.NewMutable(types.Conversation{ChatID: "c1"})

	turn, err := o.SubmitUserMessage(context.Background(), conv, "hello")
	require.NoError(t, err)
	waitDone(t, turn.Done())

	assert.Equal(t, view.KindErrorMessage, turn.View.Value().Kind)
	require.Len(t, conv.Committed().Messages, 1)
	assert.Equal(t, types.RoleUser, conv.Committed().Messages[0].Role)
}

func TestSubmitUserMessageRejectsEmptyContent(t *testing.T) {
	o := newOrchestrator(t, &scriptProvider{}, nil)
	conv := state.NewMutable(types.Conversation{ChatID: "c1"})

	_, err := o.SubmitUserMessage(context.Background(), conv, "   ")
	assert.Error(t, err)
	assert.Empty(t, conv.Get().Messages)
}

func TestSubmitUserMessageSendsHistory(t *testing.T) {
	p := &scriptProvider{scripts: [][]llm.Delta{{{Content: "ok"}, {Done: true}}}}
	o := newOrchestrator(t, p, nil)
	seed := types.Conversation{ChatID: "c1", Messages: []types.Message{
		{ID: "m1", Role: types.RoleUser, Content: types.Text("earlier")},
		{ID: "m2", Role: types.RoleAssistant, Content: types.Text("reply")},
	}}
	conv := state.NewMutable(seed)

	turn, err := o.SubmitUserMessage(context.Background(), conv, "now")
	require.NoError(t, err)
	waitDone(t, turn.Done())

	require.Len(t, p.prompts, 1)
	prompt := p.prompts[0]
	require.Len(t, prompt, 4)
	assert.Equal(t, "system", prompt[0].Role)
	assert.Equal(t, "earlier", prompt[1].Content)
	assert.Equal(t, "now", prompt[3].Content)
}

func TestConfirmPurchase(t *testing.T) {
	o := newOrchestrator(t, &scriptProvider{}, nil)
	conv := state.NewMutable(types.Conversation{ChatID: "c1"})

	pt, err := o.ConfirmPurchase(context.Background(), conv, "DOGE", 10, 50)
	require.NoError(t, err)
	waitDone(t, pt.Done())

	msgs := conv.Committed().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Equal(t, "[User has purchased 50 shares of DOGE at 10. Total cost = 500]", msgs[0].Content.Text)

	assert.Equal(t, "You have successfully purchased 50 $DOGE. Total cost: $500.00", pt.Purchasing.Value().Text)
	assert.Equal(t, view.KindSystemMessage, pt.Message.Value().Kind)
	assert.Equal(t, "You have purchased 50 shares of DOGE at $10. Total cost = $500.00", pt.Message.Value().Text)
}

func TestConfirmPurchaseInvalidAmount(t *testing.T) {
	o := newOrchestrator(t, &scriptProvider{}, nil)

	for _, amount := range []int{0, 1001} {
		conv := state.NewMutable(types.Conversation{ChatID: "c1"})
		pt, err := o.ConfirmPurchase(context.Background(), conv, "DOGE", 10, amount)
		require.NoError(t, err)
		waitDone(t, pt.Done())

		msgs := conv.Committed().Messages
		require.Len(t, msgs, 1)
		assert.Equal(t, "[User has selected an invalid amount]", msgs[0].Content.Text)
		assert.Equal(t, view.KindErrorMessage, pt.Purchasing.Value().Kind)
		assert.True(t, pt.Message.Closed())
	}
}

func TestProcessRunCarriesConversationAcrossTurns(t *testing.T) {
	store := state.NewMemoryStore()
	manager := state.NewManager(state.NewPersister(store, auth.Static{UserID: "u1"}))
	p := &scriptProvider{scripts: [][]llm.Delta{
		{{Content: "first"}, {Done: true}},
		{{Content: "second"}, {Done: true}},
	}}
	o := newOrchestrator(t, p, manager)

	for _, text := range []string{"one", "two"} {
		run := gateway.NewRun("c1", "telegram:1", text)
		var views []*view.Streamable
		run.OnStart = func(v ...*view.Streamable) { views = v }
		require.NoError(t, o.ProcessRun(run))
		require.Len(t, views, 1)
		assert.True(t, views[0].Closed())
	}

	conv, ok, err := manager.Snapshot(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, "second", conv.Messages[3].Content.Text)

	chat, err := store.GetChat(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "u1", chat.UserID)
	assert.Len(t, chat.Messages, 4)
	assert.Equal(t, types.SessionKey("telegram:1"), chat.SessionKey)
}

func TestProcessRunPurchase(t *testing.T) {
	manager := state.NewManager(nil)
	o := newOrchestrator(t, &scriptProvider{}, manager)

	run := gateway.NewPurchaseRun("c1", "", gateway.Purchase{Symbol: "AAPL", Price: 1.5, Amount: 3})
	var views []*view.Streamable
	run.OnStart = func(v ...*view.Streamable) { views = v }
	require.NoError(t, o.ProcessRun(run))
	require.Len(t, views, 2)

	conv, ok, err := manager.Snapshot(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "[User has purchased 3 shares of AAPL at 1.5. Total cost = 4.5]", conv.Messages[0].Content.Text)
}
