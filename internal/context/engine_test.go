package context

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/user/bookbot/internal/types"
)

func TestNewEngine(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if e == nil {
		t.Fatal("expected non-nil engine")
	}
}

func TestBuildPromptBasic(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}
	e.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }

	conv := types.Conversation{ChatID: "c1", Messages: []types.Message{
		{ID: "m1", Role: types.RoleUser, Content: types.Text("hello")},
		{ID: "m2", Role: types.RoleAssistant, Content: types.Text("hi there")},
	}}

	messages, err := e.BuildPrompt(conv, []string{"listStocks", "scheduleAppointment"})
	if err != nil {
		t.Fatal(err)
	}

	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" {
		t.Errorf("expected system message first, got %q", messages[0].Role)
	}
	if !strings.Contains(messages[0].Content, "2024-05-01T09:00:00Z") {
		t.Error("system prompt should carry the current time")
	}
	if !strings.Contains(messages[0].Content, "listStocks, scheduleAppointment") {
		t.Error("system prompt should list the tools")
	}
	if messages[1].Role != "user" || messages[1].Content != "hello" {
		t.Errorf("unexpected user message %+v", messages[1])
	}
	if messages[2].Role != "assistant" {
		t.Errorf("expected assistant message, got %q", messages[2].Role)
	}
}

func TestBuildPromptToolLinkage(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}

	conv := types.Conversation{ChatID: "c1", Messages: []types.Message{
		{ID: "m1", Role: types.RoleUser, Content: types.Text("price of DOGE?")},
		{ID: "m2", Role: types.RoleAssistant, Content: types.Parts(types.Part{
			Type: types.PartToolCall, ToolName: "showStockPrice", ToolCallID: "tc1",
			Args: json.RawMessage(`{"symbol":"DOGE","price":0.1,"delta":0.01}`),
		})},
		{ID: "m3", Role: types.RoleTool, Content: types.Parts(types.Part{
			Type: types.PartToolResult, ToolName: "showStockPrice", ToolCallID: "tc1",
			Result: json.RawMessage(`{"symbol":"DOGE","price":0.1,"delta":0.01}`),
		})},
		{ID: "m4", Role: types.RoleSystem, Content: types.Text("[User has selected an invalid amount]")},
	}}

	messages, err := e.BuildPrompt(conv, nil)
	if err != nil {
		t.Fatal(err)
	}

	// system + user + assistant(tool call) + tool result + system note
	if len(messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(messages))
	}
	call := messages[2]
	if len(call.ToolCalls) != 1 || call.ToolCalls[0].ID != "tc1" || call.ToolCalls[0].Function.Name != "showStockPrice" {
		t.Errorf("unexpected tool call message %+v", call)
	}
	result := messages[3]
	if result.Role != "tool" || result.ToolCallID != "tc1" {
		t.Errorf("unexpected tool result message %+v", result)
	}
	if messages[4].Role != "system" {
		t.Errorf("system notes must reach the model, got %q", messages[4].Role)
	}
}

func TestBuildPromptBudgetTruncation(t *testing.T) {
	base, err := New("gpt-4", 128000, 0)
	if err != nil {
		t.Fatal(err)
	}
	sysTokens := base.CountTokens(DefaultPrompt)

	// Room for the system prompt plus a handful of messages.
	e, err := New("gpt-4", sysTokens+300, 100)
	if err != nil {
		t.Fatal(err)
	}

	msgs := make([]types.Message, 50)
	for i := range msgs {
		msgs[i] = types.Message{
			ID:      types.MessageID(fmt.Sprintf("m%d", i)),
			Role:    types.RoleUser,
			Content: types.Text(fmt.Sprintf("message %d takes up tokens in the context window budget.", i)),
		}
	}

	messages, err := e.BuildPrompt(types.Conversation{ChatID: "c1", Messages: msgs}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(messages) >= 51 {
		t.Errorf("expected truncation, got %d messages for 50 history entries", len(messages))
	}
	if messages[0].Role != "system" {
		t.Fatal("expected system prompt first")
	}
	last := messages[len(messages)-1]
	if !strings.HasPrefix(last.Content, "message 49 ") {
		t.Errorf("newest message must survive truncation, got %q", last.Content)
	}
}

func TestBuildPromptDropsOrphanToolResults(t *testing.T) {
	msgs := []types.Message{
		{ID: "m1", Role: types.RoleAssistant, Content: types.Parts(types.Part{
			Type: types.PartToolCall, ToolName: "listStocks", ToolCallID: "tc1",
			Args: json.RawMessage(`{"stocks":[` + strings.Repeat(`{"symbol":"AAAA","price":1,"delta":1},`, 60) + `{"symbol":"B","price":1,"delta":1}]}`),
		})},
		{ID: "m2", Role: types.RoleTool, Content: types.Parts(types.Part{
			Type: types.PartToolResult, ToolName: "listStocks", ToolCallID: "tc1",
			Result: json.RawMessage(`[]`),
		})},
		{ID: "m3", Role: types.RoleUser, Content: types.Text("thanks")},
	}

	base, err := New("gpt-4", 128000, 0)
	if err != nil {
		t.Fatal(err)
	}
	sysTokens := base.CountTokens(DefaultPrompt)

	// Enough for the result and the user message, not for the large call.
	e, err := New("gpt-4", sysTokens+60, 0)
	if err != nil {
		t.Fatal(err)
	}

	messages, err := e.BuildPrompt(types.Conversation{ChatID: "c1", Messages: msgs}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range messages[1:] {
		if m.Role == "tool" {
			t.Fatalf("orphan tool result kept: %+v", messages)
		}
	}
	if messages[len(messages)-1].Content != "thanks" {
		t.Errorf("expected the user message to survive, got %+v", messages)
	}
}

func TestToLLMMessagesSkipsEmptyParts(t *testing.T) {
	out := ToLLMMessages([]types.Message{
		{ID: "m1", Role: types.RoleAssistant, Content: types.Parts([]types.Part{}...)},
	})
	if len(out) != 0 {
		t.Errorf("expected no messages, got %+v", out)
	}
}
