// internal/context/engine.go
package context

import (
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/pkg/llm"
)

// PromptData is the data available to the system prompt template.
type PromptData struct {
	Time  string
	Tools []string
}

// Engine assembles token-budgeted prompts for the LLM.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
	prompt    *template.Template
	now       func() time.Time
}

// New creates a context engine with the specified token budget.
// model is used to select the appropriate tokenizer (e.g. "gpt-4").
// maxTokens is the model's context window size.
// reserve is the number of tokens to reserve for the model's response.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	e := &Engine{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
		now:       time.Now,
	}
	if err := e.SetPrompt(DefaultPrompt); err != nil {
		return nil, err
	}
	return e, nil
}

// SetPrompt replaces the system prompt template.
func (e *Engine) SetPrompt(text string) error {
	tmpl, err := template.New("system").Funcs(template.FuncMap{"join": strings.Join}).Parse(text)
	if err != nil {
		return fmt.Errorf("parse prompt template: %w", err)
	}
	e.prompt = tmpl
	return nil
}

// CountTokens returns the token count for a string.
func (e *Engine) CountTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// BuildPrompt assembles the system instruction followed by the most recent
// history that fits the token budget. History is reduced to what the model
// needs: role, content, name and tool-call linkage.
func (e *Engine) BuildPrompt(conv types.Conversation, toolNames []string) ([]llm.Message, error) {
	var sys strings.Builder
	if err := e.prompt.Execute(&sys, PromptData{
		Time:  e.now().Format(time.RFC3339),
		Tools: toolNames,
	}); err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}

	history := ToLLMMessages(conv.Messages)
	budget := e.maxTokens - e.reserve - e.CountTokens(sys.String())

	// Walk backwards so the newest messages win when the budget is tight.
	start := len(history)
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		n := e.messageTokens(history[i])
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	// A tool message without its preceding call is rejected by the API.
	for start < len(history) && history[start].Role == string(types.RoleTool) {
		start++
	}
	if start > 0 {
		slog.Debug("context truncated", "chat_id", string(conv.ChatID), "dropped", start, "kept", len(history)-start)
	}

	messages := make([]llm.Message, 0, 1+len(history)-start)
	messages = append(messages, llm.Message{Role: string(types.RoleSystem), Content: sys.String()})
	messages = append(messages, history[start:]...)
	return messages, nil
}

func (e *Engine) messageTokens(msg llm.Message) int {
	n := e.CountTokens(msg.Content)
	for _, tc := range msg.ToolCalls {
		n += e.CountTokens(tc.Function.Name)
		n += e.CountTokens(tc.Function.Arguments)
	}
	return n
}

// ToLLMMessages converts stored messages to the chat completions shape.
// A tool message with several results expands to one message per result.
func ToLLMMessages(msgs []types.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Content.IsText() {
			out = append(out, llm.Message{Role: string(msg.Role), Content: msg.Content.Text, Name: msg.Name})
			continue
		}

		switch msg.Role {
		case types.RoleAssistant:
			m := llm.Message{Role: string(types.RoleAssistant)}
			for _, p := range msg.Content.Parts {
				if p.Type != types.PartToolCall {
					continue
				}
				m.ToolCalls = append(m.ToolCalls, llm.ToolCall{
					ID:   string(p.ToolCallID),
					Type: "function",
					Function: llm.FunctionCall{
						Name:      p.ToolName,
						Arguments: string(p.Args),
					},
				})
			}
			if len(m.ToolCalls) > 0 {
				out = append(out, m)
			}
		case types.RoleTool:
			for _, p := range msg.Content.Parts {
				if p.Type != types.PartToolResult {
					continue
				}
				out = append(out, llm.Message{
					Role:       string(types.RoleTool),
					Content:    string(p.Result),
					ToolCallID: string(p.ToolCallID),
				})
			}
		}
	}
	return out
}
