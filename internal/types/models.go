package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

type PartType string

const (
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// Part is one structured record inside a tool interaction message.
type Part struct {
	Type       PartType        `json:"type"`
	ToolName   string          `json:"toolName"`
	ToolCallID ToolCallID      `json:"toolCallId"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// Content is either plain text or a list of tool parts. It encodes as a JSON
// string in the first case and as a JSON array in the second.
type Content struct {
	Text  string
	Parts []Part
}

func Text(s string) Content {
	return Content{Text: s}
}

func Parts(parts ...Part) Content {
	return Content{Parts: parts}
}

// IsText reports whether the content is plain text.
func (c Content) IsText() bool {
	return c.Parts == nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = Content{}
		return nil
	}
	if trimmed[0] == '[' {
		var parts []Part
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return fmt.Errorf("unmarshal content parts: %w", err)
		}
		if parts == nil {
			parts = []Part{}
		}
		*c = Content{Parts: parts}
		return nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return fmt.Errorf("unmarshal content text: %w", err)
	}
	*c = Content{Text: text}
	return nil
}

// Message is a single conversation log entry. Committed messages are never
// mutated.
type Message struct {
	ID      MessageID `json:"id"`
	Role    Role      `json:"role"`
	Content Content   `json:"content"`
	Name    string    `json:"name,omitempty"`
}

// Conversation is the ordered message log of one chat.
type Conversation struct {
	ChatID   ChatID    `json:"chatId"`
	Messages []Message `json:"messages"`
}

// Clone returns a copy whose message slice can be appended to freely.
func (c Conversation) Clone() Conversation {
	msgs := make([]Message, len(c.Messages))
	copy(msgs, c.Messages)
	return Conversation{ChatID: c.ChatID, Messages: msgs}
}

// With returns a copy of the conversation extended by msgs.
func (c Conversation) With(msgs ...Message) Conversation {
	out := make([]Message, 0, len(c.Messages)+len(msgs))
	out = append(out, c.Messages...)
	out = append(out, msgs...)
	return Conversation{ChatID: c.ChatID, Messages: out}
}

// Chat is the persisted record of a conversation.
type Chat struct {
	ID         ChatID     `json:"id"`
	Title      string     `json:"title"`
	UserID     string     `json:"userId"`
	CreatedAt  time.Time  `json:"createdAt"`
	Messages   []Message  `json:"messages"`
	Path       string     `json:"path"`
	SessionKey SessionKey `json:"sessionKey,omitempty"`
}

func (c *Chat) Conversation() Conversation {
	return Conversation{ChatID: c.ID, Messages: c.Messages}
}

// Session is the identity record returned by the auth boundary.
type Session struct {
	UserID string `json:"userId"`
}
