// Package projector rebuilds the client-visible view list from a stored
// conversation.
package projector

import (
	"fmt"

	"github.com/user/bookbot/internal/runtime/tools"
	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/internal/view"
)

// Entry is one item of the view list a client renders.
type Entry struct {
	ID      string    `json:"id"`
	Display view.Node `json:"display"`
}

// Project maps conv to view entries. System messages are never shown. The
// result depends only on conv: ids are derived from the chat id and the
// message's position among non-system messages, so projecting the same
// conversation twice gives identical entries.
func Project(conv types.Conversation) []Entry {
	entries := make([]Entry, 0, len(conv.Messages))
	index := 0
	for _, msg := range conv.Messages {
		if msg.Role == types.RoleSystem {
			continue
		}
		id := fmt.Sprintf("%s-%d", conv.ChatID, index)
		index++

		node, ok := display(msg)
		if !ok {
			continue
		}
		entries = append(entries, Entry{ID: id, Display: node})
	}
	return entries
}

func display(msg types.Message) (view.Node, bool) {
	switch msg.Role {
	case types.RoleUser:
		return view.UserMessage(msg.Content.Text), msg.Content.IsText()
	case types.RoleAssistant:
		// Call-only messages are shown through their paired tool result.
		if !msg.Content.IsText() {
			return view.Node{}, false
		}
		return view.BotMessage(msg.Content.Text), true
	case types.RoleTool:
		return toolDisplay(msg.Content.Parts)
	}
	return view.Node{}, false
}

func toolDisplay(parts []types.Part) (view.Node, bool) {
	var nodes []view.Node
	for _, p := range parts {
		if p.Type != types.PartToolResult {
			continue
		}
		render, ok := tools.Renderers[p.ToolName]
		if !ok {
			continue
		}
		if node, ok := render(p.Result); ok {
			nodes = append(nodes, node)
		}
	}
	switch len(nodes) {
	case 0:
		return view.Node{}, false
	case 1:
		return nodes[0], true
	}
	return view.Group(nodes...), true
}
