package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/user/bookbot/internal/view"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	botStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
	dimStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// styleFor picks the terminal style for a rendered node.
func styleFor(n view.Node) lipgloss.Style {
	switch n.Kind {
	case view.KindUserMessage:
		return userStyle
	case view.KindErrorMessage:
		return errorStyle
	case view.KindSystemMessage, view.KindSpinner, view.KindSpinnerMessage:
		return dimStyle
	case view.KindBotCard, view.KindGroup:
		return cardStyle
	default:
		return botStyle
	}
}

// renderNode renders n as styled Markdown for the terminal. Nodes with no
// rendering return "".
func renderNode(n view.Node) (string, error) {
	md, err := view.RenderMarkdown(n)
	if err != nil || md == "" {
		return "", err
	}
	return styleFor(n).Render(md), nil
}
