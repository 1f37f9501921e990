// Package view defines the renderable nodes surfaced to clients and their
// HTML and Markdown renderings. The engine treats nodes as opaque; only this
// package looks inside them.
package view

import (
	"encoding/json"

	"github.com/user/bookbot/internal/stream"
	"github.com/user/bookbot/internal/types"
)

type Kind string

const (
	KindSpinner         Kind = "spinner"
	KindSpinnerMessage  Kind = "spinner-message"
	KindUserMessage     Kind = "user-message"
	KindBotMessage      Kind = "bot-message"
	KindErrorMessage    Kind = "error-message"
	KindSystemMessage   Kind = "system-message"
	KindBotCard         Kind = "bot-card"
	KindGroup           Kind = "group"
	KindStocks          Kind = "stocks"
	KindStocksSkeleton  Kind = "stocks-skeleton"
	KindStock           Kind = "stock"
	KindStockSkeleton   Kind = "stock-skeleton"
	KindPurchase        Kind = "purchase"
	KindEvents          Kind = "events"
	KindEventsSkeleton  Kind = "events-skeleton"
	KindAppointmentHead Kind = "appointment-head"
	KindAppointment     Kind = "appointment"
	KindAppointments    Kind = "appointments"
)

// Node is an immutable renderable value. A node may be bound to a live text
// stream, in which case its text is whatever the stream currently holds.
type Node struct {
	Kind     Kind
	Text     string
	Stream   *stream.Value[string]
	Data     any
	Children []Node
}

// IsZero reports whether n is the empty node.
func (n Node) IsZero() bool {
	return n.Kind == ""
}

// Content returns the node's text, reading through a bound stream.
func (n Node) Content() string {
	if n.Stream != nil {
		return n.Stream.Value()
	}
	return n.Text
}

func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind     Kind   `json:"kind"`
		Text     string `json:"text,omitempty"`
		Data     any    `json:"data,omitempty"`
		Children []Node `json:"children,omitempty"`
	}{
		Kind:     n.Kind,
		Text:     n.Content(),
		Data:     n.Data,
		Children: n.Children,
	})
}

func Spinner() Node {
	return Node{Kind: KindSpinner}
}

func SpinnerMessage() Node {
	return Node{Kind: KindSpinnerMessage}
}

// Progress is a spinner message with a status line.
func Progress(text string) Node {
	return Node{Kind: KindSpinnerMessage, Text: text}
}

func UserMessage(text string) Node {
	return Node{Kind: KindUserMessage, Text: text}
}

func BotMessage(text string) Node {
	return Node{Kind: KindBotMessage, Text: text}
}

// BotText is a bot message bound to a live text stream.
func BotText(s *stream.Value[string]) Node {
	return Node{Kind: KindBotMessage, Stream: s}
}

func ErrorMessage(text string) Node {
	return Node{Kind: KindErrorMessage, Text: text}
}

func SystemMessage(text string) Node {
	return Node{Kind: KindSystemMessage, Text: text}
}

func BotCard(children ...Node) Node {
	return Node{Kind: KindBotCard, Children: children}
}

func Group(children ...Node) Node {
	return Node{Kind: KindGroup, Children: children}
}

// Card wraps a data-carrying node of the given kind in a bot card.
func Card(kind Kind, data any) Node {
	return BotCard(Node{Kind: kind, Data: data})
}

// Skeleton wraps a loading placeholder of the given kind in a bot card.
func Skeleton(kind Kind) Node {
	return BotCard(Node{Kind: kind})
}

type Stock struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Delta  float64 `json:"delta"`
}

type PurchaseStatus string

const (
	PurchaseRequiresAction PurchaseStatus = "requires_action"
	PurchaseCompleted      PurchaseStatus = "completed"
	PurchaseExpired        PurchaseStatus = "expired"
)

type Purchase struct {
	Symbol         string         `json:"symbol"`
	Price          float64        `json:"price"`
	NumberOfShares int            `json:"numberOfShares"`
	Status         PurchaseStatus `json:"status,omitempty"`
}

type Event struct {
	Date        string `json:"date"`
	Headline    string `json:"headline"`
	Description string `json:"description"`
}

type Appointment struct {
	ID          types.AppointmentID `json:"id,omitempty"`
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Date        string              `json:"date"`
	Time        string              `json:"time"`
	Description string              `json:"description"`
}

// PendingPurchase returns the purchase shown by n when n is a purchase card
// still waiting for the user to confirm it.
func PendingPurchase(n Node) (Purchase, bool) {
	if n.Kind != KindBotCard || len(n.Children) != 1 {
		return Purchase{}, false
	}
	p, ok := n.Children[0].Data.(Purchase)
	if !ok || p.Status != PurchaseRequiresAction {
		return Purchase{}, false
	}
	return p, true
}
