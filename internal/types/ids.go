package types

import (
	"strings"

	"github.com/google/uuid"
)

type SessionKey string
type ChatID string
type MessageID string
type ToolCallID string
type TurnID string
type RunID string
type AppointmentID string

func NewChatID() ChatID {
	return ChatID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewToolCallID() ToolCallID {
	return ToolCallID(uuid.New().String())
}

func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewAppointmentID() AppointmentID {
	return AppointmentID(uuid.New().String())
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}
