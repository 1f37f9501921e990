package types

import (
	"testing"
)

func TestNewChatID(t *testing.T) {
	id := NewChatID()
	if id == "" {
		t.Error("expected non-empty ChatID")
	}
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
	if NewChatID() == id {
		t.Error("expected distinct ids")
	}
}

func TestNewAppointmentID(t *testing.T) {
	id := NewAppointmentID()
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
	if NewAppointmentID() == id {
		t.Error("expected distinct ids")
	}
}

func TestSessionKeyFormat(t *testing.T) {
	key := NewSessionKey("telegram", "123", "456")
	expected := SessionKey("telegram:123:456")
	if key != expected {
		t.Errorf("expected %s, got %s", expected, key)
	}
}
