// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/bookbot/internal/runtime/tools"
	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/internal/view"
)

// DefaultSchedule scans for today's appointments every morning at 8.
const DefaultSchedule = "0 8 * * *"

// Handler delivers a reminder to the session identified by sessionKey.
type Handler func(sessionKey, message string) error

// Scheduler periodically scans stored chats for appointments booked for the
// current day and sends a reminder for each through the handler.
type Scheduler struct {
	store    types.ChatStore
	handler  Handler
	schedule string
	cron     *cron.Cron
	now      func() time.Time

	mu       sync.Mutex
	reminded map[string]bool
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler over store. An empty schedule uses
// DefaultSchedule.
func New(store types.ChatStore, handler Handler, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		store:    store,
		handler:  handler,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(cronParser)),
		now:      time.Now,
		reminded: make(map[string]bool),
	}
}

// Start registers the reminder scan and starts the cron ticker.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		n, err := s.Scan(context.Background())
		if err != nil {
			slog.Error("reminder scan failed", "error", err)
			return
		}
		slog.Info("reminder scan finished", "sent", n)
	})
	if err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", s.schedule, err)
	}
	slog.Info("scheduled appointment reminders", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Scan sends one reminder per appointment dated today that has not been
// reminded yet, and returns how many were sent. Chats without a session
// key have nowhere to deliver to and are skipped.
func (s *Scheduler) Scan(ctx context.Context) (int, error) {
	chats, err := s.store.ListChats(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list chats: %w", err)
	}
	today := s.now().Format("2006-01-02")

	sent := 0
	for _, chat := range chats {
		if chat.SessionKey == "" {
			continue
		}
		for _, appt := range booked(chat) {
			if !strings.HasPrefix(appt.Date, today) {
				continue
			}
			key := string(chat.ID) + "/" + string(appt.ID) + "/" + today
			if s.seen(key) {
				continue
			}
			if err := s.handler(string(chat.SessionKey), reminder(appt)); err != nil {
				slog.Warn("deliver reminder", "chat_id", string(chat.ID), "session_key", string(chat.SessionKey), "error", err)
				continue
			}
			s.mark(key)
			sent++
		}
	}
	return sent, nil
}

func (s *Scheduler) seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reminded[key]
}

func (s *Scheduler) mark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminded[key] = true
}

// booked returns the appointments recorded by committed scheduling calls.
func booked(chat *types.Chat) []view.Appointment {
	name := tools.ScheduleAppointment{}.Name()
	var out []view.Appointment
	for _, msg := range chat.Messages {
		if msg.Role != types.RoleTool {
			continue
		}
		for _, p := range msg.Content.Parts {
			if p.Type != types.PartToolResult || p.ToolName != name {
				continue
			}
			var a view.Appointment
			if err := json.Unmarshal(p.Result, &a); err != nil || a.Date == "" {
				continue
			}
			out = append(out, a)
		}
	}
	return out
}

func reminder(a view.Appointment) string {
	msg := fmt.Sprintf("Reminder: %s, you have an appointment today at %s.", a.Name, a.Time)
	if a.Description != "" {
		msg += " (" + a.Description + ")"
	}
	return msg
}
