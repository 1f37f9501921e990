package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/bookbot/internal/gateway"
	"github.com/user/bookbot/internal/state"
	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/internal/view"
)

const maxTelegramMessage = 4096

// EnqueueFunc hands a run to the gateway without waiting for it to start.
type EnqueueFunc func(ctx context.Context, run *gateway.Run) error

// Bot is the part of the Telegram API the adapter uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Adapter bridges Telegram to the gateway. Every Telegram chat maps to one
// conversation; /new starts a fresh one.
type Adapter struct {
	bot           Bot
	enqueue       EnqueueFunc
	conversations *state.Manager

	mu    sync.Mutex
	fresh map[int64]types.ChatID
}

// New creates a Telegram adapter.
func New(token string, enqueue EnqueueFunc, conversations *state.Manager) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return NewWithBot(bot, enqueue, conversations), nil
}

// NewWithBot creates an adapter over an existing bot client.
func NewWithBot(bot Bot, enqueue EnqueueFunc, conversations *state.Manager) *Adapter {
	return &Adapter{
		bot:           bot,
		enqueue:       enqueue,
		conversations: conversations,
		fresh:         make(map[int64]types.ChatID),
	}
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			switch {
			case update.CallbackQuery != nil:
				a.handleCallback(ctx, update.CallbackQuery)
			case update.Message != nil && update.Message.Text != "":
				a.handleMessage(ctx, update.Message)
			}
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	chatID := msg.Chat.ID
	run := gateway.NewRun(a.conversationID(chatID), buildSessionKey(msg.From.ID, chatID), msg.Text)
	a.dispatch(ctx, chatID, run)
}

func (a *Adapter) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := a.bot.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		slog.Warn("answer callback failed", "error", err)
	}
	if q.Message == nil {
		return
	}
	p, err := parsePurchase(q.Data)
	if err != nil {
		slog.Warn("ignoring callback", "data", q.Data, "error", err)
		return
	}

	chatID := q.Message.Chat.ID
	// Drop the buttons so the purchase can only be confirmed once.
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, q.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := a.bot.Request(edit); err != nil {
		slog.Debug("remove purchase buttons", "error", err)
	}

	run := gateway.NewPurchaseRun(a.conversationID(chatID), buildSessionKey(q.From.ID, chatID), p)
	a.dispatch(ctx, chatID, run)
}

// dispatch enqueues run and relays each of its views as a Telegram message
// that is edited as the view changes. Neither step waits for the turn, so a
// busy chat never holds up updates for the others.
func (a *Adapter) dispatch(ctx context.Context, chatID int64, run *gateway.Run) {
	var started atomic.Bool
	run.OnStart = func(views ...*view.Streamable) {
		started.Store(true)
		go func() {
			for _, v := range views {
				a.relay(ctx, chatID, v)
			}
		}()
	}
	run.OnError = func(err error) {
		if started.Load() {
			return
		}
		slog.Error("telegram run failed", "chat_id", string(run.ChatID), "error", err)
		a.sendResponse(chatID, "Sorry, I encountered an error processing your message.")
	}
	if err := a.enqueue(ctx, run); err != nil {
		slog.Error("enqueue telegram run", "chat_id", string(run.ChatID), "error", err)
		a.sendResponse(chatID, "Sorry, I encountered an error processing your message.")
	}
}

// relay mirrors one view onto a single Telegram message.
func (a *Adapter) relay(ctx context.Context, chatID int64, v *view.Streamable) {
	var (
		messageID int
		last      string
	)
	for u := range v.Subscribe(ctx) {
		text, err := view.RenderMarkdown(u.Value)
		if err != nil {
			slog.Warn("render view for telegram", "error", err)
			continue
		}
		markup := purchaseKeyboard(u.Value, u.Done)

		if u.Done && len(text) > maxTelegramMessage {
			parts := splitMessage(text)
			a.show(chatID, &messageID, parts[0], nil)
			for _, part := range parts[1:] {
				a.sendResponse(chatID, part)
			}
			return
		}
		if text == "" || (text == last && markup == nil) {
			continue
		}
		last = text
		a.show(chatID, &messageID, text, markup)
	}
}

// show sends text as a new message the first time and edits that message
// afterwards.
func (a *Adapter) show(chatID int64, messageID *int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if *messageID == 0 {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = "Markdown"
		if markup != nil {
			msg.ReplyMarkup = *markup
		}
		sent, err := a.bot.Send(msg)
		if err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if sent, err = a.bot.Send(msg); err != nil {
				slog.Error("send message", "chat_id", chatID, "error", err)
				return
			}
		}
		*messageID = sent.MessageID
		return
	}

	edit := tgbotapi.NewEditMessageText(chatID, *messageID, text)
	edit.ParseMode = "Markdown"
	edit.ReplyMarkup = markup
	if _, err := a.bot.Send(edit); err != nil {
		edit.ParseMode = ""
		if _, err := a.bot.Send(edit); err != nil {
			slog.Warn("edit message", "chat_id", chatID, "error", err)
		}
	}
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, "Hello! I can book appointments for you, show your bookings and answer questions. What would you like to do?")

	case "new":
		a.mu.Lock()
		a.fresh[chatID] = types.ChatID(fmt.Sprintf("telegram-%d-%s", chatID, types.NewChatID()))
		a.mu.Unlock()
		a.sendResponse(chatID, "Starting a new conversation.")

	case "status":
		id := a.conversationID(chatID)
		conv, ok, err := a.conversations.Snapshot(ctx, id)
		if err != nil {
			slog.Error("load telegram chat status", "chat_id", string(id), "error", err)
			a.sendResponse(chatID, "Sorry, I couldn't load this conversation.")
			return
		}
		if !ok {
			a.sendResponse(chatID, fmt.Sprintf("Conversation: %s\nMessages: 0", id))
			return
		}
		a.sendResponse(chatID, fmt.Sprintf("Conversation: %s\nMessages: %d", id, len(conv.Messages)))

	default:
		a.sendResponse(chatID, "Unknown command. Available: /start, /new, /status")
	}
}

// Deliver sends a plain message to the chat encoded in a telegram session
// key. It is registered with the delivery registry for reminders.
func (a *Adapter) Deliver(sessionKey, message string) error {
	parts := strings.Split(sessionKey, ":")
	if len(parts) < 2 || parts[0] != "telegram" {
		return fmt.Errorf("not a telegram session key: %s", sessionKey)
	}
	chatID, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return fmt.Errorf("parse chat id from %s: %w", sessionKey, err)
	}
	a.sendResponse(chatID, message)
	return nil
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	parts := splitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				slog.Error("send message", "chat_id", chatID, "error", err)
			}
		}
	}
}

func (a *Adapter) conversationID(chatID int64) types.ChatID {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.fresh[chatID]; ok {
		return id
	}
	return types.ChatID(fmt.Sprintf("telegram-%d", chatID))
}

// purchaseKeyboard returns confirmation buttons for a final purchase card
// awaiting the user's action.
func purchaseKeyboard(n view.Node, final bool) *tgbotapi.InlineKeyboardMarkup {
	if !final {
		return nil
	}
	p, ok := view.PendingPurchase(n)
	if !ok {
		return nil
	}
	label := fmt.Sprintf("Buy %d $%s for %s", p.NumberOfShares, p.Symbol, view.FormatNumber(p.Price*float64(p.NumberOfShares)))
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(label, encodePurchase(p)),
	))
	return &kb
}

func encodePurchase(p view.Purchase) string {
	return fmt.Sprintf("buy:%s:%s:%d", p.Symbol, strconv.FormatFloat(p.Price, 'f', -1, 64), p.NumberOfShares)
}

func parsePurchase(data string) (gateway.Purchase, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 4 || parts[0] != "buy" {
		return gateway.Purchase{}, errors.New("not a purchase callback")
	}
	price, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return gateway.Purchase{}, fmt.Errorf("parse price: %w", err)
	}
	amount, err := strconv.Atoi(parts[3])
	if err != nil {
		return gateway.Purchase{}, fmt.Errorf("parse amount: %w", err)
	}
	return gateway.Purchase{Symbol: parts[1], Price: price, Amount: amount}, nil
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end >= len(text) {
			end = len(text)
		} else {
			// Never cut through a multi-byte rune.
			for end > 0 && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == 0 {
				end = maxTelegramMessage
			}
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func buildSessionKey(userID, chatID int64) types.SessionKey {
	return types.NewSessionKey("telegram",
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(chatID, 10),
	)
}
