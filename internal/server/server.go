// Package server exposes the chat engine over HTTP. Turns are streamed to
// the client as server-sent events, one frame per view update.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/user/bookbot/internal/gateway"
	"github.com/user/bookbot/internal/projector"
	"github.com/user/bookbot/internal/state"
	"github.com/user/bookbot/internal/types"
	"github.com/user/bookbot/internal/view"
)

// SubmitFunc enqueues a run and returns its view handles once the turn has
// started. gateway.Gateway.Submit satisfies it.
type SubmitFunc func(ctx context.Context, run *gateway.Run) ([]*view.Streamable, error)

// Server is the HTTP front-end for chats.
type Server struct {
	submit        SubmitFunc
	conversations *state.Manager
	persister     *state.Persister
	mux           *http.ServeMux
}

// NewServer creates a Server. persister may be nil, in which case chat
// listing is unavailable.
func NewServer(submit SubmitFunc, conversations *state.Manager, persister *state.Persister) *Server {
	s := &Server{
		submit:        submit,
		conversations: conversations,
		persister:     persister,
		mux:           http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/chats/{id}/messages", s.handleMessage)
	s.mux.HandleFunc("POST /api/chats/{id}/purchase", s.handlePurchase)
	s.mux.HandleFunc("GET /api/chats/{id}/view", s.handleView)
	s.mux.HandleFunc("GET /api/chats", s.handleChats)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// messageRequest is the JSON body for POST /api/chats/{id}/messages.
type messageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	chatID := types.ChatID(r.PathValue("id"))
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	run := gateway.NewRun(chatID, sessionKey(chatID), req.Content)
	s.run(w, r, run)
}

// purchaseRequest is the JSON body for POST /api/chats/{id}/purchase.
type purchaseRequest struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Amount int     `json:"amount"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	chatID := types.ChatID(r.PathValue("id"))
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	run := gateway.NewPurchaseRun(chatID, sessionKey(chatID), gateway.Purchase{
		Symbol: req.Symbol,
		Price:  req.Price,
		Amount: req.Amount,
	})
	s.run(w, r, run)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, run *gateway.Run) {
	run.Ctx = r.Context()
	views, err := s.submit(r.Context(), run)
	if err != nil {
		slog.Error("submit run failed", "chat_id", string(run.ChatID), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := streamViews(r.Context(), w, views); err != nil {
		// The client went away; the turn still completes in the background.
		slog.Debug("view stream ended early", "chat_id", string(run.ChatID), "error", err)
	}
}

// entryResponse is one projected view entry with its HTML rendering.
type entryResponse struct {
	ID      string    `json:"id"`
	HTML    string    `json:"html"`
	Display view.Node `json:"display"`
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	chatID := types.ChatID(r.PathValue("id"))
	conv, ok, err := s.conversations.Snapshot(r.Context(), chatID)
	if err != nil {
		slog.Error("load chat for view", "chat_id", string(chatID), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}

	entries := projector.Project(conv)
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		html, err := view.RenderHTML(e.Display)
		if err != nil {
			slog.Warn("render view entry", "chat_id", string(chatID), "entry", e.ID, "error", err)
		}
		out = append(out, entryResponse{ID: e.ID, HTML: html, Display: e.Display})
	}
	writeJSON(w, http.StatusOK, out)
}

type chatResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Path      string `json:"path"`
	CreatedAt string `json:"created_at"`
	Messages  int    `json:"messages"`
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	if s.persister == nil {
		writeError(w, http.StatusServiceUnavailable, "chat history not configured")
		return
	}
	chats, err := s.persister.List(r.Context())
	if err != nil {
		slog.Error("list chats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]chatResponse, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatResponse{
			ID:        string(c.ID),
			Title:     c.Title,
			Path:      c.Path,
			CreatedAt: c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			Messages:  len(c.Messages),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(indexHTML))
}

func sessionKey(id types.ChatID) types.SessionKey {
	return types.SessionKey(fmt.Sprintf("http:%s", id))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
