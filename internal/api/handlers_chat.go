package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/dgallion1/docqa/internal/qa"
	"github.com/dgallion1/docqa/internal/store/sqlite"
	"github.com/go-chi/chi/v5"
)

type chatRequest struct {
	Question       string `json:"question" validate:"required"`
	ConversationID string `json:"conversation_id" validate:"omitempty,max=128"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		jsonError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := s.deps.QA.Ask(r.Context(), req.Question, req.ConversationID)
	if errors.Is(err, qa.ErrInvalidQuery) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.log.Error("chat failed", "error", err)
		jsonError(w, "chat failed", http.StatusInternalServerError)
		return
	}
	// Chart images are served by handleChart, so expose the route, not the
	// server-side path.
	if resp.ImagePath != "" {
		resp.ImagePath = "/api/charts/" + filepath.Base(resp.ImagePath)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleHistoryByDate lists the conversations active on ?date=YYYY-MM-DD,
// or every conversation when no date is given.
func (s *Server) handleHistoryByDate(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("date")
	if v == "" {
		convs, err := s.deps.History.ListConversations(r.Context())
		if err != nil {
			s.log.Error("history lookup failed", "error", err)
			jsonError(w, "failed to load history", http.StatusInternalServerError)
			return
		}
		writeConversations(w, map[string]any{"conversations": nonNil(convs)})
		return
	}

	day, err := time.ParseInLocation(time.DateOnly, v, time.Local)
	if err != nil {
		jsonError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	convs, err := s.deps.History.ConversationsOn(r.Context(), day)
	if err != nil {
		s.log.Error("history lookup failed", "date", v, "error", err)
		jsonError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	writeConversations(w, map[string]any{
		"date":          day.Format(time.DateOnly),
		"conversations": nonNil(convs),
	})
}

func nonNil(convs []sqlite.Conversation) []sqlite.Conversation {
	if convs == nil {
		return []sqlite.Conversation{}
	}
	return convs
}

func writeConversations(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	msgs, err := s.deps.History.ListMessages(r.Context(), id)
	if err != nil {
		s.log.Error("conversation lookup failed", "conversation_id", id, "error", err)
		jsonError(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}
	if len(msgs) == 0 {
		jsonError(w, "conversation not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sqlite.Conversation{ID: id, Messages: msgs})
}
