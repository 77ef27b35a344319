// Package api exposes ingestion, chat and history over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgallion1/docqa/internal/config"
	"github.com/dgallion1/docqa/internal/index"
	"github.com/dgallion1/docqa/internal/llm"
	"github.com/dgallion1/docqa/internal/pipeline"
	"github.com/dgallion1/docqa/internal/qa"
	"github.com/dgallion1/docqa/internal/store/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// Asker answers chat questions.
type Asker interface {
	Ask(ctx context.Context, question, conversationID string) (qa.Response, error)
}

// History reads the chat transcript.
type History interface {
	ListMessages(ctx context.Context, conversationID string) ([]sqlite.Message, error)
	ConversationsOn(ctx context.Context, day time.Time) ([]sqlite.Conversation, error)
	ListConversations(ctx context.Context) ([]sqlite.Conversation, error)
}

// Deps are the services the API fronts.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	QA           Asker
	Documents    index.VectorStore
	History      History
	Stats        *llm.Stats
	Models       map[string]string // Provider role to model name, for /api/stats/llm.
}

// Server is the HTTP API server for docqa.
type Server struct {
	router   chi.Router
	deps     Deps
	log      *slog.Logger
	cfg      config.Config
	validate *validator.Validate
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps:     deps,
		log:      log,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/ingest", s.handleIngest)
		r.Post("/api/ingest/default", s.handleIngestDefault)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)

		r.Post("/api/chat", s.handleChat)
		r.Get("/api/history", s.handleHistoryByDate)
		r.Get("/api/history/{conversationID}", s.handleConversation)

		r.Get("/api/documents", s.handleListDocuments)
		r.Delete("/api/documents/{docID}", s.handleDeleteDocument)
		r.Get("/api/charts/{name}", s.handleChart)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
