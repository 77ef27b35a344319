package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docqa/internal/index"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Documents.ListDocuments(r.Context())
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []index.Document{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"documents": docs})
}

// handleDeleteDocument removes a document and every chunk indexed from it.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	err := s.deps.Documents.DeleteDocument(r.Context(), docID)
	if errors.Is(err, index.ErrDocumentNotFound) {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to delete document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("document deleted", "doc_id", docID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"deleted": docID})
}

// handleChart serves a rendered chart image from ChartsDir.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	name := sanitizeFilename(chi.URLParam(r, "name"))
	if !strings.EqualFold(filepath.Ext(name), ".png") {
		jsonError(w, "chart not found", http.StatusNotFound)
		return
	}
	path := filepath.Join(s.cfg.ChartsDir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		jsonError(w, "chart not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}
