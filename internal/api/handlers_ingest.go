package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docqa/internal/parser"
	"github.com/dgallion1/docqa/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ingestRequest struct {
	Path  string `json:"path" validate:"required"`
	Force bool   `json:"force"`
}

// handleIngest queues one document. It accepts either a multipart upload in
// the "file" field or a JSON body naming a path on the server.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var (
		path  string
		force bool
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		saved, status, err := s.saveUpload(w, r)
		if err != nil {
			jsonError(w, err.Error(), status)
			return
		}
		path, force = saved, r.FormValue("force") == "true"
	} else {
		var req ingestRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			jsonError(w, "path is required", http.StatusBadRequest)
			return
		}
		path = s.resolvePath(req.Path)
		if status, err := checkSource(path); err != nil {
			jsonError(w, err.Error(), status)
			return
		}
		force = req.Force
	}

	job := pipeline.NewJob(path, force)
	if err := s.deps.Orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(jobAccepted(job))
}

// saveUpload stores the uploaded file as UploadDir/<uuid>/<name> and returns
// its path. The file keeps its own name so the document and chart names
// derived from it do not change.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (string, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", http.StatusBadRequest, fmt.Errorf("file is required: %w", err)
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		return "", http.StatusUnsupportedMediaType, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return "", http.StatusInternalServerError, errors.New("failed to read file")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return "", http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes)
	}
	if err := parser.CheckContent(filename, data); err != nil {
		return "", http.StatusUnsupportedMediaType, err
	}

	dir := filepath.Join(s.cfg.UploadDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", http.StatusInternalServerError, errors.New("failed to create upload directory")
	}
	dest := filepath.Join(dir, filename)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", http.StatusInternalServerError, errors.New("failed to store upload")
	}
	s.log.Info("stored upload", "filename", filename, "path", dest, "bytes", len(data))
	return dest, 0, nil
}

// handleIngestDefault queues every supported file in DataDir.
func (s *Server) handleIngestDefault(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	entries, err := os.ReadDir(s.cfg.DataDir)
	if errors.Is(err, fs.ErrNotExist) {
		jsonError(w, "data directory not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to read data directory", http.StatusInternalServerError)
		return
	}

	results := []map[string]any{}
	for _, e := range entries {
		if e.IsDir() || !parser.IsSupportedExtension(e.Name()) {
			continue
		}
		job := pipeline.NewJob(filepath.Join(s.cfg.DataDir, e.Name()), force)
		if err := s.deps.Orchestrator.Submit(job); err != nil {
			results = append(results, map[string]any{
				"filename": e.Name(),
				"error":    err.Error(),
			})
			continue
		}
		results = append(results, jobAccepted(job))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"jobs": results})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.deps.Orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

// resolvePath anchors relative paths at DataDir.
func (s *Server) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.cfg.DataDir, p)
}

// checkSource rejects paths the worker would fail on anyway, so the caller
// learns about them before a job is queued.
func checkSource(path string) (int, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return http.StatusNotFound, fmt.Errorf("file not found: %s", filepath.Base(path))
	}
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	if info.IsDir() || !parser.IsSupportedExtension(path) {
		return http.StatusUnsupportedMediaType, fmt.Errorf("unsupported file type: %s", filepath.Base(path))
	}
	return 0, nil
}

func jobAccepted(job *pipeline.Job) map[string]any {
	snap := job.Snapshot()
	return map[string]any{
		"job_id":   snap.ID,
		"filename": snap.Filename,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/ingest/%s/status", snap.ID),
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
