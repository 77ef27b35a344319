package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docqa/internal/config"
	"github.com/dgallion1/docqa/internal/index"
	"github.com/dgallion1/docqa/internal/ingest"
	"github.com/dgallion1/docqa/internal/llm"
	"github.com/dgallion1/docqa/internal/pipeline"
	"github.com/dgallion1/docqa/internal/qa"
	"github.com/dgallion1/docqa/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "secret"

type stubIngester struct {
	mu    sync.Mutex
	paths []string
}

func (s *stubIngester) Ingest(ctx context.Context, path string, opts ingest.Options) (ingest.Result, error) {
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
	return ingest.Result{DocumentID: "doc-" + filepath.Base(path), Name: filepath.Base(path), TextChunks: 2}, nil
}

type stubAsker struct {
	resp qa.Response
	err  error
	got  []string
}

func (s *stubAsker) Ask(ctx context.Context, question, conversationID string) (qa.Response, error) {
	s.got = append(s.got, question)
	if s.err != nil {
		return qa.Response{}, s.err
	}
	resp := s.resp
	resp.ConversationID = conversationID
	return resp, nil
}

type fixture struct {
	srv      *Server
	cfg      config.Config
	store    *sqlite.Store
	asker    *stubAsker
	ingester *stubIngester
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.APIKey = testKey
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.ChartsDir = filepath.Join(dir, "charts")
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.ChartsDir, 0o755))

	store, err := sqlite.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.DiscardHandler)
	ing := &stubIngester{}
	orch := pipeline.NewOrchestrator(pipeline.Config{WorkerCount: 1, MaxQueueSize: 8}, ing, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)

	stats := llm.NewStats(time.Hour)
	stats.Record("complete", 120, false)

	asker := &stubAsker{}
	srv := NewServer(Deps{
		Orchestrator: orch,
		QA:           asker,
		Documents:    store,
		History:      store,
		Stats:        stats,
		Models:       map[string]string{"completion": "test-model"},
	}, log, cfg)
	return &fixture{srv: srv, cfg: cfg, store: store, asker: asker, ingester: ing}
}

func (f *fixture) do(t *testing.T, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) waitJob(t *testing.T, jobID string) map[string]any {
	t.Helper()
	var body map[string]any
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/api/ingest/"+jobID+"/status", nil, "")
		if rec.Code != http.StatusOK {
			return false
		}
		body = decode(t, rec)
		return body["status"] == string(pipeline.StatusCompleted)
	}, 2*time.Second, 10*time.Millisecond)
	return body
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid api key", decode(t, rec)["error"])
}

func TestChat(t *testing.T) {
	f := newFixture(t)
	f.asker.resp = qa.Response{
		Answer:    "Doanh thu tăng 10%.",
		ImagePath: filepath.Join(f.cfg.ChartsDir, "report_p2_c1.png"),
		Sources:   qa.Sources{Charts: []string{"Chart 1 page 2"}},
	}

	rec := f.do(t, http.MethodPost, "/api/chat",
		[]byte(`{"question":"biểu đồ 1 thể hiện gì","conversation_id":"c1"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp qa.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Doanh thu tăng 10%.", resp.Answer)
	assert.Equal(t, "/api/charts/report_p2_c1.png", resp.ImagePath)
	assert.Equal(t, "c1", resp.ConversationID)
	assert.Equal(t, []string{"biểu đồ 1 thể hiện gì"}, f.asker.got)
}

func TestChat_InvalidRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/chat", []byte(`{not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/chat", []byte(`{"question":""}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.asker.got)

	f.asker.err = qa.ErrInvalidQuery
	rec = f.do(t, http.MethodPost, "/api/chat", []byte(`{"question":"   "}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.asker.err = errors.New("boom")
	rec = f.do(t, http.MethodPost, "/api/chat", []byte(`{"question":"hi"}`), "application/json")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIngest_Path(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.DataDir, "report.md"), []byte("# Report"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.DataDir, "tool.exe"), []byte("MZ"), 0o644))

	rec := f.do(t, http.MethodPost, "/api/ingest", []byte(`{"path":"report.md"}`), "application/json")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decode(t, rec)
	assert.Equal(t, "report.md", accepted["filename"])

	status := f.waitJob(t, accepted["job_id"].(string))
	assert.Equal(t, "doc-report.md", status["doc_id"])

	tests := []struct {
		body string
		code int
	}{
		{`{"path":""}`, http.StatusBadRequest},
		{`{"path":"missing.pdf"}`, http.StatusNotFound},
		{`{"path":"tool.exe"}`, http.StatusUnsupportedMediaType},
		{`{"path":"."}`, http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		rec := f.do(t, http.MethodPost, "/api/ingest", []byte(tt.body), "application/json")
		assert.Equal(t, tt.code, rec.Code, tt.body)
	}
}

func TestIngest_Upload(t *testing.T) {
	f := newFixture(t)

	upload := func(name string, data []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
		require.NoError(t, mw.Close())
		return f.do(t, http.MethodPost, "/api/ingest", buf.Bytes(), mw.FormDataContentType())
	}

	rec := upload("../../notes.txt", []byte("hello"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	f.waitJob(t, decode(t, rec)["job_id"].(string))

	require.Len(t, f.ingester.paths, 1)
	path := f.ingester.paths[0]
	assert.Equal(t, "notes.txt", filepath.Base(path))
	assert.Equal(t, f.cfg.UploadDir, filepath.Dir(filepath.Dir(path)))
	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(saved))

	assert.Equal(t, http.StatusUnsupportedMediaType, upload("fake.pdf", []byte("not a pdf")).Code)
	assert.Equal(t, http.StatusUnsupportedMediaType, upload("image.png", []byte{0x89, 'P', 'N', 'G'}).Code)
}

func TestIngest_UploadSameNameKeepsBoth(t *testing.T) {
	f := newFixture(t)

	for _, content := range []string{"first", "second"} {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "report.md")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, mw.Close())
		rec := f.do(t, http.MethodPost, "/api/ingest", buf.Bytes(), mw.FormDataContentType())
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		f.waitJob(t, decode(t, rec)["job_id"].(string))
	}

	require.Len(t, f.ingester.paths, 2)
	assert.NotEqual(t, f.ingester.paths[0], f.ingester.paths[1])
	for i, want := range []string{"first", "second"} {
		assert.Equal(t, "report.md", filepath.Base(f.ingester.paths[i]))
		data, err := os.ReadFile(f.ingester.paths[i])
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}

func TestIngestDefault(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a.md", "b.csv", "skip.exe"} {
		require.NoError(t, os.WriteFile(filepath.Join(f.cfg.DataDir, name), []byte("x"), 0o644))
	}

	rec := f.do(t, http.MethodPost, "/api/ingest/default", nil, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobs := decode(t, rec)["jobs"].([]any)
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		f.waitJob(t, j.(map[string]any)["job_id"].(string))
	}
	assert.ElementsMatch(t, []string{
		filepath.Join(f.cfg.DataDir, "a.md"),
		filepath.Join(f.cfg.DataDir, "b.csv"),
	}, f.ingester.paths)
}

func TestIngestStatus_UnknownJob(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/ingest/nope/status", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	_, err := f.store.AppendMessage(ctx, sqlite.Message{ConversationID: "c1", Content: "hỏi", Timestamp: day})
	require.NoError(t, err)
	_, err = f.store.AppendMessage(ctx, sqlite.Message{ConversationID: "c1", Content: "đáp", IsBot: true,
		Sources: `{"tables":[]}`, Timestamp: day.Add(time.Second)})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/history?date=2026-03-14", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "2026-03-14", body["date"])
	require.Len(t, body["conversations"], 1)

	rec = f.do(t, http.MethodGet, "/api/history?date=2026-03-15", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["conversations"])

	rec = f.do(t, http.MethodGet, "/api/history?date=14/03/2026", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/history/c1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var conv sqlite.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	require.Len(t, conv.Messages, 2)
	assert.True(t, conv.Messages[1].IsBot)

	rec = f.do(t, http.MethodGet, "/api/history/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory_WithoutDateListsAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodGet, "/api/history", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"conversations":[]}`, rec.Body.String())

	old := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	_, err := f.store.AppendMessage(ctx, sqlite.Message{ConversationID: "c1", Content: "hỏi", Timestamp: old})
	require.NoError(t, err)
	_, err = f.store.AppendMessage(ctx, sqlite.Message{ConversationID: "c2", Content: "hôm nay", Timestamp: time.Now()})
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/api/history", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Date          *string               `json:"date"`
		Conversations []sqlite.Conversation `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body.Date)
	require.Len(t, body.Conversations, 2)
	assert.Equal(t, "c1", body.Conversations[0].ID)
	assert.Equal(t, "c2", body.Conversations[1].ID)
}

func TestDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodGet, "/api/documents", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"documents":[]}`, rec.Body.String())

	require.NoError(t, f.store.UpsertDocument(ctx, index.Document{ID: "d1", Name: "report.pdf", CreatedAt: time.Now()}, nil))

	rec = f.do(t, http.MethodGet, "/api/documents", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"report.pdf"`)

	rec = f.do(t, http.MethodDelete, "/api/documents/d1", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/documents/d1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCharts(t *testing.T) {
	f := newFixture(t)
	png := []byte("\x89PNG\r\n\x1a\nfake")
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.ChartsDir, "r_p1_c1.png"), png, 0o644))

	rec := f.do(t, http.MethodGet, "/api/charts/r_p1_c1.png", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, png, rec.Body.Bytes())

	for _, name := range []string{"missing.png", "notes.txt"} {
		rec := f.do(t, http.MethodGet, "/api/charts/"+name, nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, name)
	}
}

func TestLLMStats(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/stats/llm", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, map[string]any{"completion": "test-model"}, body["models"])
	assert.Contains(t, body["stats"], "complete")
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":        "report.pdf",
		"../../etc/passwd":  "passwd",
		`C:\docs\file.docx`: "file.docx",
		"..":                "_",
		"":                  "unnamed",
		"weird..name.md":    "weird_name.md",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), in)
		assert.False(t, strings.Contains(sanitizeFilename(in), "/"), in)
	}
}
