package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docqa/internal/ingest"
)

type fakeIngester struct {
	mu      sync.Mutex
	results map[string]ingest.Result
	errs    map[string]error
	block   chan struct{}
	calls   []string
}

func (f *fakeIngester) Ingest(ctx context.Context, path string, opts ingest.Options) (ingest.Result, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ingest.Result{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	if err := f.errs[path]; err != nil {
		return ingest.Result{}, err
	}
	return f.results[path], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func waitStatus(t *testing.T, job *Job, want JobStatus) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := job.Snapshot()
		if snap.Status == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap := job.Snapshot()
	t.Fatalf("job %s: expected status %q, got %q", job.ID, want, snap.Status)
	return snap
}

func TestWorker_Outcomes(t *testing.T) {
	ing := &fakeIngester{
		results: map[string]ingest.Result{
			"ok.pdf":      {DocumentID: "d1", TextChunks: 3},
			"partial.pdf": {DocumentID: "d2", TextChunks: 1, Warnings: []string{"page 1: tables: panic"}},
			"dup.pdf":     {DocumentID: "d3", Duplicate: true},
		},
		errs: map[string]error{
			"missing.pdf": fmt.Errorf("%w: missing.pdf", ingest.ErrNotFound),
			"bad.exe":     fmt.Errorf("%w: .exe", ingest.ErrUnsupportedFormat),
			"empty.txt":   fmt.Errorf("%w: no content", ingest.ErrProcessingFailed),
		},
	}
	w := NewWorker(ing, discardLogger())

	tests := []struct {
		path   string
		status JobStatus
		phase  string
	}{
		{"ok.pdf", StatusCompleted, "done"},
		{"partial.pdf", StatusPartial, "done"},
		{"dup.pdf", StatusDupSkipped, "dedup"},
		{"missing.pdf", StatusFailed, "not_found"},
		{"bad.exe", StatusFailed, "unsupported_format"},
		{"empty.txt", StatusFailed, "processing"},
	}
	for _, tt := range tests {
		job := NewJob(tt.path, false)
		w.Process(context.Background(), job)
		snap := job.Snapshot()
		if snap.Status != tt.status || snap.Phase != tt.phase {
			t.Errorf("%s: expected %q/%q, got %q/%q", tt.path, tt.status, tt.phase, snap.Status, snap.Phase)
		}
		if tt.status == StatusFailed && len(snap.Progress.Errors) != 1 {
			t.Errorf("%s: expected 1 error, got %v", tt.path, snap.Progress.Errors)
		}
	}
}

func TestOrchestrator_ProcessesJobs(t *testing.T) {
	ing := &fakeIngester{results: map[string]ingest.Result{
		"a.md": {DocumentID: "da", TableChunks: 2},
		"b.md": {DocumentID: "db", FormulaChunks: 1},
	}}
	o := NewOrchestrator(Config{WorkerCount: 2, MaxQueueSize: 4}, ing, discardLogger())
	o.Start(context.Background())
	defer o.Stop()

	a, b := NewJob("a.md", false), NewJob("b.md", false)
	for _, job := range []*Job{a, b} {
		if err := o.Submit(job); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	snap := waitStatus(t, a, StatusCompleted)
	if snap.DocID != "da" || snap.Progress.TableChunks != 2 {
		t.Errorf("unexpected job a: %+v", snap)
	}
	waitStatus(t, b, StatusCompleted)
	if got := o.GetJob(b.ID); got != b {
		t.Error("expected GetJob to return the submitted job")
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	ing := &fakeIngester{block: make(chan struct{})}
	o := NewOrchestrator(Config{WorkerCount: 1, MaxQueueSize: 1}, ing, discardLogger())

	// Without workers the queue fills after one job.
	if err := o.Submit(NewJob("a.md", false)); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	overflow := NewJob("b.md", false)
	if err := o.Submit(overflow); err == nil {
		t.Fatal("expected queue full error")
	}
	if snap := overflow.Snapshot(); snap.Status != StatusFailed || snap.Phase != "queue_full" {
		t.Errorf("expected failed/queue_full, got %q/%q", snap.Status, snap.Phase)
	}
	if o.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", o.QueueDepth())
	}

	o.Start(context.Background())
	close(ing.block)
	o.Stop()
}
