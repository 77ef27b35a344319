package pipeline

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/dgallion1/docqa/internal/ingest"
	"github.com/google/uuid"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusIngesting  JobStatus = "ingesting"
	StatusCompleted  JobStatus = "completed"
	StatusPartial    JobStatus = "partial"
	StatusFailed     JobStatus = "failed"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Job tracks the state of a single document ingestion.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	DocID    string `json:"doc_id"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Force    bool   `json:"force"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	errors []string
}

// Progress reports the chunk counts of a finished ingestion.
type Progress struct {
	TextChunks    int      `json:"text_chunks"`
	TableChunks   int      `json:"table_chunks"`
	ChartChunks   int      `json:"chart_chunks"`
	FormulaChunks int      `json:"formula_chunks"`
	Warnings      []string `json:"warnings"`
	Errors        []string `json:"errors"`
}

// NewJob creates a queued job for the document at path.
func NewJob(path string, force bool) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Path:      path,
		Filename:  filepath.Base(path),
		Force:     force,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetResult records the outcome of a finished ingestion.
func (j *Job) SetResult(res ingest.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.DocID = res.DocumentID
	j.Progress.TextChunks = res.TextChunks
	j.Progress.TableChunks = res.TableChunks
	j.Progress.ChartChunks = res.ChartChunks
	j.Progress.FormulaChunks = res.FormulaChunks
	j.Progress.Warnings = append([]string(nil), res.Warnings...)
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	DocID     string    `json:"doc_id"`
	Filename  string    `json:"filename"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:       j.ID,
		DocID:    j.DocID,
		Filename: j.Filename,
		Status:   j.Status,
		Phase:    j.Phase,
		Progress: Progress{
			TextChunks:    j.Progress.TextChunks,
			TableChunks:   j.Progress.TableChunks,
			ChartChunks:   j.Progress.ChartChunks,
			FormulaChunks: j.Progress.FormulaChunks,
			Warnings:      cloneStrings(j.Progress.Warnings),
			Errors:        cloneStrings(j.Progress.Errors),
		},
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// cloneStrings copies s and never returns nil.
func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
