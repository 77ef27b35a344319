package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgallion1/docqa/internal/ingest"
)

// Ingester indexes one document.
type Ingester interface {
	Ingest(ctx context.Context, path string, opts ingest.Options) (ingest.Result, error)
}

// Worker processes a single document job.
type Worker struct {
	ingester Ingester
	log      *slog.Logger
}

func NewWorker(ingester Ingester, log *slog.Logger) *Worker {
	return &Worker{ingester: ingester, log: log}
}

// Process runs the ingestion for a job and records the outcome on it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)

	job.SetStatus(StatusIngesting, "ingesting")
	res, err := w.ingester.Ingest(ctx, job.Path, ingest.Options{Force: job.Force})
	if err != nil {
		log.Error("ingestion failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, failedPhase(err))
		return
	}
	job.SetResult(res)

	switch {
	case res.Duplicate:
		log.Info("duplicate document, skipping", "existing_doc_id", res.DocumentID)
		job.SetStatus(StatusDupSkipped, "dedup")
	case len(res.Warnings) > 0:
		job.SetStatus(StatusPartial, "done")
	default:
		job.SetStatus(StatusCompleted, "done")
	}
}

func failedPhase(err error) string {
	switch {
	case errors.Is(err, ingest.ErrNotFound), errors.Is(err, ingest.ErrInvalidPath):
		return "not_found"
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "processing"
	}
}
