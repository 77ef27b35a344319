package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dgallion1/docqa/internal/element"
	"github.com/dgallion1/docqa/internal/llm"
	"github.com/google/uuid"
)

// Builder embeds chunks in batches and writes them to a store in one step.
type Builder struct {
	store     VectorStore
	embedder  llm.Embedder
	batchSize int
	log       *slog.Logger

	// backoff is replaceable so tests do not sleep.
	backoff func(attempt int) time.Duration
}

func NewBuilder(store VectorStore, embedder llm.Embedder, batchSize int, log *slog.Logger) *Builder {
	if batchSize <= 0 {
		batchSize = 32
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{store: store, embedder: embedder, batchSize: batchSize, log: log, backoff: llm.Backoff}
}

// Build assigns ids to doc and its chunks, embeds every chunk and upserts
// the result. Nothing is written unless every batch embeds successfully.
func (b *Builder) Build(ctx context.Context, doc Document, chunks []element.Chunk) (Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	CountKinds(&doc, chunks)

	records := make([]Record, len(chunks))
	for i, c := range chunks {
		c.ID = uuid.NewString()
		c.DocumentID = doc.ID
		records[i] = Record{Chunk: c}
	}

	for start := 0; start < len(records); start += b.batchSize {
		end := min(start+b.batchSize, len(records))
		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = records[start+i].Chunk.Text
		}
		vecs, err := b.embedBatch(ctx, texts)
		if err != nil {
			return doc, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != len(texts) {
			return doc, fmt.Errorf("embed chunks %d-%d: got %d vectors for %d texts", start, end-1, len(vecs), len(texts))
		}
		for i, v := range vecs {
			records[start+i].Vector = v
		}
	}

	if err := b.store.UpsertDocument(ctx, doc, records); err != nil {
		return doc, fmt.Errorf("upsert document: %w", err)
	}
	b.log.Info("indexed document", "doc_id", doc.ID, "name", doc.Name, "chunks", len(records))
	return doc, nil
}

// embedBatch retries retryable provider errors with backoff.
func (b *Builder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	var lastErr error
	for attempt := range llm.MaxRetries {
		vecs, lastErr = b.embedder.Embed(ctx, texts)
		if lastErr == nil || !llm.IsRetryable(lastErr) {
			break
		}
		if attempt == llm.MaxRetries-1 {
			break
		}
		b.log.Warn("retryable embedding error", "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(b.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return vecs, lastErr
}
