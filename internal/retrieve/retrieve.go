// Package retrieve finds the chunks most relevant to a question.
package retrieve

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dgallion1/docqa/internal/index"
	"github.com/dgallion1/docqa/internal/llm"
)

// DefaultK is the number of chunks retrieved per question.
const DefaultK = 3

// Compressor reduces a chunk to the excerpt relevant to a question.
type Compressor interface {
	Compress(ctx context.Context, question, text string) (string, error)
}

// Config controls retrieval.
type Config struct {
	K             int
	MaxCompressed int // Upper bound on returned chunks when compressing.
}

// Retriever runs similarity search with optional compression.
type Retriever struct {
	store      index.VectorStore
	embedder   llm.Embedder
	compressor Compressor
	cfg        Config
	log        *slog.Logger
}

// New creates a retriever. A nil compressor disables compression.
func New(store index.VectorStore, embedder llm.Embedder, compressor Compressor, cfg Config, log *slog.Logger) *Retriever {
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if cfg.MaxCompressed <= 0 {
		cfg.MaxCompressed = cfg.K
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Retriever{store: store, embedder: embedder, compressor: compressor, cfg: cfg, log: log}
}

// Retrieve embeds question and returns the best chunks in rank order.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]index.Hit, error) {
	vecs, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors", len(vecs))
	}

	hits, err := r.store.Query(ctx, vecs[0], r.cfg.K, index.Filter{})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if r.compressor == nil || len(hits) == 0 {
		return hits, nil
	}
	return r.compress(ctx, question, hits), nil
}

// compress replaces each chunk's text with its relevant excerpt. A chunk
// whose compression fails or comes back empty keeps its original text.
func (r *Retriever) compress(ctx context.Context, question string, hits []index.Hit) []index.Hit {
	if len(hits) > r.cfg.MaxCompressed {
		hits = hits[:r.cfg.MaxCompressed]
	}
	out := make([]index.Hit, len(hits))
	for i, h := range hits {
		out[i] = h
		text, err := r.compressor.Compress(ctx, question, h.Chunk.Text)
		if err != nil {
			r.log.Warn("compression failed, keeping original chunk", "chunk_id", h.Chunk.ID, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		out[i].Chunk.Text = text
	}
	return out
}
