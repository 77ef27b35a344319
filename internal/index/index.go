// Package index embeds chunks and persists them in a vector store.
package index

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/dgallion1/docqa/internal/element"
)

// ErrDocumentNotFound is returned when a document id is unknown.
var ErrDocumentNotFound = errors.New("document not found")

// Document describes one ingested file.
type Document struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	Format        string    `json:"format"`
	ContentHash   string    `json:"content_hash"`
	TextChunks    int       `json:"text_chunks"`
	TableChunks   int       `json:"table_chunks"`
	ChartChunks   int       `json:"chart_chunks"`
	FormulaChunks int       `json:"formula_chunks"`
	CreatedAt     time.Time `json:"created_at"`
}

// Record is a chunk paired with its embedding.
type Record struct {
	Chunk  element.Chunk
	Vector []float32
}

// Hit is a retrieved chunk with its similarity to the query.
type Hit struct {
	Chunk element.Chunk
	Score float32
}

// Filter narrows a query. The zero value matches every chunk.
type Filter struct {
	Kinds      []element.Kind
	DocumentID string
}

// Match reports whether c passes the filter.
func (f Filter) Match(c element.Chunk) bool {
	if f.DocumentID != "" && c.DocumentID != f.DocumentID {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if c.Kind == k {
			return true
		}
	}
	return false
}

// VectorStore persists documents with their embedded chunks.
type VectorStore interface {
	// UpsertDocument replaces the document and its whole chunk set
	// atomically: either every record is visible afterwards or none is.
	UpsertDocument(ctx context.Context, doc Document, records []Record) error
	// Query returns the k chunks passing f that are most similar to vec,
	// best first.
	Query(ctx context.Context, vec []float32, k int, f Filter) ([]Hit, error)
	// FindByHash looks up a document by the hash of its raw bytes.
	FindByHash(ctx context.Context, hash string) (Document, bool, error)
	ListDocuments(ctx context.Context) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Cosine computes the cosine similarity between two vectors.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// TopK orders hits by descending score and keeps the first k. Equal scores
// keep their input order.
func TopK(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// CountKinds fills the per-type chunk counts of doc from chunks.
func CountKinds(doc *Document, chunks []element.Chunk) {
	doc.TextChunks, doc.TableChunks, doc.ChartChunks, doc.FormulaChunks = 0, 0, 0, 0
	for _, c := range chunks {
		switch c.Kind {
		case element.KindText:
			doc.TextChunks++
		case element.KindTable:
			doc.TableChunks++
		case element.KindChart:
			doc.ChartChunks++
		case element.KindFormula:
			doc.FormulaChunks++
		}
	}
}
