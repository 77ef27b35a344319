// Package ingest turns a document on disk into indexed chunks: it parses the
// file, runs the table, chart and formula extractors, chunks the merged
// elements and hands them to the index builder.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgallion1/docqa/internal/chart"
	"github.com/dgallion1/docqa/internal/chunker"
	"github.com/dgallion1/docqa/internal/element"
	"github.com/dgallion1/docqa/internal/index"
	"github.com/dgallion1/docqa/internal/llm"
	"github.com/dgallion1/docqa/internal/ocr"
	"github.com/dgallion1/docqa/internal/parser"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidPath       = errors.New("document path is required")
	ErrNotFound          = errors.New("document not found")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrProcessingFailed  = errors.New("document processing failed")
)

type Options struct {
	// Force re-indexes a document whose bytes were already ingested,
	// replacing its previous chunk set.
	Force bool
}

// Result reports what one ingestion produced.
type Result struct {
	DocumentID    string   `json:"document_id"`
	Name          string   `json:"name"`
	TextChunks    int      `json:"text_chunks"`
	TableChunks   int      `json:"table_chunks"`
	ChartChunks   int      `json:"chart_chunks"`
	FormulaChunks int      `json:"formula_chunks"`
	Duplicate     bool     `json:"duplicate"`
	Warnings      []string `json:"warnings,omitempty"`
}

type Config struct {
	ChartsDir   string
	PageWorkers int
	BatchSize   int
	Chunking    chunker.Config
	Parser      parser.Options
}

// Service runs ingestions. It is safe for concurrent use; two ingestions of
// different documents proceed independently.
type Service struct {
	store   index.VectorStore
	builder *index.Builder
	charts  *chart.Extractor
	chunker *chunker.Chunker
	cfg     Config
	log     *slog.Logger
	tracer  trace.Tracer
	hashes  hashLocks
}

// hashLocks serializes ingestions of identical bytes so the dedup lookup
// and the index write happen as one step per content hash.
type hashLocks struct {
	mu    sync.Mutex
	locks map[string]*hashLock
}

type hashLock struct {
	sync.Mutex
	refs int
}

func (h *hashLocks) lock(hash string) (unlock func()) {
	h.mu.Lock()
	if h.locks == nil {
		h.locks = make(map[string]*hashLock)
	}
	l, ok := h.locks[hash]
	if !ok {
		l = &hashLock{}
		h.locks[hash] = l
	}
	l.refs++
	h.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		h.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(h.locks, hash)
		}
		h.mu.Unlock()
	}
}

// NewService wires an ingestion service. engine may be nil, in which case
// every chart gets the OCR placeholder text.
func NewService(store index.VectorStore, embedder llm.Embedder, engine ocr.Engine, cfg Config, log *slog.Logger) *Service {
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 4
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:   store,
		builder: index.NewBuilder(store, embedder, cfg.BatchSize, log),
		charts:  chart.NewExtractor(cfg.ChartsDir, engine, log),
		chunker: chunker.New(cfg.Chunking),
		cfg:     cfg,
		log:     log,
		tracer:  otel.Tracer("github.com/dgallion1/docqa/internal/ingest"),
	}
}

// Ingest indexes the document at path. Re-ingesting identical bytes is a
// no-op reported as Duplicate unless opts.Force is set.
func (s *Service) Ingest(ctx context.Context, path string, opts Options) (res Result, err error) {
	ctx, span := s.tracer.Start(ctx, "ingest.document", trace.WithAttributes(
		attribute.String("docqa.path", path),
		attribute.Bool("docqa.force", opts.Force),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	data, err := s.read(path)
	if err != nil {
		return Result{}, err
	}
	name := baseName(path)
	log := s.log.With("doc", name)

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	unlock := s.hashes.lock(hash)
	defer unlock()

	existing, found, err := s.store.FindByHash(ctx, hash)
	if err != nil {
		return Result{}, fmt.Errorf("%w: dedup lookup: %v", ErrProcessingFailed, err)
	}
	if found && !opts.Force {
		log.Info("document already indexed", "doc_id", existing.ID)
		return resultFor(existing, true, nil), nil
	}

	els, doc, err := s.Extract(ctx, path, data)
	if err != nil {
		return Result{}, err
	}
	for _, w := range doc.Warnings {
		log.Warn("partial extraction failure", "warning", w)
	}

	chunks := s.chunker.Chunks(filepath.Base(path), els)
	if len(chunks) == 0 {
		return Result{Warnings: doc.Warnings}, fmt.Errorf("%w: no content extracted from %s", ErrProcessingFailed, filepath.Base(path))
	}

	abs, _ := filepath.Abs(path)
	record := index.Document{Name: name, Path: abs, Format: doc.Format, ContentHash: hash}
	if found {
		record.ID = existing.ID
	}
	indexed, err := s.builder.Build(ctx, record, chunks)
	if err != nil {
		return Result{Warnings: doc.Warnings}, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}

	res = resultFor(indexed, false, doc.Warnings)
	span.SetAttributes(
		attribute.String("docqa.document_id", res.DocumentID),
		attribute.Int("docqa.chunks", len(chunks)),
	)
	log.Info("document ingested", "doc_id", res.DocumentID,
		"text", res.TextChunks, "tables", res.TableChunks,
		"charts", res.ChartChunks, "formulas", res.FormulaChunks,
		"warnings", len(res.Warnings))
	return res, nil
}

// read validates path and returns the file contents.
func (s *Service) read(path string) ([]byte, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", ErrProcessingFailed, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnsupportedFormat, path)
	}
	if !parser.IsSupportedExtension(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrProcessingFailed, path, err)
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if err := parser.CheckContent(path, head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return data, nil
}

func resultFor(doc index.Document, duplicate bool, warnings []string) Result {
	return Result{
		DocumentID:    doc.ID,
		Name:          doc.Name,
		TextChunks:    doc.TextChunks,
		TableChunks:   doc.TableChunks,
		ChartChunks:   doc.ChartChunks,
		FormulaChunks: doc.FormulaChunks,
		Duplicate:     duplicate,
		Warnings:      warnings,
	}
}

func baseName(path string) string {
	name := filepath.Base(path)
	return name[:len(name)-len(filepath.Ext(name))]
}

// Extract parses data and runs every sub-extractor. The returned elements
// are sorted by page with document-wide 1-based ordinals per type. Failures
// of the chart extractor are recorded as warnings on the document.
func (s *Service) Extract(ctx context.Context, path string, data []byte) ([]element.Element, *parser.Document, error) {
	p, err := parser.ForFile(path, s.cfg.Parser)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	doc, err := p.Parse(bytes.NewReader(data), path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parse %s: %v", ErrProcessingFailed, filepath.Base(path), err)
	}

	formulas, err := s.formulas(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	var charts []element.Element
	if doc.Format == "pdf" {
		charts, err = s.pdfCharts(ctx, doc, data)
		if err != nil {
			return nil, nil, err
		}
	}
	return merge(doc, formulas, charts), doc, nil
}
