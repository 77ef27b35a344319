package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docqa/internal/answer"
	"github.com/dgallion1/docqa/internal/chunker"
	"github.com/dgallion1/docqa/internal/config"
	"github.com/dgallion1/docqa/internal/ingest"
	"github.com/dgallion1/docqa/internal/llm"
	"github.com/dgallion1/docqa/internal/memory"
	"github.com/dgallion1/docqa/internal/ocr"
	"github.com/dgallion1/docqa/internal/parser"
	"github.com/dgallion1/docqa/internal/qa"
	"github.com/dgallion1/docqa/internal/retrieve"
	"github.com/dgallion1/docqa/internal/store/sqlite"
)

// app holds the wired services shared by every command.
type app struct {
	cfg    config.Config
	log    *slog.Logger
	store  *sqlite.Store
	stats  *llm.Stats
	models map[string]string
	ocr    ocr.Engine
	ingest *ingest.Service
	qa     *qa.Service
}

// openStore opens and migrates the SQLite database.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (*sqlite.Store, error) {
	store, err := sqlite.Open(cfg.DBPath, sqlite.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// newApp wires providers, storage and services from cfg.
func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		stats:  llm.NewStats(15 * time.Minute),
		models: map[string]string{},
	}

	var gemini *llm.GeminiClient
	if cfg.LLMProvider == "gemini" || cfg.EmbedProvider == "gemini" {
		gemini, err = llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:       cfg.GeminiAPIKey,
			Model:        cfg.GeminiModel,
			EmbedModel:   cfg.EmbedModel,
			Dimensions:   cfg.EmbedDimensions,
			EmbedTimeout: cfg.EmbedTimeout,
		})
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	var completer llm.Completer
	switch cfg.LLMProvider {
	case "gemini":
		completer = gemini
		a.models["completion"] = cfg.GeminiModel
	default:
		completer = llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		a.models["completion"] = cfg.AnthropicModel
	}
	completer = llm.InstrumentedCompleter{Completer: completer, Stats: a.stats}

	var embedder llm.Embedder
	switch cfg.EmbedProvider {
	case "hash":
		embedder = llm.NewHashEmbedder(cfg.EmbedDimensions)
		a.models["embedding"] = "hash"
	default:
		embedder = gemini
		a.models["embedding"] = cfg.EmbedModel
	}
	embedder = llm.InstrumentedEmbedder{Embedder: embedder, Stats: a.stats}

	engine, err := ocr.New(ocr.Config{Languages: ocr.ParseLanguages(cfg.OCRLanguages), Timeout: cfg.OCRTimeout})
	switch {
	case errors.Is(err, ocr.ErrNotEnabled):
		log.Info("ocr disabled, charts are indexed without text")
	case err != nil:
		log.Warn("ocr unavailable, charts are indexed without text", "error", err)
	default:
		a.ocr = engine
	}

	a.ingest = ingest.NewService(store, embedder, a.ocr, ingest.Config{
		ChartsDir:   cfg.ChartsDir,
		PageWorkers: cfg.PageWorkers,
		BatchSize:   cfg.EmbedBatchSize,
		Chunking:    chunker.Config{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap},
		Parser:      parser.Options{FallbackPdftotext: cfg.PDFFallbackPdftotext},
	}, log)

	var compressor retrieve.Compressor
	if cfg.CompressEnabled {
		compressor = retrieve.NewLLMCompressor(completer, cfg.CompressTimeout, cfg.MaxTokens)
	}
	retriever := retrieve.New(store, embedder, compressor, retrieve.Config{
		K:             cfg.TopK,
		MaxCompressed: cfg.MaxCompressed,
	}, log)

	synth := answer.NewSynthesizer(completer, answer.Config{
		Timeout:     cfg.CompletionTimeout,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, log)
	mem := memory.NewStore(completer, memory.Config{
		TokenLimit: cfg.MemoryTokenLimit,
		Timeout:    cfg.CompletionTimeout,
	}, log)
	a.qa = qa.NewService(retriever, synth, mem, store, log)

	return a, nil
}

func (a *app) Close() {
	if a.ocr != nil {
		if err := a.ocr.Close(); err != nil {
			a.log.Warn("close ocr", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("close store", "error", fmt.Errorf("sqlite: %w", err))
	}
}
