package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors the TOML layout. Zero values leave the current setting
// untouched.
type fileConfig struct {
	Server struct {
		Port   string `toml:"port"`
		APIKey string `toml:"api_key"`
	} `toml:"server"`

	Storage struct {
		DataDir   string `toml:"data_dir"`
		ChartsDir string `toml:"charts_dir"`
		UploadDir string `toml:"upload_dir"`
		DBPath    string `toml:"db_path"`
	} `toml:"storage"`

	LLM struct {
		Provider        string  `toml:"provider"`
		AnthropicAPIKey string  `toml:"anthropic_api_key"`
		AnthropicModel  string  `toml:"anthropic_model"`
		GeminiAPIKey    string  `toml:"gemini_api_key"`
		GeminiModel     string  `toml:"gemini_model"`
		Temperature     float64 `toml:"temperature"`
		MaxTokens       int     `toml:"max_tokens"`
		Timeout         string  `toml:"timeout"`
	} `toml:"llm"`

	Embedding struct {
		Provider   string `toml:"provider"`
		Model      string `toml:"model"`
		Dimensions int    `toml:"dimensions"`
		BatchSize  int    `toml:"batch_size"`
		Timeout    string `toml:"timeout"`
	} `toml:"embedding"`

	Retrieval struct {
		TopK             int    `toml:"top_k"`
		Compress         *bool  `toml:"compress"`
		MaxCompressed    int    `toml:"max_compressed"`
		CompressTimeout  string `toml:"compress_timeout"`
		MemoryTokenLimit int    `toml:"memory_token_limit"`
	} `toml:"retrieval"`

	Extraction struct {
		ChunkSize    int    `toml:"chunk_size"`
		ChunkOverlap int    `toml:"chunk_overlap"`
		OCRLanguages string `toml:"ocr_languages"`
		OCRTimeout   string `toml:"ocr_timeout"`
		PageWorkers  int    `toml:"page_workers"`
		Pdftotext    *bool  `toml:"pdftotext_fallback"`
	} `toml:"extraction"`

	Pipeline struct {
		Workers        int    `toml:"workers"`
		MaxQueueSize   int    `toml:"max_queue_size"`
		MaxUploadBytes int64  `toml:"max_upload_bytes"`
		JobTTL         string `toml:"job_ttl"`
	} `toml:"pipeline"`
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc.apply(cfg)
}

func (fc fileConfig) apply(cfg *Config) error {
	setString(&cfg.Port, fc.Server.Port)
	setString(&cfg.APIKey, fc.Server.APIKey)

	setString(&cfg.DataDir, fc.Storage.DataDir)
	setString(&cfg.ChartsDir, fc.Storage.ChartsDir)
	setString(&cfg.UploadDir, fc.Storage.UploadDir)
	setString(&cfg.DBPath, fc.Storage.DBPath)

	setString(&cfg.LLMProvider, fc.LLM.Provider)
	setString(&cfg.AnthropicAPIKey, fc.LLM.AnthropicAPIKey)
	setString(&cfg.AnthropicModel, fc.LLM.AnthropicModel)
	setString(&cfg.GeminiAPIKey, fc.LLM.GeminiAPIKey)
	setString(&cfg.GeminiModel, fc.LLM.GeminiModel)
	if fc.LLM.Temperature > 0 {
		cfg.Temperature = fc.LLM.Temperature
	}
	setInt(&cfg.MaxTokens, fc.LLM.MaxTokens)

	setString(&cfg.EmbedProvider, fc.Embedding.Provider)
	setString(&cfg.EmbedModel, fc.Embedding.Model)
	setInt(&cfg.EmbedDimensions, fc.Embedding.Dimensions)
	setInt(&cfg.EmbedBatchSize, fc.Embedding.BatchSize)

	setInt(&cfg.TopK, fc.Retrieval.TopK)
	if fc.Retrieval.Compress != nil {
		cfg.CompressEnabled = *fc.Retrieval.Compress
	}
	setInt(&cfg.MaxCompressed, fc.Retrieval.MaxCompressed)
	setInt(&cfg.MemoryTokenLimit, fc.Retrieval.MemoryTokenLimit)

	setInt(&cfg.ChunkSize, fc.Extraction.ChunkSize)
	setInt(&cfg.ChunkOverlap, fc.Extraction.ChunkOverlap)
	setString(&cfg.OCRLanguages, fc.Extraction.OCRLanguages)
	setInt(&cfg.PageWorkers, fc.Extraction.PageWorkers)
	if fc.Extraction.Pdftotext != nil {
		cfg.PDFFallbackPdftotext = *fc.Extraction.Pdftotext
	}

	setInt(&cfg.WorkerCount, fc.Pipeline.Workers)
	setInt(&cfg.MaxQueueSize, fc.Pipeline.MaxQueueSize)
	if fc.Pipeline.MaxUploadBytes > 0 {
		cfg.MaxUploadBytes = fc.Pipeline.MaxUploadBytes
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"llm.timeout", fc.LLM.Timeout, &cfg.CompletionTimeout},
		{"embedding.timeout", fc.Embedding.Timeout, &cfg.EmbedTimeout},
		{"retrieval.compress_timeout", fc.Retrieval.CompressTimeout, &cfg.CompressTimeout},
		{"extraction.ocr_timeout", fc.Extraction.OCRTimeout, &cfg.OCRTimeout},
		{"pipeline.job_ttl", fc.Pipeline.JobTTL, &cfg.JobTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
