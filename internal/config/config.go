package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Storage
	DataDir   string
	ChartsDir string
	UploadDir string
	DBPath    string

	// Completion provider
	LLMProvider     string // "anthropic" or "gemini"
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string
	Temperature     float64
	MaxTokens       int

	// Embeddings
	EmbedProvider   string // "gemini" or "hash"
	EmbedModel      string
	EmbedDimensions int
	EmbedBatchSize  int

	// Provider timeouts
	CompletionTimeout time.Duration
	EmbedTimeout      time.Duration
	OCRTimeout        time.Duration
	CompressTimeout   time.Duration

	// Retrieval and answering
	TopK             int
	CompressEnabled  bool
	MaxCompressed    int
	MemoryTokenLimit int

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Extraction
	OCRLanguages         string
	PageWorkers          int
	PDFFallbackPdftotext bool

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port: "8090",

		DataDir:   "data",
		ChartsDir: "charts",
		UploadDir: "uploads",
		DBPath:    "docqa.db",

		LLMProvider:    "anthropic",
		AnthropicModel: "claude-sonnet-4-5-20250929",
		GeminiModel:    "gemini-2.5-flash",
		Temperature:    0.3,
		MaxTokens:      1024,

		EmbedProvider:   "gemini",
		EmbedModel:      "gemini-embedding-001",
		EmbedDimensions: 768,
		EmbedBatchSize:  32,

		CompletionTimeout: 30 * time.Second,
		EmbedTimeout:      30 * time.Second,
		OCRTimeout:        20 * time.Second,
		CompressTimeout:   15 * time.Second,

		TopK:             3,
		CompressEnabled:  true,
		MaxCompressed:    3,
		MemoryTokenLimit: 2000,

		ChunkSize:    500,
		ChunkOverlap: 50,

		OCRLanguages:         "eng+vie",
		PageWorkers:          4,
		PDFFallbackPdftotext: true,

		WorkerCount:  2,
		MaxQueueSize: 100,

		MaxUploadBytes: 52428800, // 50MB

		JobTTL: 1 * time.Hour,
	}
}

// Load builds the configuration from defaults, the optional TOML file named by
// DOCQA_CONFIG, and environment overrides, in that order.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("DOCQA_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg = Config{
		Port: envOr("PORT", cfg.Port),

		APIKey: envOr("DOCQA_API_KEY", cfg.APIKey),

		DataDir:   envOr("DATA_DIR", cfg.DataDir),
		ChartsDir: envOr("CHARTS_DIR", cfg.ChartsDir),
		UploadDir: envOr("UPLOAD_DIR", cfg.UploadDir),
		DBPath:    envOr("DB_PATH", cfg.DBPath),

		LLMProvider:     envOr("LLM_PROVIDER", cfg.LLMProvider),
		AnthropicAPIKey: envOr("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", cfg.AnthropicModel),
		GeminiAPIKey:    envOr("GEMINI_API_KEY", cfg.GeminiAPIKey),
		GeminiModel:     envOr("GEMINI_MODEL", cfg.GeminiModel),
		Temperature:     envFloat("LLM_TEMPERATURE", cfg.Temperature),
		MaxTokens:       envInt("LLM_MAX_TOKENS", cfg.MaxTokens),

		EmbedProvider:   envOr("EMBED_PROVIDER", cfg.EmbedProvider),
		EmbedModel:      envOr("EMBED_MODEL", cfg.EmbedModel),
		EmbedDimensions: envInt("EMBED_DIMENSIONS", cfg.EmbedDimensions),
		EmbedBatchSize:  envInt("EMBED_BATCH_SIZE", cfg.EmbedBatchSize),

		CompletionTimeout: envDuration("COMPLETION_TIMEOUT", cfg.CompletionTimeout),
		EmbedTimeout:      envDuration("EMBED_TIMEOUT", cfg.EmbedTimeout),
		OCRTimeout:        envDuration("OCR_TIMEOUT", cfg.OCRTimeout),
		CompressTimeout:   envDuration("COMPRESS_TIMEOUT", cfg.CompressTimeout),

		TopK:             envInt("TOP_K", cfg.TopK),
		CompressEnabled:  envBool("COMPRESS_ENABLED", cfg.CompressEnabled),
		MaxCompressed:    envInt("MAX_COMPRESSED", cfg.MaxCompressed),
		MemoryTokenLimit: envInt("MEMORY_TOKEN_LIMIT", cfg.MemoryTokenLimit),

		ChunkSize:    envInt("CHUNK_SIZE", cfg.ChunkSize),
		ChunkOverlap: envInt("CHUNK_OVERLAP", cfg.ChunkOverlap),

		OCRLanguages:         envOr("OCR_LANGUAGES", cfg.OCRLanguages),
		PageWorkers:          envInt("PAGE_WORKERS", cfg.PageWorkers),
		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext),

		WorkerCount:  envInt("WORKER_COUNT", cfg.WorkerCount),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes),

		JobTTL: envDuration("JOB_TTL", cfg.JobTTL),
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults restores built-in values for non-positive numeric settings.
func (c *Config) applyDefaults() {
	d := Default()
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.EmbedDimensions <= 0 {
		c.EmbedDimensions = d.EmbedDimensions
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = d.EmbedBatchSize
	}
	if c.CompletionTimeout <= 0 {
		c.CompletionTimeout = d.CompletionTimeout
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = d.EmbedTimeout
	}
	if c.OCRTimeout <= 0 {
		c.OCRTimeout = d.OCRTimeout
	}
	if c.CompressTimeout <= 0 {
		c.CompressTimeout = d.CompressTimeout
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.MaxCompressed <= 0 {
		c.MaxCompressed = d.MaxCompressed
	}
	if c.MemoryTokenLimit <= 0 {
		c.MemoryTokenLimit = d.MemoryTokenLimit
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = d.ChunkOverlap
	}
	if c.PageWorkers <= 0 {
		c.PageWorkers = d.PageWorkers
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.JobTTL <= 0 {
		c.JobTTL = d.JobTTL
	}
}

// Validate checks settings required by the server.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	switch c.EmbedProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for gemini embeddings")
		}
	case "hash":
	default:
		return fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider)
	}
	return nil
}

// ValidateServer additionally requires the API key guarding the HTTP API.
func (c Config) ValidateServer() error {
	if c.APIKey == "" {
		return fmt.Errorf("DOCQA_API_KEY is required")
	}
	return c.Validate()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
