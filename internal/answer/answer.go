// Package answer turns retrieved chunks into a grounded answer and picks the
// table, chart and formula that back it.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/docqa/internal/llm"
)

// Apology is returned in place of an answer when the completion fails.
const Apology = "Xin lỗi, hiện tại tôi không thể trả lời câu hỏi này. Vui lòng thử lại sau."

const DefaultTimeout = 30 * time.Second

var errEmptyAnswer = errors.New("empty completion")

type Config struct {
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// Synthesizer calls a completion provider once per question. It never retries.
type Synthesizer struct {
	completer llm.Completer
	cfg       Config
	log       *slog.Logger
}

func NewSynthesizer(c llm.Completer, cfg Config, log *slog.Logger) *Synthesizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Synthesizer{completer: c, cfg: cfg, log: log}
}

// Answer completes prompt under the configured timeout. On failure it
// returns Apology together with the cause, so callers can report the error
// without losing a displayable answer.
func (s *Synthesizer) Answer(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := s.completer.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		Timeout:     s.cfg.Timeout,
	})
	if err == nil && strings.TrimSpace(out) == "" {
		err = errEmptyAnswer
	}
	if err != nil {
		s.log.Warn("answer failed", "provider", s.completer.Name(), "timeout", llm.IsTimeout(err),
			"duration_ms", time.Since(start).Milliseconds(), "error", err)
		return Apology, fmt.Errorf("synthesize: %w", err)
	}
	return strings.TrimSpace(out), nil
}
