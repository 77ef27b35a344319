//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract wraps a gosseract client. The client is not safe for concurrent
// use, so calls are serialized.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
	cfg    Config
}

// New creates a Tesseract engine. Close it when no longer needed.
func New(cfg Config) (*Tesseract, error) {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(cfg.Languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("set ocr languages %v: %w", cfg.Languages, err)
	}
	return &Tesseract{client: client, cfg: cfg}, nil
}

// Recognize performs OCR on image data within the configured timeout.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	return withTimeout(ctx, t.cfg.Timeout, func() (string, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if err := t.client.SetImageFromBytes(image); err != nil {
			return "", fmt.Errorf("set image: %w", err)
		}
		text, err := t.client.Text()
		if err != nil {
			return "", fmt.Errorf("ocr: %w", err)
		}
		return text, nil
	})
}

// Close releases OCR resources.
func (t *Tesseract) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
