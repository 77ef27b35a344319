//go:build !ocr

package ocr

import (
	"context"
	"errors"
	"testing"
)

func TestNewReturnsError(t *testing.T) {
	engine, err := New(Config{Languages: []string{"eng", "vie"}})
	if !errors.Is(err, ErrNotEnabled) {
		t.Errorf("expected ErrNotEnabled, got: %v", err)
	}
	if engine != nil {
		t.Error("expected nil engine when OCR is disabled")
	}
}

func TestStubRecognizeAndClose(t *testing.T) {
	var engine *Tesseract
	if _, err := engine.Recognize(context.Background(), nil); !errors.Is(err, ErrNotEnabled) {
		t.Errorf("expected ErrNotEnabled, got %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Errorf("Close on nil engine should not error: %v", err)
	}
}
