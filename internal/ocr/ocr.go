// Package ocr extracts text from raster images.
//
// The Tesseract engine is compiled in with the "ocr" build tag and needs
// tesseract-ocr plus the eng and vie language data installed:
//
//	apt-get install tesseract-ocr tesseract-ocr-vie
//	go build -tags ocr ./...
//
// Without the tag, New returns ErrNotEnabled and callers fall back to a
// placeholder text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotEnabled is returned when OCR support was not compiled in.
	ErrNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")
	// ErrTimeout is returned when recognition exceeds its deadline.
	ErrTimeout = errors.New("ocr timed out")
)

// Engine recognizes text in an encoded image (PNG, JPEG, TIFF).
type Engine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
	Close() error
}

// Config configures the Tesseract engine.
type Config struct {
	Languages []string
	Timeout   time.Duration
}

// ParseLanguages splits a "eng+vie" style list.
func ParseLanguages(s string) []string {
	var out []string
	for _, l := range strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' || r == ' ' }) {
		out = append(out, l)
	}
	if len(out) == 0 {
		out = []string{"eng"}
	}
	return out
}

// withTimeout runs fn and gives up after timeout or ctx cancellation. The
// engine call itself cannot be interrupted, so it keeps running in the
// background and its result is discarded.
func withTimeout(ctx context.Context, timeout time.Duration, fn func() (string, error)) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := fn()
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		return strings.TrimSpace(r.text), r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return "", ctx.Err()
	}
}
