//go:build !ocr

package ocr

import "context"

// Tesseract is unavailable in builds without the "ocr" tag.
type Tesseract struct{}

// New always fails with ErrNotEnabled.
func New(cfg Config) (*Tesseract, error) {
	return nil, ErrNotEnabled
}

func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	return "", ErrNotEnabled
}

// Close is safe on a nil engine.
func (t *Tesseract) Close() error {
	return nil
}
