package chart

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgallion1/docqa/internal/element"
	"github.com/dgallion1/docqa/internal/ocr"
	"golang.org/x/image/draw"
)

// OCRPlaceholder is the chart text used when OCR yields nothing usable.
const OCRPlaceholder = "Không thể trích xuất text từ biểu đồ"

// Found is a detected chart whose image has been cropped and read but not
// yet written to disk.
type Found struct {
	Page   int
	Region Region
	PNG    []byte
	Text   string
}

// Extractor detects, crops and OCRs charts, then saves them under Dir.
type Extractor struct {
	Dir        string
	OCR        ocr.Engine // May be nil.
	Thresholds Thresholds
	Logger     *slog.Logger
	Render     Renderer // Defaults to RenderPages.
}

// NewExtractor creates an extractor with the default thresholds.
func NewExtractor(dir string, engine ocr.Engine, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{Dir: dir, OCR: engine, Thresholds: DefaultThresholds, Logger: logger}
}

// Page finds the charts in one raster. It is safe to call from several
// goroutines.
func (e *Extractor) Page(ctx context.Context, r Raster) ([]Found, error) {
	var out []Found
	for _, region := range DetectIn(r.Image, r.PageArea, e.Thresholds) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		data, err := encodeCrop(r.Image, region.BBox)
		if err != nil {
			return out, fmt.Errorf("page %d: encode crop: %w", r.Page, err)
		}
		out = append(out, Found{
			Page:   r.Page,
			Region: region,
			PNG:    data,
			Text:   e.recognize(ctx, r.Page, data),
		})
	}
	return out, nil
}

func (e *Extractor) recognize(ctx context.Context, page int, data []byte) string {
	if e.OCR == nil {
		return OCRPlaceholder
	}
	text, err := e.OCR.Recognize(ctx, data)
	if err != nil {
		e.Logger.Warn("chart ocr failed", "page", page, "error", err)
		return OCRPlaceholder
	}
	if text == "" {
		return OCRPlaceholder
	}
	return text
}

// Save writes found charts, already in page order, as
// {docName}_page{p}_chart{n}.png and returns the chart records. Ordinals run
// across the whole document starting at 1.
func (e *Extractor) Save(docName string, found []Found) ([]element.Chart, error) {
	if len(found) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create charts dir: %w", err)
	}
	charts := make([]element.Chart, 0, len(found))
	for i, f := range found {
		n := i + 1
		path := filepath.Join(e.Dir, FileName(docName, f.Page, n))
		if err := os.WriteFile(path, f.PNG, 0o644); err != nil {
			return charts, fmt.Errorf("write chart %s: %w", path, err)
		}
		charts = append(charts, element.Chart{
			ImagePath:     path,
			OCRText:       f.Text,
			BBox:          f.Region.BBox,
			Area:          f.Region.Area,
			AspectRatio:   f.Region.AspectRatio,
			NonWhiteRatio: f.Region.NonWhiteRatio,
			Index:         n,
		})
	}
	return charts, nil
}

// FileName is the flat-directory name of a saved chart.
func FileName(docName string, page, ordinal int) string {
	return fmt.Sprintf("%s_page%d_chart%d.png", docName, page, ordinal)
}

func encodeCrop(img image.Image, box element.BBox) ([]byte, error) {
	b := img.Bounds()
	src := image.Rect(b.Min.X+box.X, b.Min.Y+box.Y, b.Min.X+box.X+box.W, b.Min.Y+box.Y+box.H)
	crop := image.NewRGBA(image.Rect(0, 0, box.W, box.H))
	draw.Draw(crop, crop.Bounds(), img, src.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
