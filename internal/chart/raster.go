package chart

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// RenderDPI is the resolution pages are rasterized at. At 72 dpi one pixel
// is one PDF point.
const RenderDPI = 72

// Raster is one decoded image belonging to a page.
type Raster struct {
	Page  int
	Name  string
	Image image.Image
	// PageArea is what the page-fraction bound is measured against. Zero
	// means Image is the whole page.
	PageArea float64
}

// Renderer rasterizes every page of a PDF.
type Renderer func(ctx context.Context, data []byte) ([]Raster, error)

var pageFile = regexp.MustCompile(`-(\d+)\.png$`)

// RenderPages rasterizes each page of a PDF with pdftoppm (poppler-utils).
func RenderPages(ctx context.Context, data []byte) ([]Raster, error) {
	dir, err := os.MkdirTemp("", "docqa-pages-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	cmd := exec.CommandContext(ctx, "pdftoppm", "-r", strconv.Itoa(RenderDPI), "-png", in, filepath.Join(dir, "page"))
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, bytes.TrimSpace(out))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read rendered pages: %w", err)
	}
	var out []Raster
	for _, e := range entries {
		m := pageFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		page, _ := strconv.Atoi(m[1])
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("open page %d: %w", page, err)
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decode page %d: %w", page, err)
		}
		out = append(out, Raster{Page: page, Name: e.Name(), Image: img})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out, nil
}

// EmbeddedImages extracts the embedded images of every page of a PDF.
// Images whose encoding cannot be decoded are skipped and reported as
// warnings. An embedded image carries no placement on its page, so the
// page-fraction bound does not apply to it.
func EmbeddedImages(data []byte) ([]Raster, []string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pages, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, conf)
	if err != nil {
		return nil, nil, fmt.Errorf("extract pdf images: %w", err)
	}

	var out []Raster
	var warnings []string
	for _, images := range pages {
		for _, img := range images {
			if img.Reader == nil {
				continue
			}
			decoded, _, err := image.Decode(img)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("page %d: image %s (%s): %v", img.PageNr, img.Name, img.FileType, err))
				continue
			}
			out = append(out, Raster{Page: img.PageNr, Name: img.Name, Image: decoded, PageArea: math.Inf(1)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		return out[i].Name < out[j].Name
	})
	return out, warnings, nil
}

// PDFRasters returns the page rasters to search for charts. Pages are
// rendered whole; when rendering is unavailable the embedded images are used
// instead and the reason is returned as a warning.
func (e *Extractor) PDFRasters(ctx context.Context, data []byte) ([]Raster, []string, error) {
	render := e.Render
	if render == nil {
		render = RenderPages
	}
	rasters, err := render(ctx, data)
	if err == nil && len(rasters) > 0 {
		return rasters, nil, nil
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	var warnings []string
	if err != nil {
		e.Logger.Warn("page rendering failed, using embedded images", "error", err)
		warnings = append(warnings, fmt.Sprintf("charts: page rendering unavailable, using embedded images: %v", err))
	}
	embedded, more, err := EmbeddedImages(data)
	return embedded, append(warnings, more...), err
}
