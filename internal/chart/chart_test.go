package chart

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/dgallion1/docqa/internal/element"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccept(t *testing.T) {
	page := 1000.0 * 800.0
	ok := Region{BBox: element.BBox{W: 300, H: 200}, Area: 60000, NonWhiteRatio: 0.3}

	tests := []struct {
		name string
		mod  func(r Region) Region
		want bool
	}{
		{"accepted", func(r Region) Region { return r }, true},
		{"area too small", func(r Region) Region { r.Area = 10000; return r }, false},
		{"area near page", func(r Region) Region { r.Area = 0.8 * page; return r }, false},
		{"too wide", func(r Region) Region { r.BBox.W, r.BBox.H = 1000, 200; return r }, false},
		{"too tall", func(r Region) Region { r.BBox.W, r.BBox.H = 101, 600; return r }, false},
		{"narrow side", func(r Region) Region { r.BBox.W, r.BBox.H = 100, 300; return r }, false},
		{"mostly white", func(r Region) Region { r.NonWhiteRatio = 0.10; return r }, false},
		{"empty box", func(r Region) Region { r.BBox = element.BBox{}; return r }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Accept(tt.mod(ok), page, DefaultThresholds))
		})
	}
}

func TestAccept_SquarePage(t *testing.T) {
	page := 1000.0 * 1000.0
	assert.False(t, Accept(Region{BBox: element.BBox{W: 200, H: 200}, Area: 5000, NonWhiteRatio: 0.5}, page, DefaultThresholds))
	assert.True(t, Accept(Region{BBox: element.BBox{W: 200, H: 200}, Area: 50000, NonWhiteRatio: 0.5}, page, DefaultThresholds))
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.Set(x, y, c)
		}
	}
}

// barChart draws a framed bar chart at (x, y) sized 300x200 on a white page,
// plus a line of small "text" blobs and a dot inside the frame.
func barChart(x, y int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 1000, 800))
	fillRect(img, 0, 0, 1000, 800, color.White)
	black := color.Black
	fillRect(img, x, y, x+300, y+2, black)
	fillRect(img, x, y+198, x+300, y+200, black)
	fillRect(img, x, y, x+2, y+200, black)
	fillRect(img, x+298, y, x+300, y+200, black)
	for i, hgt := range []int{150, 100, 170} {
		bx := x + 40 + i*80
		fillRect(img, bx, y+200-hgt, bx+40, y+200, color.Gray{Y: 90})
	}
	fillRect(img, x+250, y+20, x+254, y+24, black)
	for i := 0; i < 10; i++ {
		fillRect(img, 50+i*12, 50, 58+i*12, 60, black)
	}
	return img
}

func TestDetect_BarChart(t *testing.T) {
	regions := Detect(barChart(400, 300), DefaultThresholds)
	require.Len(t, regions, 1)
	r := regions[0]
	assert.Equal(t, element.BBox{X: 400, Y: 300, W: 300, H: 200}, r.BBox)
	assert.Equal(t, 60000.0, r.Area)
	assert.InDelta(t, 1.5, r.AspectRatio, 1e-9)
	assert.Greater(t, r.NonWhiteRatio, 0.10)
}

// framedChart is a 400x300 bar chart whose frame runs along the image edge,
// as when a chart is embedded as a picture of its own.
func framedChart() *image.Gray {
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	fillRect(img, 0, 0, 400, 300, color.White)
	fillRect(img, 0, 0, 400, 4, color.Black)
	fillRect(img, 0, 296, 400, 300, color.Black)
	fillRect(img, 0, 0, 4, 300, color.Black)
	fillRect(img, 396, 0, 400, 300, color.Black)
	for i, hgt := range []int{200, 150, 250} {
		bx := 60 + i*110
		fillRect(img, bx, 296-hgt, bx+60, 296, color.Gray{Y: 90})
	}
	return Grayscale(img)
}

func TestDetectIn_PageAreaBound(t *testing.T) {
	img := framedChart()
	// As its own page the chart fills the raster and fails the page bound.
	assert.Empty(t, Detect(img, DefaultThresholds))

	regions := DetectIn(img, 1000*1000, DefaultThresholds)
	require.Len(t, regions, 1)
	assert.Equal(t, element.BBox{W: 400, H: 300}, regions[0].BBox)
	assert.Equal(t, 120000.0, regions[0].Area)
}

// chartPDF builds a one-page PDF showing framedChart placed by imp.
func chartPDF(t *testing.T, imp *pdfcpu.Import) []byte {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, framedChart()))
	var out bytes.Buffer
	require.NoError(t, api.ImportImages(nil, &out, []io.Reader{&img}, imp, nil))
	return out.Bytes()
}

func TestPDFRasters_EmbeddedFallback(t *testing.T) {
	data := chartPDF(t, nil) // Stretched over the whole page.
	e := NewExtractor(t.TempDir(), nil, nil)
	e.Render = func(ctx context.Context, data []byte) ([]Raster, error) {
		return nil, errors.New("pdftoppm not installed")
	}

	rasters, warnings, err := e.PDFRasters(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, rasters, 1)
	assert.Equal(t, 1, rasters[0].Page)
	assert.True(t, math.IsInf(rasters[0].PageArea, 1))
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "pdftoppm not installed")

	found, err := e.Page(context.Background(), rasters[0])
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, element.BBox{W: 400, H: 300}, found[0].Region.BBox)
}

func TestPDFRasters_RenderedPage(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not installed")
	}
	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Center
	imp.Scale = 0.6
	data := chartPDF(t, imp)

	e := NewExtractor(t.TempDir(), nil, nil)
	rasters, warnings, err := e.PDFRasters(context.Background(), data)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, rasters, 1)
	assert.Zero(t, rasters[0].PageArea)

	found, err := e.Page(context.Background(), rasters[0])
	require.NoError(t, err)
	require.Len(t, found, 1)
	b := rasters[0].Image.Bounds()
	assert.Less(t, found[0].Region.Area, 0.8*float64(b.Dx()*b.Dy()))
}

func TestDetect_BlankPage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 400, 400))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	assert.Empty(t, Detect(img, DefaultThresholds))
}

func TestDetect_OpenShapeUsesEnclosedArea(t *testing.T) {
	// An L-shaped axis pair encloses nothing, so its area is just its ink.
	img := image.NewRGBA(image.Rect(0, 0, 800, 800))
	fillRect(img, 0, 0, 800, 800, color.White)
	fillRect(img, 100, 100, 103, 400, color.Black)
	fillRect(img, 100, 397, 500, 400, color.Black)
	regions := outerRegions(Grayscale(img), DefaultThresholds)
	require.Len(t, regions, 1)
	assert.Less(t, regions[0].Area, 10000.0)
	assert.Empty(t, Detect(img, DefaultThresholds))
}

type fakeOCR struct {
	text string
	err  error
}

func (f fakeOCR) Recognize(ctx context.Context, image []byte) (string, error) {
	return f.text, f.err
}

func (f fakeOCR) Close() error { return nil }

func TestExtractor_PageAndSave(t *testing.T) {
	dir := t.TempDir()
	e := NewExtractor(dir, fakeOCR{text: "Doanh thu 2023"}, nil)

	found, err := e.Page(context.Background(), Raster{Page: 2, Image: barChart(100, 100)})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Doanh thu 2023", found[0].Text)

	more, err := e.Page(context.Background(), Raster{Page: 5, Image: barChart(500, 400)})
	require.NoError(t, err)

	charts, err := e.Save("report", append(found, more...))
	require.NoError(t, err)
	require.Len(t, charts, 2)

	assert.Equal(t, filepath.Join(dir, "report_page2_chart1.png"), charts[0].ImagePath)
	assert.Equal(t, filepath.Join(dir, "report_page5_chart2.png"), charts[1].ImagePath)
	assert.Equal(t, 2, charts[1].Index)

	f, err := os.Open(charts[0].ImagePath)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 200, cfg.Height)
}

func TestExtractor_OCRFailureUsesPlaceholder(t *testing.T) {
	e := NewExtractor(t.TempDir(), fakeOCR{err: errors.New("tesseract crashed")}, nil)
	found, err := e.Page(context.Background(), Raster{Page: 1, Image: barChart(100, 100)})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, OCRPlaceholder, found[0].Text)

	e.OCR = nil
	found, err = e.Page(context.Background(), Raster{Page: 1, Image: barChart(100, 100)})
	require.NoError(t, err)
	assert.Equal(t, OCRPlaceholder, found[0].Text)
}

func TestSave_Empty(t *testing.T) {
	e := NewExtractor(filepath.Join(t.TempDir(), "missing"), nil, nil)
	charts, err := e.Save("doc", nil)
	require.NoError(t, err)
	assert.Nil(t, charts)
}
