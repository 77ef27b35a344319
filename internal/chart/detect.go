// Package chart finds chart-like regions in page rasters, crops them and
// extracts their text.
package chart

import (
	"image"
	"sort"

	"github.com/dgallion1/docqa/internal/element"
	"golang.org/x/image/draw"
)

// Thresholds bound which regions count as charts.
type Thresholds struct {
	Foreground      uint8   // Gray values below this are ink.
	MinArea         float64 // Filled area must exceed this.
	MaxPageFraction float64 // Filled area must stay under this share of the page.
	MinAspect       float64 // Exclusive bounds on w/h.
	MaxAspect       float64
	MinSide         int     // Width and height must exceed this.
	MinNonWhite     float64 // Share of ink pixels in the crop must exceed this.
}

// DefaultThresholds are the stock detection limits.
var DefaultThresholds = Thresholds{
	Foreground:      240,
	MinArea:         10000,
	MaxPageFraction: 0.8,
	MinAspect:       0.2,
	MaxAspect:       5,
	MinSide:         100,
	MinNonWhite:     0.10,
}

// Region is a candidate chart area in raster coordinates.
type Region struct {
	BBox          element.BBox
	Area          float64 // Filled area enclosed by the outer boundary.
	AspectRatio   float64
	NonWhiteRatio float64
}

// Accept reports whether r passes every threshold on a page of pageArea
// pixels.
func Accept(r Region, pageArea float64, th Thresholds) bool {
	if r.BBox.W <= 0 || r.BBox.H <= 0 {
		return false
	}
	aspect := float64(r.BBox.W) / float64(r.BBox.H)
	return r.Area > th.MinArea &&
		r.Area < th.MaxPageFraction*pageArea &&
		aspect > th.MinAspect && aspect < th.MaxAspect &&
		r.BBox.W > th.MinSide && r.BBox.H > th.MinSide &&
		r.NonWhiteRatio > th.MinNonWhite
}

// Grayscale converts img to an 8-bit gray raster anchored at the origin.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Detect returns the accepted regions of a whole-page raster, top to bottom
// then left to right.
func Detect(img image.Image, th Thresholds) []Region {
	return DetectIn(img, 0, th)
}

// DetectIn is Detect for a raster covering only part of a page of pageArea
// pixels. A zero pageArea means img is the page.
func DetectIn(img image.Image, pageArea float64, th Thresholds) []Region {
	gray := Grayscale(img)
	if pageArea <= 0 {
		pageArea = float64(gray.Rect.Dx() * gray.Rect.Dy())
	}
	var out []Region
	for _, r := range outerRegions(gray, th) {
		if Accept(r, pageArea, th) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BBox.Y != out[j].BBox.Y {
			return out[i].BBox.Y < out[j].BBox.Y
		}
		return out[i].BBox.X < out[j].BBox.X
	})
	return out
}

type component struct {
	label      int
	seed       int // Index of the first pixel found.
	minX, minY int
	maxX, maxY int
}

// outerRegions labels 8-connected ink components and measures those large
// enough to matter. Components lying inside another measured component's
// outline are not reported.
func outerRegions(gray *image.Gray, th Thresholds) []Region {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	ink := func(i int) bool { return gray.Pix[(i/w)*gray.Stride+i%w] < th.Foreground }

	labels := make([]int32, w*h)
	var comps []component
	stack := make([]int, 0, 1024)
	for i := 0; i < w*h; i++ {
		if labels[i] != 0 || !ink(i) {
			continue
		}
		c := component{label: len(comps) + 1, seed: i, minX: i % w, minY: i / w, maxX: i % w, maxY: i / w}
		labels[i] = int32(c.label)
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			px, py := p%w, p/w
			c.minX, c.maxX = min(c.minX, px), max(c.maxX, px)
			c.minY, c.maxY = min(c.minY, py), max(c.maxY, py)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := px+dx, py+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					n := ny*w + nx
					if labels[n] == 0 && ink(n) {
						labels[n] = int32(c.label)
						stack = append(stack, n)
					}
				}
			}
		}
		comps = append(comps, c)
	}

	// Largest outlines first so nested components can be recognized.
	var big []component
	for _, c := range comps {
		if c.maxX-c.minX+1 > th.MinSide && c.maxY-c.minY+1 > th.MinSide {
			big = append(big, c)
		}
	}
	sort.Slice(big, func(i, j int) bool {
		return bboxArea(big[i]) > bboxArea(big[j])
	})

	interior := make([]bool, w*h)
	var out []Region
	for _, c := range big {
		if interior[c.seed] {
			continue
		}
		area := fill(labels, w, c, interior)
		bw, bh := c.maxX-c.minX+1, c.maxY-c.minY+1
		out = append(out, Region{
			BBox:          element.BBox{X: c.minX, Y: c.minY, W: bw, H: bh},
			Area:          float64(area),
			AspectRatio:   float64(bw) / float64(bh),
			NonWhiteRatio: nonWhite(gray, c, th.Foreground),
		})
	}
	return out
}

func bboxArea(c component) int {
	return (c.maxX - c.minX + 1) * (c.maxY - c.minY + 1)
}

// fill floods the bounding box from its border through pixels outside the
// component. Everything not reached is enclosed by the component's outline;
// those pixels are marked in interior and counted.
func fill(labels []int32, w int, c component, interior []bool) int {
	bw, bh := c.maxX-c.minX+1, c.maxY-c.minY+1
	outside := make([]bool, bw*bh)
	open := func(x, y int) bool {
		return labels[(c.minY+y)*w+c.minX+x] != int32(c.label)
	}
	var stack []int
	push := func(x, y int) {
		i := y*bw + x
		if !outside[i] && open(x, y) {
			outside[i] = true
			stack = append(stack, i)
		}
	}
	for x := 0; x < bw; x++ {
		push(x, 0)
		push(x, bh-1)
	}
	for y := 0; y < bh; y++ {
		push(0, y)
		push(bw-1, y)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%bw, i/bw
		if x > 0 {
			push(x-1, y)
		}
		if x < bw-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < bh-1 {
			push(x, y+1)
		}
	}

	area := 0
	for y := 0; y < bh; y++ {
		for x := 0; x < bw; x++ {
			if !outside[y*bw+x] {
				area++
				interior[(c.minY+y)*w+c.minX+x] = true
			}
		}
	}
	return area
}

func nonWhite(gray *image.Gray, c component, fg uint8) float64 {
	total, count := 0, 0
	for y := c.minY; y <= c.maxY; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := c.minX; x <= c.maxX; x++ {
			total++
			if row[x] < fg {
				count++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total)
}
