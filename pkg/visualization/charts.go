package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	background = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	foreground = color.RGBA{R: 33, G: 33, B: 33, A: 255}
	barColor   = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	gridColor  = color.RGBA{R: 220, G: 220, B: 220, A: 255}
)

const (
	margin    = 16
	rowHeight = 20
	barHeight = 14
	titleGap  = 28
)

// canvas wraps an RGBA image with the drawing helpers the charts need
type canvas struct {
	img *image.RGBA
}

func newCanvas(width, height int) *canvas {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)
	return &canvas{img: img}
}

func (c *canvas) fill(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r.Intersect(c.img.Bounds()), &image.Uniform{C: col}, image.Point{}, draw.Over)
}

// text draws s with its baseline at y, starting at x
func (c *canvas) text(x, y int, s string) {
	d := &font.Drawer{
		Dst:  c.img,
		Src:  &image.Uniform{C: foreground},
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func textWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Ceil()
}

// RenderBarChart draws one horizontal bar per value, first value at the top.
// Bars start at zero, or at the smallest value when values are negative.
func RenderBarChart(title, axisLabel string, names []string, values []float64) (*image.RGBA, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("got %d names for %d values", len(names), len(values))
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no values to plot")
	}

	labelWidth := 0
	for _, name := range names {
		if w := textWidth(name); w > labelWidth {
			labelWidth = w
		}
	}

	const plotWidth = 560
	const valueWidth = 80
	width := margin + labelWidth + 8 + plotWidth + valueWidth + margin
	height := margin + titleGap + len(values)*rowHeight + 2*titleGap

	lo := math.Min(0, floats.Min(values))
	hi := math.Max(0, floats.Max(values))
	if hi == lo {
		hi = lo + 1
	}
	scale := float64(plotWidth) / (hi - lo)

	c := newCanvas(width, height)
	c.text(margin, margin+13, title)

	left := margin + labelWidth + 8
	top := margin + titleGap
	baseline := left + int(math.Round(-lo*scale))

	// Vertical grid at quarters of the axis
	for q := 0; q <= 4; q++ {
		x := left + q*plotWidth/4
		c.fill(image.Rect(x, top, x+1, top+len(values)*rowHeight), gridColor)
	}

	for i, v := range values {
		y := top + i*rowHeight
		c.text(left-8-textWidth(names[i]), y+barHeight-2, names[i])

		end := left + int(math.Round((v-lo)*scale))
		x0, x1 := baseline, end
		if x1 < x0 {
			x0, x1 = x1, x0
		}
		if x1 == x0 {
			x1++
		}
		c.fill(image.Rect(x0, y+(rowHeight-barHeight)/2, x1, y+(rowHeight+barHeight)/2), barColor)
		c.text(left+plotWidth+6, y+barHeight-2, formatTick(v))
	}

	axisY := top + len(values)*rowHeight
	c.fill(image.Rect(left, axisY, left+plotWidth, axisY+1), foreground)
	c.text(left, axisY+16, formatTick(lo))
	hiLabel := formatTick(hi)
	c.text(left+plotWidth-textWidth(hiLabel), axisY+16, hiLabel)
	c.text(left+(plotWidth-textWidth(axisLabel))/2, axisY+titleGap+12, axisLabel)

	return c.img, nil
}

// HistogramCounts bins values into bins equal-width bins spanning their
// range and returns the counts with the bin dividers
func HistogramCounts(values []float64, bins int) (counts, dividers []float64, err error) {
	if bins < 1 {
		return nil, nil, fmt.Errorf("bins must be at least 1, got %d", bins)
	}
	if len(values) == 0 {
		return nil, nil, fmt.Errorf("no values to bin")
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}

	dividers = floats.Span(make([]float64, bins+1), lo, hi)
	// The top divider is exclusive, nudge it past the maximum
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts = stat.Histogram(nil, dividers, sorted, nil)
	return counts, dividers, nil
}

// RenderHistogram draws the distribution of values in bins bins
func RenderHistogram(title, axisLabel string, values []float64, bins int) (*image.RGBA, error) {
	counts, dividers, err := HistogramCounts(values, bins)
	if err != nil {
		return nil, err
	}

	const plotWidth = 640
	const plotHeight = 240
	const yAxisWidth = 40
	width := margin + yAxisWidth + plotWidth + margin
	height := margin + titleGap + plotHeight + 2*titleGap + margin

	c := newCanvas(width, height)
	c.text(margin, margin+13, title)

	left := margin + yAxisWidth
	top := margin + titleGap
	bottom := top + plotHeight

	maxCount := floats.Max(counts)
	if maxCount == 0 {
		maxCount = 1
	}

	binWidth := float64(plotWidth) / float64(len(counts))
	for i, n := range counts {
		x0 := left + int(math.Round(float64(i)*binWidth))
		x1 := left + int(math.Round(float64(i+1)*binWidth)) - 1
		if x1 <= x0 {
			x1 = x0 + 1
		}
		h := int(math.Round(n / maxCount * plotHeight))
		c.fill(image.Rect(x0, bottom-h, x1, bottom), barColor)
	}

	c.fill(image.Rect(left, bottom, left+plotWidth, bottom+1), foreground)
	c.fill(image.Rect(left-1, top, left, bottom), foreground)

	maxLabel := fmt.Sprintf("%d", int(maxCount))
	c.text(left-6-textWidth(maxLabel), top+10, maxLabel)
	c.text(left-6-textWidth("0"), bottom, "0")

	loLabel := formatTick(dividers[0])
	hiLabel := formatTick(dividers[len(dividers)-1])
	c.text(left, bottom+16, loLabel)
	c.text(left+plotWidth-textWidth(hiLabel), bottom+16, hiLabel)
	c.text(left+(plotWidth-textWidth(axisLabel))/2, bottom+titleGap+12, axisLabel)

	return c.img, nil
}

func formatTick(v float64) string {
	return fmt.Sprintf("%.4g", v)
}

// SavePNG writes img to path, creating parent directories
func SavePNG(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return err
	}
	return file.Close()
}
