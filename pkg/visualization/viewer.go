package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"sort"

	"mdroistats/internal/models"
	"mdroistats/pkg/roistats"
)

// Viewer extracts 2D quality-control slices from a metric volume with its
// atlas overlaid
type Viewer struct {
	metric models.MetricVolume
	labels models.LabelVolume

	// window is the metric range mapped onto the gray scale
	windowLo, windowHi float64
}

// NewViewer creates a viewer for a metric volume and its label volume. The
// gray scale window spans the 1st to 99th percentile of labeled voxels.
func NewViewer(metric models.MetricVolume, labels models.LabelVolume) (*Viewer, error) {
	if metric.Dims != labels.Dims || len(metric.Data) != metric.Dims.Len() || len(labels.Data) != labels.Dims.Len() {
		return nil, &roistats.ShapeMismatchError{Metric: metric.Dims, Labels: labels.Dims}
	}

	v := &Viewer{metric: metric, labels: labels}

	var values []float64
	for i, l := range labels.Data {
		m := metric.Data[i]
		if l != models.Background && !math.IsNaN(m) && !math.IsInf(m, 0) {
			values = append(values, m)
		}
	}
	if len(values) > 0 {
		sort.Float64s(values)
		v.windowLo = roistats.Quantile(values, 0.01)
		v.windowHi = roistats.Quantile(values, 0.99)
	}
	if v.windowHi <= v.windowLo {
		v.windowHi = v.windowLo + 1
	}
	return v, nil
}

// planeSize returns the width and height of a slice along axis and the
// number of slices along it
func (v *Viewer) planeSize(axis string) (w, h, n int, err error) {
	d := v.metric.Dims
	switch axis {
	case "x", "X":
		return d.Z, d.Y, d.X, nil
	case "y", "Y":
		return d.X, d.Z, d.Y, nil
	case "z", "Z":
		return d.X, d.Y, d.Z, nil
	}
	return 0, 0, 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// voxelIndex maps pixel (u, v) of slice position along axis to a raster index
func (v *Viewer) voxelIndex(axis string, position, u, w int) int {
	d := v.metric.Dims
	switch axis {
	case "x", "X":
		return d.Index(position, w, u)
	case "y", "Y":
		return d.Index(u, position, w)
	default:
		return d.Index(u, w, position)
	}
}

func (v *Viewer) gray(value float64) uint16 {
	if math.IsNaN(value) {
		return 0
	}
	t := (value - v.windowLo) / (v.windowHi - v.windowLo)
	return uint16(math.Max(0, math.Min(65535, t*65535)))
}

// ExtractSlice extracts a 2D grayscale slice of the metric along the
// specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	w, h, n, err := v.planeSize(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= n {
		return nil, fmt.Errorf("position %d outside [0, %d) along %s", position, n, axis)
	}

	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := v.voxelIndex(axis, position, x, y)
			img.SetGray16(x, y, color.Gray16{Y: v.gray(v.metric.Data[idx])})
		}
	}
	return img, nil
}

// Overlay extracts a slice like ExtractSlice and tints labeled voxels:
// reliable regions green, excluded regions red. Labels missing from the
// table are left gray.
func (v *Viewer) Overlay(axis string, position int, table *roistats.ResultTable) (*image.RGBA, error) {
	base, err := v.ExtractSlice(axis, position)
	if err != nil {
		return nil, err
	}

	reliable := make(map[int]bool)
	for _, rs := range table.AllRegions() {
		reliable[rs.Label] = rs.Reliable
	}

	b := base.Bounds()
	img := image.NewRGBA(b)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g := uint8(base.Gray16At(x, y).Y >> 8)
			c := color.RGBA{R: g, G: g, B: g, A: 255}

			label := int(v.labels.Data[v.voxelIndex(axis, position, x, y)])
			if ok, known := reliable[label]; known && label != models.Background {
				if ok {
					c.G = uint8(math.Min(255, float64(g)*0.6+102))
				} else {
					c.R = uint8(math.Min(255, float64(g)*0.6+102))
				}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

// SaveMidSlices writes the overlay of the middle slice along each axis to
// dir as <prefix>_qc_<axis>.png and returns the paths
func (v *Viewer) SaveMidSlices(dir, prefix string, table *roistats.ResultTable) ([]string, error) {
	var written []string
	for _, axis := range []string{"x", "y", "z"} {
		_, _, n, err := v.planeSize(axis)
		if err != nil {
			return written, err
		}
		img, err := v.Overlay(axis, n/2, table)
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_qc_%s.png", prefix, axis))
		if err := SavePNG(img, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
