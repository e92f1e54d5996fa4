package roistats

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"mdroistats/internal/models"
)

// VoxelSample holds the metric values of one region in raster order
type VoxelSample []float64

// Grouping is the result of partitioning a metric volume by label
type Grouping struct {
	// Samples maps every non-zero label present in the label volume to the
	// finite metric values of its voxels. A label whose voxels are all
	// non-finite maps to an empty sample.
	Samples map[int]VoxelSample

	// NonFinite counts NaN and infinite metric values dropped per label
	NonFinite map[int]int
}

// Labels returns the labels of the grouping in ascending order
func (g *Grouping) Labels() []int {
	labels := make([]int, 0, len(g.Samples))
	for label := range g.Samples {
		labels = append(labels, label)
	}
	sort.Ints(labels)
	return labels
}

func newGrouping() *Grouping {
	return &Grouping{
		Samples:   make(map[int]VoxelSample),
		NonFinite: make(map[int]int),
	}
}

// checkShapes verifies that both volumes describe the same grid and that the
// data slices cover it
func checkShapes(metric models.MetricVolume, labels models.LabelVolume) error {
	if metric.Dims != labels.Dims {
		return &ShapeMismatchError{Metric: metric.Dims, Labels: labels.Dims}
	}
	n := metric.Dims.Len()
	if len(metric.Data) != n {
		return &ShapeMismatchError{
			Metric: metric.Dims,
			Labels: labels.Dims,
			Detail: fmt.Sprintf("metric data has %d voxels, grid %s needs %d", len(metric.Data), metric.Dims, n),
		}
	}
	if len(labels.Data) != n {
		return &ShapeMismatchError{
			Metric: metric.Dims,
			Labels: labels.Dims,
			Detail: fmt.Sprintf("label data has %d voxels, grid %s needs %d", len(labels.Data), labels.Dims, n),
		}
	}
	return nil
}

// groupRange scans voxels [start, end) in raster order into g
func groupRange(g *Grouping, metric []float64, labels []int32, start, end int, scale float64) error {
	for i := start; i < end; i++ {
		label := int(labels[i])
		if label == models.Background {
			continue
		}
		if label < 0 {
			return &LabelRangeError{Label: label, Index: i}
		}

		v := metric[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			g.NonFinite[label]++
			if _, ok := g.Samples[label]; !ok {
				g.Samples[label] = VoxelSample{}
			}
			continue
		}
		g.Samples[label] = append(g.Samples[label], v*scale)
	}
	return nil
}

// GroupVoxels partitions the metric values by label, skipping background.
// Values are multiplied by scale (0 means 1) and collected in raster order
// over (z, y, x).
func GroupVoxels(metric models.MetricVolume, labels models.LabelVolume, scale float64) (*Grouping, error) {
	return GroupVoxelsChunked(metric, labels, scale, 1)
}

// GroupVoxelsChunked is GroupVoxels with the z axis split into up to workers
// contiguous slabs scanned concurrently. Slab results are merged in slab
// order, so every sample keeps the sequential raster order.
func GroupVoxelsChunked(metric models.MetricVolume, labels models.LabelVolume, scale float64, workers int) (*Grouping, error) {
	if err := checkShapes(metric, labels); err != nil {
		return nil, err
	}
	if scale == 0 {
		scale = 1
	}

	depth := metric.Dims.Z
	if workers < 1 {
		workers = 1
	}
	if workers > depth {
		workers = depth
	}

	planeSize := metric.Dims.X * metric.Dims.Y
	slabDepth := 0
	if workers > 0 {
		slabDepth = (depth + workers - 1) / workers
	}

	parts := make([]*Grouping, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(slab int) {
			defer wg.Done()

			startZ := slab * slabDepth
			endZ := startZ + slabDepth
			if endZ > depth {
				endZ = depth
			}
			g := newGrouping()
			parts[slab] = g
			if startZ >= endZ {
				return
			}
			errs[slab] = groupRange(g, metric.Data, labels.Data, startZ*planeSize, endZ*planeSize, scale)
		}(w)
	}
	wg.Wait()

	// Report the first error in raster order
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	merged := newGrouping()
	for _, part := range parts {
		for label, sample := range part.Samples {
			merged.Samples[label] = append(merged.Samples[label], sample...)
			if merged.Samples[label] == nil {
				merged.Samples[label] = VoxelSample{}
			}
		}
		for label, n := range part.NonFinite {
			merged.NonFinite[label] += n
		}
	}

	if len(merged.Samples) == 0 {
		return nil, ErrEmptyVolume
	}
	return merged, nil
}
