package roistats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdroistats/internal/models"
)

// createScenarioVolumes lays out region 1 (30 voxels, 1.0, 1.1, ... with
// the last one replaced by 50.0), region 2 (5 voxels) and background voxels
// with a large metric value on a 5x5x2 grid
func createScenarioVolumes(outlier bool) (models.MetricVolume, models.LabelVolume) {
	dims := models.Dims{X: 5, Y: 5, Z: 2}
	n := dims.Len()
	metric := models.MetricVolume{Data: make([]float64, n), Dims: dims, VoxelSize: models.VoxelSize{X: 2, Y: 2, Z: 2}}
	labels := models.LabelVolume{Data: make([]int32, n), Dims: dims}

	region1 := 0
	for i := 0; i < n; i++ {
		switch {
		case i%5 == 4 && i < 25:
			labels.Data[i] = 2
			metric.Data[i] = 0.9
		case region1 < 30 && i%3 != 2:
			labels.Data[i] = 1
			metric.Data[i] = 1.0 + 0.1*float64(region1)
			if outlier && region1 == 29 {
				metric.Data[i] = 50.0
			}
			region1++
		default:
			labels.Data[i] = 0
			metric.Data[i] = 1e3
		}
	}
	return metric, labels
}

func TestRunScenario(t *testing.T) {
	metric, labels := createScenarioVolumes(true)
	catalog := models.RegionCatalog{1: "Putamen-L"}

	table, err := Run(metric, labels, catalog, DefaultParams())
	require.NoError(t, err)

	all := table.AllRegions()
	require.Len(t, all, 2)

	r1, r2 := all[0], all[1]
	assert.Equal(t, 1, r1.Label)
	assert.Equal(t, "Putamen-L", r1.Name)
	assert.Equal(t, 30, r1.NVoxels)
	assert.True(t, r1.Reliable)
	assert.Empty(t, r1.ExclusionReason)
	assert.Equal(t, 1, r1.NOutliers)

	assert.Equal(t, 2, r2.Label)
	assert.Equal(t, "Region-2", r2.Name)
	assert.Equal(t, 5, r2.NVoxels)
	assert.False(t, r2.Reliable)
	assert.Equal(t, ReasonTooFewVoxels, r2.ExclusionReason)

	cleanMetric, cleanLabels := createScenarioVolumes(false)
	clean, err := Run(cleanMetric, cleanLabels, catalog, DefaultParams())
	require.NoError(t, err)
	c1, ok := clean.Region(1)
	require.True(t, ok)

	assert.Less(t, (r1.Median-c1.Median)/c1.Median, 0.01)
	assert.Greater(t, r1.Mean-c1.Mean, 1.0)

	s := table.Summary()
	assert.Equal(t, 1, s.Reliable)
	assert.Equal(t, 1, s.ByReason[ReasonTooFewVoxels])
}

func TestRunRawCVFlagsOutlierRegion(t *testing.T) {
	metric, labels := createScenarioVolumes(true)
	params := DefaultParams()
	params.Quality.CVBasis = CVBasisRaw

	table, err := Run(metric, labels, nil, params)
	require.NoError(t, err)

	r1, ok := table.Region(1)
	require.True(t, ok)
	assert.False(t, r1.Reliable)
	assert.Equal(t, ReasonUnstable, r1.ExclusionReason)
	assert.Greater(t, r1.CV, 1.0)
}

func TestRunOneEntryPerLabel(t *testing.T) {
	dims := models.Dims{X: 6, Y: 5, Z: 4}
	metric, labels := createTestVolumes(dims,
		func(i int) float64 { return 0.5 + float64(i%11)*0.01 },
		func(i int) int32 { return int32((i * 13) % 9) })

	want := make(map[int]bool)
	for _, l := range labels.Data {
		if l != 0 {
			want[int(l)] = true
		}
	}

	table, err := Run(metric, labels, nil, DefaultParams())
	require.NoError(t, err)

	seen := make(map[int]int)
	for _, rs := range table.AllRegions() {
		seen[rs.Label]++
	}
	assert.Len(t, seen, len(want))
	for label := range want {
		assert.Equal(t, 1, seen[label], "label %d", label)
	}
}

func TestRunDeterministic(t *testing.T) {
	metric, labels := createScenarioVolumes(true)
	params := DefaultParams()

	a, err := Run(metric, labels, nil, params)
	require.NoError(t, err)

	params.Workers = 4
	b, err := Run(metric, labels, nil, params)
	require.NoError(t, err)

	assert.Equal(t, a.AllRegions(), b.AllRegions())
}

func TestRunRejectsInvalidParams(t *testing.T) {
	metric, labels := createScenarioVolumes(true)

	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"inverted bounds", func(p *Params) { p.Winsor = WinsorBounds{LowerPct: 90, UpperPct: 10} }},
		{"unknown cv basis", func(p *Params) { p.Quality.CVBasis = "median" }},
		{"nan lower bound", func(p *Params) { p.Winsor.LowerPct = math.NaN() }},
		{"nan upper bound", func(p *Params) { p.Winsor.UpperPct = math.NaN() }},
		{"nan max cv", func(p *Params) {
			p.Quality.MaxCV = math.NaN()
			p.Quality.CVBasis = CVBasisRaw
		}},
		{"infinite max cv", func(p *Params) { p.Quality.MaxCV = math.Inf(1) }},
		{"nan scale", func(p *Params) { p.Scale = math.NaN() }},
		{"infinite scale", func(p *Params) { p.Scale = math.Inf(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultParams()
			tt.modify(&params)
			assert.Error(t, params.Validate())

			var table *ResultTable
			var err error
			assert.NotPanics(t, func() { table, err = Run(metric, labels, nil, params) })
			assert.Error(t, err)
			assert.Nil(t, table)
		})
	}
}

func TestRunShapeMismatchIsFatal(t *testing.T) {
	metric, _ := createScenarioVolumes(false)
	labels := models.LabelVolume{Data: make([]int32, 10), Dims: models.Dims{X: 10, Y: 1, Z: 1}}

	table, err := Run(metric, labels, nil, DefaultParams())
	assert.Nil(t, table)
	assert.True(t, IsFatal(err))
}
