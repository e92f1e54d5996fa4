package phantom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdroistats/internal/models"
	"mdroistats/pkg/nifti"
	"mdroistats/pkg/roistats"
)

func TestGenerateLayout(t *testing.T) {
	opts := DefaultOptions()
	opts.Dims = models.Dims{X: 10, Y: 5, Z: 4}
	opts.Regions = 4

	metric, labels, err := Generate(opts)
	require.NoError(t, err)
	require.Len(t, metric.Data, opts.Dims.Len())

	// Border voxels are background
	assert.Equal(t, int32(0), labels.Data[opts.Dims.Index(0, 2, 2)])
	assert.Equal(t, int32(0), labels.Data[opts.Dims.Index(9, 2, 2)])
	assert.Equal(t, 0.0, metric.Data[opts.Dims.Index(0, 0, 0)])

	seen := map[int32]bool{}
	for _, l := range labels.Data {
		seen[l] = true
	}
	for l := int32(0); l <= 4; l++ {
		assert.True(t, seen[l], "label %d", l)
	}
	assert.Len(t, seen, 5)
}

func TestGenerateDeterministic(t *testing.T) {
	a, _, err := Generate(DefaultOptions())
	require.NoError(t, err)
	b, _, err := Generate(DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

func TestGenerateRejectsBadOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Dims = models.Dims{X: 2, Y: 5, Z: 5}
	_, _, err := Generate(opts)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.Regions = 100
	_, _, err = Generate(opts)
	assert.Error(t, err)
}

func TestPhantomRegionsAreReliable(t *testing.T) {
	opts := DefaultOptions()
	metric, labels, err := Generate(opts)
	require.NoError(t, err)

	params := roistats.DefaultParams()
	params.Scale = 1000
	table, err := roistats.Run(metric, labels, Catalog(opts.Regions), params)
	require.NoError(t, err)

	require.Equal(t, opts.Regions, table.Len())
	assert.Len(t, table.ReliableRegions(), opts.Regions)

	// Region medians follow the configured MD step
	first, _ := table.Region(1)
	last, _ := table.Region(opts.Regions)
	assert.InDelta(t, 0.7, first.Median, 0.02)
	assert.InDelta(t, 0.7+float64(opts.Regions-1)*0.02, last.Median, 0.02)
	assert.Equal(t, "Slab 1", first.Name)
}

func TestWriteFiles(t *testing.T) {
	opts := DefaultOptions()
	opts.Dims = models.Dims{X: 8, Y: 6, Z: 5}
	opts.Regions = 3

	files, err := WriteFiles(t.TempDir(), "sub-01", opts)
	require.NoError(t, err)

	labels, err := nifti.LoadLabels(files.Labels)
	require.NoError(t, err)
	assert.Equal(t, opts.Dims, labels.Dims)

	metric, err := nifti.LoadMetric(files.Metric)
	require.NoError(t, err)
	assert.Equal(t, opts.Dims, metric.Dims)
	assert.Equal(t, models.VoxelSize{X: 2, Y: 2, Z: 2}, metric.VoxelSize)
}
