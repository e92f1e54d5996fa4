package pipeline

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdroistats/internal/models"
	"mdroistats/pkg/phantom"
	"mdroistats/pkg/roistats"
)

func createTestParams(t *testing.T) *Params {
	t.Helper()
	dir := t.TempDir()

	opts := phantom.DefaultOptions()
	opts.Dims = models.Dims{X: 18, Y: 8, Z: 6}
	opts.Regions = 4
	files, err := phantom.WriteFiles(filepath.Join(dir, "in"), "sub-01", opts)
	require.NoError(t, err)

	lut := filepath.Join(dir, "in", "names.csv")
	require.NoError(t, os.WriteFile(lut, []byte("label,name\n1,Slab one\n2,Slab two\n"), 0644))

	engine := roistats.DefaultParams()
	engine.Scale = 1000
	return &Params{
		Subject:       "sub-01",
		MetricPath:    files.Metric,
		LabelsPath:    files.Labels,
		LUTPath:       lut,
		OutputDir:     filepath.Join(dir, "out"),
		Prefix:        "md",
		Engine:        engine,
		RankBy:        roistats.StatMedian,
		TopN:          3,
		HistogramBins: 10,
		Plots:         true,
	}
}

func TestProcess(t *testing.T) {
	params := createTestParams(t)
	p := NewPipeline(params, nil)
	require.NoError(t, p.Process(context.Background()))

	table := p.Table()
	require.NotNil(t, table)
	assert.Equal(t, 4, table.Len())

	one, ok := table.Region(1)
	require.True(t, ok)
	assert.Equal(t, "Slab one", one.Name)
	three, _ := table.Region(3)
	assert.Equal(t, "Region-3", three.Name)

	csvPath := filepath.Join(params.OutputDir, "sub-01_md_by_region.csv")
	assert.Equal(t, csvPath, p.CSVPath())
	assert.Contains(t, p.Outputs(), csvPath)
	assert.Contains(t, p.Outputs(), filepath.Join(params.OutputDir, "sub-01_md_top3.png"))
	assert.Contains(t, p.Outputs(), filepath.Join(params.OutputDir, "sub-01_md_hist.png"))
	for _, path := range p.Outputs() {
		assert.FileExists(t, path)
	}

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestProcessOptionalOutputs(t *testing.T) {
	params := createTestParams(t)
	params.Subject = ""
	params.Plots = false
	params.XLSX = true
	params.QCSlices = true

	p := NewPipeline(params, nil)
	require.NoError(t, p.Process(context.Background()))

	assert.Equal(t, []string{
		filepath.Join(params.OutputDir, "md_by_region.csv"),
		filepath.Join(params.OutputDir, "md_by_region.xlsx"),
		filepath.Join(params.OutputDir, "md_qc_x.png"),
		filepath.Join(params.OutputDir, "md_qc_y.png"),
		filepath.Join(params.OutputDir, "md_qc_z.png"),
	}, p.Outputs())
}

func TestProcessMissingInput(t *testing.T) {
	params := createTestParams(t)
	params.LabelsPath = filepath.Join(t.TempDir(), "missing.nii.gz")

	err := NewPipeline(params, nil).Process(context.Background())
	assert.ErrorContains(t, err, "failed to load labels")
}

func TestProcessCancelled(t *testing.T) {
	params := createTestParams(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPipeline(params, nil)
	assert.ErrorIs(t, p.Process(ctx), context.Canceled)
	assert.NoFileExists(t, p.CSVPath())
}
