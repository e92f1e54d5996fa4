package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdroistats/internal/models"
	"mdroistats/pkg/phantom"
	"mdroistats/pkg/pipeline"
	"mdroistats/pkg/roistats"
	"mdroistats/pkg/store"
)

// writeSubjects writes n phantom subjects into dir and returns a manifest
// with relative paths
func writeSubjects(t *testing.T, dir string, n int) string {
	t.Helper()
	opts := phantom.DefaultOptions()
	opts.Dims = models.Dims{X: 12, Y: 7, Z: 6}
	opts.Regions = 2

	manifest := "lut: names.yaml\nsubjects:\n"
	for i := 1; i <= n; i++ {
		id := "sub-0" + string(rune('0'+i))
		opts.Seed = uint64(i)
		_, err := phantom.WriteFiles(filepath.Join(dir, id), id, opts)
		require.NoError(t, err)
		manifest += "  - id: " + id + "\n" +
			"    metric: " + id + "/" + id + "_md.nii.gz\n" +
			"    labels: " + id + "/" + id + "_labels.nii.gz\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "names.yaml"), []byte("1: Left slab\n2: Right slab\n"), 0644))

	path := filepath.Join(dir, "subjects.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))
	return path
}

func createRunner(outDir string) *Runner {
	engine := roistats.DefaultParams()
	engine.Scale = 1000
	return &Runner{
		Template: pipeline.Params{
			OutputDir: outDir,
			Prefix:    "md",
			Engine:    engine,
			RankBy:    roistats.StatMedian,
		},
		Workers: 2,
	}
}

func TestLoadManifestResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadManifest(writeSubjects(t, dir, 1))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "names.yaml"), m.LUT)
	require.Len(t, m.Subjects, 1)
	assert.Equal(t, filepath.Join(dir, "sub-01", "sub-01_md.nii.gz"), m.Subjects[0].Metric)
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name     string
		subjects []Subject
	}{
		{"empty", nil},
		{"missing id", []Subject{{Metric: "a", Labels: "b"}}},
		{"missing labels", []Subject{{ID: "s1", Metric: "a"}}},
		{"duplicate", []Subject{{ID: "s1", Metric: "a", Labels: "b"}, {ID: "s1", Metric: "c", Labels: "d"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manifest{Subjects: tt.subjects}
			assert.Error(t, m.Validate())
		})
	}
}

func TestRunProcessesAllSubjects(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadManifest(writeSubjects(t, dir, 3))
	require.NoError(t, err)

	outDir := filepath.Join(dir, "out")
	results, err := createRunner(outDir).Run(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, res := range results {
		assert.Equal(t, m.Subjects[i].ID, res.ID, "results keep manifest order")
		require.NoError(t, res.Err)
		assert.Equal(t, filepath.Join(outDir, res.ID+"_md_by_region.csv"), res.CSVPath)
		assert.FileExists(t, res.CSVPath)
		assert.Equal(t, 2, res.Summary.Total)
	}
	assert.Empty(t, Failed(results))
}

func TestRunContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadManifest(writeSubjects(t, dir, 2))
	require.NoError(t, err)
	m.Subjects = append([]Subject{{ID: "broken", Metric: "nope.nii", Labels: "nope.nii"}}, m.Subjects...)

	results, err := createRunner(filepath.Join(dir, "out")).Run(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, results, 3)

	failed := Failed(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].ID)
	assert.NoError(t, results[1].Err)
	assert.NoError(t, results[2].Err)
}

func TestRunRecordsToStore(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadManifest(writeSubjects(t, dir, 2))
	require.NoError(t, err)

	s, err := store.Open(filepath.Join(dir, "results.db"))
	require.NoError(t, err)
	defer s.Close()

	runner := createRunner(filepath.Join(dir, "out"))
	runner.Store = s
	results, err := runner.Run(context.Background(), m)
	require.NoError(t, err)

	ctx := context.Background()
	for _, res := range results {
		require.NoError(t, res.Err)
		assert.Positive(t, res.RunID)

		table, err := s.LoadRegions(ctx, res.RunID)
		require.NoError(t, err)
		left, ok := table.Region(1)
		require.True(t, ok)
		assert.Equal(t, "Left slab", left.Name)
	}

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadManifest(writeSubjects(t, dir, 2))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := createRunner(filepath.Join(dir, "out")).Run(ctx, m)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, Failed(results), 2)
}
