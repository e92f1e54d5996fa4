package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdroistats/pkg/config"
	"mdroistats/pkg/roistats"
	"mdroistats/pkg/store"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestRunAndRankCommands(t *testing.T) {
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "mdroistats.yaml")
	c := config.DefaultConfig()
	c.Statistics.Scale = 1000
	c.Output.Dir = filepath.Join(dir, "out")
	c.Store.Path = filepath.Join(dir, "results.db")
	require.NoError(t, config.SaveConfig(c, cfgPath))

	require.NoError(t, execute(t, "phantom", filepath.Join(dir, "in"),
		"--config", cfgPath, "--size", "12", "--regions", "2", "--prefix", "ph"))

	require.NoError(t, execute(t, "run", "--config", cfgPath,
		"--metric", filepath.Join(dir, "in", "ph_md.nii.gz"),
		"--labels", filepath.Join(dir, "in", "ph_labels.nii.gz"),
		"--subject", "sub-01"))
	assert.FileExists(t, filepath.Join(dir, "out", "sub-01_md_by_region.csv"))
	assert.FileExists(t, filepath.Join(dir, "out", "sub-01_md_hist.png"))

	s, err := store.Open(c.Store.Path)
	require.NoError(t, err)
	latest, err := s.LatestRun(t.Context(), "sub-01")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.NRegions)
	require.NoError(t, s.Close())

	assert.NoError(t, execute(t, "rank", "--config", cfgPath, "--stat", "winsorized_mean", "-n", "1"))
	assert.Error(t, execute(t, "rank", "--config", cfgPath, "--stat", "mode"))
}

func TestInvalidConfigIsRejected(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	c := config.DefaultConfig()
	c.Statistics.WinsorLowerPct = 99
	require.NoError(t, config.SaveConfig(c, cfgPath))

	err := execute(t, "rank", "--config", cfgPath)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "mdroistats.yaml")
	require.NoError(t, execute(t, "init-config", path))

	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Quality, loaded.Quality)

	assert.Error(t, execute(t, "init-config", path))
}

func TestPrintRankingHeaders(t *testing.T) {
	table := roistats.FromRows([]roistats.RegionStatistics{
		{Label: 1, Name: "A", NVoxels: 30, Median: 0.7, Reliable: true},
		{Label: 2, Name: "B", NVoxels: 30, Median: 0.9, Reliable: true},
	})

	var top, bottom bytes.Buffer
	require.NoError(t, printRanking(&top, table, 7, roistats.StatMedian, 1, false))
	require.NoError(t, printRanking(&bottom, table, 7, roistats.StatMedian, 1, true))

	topLines := strings.Split(top.String(), "\n")
	bottomLines := strings.Split(bottom.String(), "\n")
	assert.Equal(t, "Run 7", topLines[0])
	assert.Equal(t, "Run 7", bottomLines[0])
	assert.Equal(t, "Top 1 regions by median:", topLines[1])
	assert.Equal(t, "Bottom 1 regions by median:", bottomLines[1])
	require.Greater(t, len(topLines), 3)
	require.Greater(t, len(bottomLines), 3)
	assert.Contains(t, topLines[3], "B")
	assert.Contains(t, bottomLines[3], "A")
}
