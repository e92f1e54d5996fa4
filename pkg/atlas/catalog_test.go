package atlas

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdroistats/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCatalogFormats(t *testing.T) {
	want := models.RegionCatalog{10: "Left-Thalamus", 17: "Left-Hippocampus"}

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "lut.yaml", "10: Left-Thalamus\n17: Left-Hippocampus\n"},
		{"csv with header", "lut.csv", "label,name\n10,Left-Thalamus\n17, Left-Hippocampus\n"},
		{"csv without header", "lut.csv", "10,Left-Thalamus\n17,Left-Hippocampus\n"},
		{"tsv", "lut.tsv", "label\tname\n10\tLeft-Thalamus\n17\tLeft-Hippocampus\n"},
		{"color table", "FreeSurferColorLUT.txt", "# No. Label Name R G B A\n0 Unknown 0 0 0 0\n\n10 Left-Thalamus 0 118 14 0\n17 Left-Hippocampus 220 216 20 0 # comment\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog, err := LoadCatalog(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, want, catalog)
		})
	}
}

func TestLoadCatalogEmptyPath(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Empty(t, catalog)
	assert.Equal(t, "Region-5", catalog.Name(5))
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestParseColorTableErrors(t *testing.T) {
	_, err := ParseColorTable(strings.NewReader("ten Left-Thalamus\n"))
	assert.ErrorContains(t, err, "line 1")

	_, err = ParseColorTable(strings.NewReader("10\n"))
	assert.Error(t, err)

	_, err = ParseColorTable(strings.NewReader("10 A\n10 B\n"))
	assert.ErrorContains(t, err, "named both")

	_, err = ParseColorTable(strings.NewReader("-3 Negative\n"))
	assert.Error(t, err)
}

func TestParseDelimitedRejectsBadRow(t *testing.T) {
	_, err := ParseDelimited(strings.NewReader("label,name\n10,A\nx,B\n"), ',')
	assert.ErrorContains(t, err, "row 3")
}
