// Package atlas loads region name lookup tables for labeled atlases.
//
// Supported formats, chosen by file extension:
//   - .yaml/.yml: a mapping from label to name
//   - .csv/.tsv: label and name columns, with an optional header row
//   - anything else: a FreeSurfer-style color table, one
//     "label name [r g b a]" entry per line, '#' starting a comment
package atlas

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"mdroistats/internal/models"
)

// LoadCatalog reads a region catalog from path. An empty path yields an
// empty catalog, in which case every region gets a synthesized name.
func LoadCatalog(path string) (models.RegionCatalog, error) {
	if path == "" {
		return models.RegionCatalog{}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var catalog models.RegionCatalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		catalog, err = ParseYAML(file)
	case ".csv":
		catalog, err = ParseDelimited(file, ',')
	case ".tsv":
		catalog, err = ParseDelimited(file, '\t')
	default:
		catalog, err = ParseColorTable(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse region catalog %s: %w", path, err)
	}
	return catalog, nil
}

// ParseYAML reads a label to name mapping
func ParseYAML(r io.Reader) (models.RegionCatalog, error) {
	var raw map[int]string
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return models.RegionCatalog{}, nil
		}
		return nil, err
	}

	catalog := make(models.RegionCatalog, len(raw))
	for label, name := range raw {
		if err := addEntry(catalog, label, name); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// ParseDelimited reads label,name records. A first row whose label column is
// not an integer is treated as a header.
func ParseDelimited(r io.Reader, comma rune) (models.RegionCatalog, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	catalog := make(models.RegionCatalog)
	for row := 0; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("row %d: expected label and name, got %d fields", row+1, len(record))
		}

		label, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			if row == 0 {
				continue
			}
			return nil, fmt.Errorf("row %d: invalid label %q", row+1, record[0])
		}
		if err := addEntry(catalog, label, record[1]); err != nil {
			return nil, fmt.Errorf("row %d: %w", row+1, err)
		}
	}
	return catalog, nil
}

// ParseColorTable reads a FreeSurfer-style lookup table
func ParseColorTable(r io.Reader) (models.RegionCatalog, error) {
	catalog := make(models.RegionCatalog)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected label and name", line)
		}

		label, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid label %q", line, fields[0])
		}
		if err := addEntry(catalog, label, fields[1]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func addEntry(catalog models.RegionCatalog, label int, name string) error {
	name = strings.TrimSpace(name)
	if label <= models.Background {
		// Background entries such as "0 Unknown" are common and carry no region
		if label == models.Background {
			return nil
		}
		return fmt.Errorf("negative label %d", label)
	}
	if existing, ok := catalog[label]; ok && existing != name {
		return fmt.Errorf("label %d named both %q and %q", label, existing, name)
	}
	catalog[label] = name
	return nil
}
