// Package report writes result tables as CSV, XLSX and console summaries.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"mdroistats/pkg/roistats"
)

// Columns is the fixed CSV column order
var Columns = []string{
	"label", "name", "n_voxels", "mean", "std", "winsorized_mean", "median",
	"q1", "q3", "iqr", "n_winsorized", "n_outliers", "reliable", "exclusion_reason",
}

// DiagnosticColumns follow Columns in the workbook export
var DiagnosticColumns = []string{
	"winsorized_std", "cv", "n_extreme_outliers", "n_nonfinite",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Record returns the CSV fields of one region in Columns order
func Record(rs roistats.RegionStatistics) []string {
	return []string{
		strconv.Itoa(rs.Label),
		rs.Name,
		strconv.Itoa(rs.NVoxels),
		formatFloat(rs.Mean),
		formatFloat(rs.Std),
		formatFloat(rs.WinsorizedMean),
		formatFloat(rs.Median),
		formatFloat(rs.Q1),
		formatFloat(rs.Q3),
		formatFloat(rs.IQR),
		strconv.Itoa(rs.NWinsorized),
		strconv.Itoa(rs.NOutliers),
		strconv.FormatBool(rs.Reliable),
		string(rs.ExclusionReason),
	}
}

// WriteCSV writes every region of the table, reliable or not, in ascending
// label order
func WriteCSV(w io.Writer, table *roistats.ResultTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, rs := range table.AllRegions() {
		if err := cw.Write(Record(rs)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to path, creating parent directories
func WriteCSVFile(path string, table *roistats.ResultTable) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if err := WriteCSV(file, table); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}
