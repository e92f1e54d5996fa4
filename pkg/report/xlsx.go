package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"mdroistats/pkg/roistats"
)

const (
	regionsSheet = "Regions"
	summarySheet = "Summary"
)

func xlsxRow(rs roistats.RegionStatistics) []interface{} {
	return []interface{}{
		rs.Label, rs.Name, rs.NVoxels, rs.Mean, rs.Std, rs.WinsorizedMean,
		rs.Median, rs.Q1, rs.Q3, rs.IQR, rs.NWinsorized, rs.NOutliers,
		rs.Reliable, string(rs.ExclusionReason),
		rs.WinsorizedStd, rs.CV, rs.NExtremeOutliers, rs.NonFinite,
	}
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for c, v := range values {
		cell, err := excelize.CoordinatesToCellName(c+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

// WriteXLSX stores the table as a workbook with a Regions sheet (every CSV
// column followed by the diagnostic columns) and a Summary sheet
func WriteXLSX(path string, table *roistats.ResultTable) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", regionsSheet); err != nil {
		return err
	}

	header := make([]interface{}, 0, len(Columns)+len(DiagnosticColumns))
	for _, c := range append(append([]string{}, Columns...), DiagnosticColumns...) {
		header = append(header, c)
	}
	if err := setRow(f, regionsSheet, 1, header); err != nil {
		return err
	}
	for i, rs := range table.AllRegions() {
		if err := setRow(f, regionsSheet, i+2, xlsxRow(rs)); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	summary := table.Summary()
	rows := [][]interface{}{
		{"regions", summary.Total},
		{"reliable", summary.Reliable},
		{"excluded", summary.Excluded},
	}
	reasons := make([]string, 0, len(summary.ByReason))
	for reason := range summary.ByReason {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		rows = append(rows, []interface{}{"excluded: " + reason, summary.ByReason[roistats.ExclusionReason(reason)]})
	}
	for i, row := range rows {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
