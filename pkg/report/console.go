package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"mdroistats/pkg/roistats"
)

// PrintTop prints the n reliable regions ranking highest on stat
func PrintTop(w io.Writer, table *roistats.ResultTable, stat roistats.Statistic, n int) error {
	top, err := table.TopN(stat, n)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Top %d regions by %s:\n", len(top), stat)
	return PrintRegions(w, top, stat)
}

// PrintBottom prints the n reliable regions ranking lowest on stat
func PrintBottom(w io.Writer, table *roistats.ResultTable, stat roistats.Statistic, n int) error {
	bottom, err := table.BottomN(stat, n)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Bottom %d regions by %s:\n", len(bottom), stat)
	return PrintRegions(w, bottom, stat)
}

// PrintRegions prints rows as an aligned table with the stat column
func PrintRegions(w io.Writer, rows []roistats.RegionStatistics, stat roistats.Statistic) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "label\tname\tn_voxels\t%s\tiqr\t\n", stat)
	for _, rs := range rows {
		v, err := stat.Value(rs)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.4f\t%.4f\t\n", rs.Label, rs.Name, rs.NVoxels, v, rs.IQR)
	}
	return tw.Flush()
}

// PrintSummary prints the reliable and excluded region counts with the
// exclusion reasons
func PrintSummary(w io.Writer, s roistats.Summary) {
	fmt.Fprintf(w, "Regions: %d total, %d reliable, %d excluded\n", s.Total, s.Reliable, s.Excluded)

	reasons := make([]string, 0, len(s.ByReason))
	for reason := range s.ByReason {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(w, "  - %s: %d\n", reason, s.ByReason[roistats.ExclusionReason(reason)])
	}

	if s.Reliable == 0 {
		fmt.Fprintln(w, "No regions passed QC (check atlas/metric alignment and thresholds).")
	}
}
