// Package visualization renders region rankings and the distribution of a
// region statistic as PNG charts.
package visualization

import (
	"fmt"
	"path/filepath"
	"strconv"

	"mdroistats/pkg/roistats"
)

// Plotter writes the ranking and distribution plots of a result table
type Plotter struct {
	// Dir is the output directory
	Dir string

	// Prefix starts every filename, e.g. "md" gives md_top25.png
	Prefix string

	// TopN is the number of regions in each ranking plot
	TopN int

	// Bins is the number of histogram bins
	Bins int

	// Stat is the statistic regions are ranked and binned by
	Stat roistats.Statistic

	// Units is appended to axis labels, for example "x10^-3 mm^2/s"
	Units string
}

// NewPlotter creates a plotter drawing 25 regions per ranking and a 40 bin
// histogram
func NewPlotter(dir, prefix string, stat roistats.Statistic) *Plotter {
	return &Plotter{
		Dir:    dir,
		Prefix: prefix,
		TopN:   25,
		Bins:   40,
		Stat:   stat,
	}
}

func (p *Plotter) axisLabel() string {
	if p.Units == "" {
		return p.Stat.String()
	}
	return fmt.Sprintf("%s (%s)", p.Stat, p.Units)
}

func regionLabels(rows []roistats.RegionStatistics) []string {
	names := make([]string, len(rows))
	for i, rs := range rows {
		if rs.Name == "" {
			names[i] = strconv.Itoa(rs.Label)
			continue
		}
		names[i] = fmt.Sprintf("%s (%d)", rs.Name, rs.Label)
	}
	return names
}

func (p *Plotter) values(rows []roistats.RegionStatistics) ([]float64, error) {
	values := make([]float64, len(rows))
	for i, rs := range rows {
		v, err := p.Stat.Value(rs)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// SaveAll writes the top-N and bottom-N bar charts and the histogram over
// reliable regions. It returns the paths written; with no reliable regions
// nothing is written.
func (p *Plotter) SaveAll(table *roistats.ResultTable) ([]string, error) {
	reliable := table.ReliableRegions()
	if len(reliable) == 0 {
		return nil, nil
	}

	var written []string

	top, err := table.TopN(p.Stat, p.TopN)
	if err != nil {
		return nil, err
	}
	path, err := p.saveRanking(top, "top", fmt.Sprintf("Top %d regions by %s", len(top), p.Stat))
	if err != nil {
		return written, err
	}
	written = append(written, path)

	bottom, err := table.BottomN(p.Stat, p.TopN)
	if err != nil {
		return written, err
	}
	path, err = p.saveRanking(bottom, "bottom", fmt.Sprintf("Bottom %d regions by %s", len(bottom), p.Stat))
	if err != nil {
		return written, err
	}
	written = append(written, path)

	values, err := p.values(reliable)
	if err != nil {
		return written, err
	}
	img, err := RenderHistogram(fmt.Sprintf("Distribution of region %s", p.Stat), p.axisLabel(), values, p.Bins)
	if err != nil {
		return written, err
	}
	path = filepath.Join(p.Dir, fmt.Sprintf("%s_hist.png", p.Prefix))
	if err := SavePNG(img, path); err != nil {
		return written, fmt.Errorf("failed to save histogram: %w", err)
	}
	written = append(written, path)

	return written, nil
}

func (p *Plotter) saveRanking(rows []roistats.RegionStatistics, kind, title string) (string, error) {
	values, err := p.values(rows)
	if err != nil {
		return "", err
	}
	img, err := RenderBarChart(title, p.axisLabel(), regionLabels(rows), values)
	if err != nil {
		return "", err
	}
	path := filepath.Join(p.Dir, fmt.Sprintf("%s_%s%d.png", p.Prefix, kind, len(rows)))
	if err := SavePNG(img, path); err != nil {
		return "", fmt.Errorf("failed to save %s plot: %w", kind, err)
	}
	return path, nil
}
