// Package roistats computes robust per-region statistics of a diffusion
// metric over a labeled atlas.
//
// A run groups the metric voxels by label, summarizes every region with
// outlier-resistant statistics, applies quality-control thresholds and
// assembles an immutable, label-ordered ResultTable. Regions that fail
// quality control stay in the table with an exclusion reason.
package roistats

import (
	"fmt"
	"math"

	"mdroistats/internal/models"
)

// Params holds everything a run depends on. The engine reads no defaults of
// its own; callers start from DefaultParams and override fields.
type Params struct {
	// Winsor are the clamping percentiles for the winsorized mean
	Winsor WinsorBounds

	// Quality are the thresholds deciding region reliability
	Quality QualityThresholds

	// Scale multiplies every metric value before statistics are taken.
	// Zero means 1.
	Scale float64

	// Workers is the number of z-slabs grouped concurrently. Values below 2
	// group sequentially.
	Workers int
}

// DefaultParams returns 5th/95th percentile winsorization, a 20 voxel
// minimum, a maximum winsorized CV of 1.0 and a positive-mean requirement
func DefaultParams() Params {
	return Params{
		Winsor: WinsorBounds{LowerPct: 5, UpperPct: 95},
		Quality: QualityThresholds{
			MinVoxelCount:       20,
			MaxCV:               1.0,
			RequirePositiveMean: true,
			CVBasis:             CVBasisWinsorized,
		},
		Scale:   1,
		Workers: 1,
	}
}

// Validate checks the parameters for values no run can use
func (p Params) Validate() error {
	finite := []struct {
		name  string
		value float64
	}{
		{"winsor lower bound", p.Winsor.LowerPct},
		{"winsor upper bound", p.Winsor.UpperPct},
		{"maximum CV", p.Quality.MaxCV},
		{"scale", p.Scale},
	}
	for _, f := range finite {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%s must be finite, got %g", f.name, f.value)
		}
	}
	if p.Winsor.LowerPct < 0 || p.Winsor.UpperPct > 100 {
		return fmt.Errorf("winsor bounds must lie in [0, 100], got %g/%g", p.Winsor.LowerPct, p.Winsor.UpperPct)
	}
	if p.Winsor.LowerPct >= p.Winsor.UpperPct {
		return fmt.Errorf("winsor lower bound %g must be below upper bound %g", p.Winsor.LowerPct, p.Winsor.UpperPct)
	}
	if p.Quality.MinVoxelCount < 0 {
		return fmt.Errorf("minimum voxel count must be non-negative, got %d", p.Quality.MinVoxelCount)
	}
	if p.Quality.MaxCV <= 0 {
		return fmt.Errorf("maximum CV must be positive, got %g", p.Quality.MaxCV)
	}
	switch p.Quality.CVBasis {
	case "", CVBasisRaw, CVBasisWinsorized:
	default:
		return fmt.Errorf("unknown CV basis %q", p.Quality.CVBasis)
	}
	if p.Scale < 0 {
		return fmt.Errorf("scale must be positive, got %g", p.Scale)
	}
	return nil
}

// Run computes the result table for one subject. Structural problems with
// the input (shape mismatch, no labels, negative labels) abort the run;
// per-region quality problems are recorded in the table.
func Run(metric models.MetricVolume, labels models.LabelVolume, catalog models.RegionCatalog, params Params) (*ResultTable, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	grouping, err := GroupVoxelsChunked(metric, labels, params.Scale, params.Workers)
	if err != nil {
		return nil, err
	}

	rows := make([]RegionStatistics, 0, len(grouping.Samples))
	for _, label := range grouping.Labels() {
		rs := ComputeStatistics(grouping.Samples[label], params.Winsor)
		rs.Label = label
		rs.NonFinite = grouping.NonFinite[label]
		rows = append(rows, ApplyQuality(rs, params.Quality))
	}

	return Assemble(rows, catalog), nil
}
