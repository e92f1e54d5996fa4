package roistats

import "math"

// CVBasis selects the sample the coefficient of variation is taken from
type CVBasis string

const (
	// CVBasisRaw uses the raw std over the raw mean
	CVBasisRaw CVBasis = "raw"

	// CVBasisWinsorized uses the winsorized std over the winsorized mean
	CVBasisWinsorized CVBasis = "winsorized"
)

// QualityThresholds decide which regions are reported as reliable
type QualityThresholds struct {
	// MinVoxelCount is the smallest sample accepted
	MinVoxelCount int

	// MaxCV is the largest coefficient of variation accepted
	MaxCV float64

	// RequirePositiveMean rejects regions whose raw mean is zero or negative
	RequirePositiveMean bool

	// CVBasis selects raw or winsorized moments for the CV. The zero value
	// behaves as CVBasisRaw.
	CVBasis CVBasis
}

// CoefficientOfVariation returns std/|mean|. A zero mean gives +Inf unless
// std is also zero.
func CoefficientOfVariation(std, mean float64) float64 {
	if mean == 0 {
		if std == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return std / math.Abs(mean)
}

// ApplyQuality returns a copy of rs with the CV filled in and the
// reliability decided. Rules are checked in order and only the first
// failing one is recorded: voxel count, CV, positive mean.
func ApplyQuality(rs RegionStatistics, th QualityThresholds) RegionStatistics {
	switch th.CVBasis {
	case CVBasisWinsorized:
		rs.CV = CoefficientOfVariation(rs.WinsorizedStd, rs.WinsorizedMean)
	default:
		rs.CV = CoefficientOfVariation(rs.Std, rs.Mean)
	}

	rs.Reliable = false
	switch {
	case rs.NVoxels == 0 || rs.NVoxels < th.MinVoxelCount:
		rs.ExclusionReason = ReasonTooFewVoxels
	case rs.CV > th.MaxCV:
		rs.ExclusionReason = ReasonUnstable
	case th.RequirePositiveMean && rs.Mean <= 0:
		rs.ExclusionReason = ReasonInvalidMean
	default:
		rs.Reliable = true
		rs.ExclusionReason = ReasonNone
	}
	return rs
}
