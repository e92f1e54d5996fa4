package roistats

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WinsorBounds are the lower and upper percentiles (0-100) at which a
// sample is clamped before the winsorized mean is taken
type WinsorBounds struct {
	LowerPct float64
	UpperPct float64
}

// ExclusionReason explains why a region was not reported as reliable
type ExclusionReason string

const (
	ReasonNone         ExclusionReason = ""
	ReasonTooFewVoxels ExclusionReason = "too few voxels"
	ReasonUnstable     ExclusionReason = "unstable distribution"
	ReasonInvalidMean  ExclusionReason = "invalid mean"
)

// RegionStatistics is the summary of one atlas region. Values are in the
// (scaled) metric units of the run.
type RegionStatistics struct {
	Label int
	Name  string

	// NVoxels is the number of finite metric values in the region
	NVoxels int

	// NonFinite is the number of NaN or infinite values that were dropped
	NonFinite int

	// Mean and Std are computed on the raw sample (population formula)
	Mean float64
	Std  float64

	// WinsorizedMean and WinsorizedStd are computed on the clamped sample
	WinsorizedMean float64
	WinsorizedStd  float64

	// Median, Q1, Q3 and IQR are computed on the unclamped sample
	Median float64
	Q1     float64
	Q3     float64
	IQR    float64

	// NWinsorized counts values altered by clamping
	NWinsorized int

	// NOutliers counts values outside the 1.5·IQR Tukey fences,
	// NExtremeOutliers those outside the 3·IQR fences
	NOutliers        int
	NExtremeOutliers int

	// CV is the coefficient of variation used by the quality filter
	CV float64

	Reliable        bool
	ExclusionReason ExclusionReason
}

// Quantile returns the p-quantile (0 <= p <= 1) of an ascending sample by
// linear interpolation between order statistics at h = (n-1)p. Every
// percentile of a run goes through this function.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 || n == 1 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Winsorize returns a copy of sample with values below lo raised to lo and
// values above hi lowered to hi, together with the number of values changed
func Winsorize(sample []float64, lo, hi float64) ([]float64, int) {
	clamped := make([]float64, len(sample))
	changed := 0
	for i, v := range sample {
		switch {
		case v < lo:
			clamped[i] = lo
			changed++
		case v > hi:
			clamped[i] = hi
			changed++
		default:
			clamped[i] = v
		}
	}
	return clamped, changed
}

// ComputeStatistics summarizes one region sample. The label and name are
// left for the caller to fill in. An empty sample yields a zero record.
func ComputeStatistics(sample VoxelSample, bounds WinsorBounds) RegionStatistics {
	var rs RegionStatistics
	n := len(sample)
	rs.NVoxels = n
	if n == 0 {
		return rs
	}

	data := stats.Float64Data(sample)

	// Raw moments; errors only occur for empty input
	rs.Mean, _ = stats.Mean(data)
	rs.Std, _ = stats.StandardDeviationPopulation(data)

	sorted := make([]float64, n)
	copy(sorted, sample)
	sort.Float64s(sorted)

	// Order statistics on the unclamped sample
	rs.Median = Quantile(sorted, 0.5)
	rs.Q1 = Quantile(sorted, 0.25)
	rs.Q3 = Quantile(sorted, 0.75)
	rs.IQR = rs.Q3 - rs.Q1

	rs.NOutliers, rs.NExtremeOutliers = countOutliers(sorted, rs.Q1, rs.Q3, rs.IQR)

	if n == 1 {
		rs.WinsorizedMean = sample[0]
		rs.IQR = 0
		rs.Std = 0
		return rs
	}

	lo := Quantile(sorted, bounds.LowerPct/100)
	hi := Quantile(sorted, bounds.UpperPct/100)
	clamped, changed := Winsorize(sample, lo, hi)
	rs.NWinsorized = changed
	rs.WinsorizedMean, rs.WinsorizedStd = stat.PopMeanStdDev(clamped, nil)

	// Floating point summation can land a hair outside the sample range
	rs.WinsorizedMean = math.Max(floats.Min(sorted), math.Min(floats.Max(sorted), rs.WinsorizedMean))

	return rs
}

// countOutliers counts values beyond the inner (1.5·IQR) and outer (3·IQR)
// Tukey fences
func countOutliers(sorted []float64, q1, q3, iqr float64) (mild, extreme int) {
	innerLo, innerHi := q1-1.5*iqr, q3+1.5*iqr
	outerLo, outerHi := q1-3*iqr, q3+3*iqr
	for _, v := range sorted {
		if v < innerLo || v > innerHi {
			mild++
		}
		if v < outerLo || v > outerHi {
			extreme++
		}
	}
	return mild, extreme
}
