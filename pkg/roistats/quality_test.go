package roistats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyQuality(t *testing.T) {
	th := QualityThresholds{MinVoxelCount: 20, MaxCV: 1.0, RequirePositiveMean: true, CVBasis: CVBasisRaw}

	tests := []struct {
		name     string
		rs       RegionStatistics
		th       QualityThresholds
		reliable bool
		reason   ExclusionReason
	}{
		{
			name:     "reliable",
			rs:       RegionStatistics{NVoxels: 30, Mean: 1.0, Std: 0.2},
			th:       th,
			reliable: true,
		},
		{
			name:   "too few voxels",
			rs:     RegionStatistics{NVoxels: 5, Mean: 1.0, Std: 0.2},
			th:     th,
			reason: ReasonTooFewVoxels,
		},
		{
			name:   "count checked before cv",
			rs:     RegionStatistics{NVoxels: 5, Mean: 1.0, Std: 5},
			th:     th,
			reason: ReasonTooFewVoxels,
		},
		{
			name:   "unstable distribution",
			rs:     RegionStatistics{NVoxels: 30, Mean: 1.0, Std: 2.5},
			th:     th,
			reason: ReasonUnstable,
		},
		{
			name:   "cv checked before mean",
			rs:     RegionStatistics{NVoxels: 30, Mean: -1.0, Std: 2.5},
			th:     th,
			reason: ReasonUnstable,
		},
		{
			name:   "negative mean",
			rs:     RegionStatistics{NVoxels: 30, Mean: -1.0, Std: 0.1},
			th:     th,
			reason: ReasonInvalidMean,
		},
		{
			name:   "zero mean and zero spread",
			rs:     RegionStatistics{NVoxels: 30},
			th:     th,
			reason: ReasonInvalidMean,
		},
		{
			name:     "negative mean allowed",
			rs:       RegionStatistics{NVoxels: 30, Mean: -1.0, Std: 0.1},
			th:       QualityThresholds{MinVoxelCount: 20, MaxCV: 1.0},
			reliable: true,
		},
		{
			name:   "empty region with zero minimum",
			rs:     RegionStatistics{},
			th:     QualityThresholds{MaxCV: 1.0},
			reason: ReasonTooFewVoxels,
		},
		{
			name: "winsorized basis ignores raw spread",
			rs: RegionStatistics{
				NVoxels: 30, Mean: 4.0, Std: 8.5,
				WinsorizedMean: 2.4, WinsorizedStd: 0.8,
			},
			th:       QualityThresholds{MinVoxelCount: 20, MaxCV: 1.0, RequirePositiveMean: true, CVBasis: CVBasisWinsorized},
			reliable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyQuality(tt.rs, tt.th)
			assert.Equal(t, tt.reliable, got.Reliable)
			assert.Equal(t, tt.reason, got.ExclusionReason)
			if !got.Reliable {
				assert.NotEmpty(t, got.ExclusionReason)
			}
		})
	}
}

func TestApplyQualityDoesNotMutateInput(t *testing.T) {
	rs := RegionStatistics{NVoxels: 2, Mean: 1, Std: 0.1}
	_ = ApplyQuality(rs, QualityThresholds{MinVoxelCount: 20, MaxCV: 1})
	assert.False(t, rs.Reliable)
	assert.Empty(t, rs.ExclusionReason)
	assert.Zero(t, rs.CV)
}

func TestCoefficientOfVariation(t *testing.T) {
	assert.InDelta(t, 0.5, CoefficientOfVariation(1, 2), 1e-12)
	assert.InDelta(t, 0.5, CoefficientOfVariation(1, -2), 1e-12)
	assert.Equal(t, 0.0, CoefficientOfVariation(0, 0))
	assert.True(t, math.IsInf(CoefficientOfVariation(1, 0), 1))
}
