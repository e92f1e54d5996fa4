package roistats

import (
	"errors"
	"fmt"

	"mdroistats/internal/models"
)

// ShapeMismatchError reports metric and label volumes that do not share a
// voxel grid. The run cannot proceed.
type ShapeMismatchError struct {
	Metric models.Dims
	Labels models.Dims

	// Detail is set when the dims agree but a data slice does not cover them
	Detail string
}

func (e *ShapeMismatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("volume shape mismatch: %s", e.Detail)
	}
	return fmt.Sprintf("volume shape mismatch: metric %s, labels %s", e.Metric, e.Labels)
}

// EmptyVolumeError reports a label volume without any non-zero label
type EmptyVolumeError struct{}

func (EmptyVolumeError) Error() string {
	return "label volume contains no labeled voxels"
}

// ErrEmptyVolume is returned when no voxel carries a non-zero label
var ErrEmptyVolume error = EmptyVolumeError{}

// LabelRangeError reports a negative label in the label volume
type LabelRangeError struct {
	Label int
	Index int
}

func (e *LabelRangeError) Error() string {
	return fmt.Sprintf("negative label %d at voxel %d", e.Label, e.Index)
}

// UnknownStatisticError is returned by ranking queries for a statistic
// outside the Statistic enumeration.
type UnknownStatisticError struct {
	Name string
}

func (e *UnknownStatisticError) Error() string {
	return fmt.Sprintf("unknown statistic %q", e.Name)
}

// IsFatal reports whether err is a structural input error that aborts a run
func IsFatal(err error) bool {
	var shape *ShapeMismatchError
	var rng *LabelRangeError
	return errors.As(err, &shape) || errors.As(err, &rng) || errors.Is(err, ErrEmptyVolume)
}
