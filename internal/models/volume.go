package models

import (
	"fmt"
	"strconv"
)

// Dims holds the extent of a volume along each axis in voxels
type Dims struct {
	X, Y, Z int
}

// Len returns the number of voxels covered by the dimensions
func (d Dims) Len() int {
	return d.X * d.Y * d.Z
}

// Index returns the flat raster index of voxel (x, y, z).
// x varies fastest, then y, then z.
func (d Dims) Index(x, y, z int) int {
	return z*d.X*d.Y + y*d.X + x
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d.X, d.Y, d.Z)
}

// VoxelSize is the physical size of a voxel in mm
type VoxelSize struct {
	X, Y, Z float64
}

// MetricVolume is a scalar diffusion metric sampled on a 3D grid
type MetricVolume struct {
	// Data is the 3D volume data as a 1D array in raster order
	Data []float64

	// Dims are the dimensions of the volume in voxels
	Dims Dims

	// VoxelSize is carried along from the source header; the statistics
	// never read it
	VoxelSize VoxelSize
}

// LabelVolume is an integer atlas on the same grid as a MetricVolume.
// Label 0 marks background.
type LabelVolume struct {
	// Data is the label of every voxel in raster order
	Data []int32

	// Dims are the dimensions of the volume in voxels
	Dims Dims
}

// Background is the label of unlabeled voxels
const Background = 0

// RegionCatalog maps atlas labels to human-readable region names
type RegionCatalog map[int]string

// Name returns the catalog name for label, or "Region-<label>" when the
// catalog has no entry for it.
func (c RegionCatalog) Name(label int) string {
	if name, ok := c[label]; ok && name != "" {
		return name
	}
	return "Region-" + strconv.Itoa(label)
}
