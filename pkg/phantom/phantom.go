// Package phantom generates synthetic MD maps with a matching atlas for
// trying out and testing the analysis without real scans.
package phantom

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"

	"mdroistats/internal/models"
	"mdroistats/pkg/nifti"
)

// Options controls the generated phantom
type Options struct {
	// Dims is the volume size. A one-voxel background border is kept on
	// every side.
	Dims models.Dims

	// Regions is the number of labeled slabs along x
	Regions int

	// BaseMD is the MD of region 1 in mm^2/s; each further region adds Step
	BaseMD float64
	Step   float64

	// Noise is the standard deviation of the Gaussian voxel noise
	Noise float64

	// OutlierFraction of labeled voxels are replaced by free-water-like
	// values (3e-3 mm^2/s), mimicking CSF partial volume
	OutlierFraction float64

	// Seed makes the phantom reproducible
	Seed uint64
}

// DefaultOptions returns a 32^3 phantom with eight regions in the range of
// healthy white and gray matter MD
func DefaultOptions() Options {
	return Options{
		Dims:            models.Dims{X: 32, Y: 32, Z: 32},
		Regions:         8,
		BaseMD:          0.7e-3,
		Step:            0.02e-3,
		Noise:           0.05e-3,
		OutlierFraction: 0.01,
		Seed:            1,
	}
}

// Generate builds the metric and label volumes
func Generate(opts Options) (models.MetricVolume, models.LabelVolume, error) {
	d := opts.Dims
	if d.X < 3 || d.Y < 3 || d.Z < 3 {
		return models.MetricVolume{}, models.LabelVolume{}, fmt.Errorf("phantom needs at least 3 voxels per axis, got %s", d)
	}
	if opts.Regions < 1 || opts.Regions > d.X-2 {
		return models.MetricVolume{}, models.LabelVolume{}, fmt.Errorf("cannot fit %d regions into %d inner voxels", opts.Regions, d.X-2)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	metric := models.MetricVolume{
		Data:      make([]float64, d.Len()),
		Dims:      d,
		VoxelSize: models.VoxelSize{X: 2, Y: 2, Z: 2},
	}
	labels := models.LabelVolume{Data: make([]int32, d.Len()), Dims: d}

	inner := d.X - 2
	for z := 1; z < d.Z-1; z++ {
		for y := 1; y < d.Y-1; y++ {
			for x := 1; x < d.X-1; x++ {
				label := 1 + (x-1)*opts.Regions/inner
				idx := d.Index(x, y, z)
				labels.Data[idx] = int32(label)

				value := opts.BaseMD + float64(label-1)*opts.Step + rng.NormFloat64()*opts.Noise
				if rng.Float64() < opts.OutlierFraction {
					value = 3e-3
				}
				metric.Data[idx] = value
			}
		}
	}
	return metric, labels, nil
}

// Catalog names the phantom regions
func Catalog(regions int) models.RegionCatalog {
	catalog := make(models.RegionCatalog, regions)
	for l := 1; l <= regions; l++ {
		catalog[l] = fmt.Sprintf("Slab %d", l)
	}
	return catalog
}

// Files are the paths WriteFiles produced
type Files struct {
	Metric string
	Labels string
}

// WriteFiles generates a phantom and writes it to dir as
// <prefix>_md.nii.gz and <prefix>_labels.nii.gz
func WriteFiles(dir, prefix string, opts Options) (Files, error) {
	metric, labels, err := Generate(opts)
	if err != nil {
		return Files{}, err
	}

	files := Files{
		Metric: filepath.Join(dir, prefix+"_md.nii.gz"),
		Labels: filepath.Join(dir, prefix+"_labels.nii.gz"),
	}
	if err := nifti.WriteFile(files.Metric, metric.Dims, metric.VoxelSize, nifti.DTFloat32, metric.Data); err != nil {
		return Files{}, fmt.Errorf("failed to write metric: %w", err)
	}

	labelData := make([]float64, len(labels.Data))
	for i, l := range labels.Data {
		labelData[i] = float64(l)
	}
	if err := nifti.WriteFile(files.Labels, labels.Dims, metric.VoxelSize, nifti.DTInt16, labelData); err != nil {
		return Files{}, fmt.Errorf("failed to write labels: %w", err)
	}
	return files, nil
}
