// Package pipeline runs the region statistics analysis for one subject, from
// NIfTI volumes on disk to the table, plots and workbook in an output
// directory.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mdroistats/internal/logging"
	"mdroistats/internal/models"
	"mdroistats/pkg/atlas"
	"mdroistats/pkg/nifti"
	"mdroistats/pkg/report"
	"mdroistats/pkg/roistats"
	"mdroistats/pkg/visualization"
)

// Params holds the inputs and output settings of one subject run
type Params struct {
	// Subject identifies the run in filenames and the store
	Subject string

	// MetricPath is the diffusion metric volume (.nii or .nii.gz)
	MetricPath string

	// LabelsPath is the atlas volume on the same grid as the metric
	LabelsPath string

	// LUTPath optionally names the regions. Empty uses Region-<label>.
	LUTPath string

	// OutputDir receives every file the run writes
	OutputDir string

	// Prefix starts every output filename
	Prefix string

	// Engine are the statistics and quality-control parameters
	Engine roistats.Params

	// RankBy is the statistic plots rank and bin regions by
	RankBy roistats.Statistic

	// TopN is the number of regions per ranking plot
	TopN int

	// HistogramBins is the number of histogram bins
	HistogramBins int

	// XLSX writes an Excel workbook next to the CSV
	XLSX bool

	// Plots writes the ranking and histogram PNGs
	Plots bool

	// QCSlices writes mid-slice overlays of the atlas on the metric
	QCSlices bool
}

// Timings records how long each stage took
type Timings struct {
	Load       time.Duration
	Statistics time.Duration
	Output     time.Duration
}

// Pipeline processes one subject. The stages are:
// 1. Loading the metric and label volumes and the region names
// 2. Computing the region statistics table
// 3. Writing the CSV and the optional workbook, plots and QC slices
type Pipeline struct {
	params *Params
	logger *slog.Logger

	metric  models.MetricVolume
	labels  models.LabelVolume
	catalog models.RegionCatalog

	table   *roistats.ResultTable
	outputs []string
	timings Timings
}

// NewPipeline creates a pipeline for params. A nil logger discards output.
func NewPipeline(params *Params, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		params: params,
		logger: logger.With("subject", params.Subject),
	}
}

// CSVPath returns where the region table of the run is written
func (p *Pipeline) CSVPath() string {
	return filepath.Join(p.params.OutputDir, p.filePrefix()+"_by_region.csv")
}

func (p *Pipeline) filePrefix() string {
	if p.params.Subject == "" {
		return p.params.Prefix
	}
	return p.params.Subject + "_" + p.params.Prefix
}

// Process runs every stage. It stops at the first failing stage or when ctx
// is cancelled between stages.
func (p *Pipeline) Process(ctx context.Context) error {
	start := time.Now()
	if err := p.load(); err != nil {
		return err
	}
	p.timings.Load = time.Since(start)

	if err := ctx.Err(); err != nil {
		return err
	}

	start = time.Now()
	table, err := roistats.Run(p.metric, p.labels, p.catalog, p.params.Engine)
	if err != nil {
		return fmt.Errorf("statistics failed: %w", err)
	}
	p.table = table
	p.timings.Statistics = time.Since(start)

	summary := table.Summary()
	p.logger.Info("region statistics computed",
		"regions", summary.Total, "reliable", summary.Reliable, "excluded", summary.Excluded)

	if err := ctx.Err(); err != nil {
		return err
	}

	start = time.Now()
	if err := p.writeOutputs(); err != nil {
		return err
	}
	p.timings.Output = time.Since(start)
	return nil
}

func (p *Pipeline) load() error {
	metric, err := nifti.LoadMetric(p.params.MetricPath)
	if err != nil {
		return fmt.Errorf("failed to load metric: %w", err)
	}
	labels, err := nifti.LoadLabels(p.params.LabelsPath)
	if err != nil {
		return fmt.Errorf("failed to load labels: %w", err)
	}
	p.logger.Debug("volumes loaded", "metric", metric.Dims.String(), "labels", labels.Dims.String())

	p.metric, p.labels = metric, labels
	p.catalog = models.RegionCatalog{}
	if p.params.LUTPath != "" {
		catalog, err := atlas.LoadCatalog(p.params.LUTPath)
		if err != nil {
			return fmt.Errorf("failed to load region names: %w", err)
		}
		p.catalog = catalog
		p.logger.Debug("region names loaded", "entries", len(catalog))
	}
	return nil
}

func (p *Pipeline) writeOutputs() error {
	if err := os.MkdirAll(p.params.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	csvPath := p.CSVPath()
	if err := report.WriteCSVFile(csvPath, p.table); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	p.outputs = append(p.outputs, csvPath)

	if p.params.XLSX {
		path := filepath.Join(p.params.OutputDir, p.filePrefix()+"_by_region.xlsx")
		if err := report.WriteXLSX(path, p.table); err != nil {
			return fmt.Errorf("failed to write workbook: %w", err)
		}
		p.outputs = append(p.outputs, path)
	}

	if p.params.Plots {
		plotter := visualization.NewPlotter(p.params.OutputDir, p.filePrefix(), p.params.RankBy)
		if p.params.TopN > 0 {
			plotter.TopN = p.params.TopN
		}
		if p.params.HistogramBins > 0 {
			plotter.Bins = p.params.HistogramBins
		}
		paths, err := plotter.SaveAll(p.table)
		if err != nil {
			return fmt.Errorf("failed to write plots: %w", err)
		}
		if len(paths) == 0 {
			p.logger.Warn("no reliable regions, plots skipped")
		}
		p.outputs = append(p.outputs, paths...)
	}

	if p.params.QCSlices {
		viewer, err := visualization.NewViewer(p.metric, p.labels)
		if err != nil {
			return err
		}
		paths, err := viewer.SaveMidSlices(p.params.OutputDir, p.filePrefix(), p.table)
		if err != nil {
			return fmt.Errorf("failed to write QC slices: %w", err)
		}
		p.outputs = append(p.outputs, paths...)
	}

	for _, path := range p.outputs {
		p.logger.Debug("wrote output", "path", path)
	}
	return nil
}

// Table returns the result table of a processed run
func (p *Pipeline) Table() *roistats.ResultTable {
	return p.table
}

// Outputs returns the files written by Process
func (p *Pipeline) Outputs() []string {
	return p.outputs
}

// Timings returns the duration of each stage
func (p *Pipeline) Timings() Timings {
	return p.timings
}
