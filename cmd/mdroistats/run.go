package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"mdroistats/pkg/pipeline"
	"mdroistats/pkg/report"
	"mdroistats/pkg/store"
)

// consoleTopN is the length of the ranking printed after a run
const consoleTopN = 10

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute region statistics for one subject",
	Long: `Loads a metric map and an atlas in NIfTI format, computes the region table
and writes it as CSV along with the configured workbook and plots.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSubject(cmd)
	},
}

func init() {
	runCmd.Flags().String("metric", "", "Metric volume (.nii or .nii.gz)")
	runCmd.Flags().String("labels", "", "Atlas label volume on the same grid")
	runCmd.Flags().String("lut", "", "Region names (.yaml, .csv, .tsv or FreeSurfer color table)")
	runCmd.Flags().String("subject", "", "Subject ID, prepended to output filenames and recorded in the store")
	runCmd.Flags().String("out", "", "Output directory (overrides output.dir)")
	runCmd.Flags().Bool("qc-slices", false, "Write mid-slice atlas overlays for visual QC")
	runCmd.MarkFlagRequired("metric")
	runCmd.MarkFlagRequired("labels")
	rootCmd.AddCommand(runCmd)
}

// pipelineParams builds the settings shared by single and batch runs
func pipelineParams(outDir string) (pipeline.Params, error) {
	stat, err := cfg.RankStatistic()
	if err != nil {
		return pipeline.Params{}, err
	}
	if outDir == "" {
		outDir = cfg.Output.Dir
	}
	return pipeline.Params{
		OutputDir:     outDir,
		Prefix:        cfg.Output.Prefix,
		Engine:        cfg.Params(),
		RankBy:        stat,
		TopN:          cfg.Output.TopN,
		HistogramBins: cfg.Output.HistogramBins,
		XLSX:          cfg.Output.XLSX,
		Plots:         cfg.Output.Plots,
	}, nil
}

func runSubject(cmd *cobra.Command) error {
	outDir, _ := cmd.Flags().GetString("out")
	params, err := pipelineParams(outDir)
	if err != nil {
		return err
	}
	params.MetricPath, _ = cmd.Flags().GetString("metric")
	params.LabelsPath, _ = cmd.Flags().GetString("labels")
	params.LUTPath, _ = cmd.Flags().GetString("lut")
	params.Subject, _ = cmd.Flags().GetString("subject")
	params.QCSlices, _ = cmd.Flags().GetBool("qc-slices")

	fmt.Println("================================")
	fmt.Println("ROBUST REGION STATISTICS OF DIFFUSION METRICS")
	fmt.Println("================================")
	fmt.Printf("Metric: %s\nLabels: %s\n", params.MetricPath, params.LabelsPath)

	ctx := cmd.Context()

	startTime := time.Now()
	p := pipeline.NewPipeline(&params, logger)
	if err := p.Process(ctx); err != nil {
		return err
	}
	table := p.Table()

	fmt.Printf("\nProcessed %d regions in %.2f seconds\n\n", table.Len(), time.Since(startTime).Seconds())
	if err := report.PrintTop(os.Stdout, table, params.RankBy, consoleTopN); err != nil {
		return err
	}
	fmt.Println()
	report.PrintSummary(os.Stdout, table.Summary())

	fmt.Println("\nOutputs:")
	for _, path := range p.Outputs() {
		fmt.Printf("- %s\n", path)
	}

	if cfg.Store.Path != "" {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer s.Close()

		subject := params.Subject
		if subject == "" {
			subject = filepath.Base(params.MetricPath)
		}
		id, err := s.SaveRun(ctx, subject, table)
		if err != nil {
			return fmt.Errorf("failed to store run: %w", err)
		}
		fmt.Printf("\nRecorded as run %d in %s\n", id, cfg.Store.Path)
	}
	return nil
}
