package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mdroistats/pkg/batch"
	"mdroistats/pkg/store"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Compute region statistics for every subject in a manifest",
	Long: `Reads a YAML manifest of subjects and processes them in parallel, bounded by
processing.numCores. A failing subject is reported and the others continue.

Manifest format:

  lut: names.csv
  subjects:
    - id: sub-01
      metric: sub-01/md.nii.gz
      labels: sub-01/atlas.nii.gz`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd)
	},
}

func init() {
	batchCmd.Flags().String("manifest", "", "YAML manifest listing the subjects")
	batchCmd.Flags().String("out", "", "Output directory (overrides output.dir)")
	batchCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command) error {
	manifestPath, _ := cmd.Flags().GetString("manifest")
	manifest, err := batch.LoadManifest(manifestPath)
	if err != nil {
		return err
	}

	outDir, _ := cmd.Flags().GetString("out")
	template, err := pipelineParams(outDir)
	if err != nil {
		return err
	}
	// Subjects already run concurrently
	template.Engine.Workers = 1

	runner := &batch.Runner{
		Template: template,
		Workers:  cfg.Processing.NumCores,
		Logger:   logger,
	}
	if cfg.Store.Path != "" {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer s.Close()
		runner.Store = s
	}

	ctx := cmd.Context()

	fmt.Printf("Processing %d subjects with %d workers...\n", len(manifest.Subjects), runner.Workers)
	results, err := runner.Run(ctx, manifest)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "subject\tregions\treliable\tstatus")
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\tfailed: %v\n", res.ID, res.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", res.ID, res.Summary.Total, res.Summary.Reliable, res.CSVPath)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed := batch.Failed(results); len(failed) > 0 {
		return fmt.Errorf("%d of %d subjects failed", len(failed), len(results))
	}
	return nil
}
