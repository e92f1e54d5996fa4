package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mdroistats/internal/models"
	"mdroistats/pkg/phantom"
)

var phantomCmd = &cobra.Command{
	Use:   "phantom <dir>",
	Short: "Write a synthetic MD map and atlas for trying out the analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := phantom.DefaultOptions()
		size, _ := cmd.Flags().GetInt("size")
		opts.Dims = models.Dims{X: size, Y: size, Z: size}
		opts.Regions, _ = cmd.Flags().GetInt("regions")
		opts.OutlierFraction, _ = cmd.Flags().GetFloat64("outliers")
		opts.Seed, _ = cmd.Flags().GetUint64("seed")
		prefix, _ := cmd.Flags().GetString("prefix")

		files, err := phantom.WriteFiles(args[0], prefix, opts)
		if err != nil {
			return err
		}
		logger.Debug("phantom written", "dims", opts.Dims.String(), "regions", opts.Regions)
		fmt.Printf("Metric: %s\nLabels: %s\n", files.Metric, files.Labels)
		return nil
	},
}

func init() {
	defaults := phantom.DefaultOptions()
	phantomCmd.Flags().Int("size", defaults.Dims.X, "Voxels per axis")
	phantomCmd.Flags().Int("regions", defaults.Regions, "Number of labeled regions")
	phantomCmd.Flags().Float64("outliers", defaults.OutlierFraction, "Fraction of voxels replaced by free-water values")
	phantomCmd.Flags().Uint64("seed", defaults.Seed, "Random seed")
	phantomCmd.Flags().String("prefix", "phantom", "Filename prefix")
	rootCmd.AddCommand(phantomCmd)
}
