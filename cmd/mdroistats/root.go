package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mdroistats/internal/logging"
	"mdroistats/pkg/config"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mdroistats",
	Short: "Robust per-region statistics of diffusion MRI metrics",
	Long: `mdroistats groups the voxels of a diffusion metric map (typically MD) by the
labels of an atlas, summarizes every region with outlier-resistant statistics
and flags regions that fail quality control.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine, variables may come from the shell
		_ = godotenv.Load()

		configPath, _ := cmd.Flags().GetString("config")
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if err := loaded.ApplyEnv(); err != nil {
			return err
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			loaded.Output.Verbose = true
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		cfg = loaded
		logger = logging.New(cfg.Output.Verbose)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "mdroistats.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}
