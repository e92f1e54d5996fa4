package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mdroistats/pkg/config"
)

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a configuration file with the default settings",
	Args:  cobra.MaximumNArgs(1),
	// Runs before a configuration exists
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "mdroistats.yaml"
		if len(args) > 0 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
		if err := config.CreateDefaultConfigFile(path); err != nil {
			return err
		}
		fmt.Printf("Default configuration written to %s\n", path)
		return nil
	},
}

func init() {
	initConfigCmd.Flags().Bool("force", false, "Overwrite an existing file")
	rootCmd.AddCommand(initConfigCmd)
}
