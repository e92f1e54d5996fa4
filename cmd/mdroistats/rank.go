package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mdroistats/pkg/config"
	"mdroistats/pkg/report"
	"mdroistats/pkg/roistats"
	"mdroistats/pkg/store"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank the regions of a stored run",
	Long: `Prints the top regions of a run recorded in the SQLite store by any region
statistic. Without --run or --subject the most recent run is used; --list shows
all recorded runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRank(cmd)
	},
}

func init() {
	rankCmd.Flags().String("stat", "", "Statistic to rank by (defaults to output.rankBy)")
	rankCmd.Flags().IntP("count", "n", consoleTopN, "Number of regions")
	rankCmd.Flags().Int64("run", 0, "Run ID")
	rankCmd.Flags().String("subject", "", "Use the latest run of this subject")
	rankCmd.Flags().Bool("bottom", false, "Show the lowest ranking regions instead")
	rankCmd.Flags().Bool("list", false, "List recorded runs")
	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command) error {
	if cfg.Store.Path == "" {
		return fmt.Errorf("no store configured, set store.path or %s", config.EnvStorePath)
	}
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()

	if list, _ := cmd.Flags().GetBool("list"); list {
		return listRuns(ctx, s)
	}

	stat, err := cfg.RankStatistic()
	if err != nil {
		return err
	}
	if name, _ := cmd.Flags().GetString("stat"); name != "" {
		if stat, err = roistats.ParseStatistic(name); err != nil {
			return err
		}
	}
	n, _ := cmd.Flags().GetInt("count")

	runID, _ := cmd.Flags().GetInt64("run")
	if runID == 0 {
		subject, _ := cmd.Flags().GetString("subject")
		if subject != "" {
			run, err := s.LatestRun(ctx, subject)
			if err != nil {
				return err
			}
			runID = run.ID
		} else {
			runs, err := s.ListRuns(ctx)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				return fmt.Errorf("the store at %s holds no runs", cfg.Store.Path)
			}
			runID = runs[0].ID
		}
	}

	table, err := s.LoadRegions(ctx, runID)
	if err != nil {
		return err
	}
	logger.Debug("loaded run", "run", runID, "regions", table.Len())

	bottom, _ := cmd.Flags().GetBool("bottom")
	return printRanking(os.Stdout, table, runID, stat, n, bottom)
}

// printRanking prints the run header followed by the top or bottom ranking
func printRanking(w io.Writer, table *roistats.ResultTable, runID int64, stat roistats.Statistic, n int, bottom bool) error {
	fmt.Fprintf(w, "Run %d\n", runID)
	if bottom {
		return report.PrintBottom(w, table, stat, n)
	}
	return report.PrintTop(w, table, stat, n)
}

func listRuns(ctx context.Context, s *store.Store) error {
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "run\tsubject\tcreated\tregions\treliable")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", r.ID, r.Subject, r.CreatedAt.Format("2006-01-02 15:04:05"), r.NRegions, r.NReliable)
	}
	return tw.Flush()
}
