package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/rpacore/pkg/performance/report"
)

func newRunsCmd(a *app) *cobra.Command {
	var (
		days   int
		script string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			an, closeDB, err := a.analyzer()
			if err != nil {
				return err
			}
			defer closeDB()

			runs, err := an.RecentRuns(days, script)
			if err != nil {
				return err
			}
			if limit > 0 && len(runs) > limit {
				runs = runs[:limit]
			}
			fmt.Fprint(cmd.OutOrStdout(), report.RenderRuns(runs))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Look back this many days")
	cmd.Flags().StringVar(&script, "script", "", "Filter by script name pattern (glob, e.g. create_*)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Show at most this many runs (0 for all)")
	return cmd
}

func newTrendsCmd(a *app) *cobra.Command {
	var (
		script string
		days   int
	)

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Show daily duration and success trends of a script",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if script == "" {
				return errors.New("--script is required")
			}
			an, closeDB, err := a.analyzer()
			if err != nil {
				return err
			}
			defer closeDB()

			trends, err := an.PerformanceTrends(script, days)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.RenderTrends(trends))
			return nil
		},
	}

	cmd.Flags().StringVar(&script, "script", "", "Script name")
	cmd.Flags().IntVar(&days, "days", 30, "Look back this many days")
	return cmd
}

func newBottlenecksCmd(a *app) *cobra.Command {
	var (
		script      string
		minDuration float64
	)

	cmd := &cobra.Command{
		Use:   "bottlenecks",
		Short: "Rank the slowest steps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			an, closeDB, err := a.analyzer()
			if err != nil {
				return err
			}
			defer closeDB()

			items, err := an.Bottlenecks(script, minDuration)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.RenderBottlenecks(items))
			return nil
		},
	}

	cmd.Flags().StringVar(&script, "script", "", "Filter by script name pattern (glob)")
	cmd.Flags().Float64Var(&minDuration, "min-duration", 5, "Only steps averaging at least this many seconds")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize runs across all scripts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			an, closeDB, err := a.analyzer()
			if err != nil {
				return err
			}
			defer closeDB()

			summary, err := an.Summary(days)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.RenderSummary(summary))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Look back this many days")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		out  string
		days int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export runs, steps and browser metrics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			an, closeDB, err := a.analyzer()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := an.ExportData(out, days); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported the last %d days to %s\n", days, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output JSON file")
	cmd.Flags().IntVar(&days, "days", 30, "Look back this many days")
	return cmd
}
