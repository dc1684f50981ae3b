package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/entrhq/rpacore/pkg/performance/report"
)

// copyToClipboard is replaced in tests.
var copyToClipboard = clipboard.WriteAll

func newReportCmd(a *app) *cobra.Command {
	var (
		runID  string
		format string
		out    string
		toClip bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the performance report of a run (latest by default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, closeDB, err := a.reporter()
			if err != nil {
				return err
			}
			defer closeDB()

			content, err := rep.Report(format, runID)
			if err != nil {
				return err
			}

			if out != "" {
				if err := report.WriteFile(out, content); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", out)
			} else {
				writeReport(cmd.OutOrStdout(), content, format)
			}

			if toClip {
				if err := copyToClipboard(content); err != nil {
					return fmt.Errorf("failed to copy report: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Report copied to clipboard")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Run to report on (default: latest)")
	cmd.Flags().StringVar(&format, "format", report.FormatSummary, "Report format: summary, detailed or json")
	cmd.Flags().StringVar(&out, "out", "", "Write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&toClip, "copy", false, "Copy the report to the clipboard")
	return cmd
}

// writeReport prints content, highlighting JSON when w is a terminal.
func writeReport(w io.Writer, content, format string) {
	if format == report.FormatJSON {
		if f, ok := w.(*os.File); ok && term.IsTerminal(f.Fd()) {
			if err := quick.Highlight(w, content+"\n", "json", "terminal256", "monokai"); err == nil {
				return
			}
		}
	}
	fmt.Fprintln(w, content)
}
