package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/entrhq/rpacore/pkg/config"
	"github.com/entrhq/rpacore/pkg/performance"
	"github.com/entrhq/rpacore/pkg/performance/report"
)

// app holds what the global flags resolve to.
type app struct {
	configPath string
	dbPath     string
	settings   *config.Settings
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "rpa",
		Short:   "Run browser automations and inspect their performance history",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML settings file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "Path to the performance database (overrides settings)")

	root.AddCommand(
		newRunCmd(a),
		newReportCmd(a),
		newRunsCmd(a),
		newTrendsCmd(a),
		newBottlenecksCmd(a),
		newStatsCmd(a),
		newExportCmd(a),
	)
	return root
}

func (a *app) load() error {
	if err := config.Initialize(a.configPath); err != nil {
		return err
	}
	a.settings = config.Get().Clone()
	if a.dbPath != "" {
		a.settings.PerformanceDB = a.dbPath
	}
	return nil
}

// openDB opens the performance store, creating it when missing so that
// reports on a fresh machine say "no runs" instead of failing.
func (a *app) openDB() (*sql.DB, error) {
	path := a.settings.PerformanceDB
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return performance.OpenDB(path)
}

func (a *app) reporter() (*report.Reporter, func() error, error) {
	db, err := a.openDB()
	if err != nil {
		return nil, nil, err
	}
	return report.NewReporter(db), db.Close, nil
}

func (a *app) analyzer() (*report.Analyzer, func() error, error) {
	db, err := a.openDB()
	if err != nil {
		return nil, nil, err
	}
	return report.NewAnalyzer(db), db.Close, nil
}
