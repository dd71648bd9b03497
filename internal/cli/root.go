// Package cli implements the approveflow command line.
package cli

import (
	"fmt"
	"io"

	"github.com/Dicklesworthstone/approveflow/internal/config"
	"github.com/Dicklesworthstone/approveflow/internal/db"
	"github.com/Dicklesworthstone/approveflow/internal/report"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

var (
	flagConfig  string
	flagDB      string
	flagOutput  string
	flagJSON    bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "approveflow",
	Short: "End-to-end approval chain tests against a CRM",
	Long: `approveflow configures multi-level approval chains on a CRM, applies a
business record and walks every approver, checking the approval status the
CRM renders after each action.

Test cases come from an .xlsx workbook with one sheet per chain depth
("1级审批", "2级审批", ...). Users come from a local SQLite directory
loaded with "approveflow seed".`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default ./"+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (overrides database.path)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "output format: text or json")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "shorthand for --output json")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetOutput returns the selected output format.
func GetOutput() string {
	if flagJSON {
		return string(report.FormatJSON)
	}
	return flagOutput
}

// GetDB returns the database path, preferring --db over the config.
func GetDB(cfg config.Config) string {
	if flagDB != "" {
		return flagDB
	}
	return cfg.Database.Path
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.Config) *log.Logger {
	level, _ := cfg.LogLevel()
	if flagVerbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          "approveflow",
		ReportTimestamp: true,
	})
}

func newWriter(cmd *cobra.Command) (*report.Writer, error) {
	format, err := report.ParseFormat(GetOutput())
	if err != nil {
		return nil, err
	}
	return report.New(cmd.OutOrStdout(), format), nil
}

func openDB(cfg config.Config) (*db.DB, error) {
	database, err := db.Open(GetDB(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return database, nil
}
