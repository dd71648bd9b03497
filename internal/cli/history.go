package cli

import (
	"errors"
	"fmt"

	"github.com/Dicklesworthstone/approveflow/internal/db"
	"github.com/spf13/cobra"
)

var flagHistoryLimit int

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 20, "max runs to list (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs, or show the results of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w, err := newWriter(cmd)
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := cmd.Context()
		if len(args) == 0 {
			runs, err := database.ListRuns(ctx, flagHistoryLimit)
			if err != nil {
				return err
			}
			return w.History(runs)
		}

		run, err := database.GetRun(ctx, args[0])
		if errors.Is(err, db.ErrRunNotFound) {
			return fmt.Errorf("run %s not found", args[0])
		}
		if err != nil {
			return err
		}
		results, err := database.ListResults(ctx, run.ID)
		if err != nil {
			return err
		}
		return w.RunResults(run, results)
	},
}
