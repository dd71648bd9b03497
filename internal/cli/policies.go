package cli

import (
	"fmt"
	"runtime"

	"github.com/Dicklesworthstone/approveflow/internal/report"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(policiesCmd, versionCmd)
}

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List the approval policies a workbook may name",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWriter(cmd)
		if err != nil {
			return err
		}
		return w.Policies()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if GetOutput() == string(report.FormatJSON) {
			w, err := newWriter(cmd)
			if err != nil {
				return err
			}
			return w.JSON(map[string]string{"version": Version, "go": runtime.Version()})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "approveflow %s (%s)\n", Version, runtime.Version())
		return nil
	},
}
