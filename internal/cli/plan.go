package cli

import (
	"fmt"

	"github.com/Dicklesworthstone/approveflow/internal/core"
	"github.com/Dicklesworthstone/approveflow/internal/report"
	"github.com/Dicklesworthstone/approveflow/internal/runner"
	"github.com/spf13/cobra"
)

var (
	flagPlanWorkbook string
	flagPlanSheet    string
	flagPlanLevels   int
	flagPlanCases    []string
	flagPlanSeed     uint64
)

func init() {
	planCmd.Flags().StringVarP(&flagPlanWorkbook, "workbook", "w", "", "test-case workbook (overrides workbook.path)")
	planCmd.Flags().StringVarP(&flagPlanSheet, "sheet", "s", "", "sheet to plan (default <levels>级审批)")
	planCmd.Flags().IntVarP(&flagPlanLevels, "levels", "l", 0, "chain depth selecting the sheet (overrides business.levels)")
	planCmd.Flags().StringSliceVar(&flagPlanCases, "case", nil, "plan only the named cases")
	planCmd.Flags().Uint64Var(&flagPlanSeed, "seed", 0, "random seed for actor selection (overrides random.seed)")
	rootCmd.AddCommand(planCmd)
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show who acts at each step, without touching the CRM",
	Long: `Resolve every test case of a sheet against the local user directory and
print each planned action with the status the CRM must show afterwards.

Nothing is sent to the CRM. With a fixed --seed the plan matches what
"approveflow run --seed" executes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w, err := newWriter(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cmd.ErrOrStderr(), cfg)

		_, cases, err := loadCases(cfg, flagPlanWorkbook, flagPlanSheet, flagPlanLevels, flagPlanCases)
		if err != nil {
			return err
		}
		labels, err := core.LabelsFor(cfg.Labels.Locale)
		if err != nil {
			return err
		}
		seed := cfg.Random.Seed
		if cmd.Flags().Changed("seed") {
			seed = flagPlanSeed
		}

		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		// One runner for the whole sheet, so random picks follow the same
		// sequence as "approveflow run".
		r, err := runner.New(runner.Options{
			Directory: database,
			Labels:    labels,
			Seed:      seed,
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		var plans []report.Plan
		failed := 0
		for _, c := range cases {
			plan, err := func() (report.Plan, error) {
				flow, steps, err := r.Plan(ctx, c.Record)
				if flow == nil {
					return report.Plan{}, err
				}
				if err != nil {
					return report.Plan{Spec: flow.Spec()}, err
				}
				return report.NewPlan(c.Name, flow.Spec(), steps)
			}()
			if err != nil {
				failed++
				plan.Error = err.Error()
			}
			plan.Name = c.Name
			plans = append(plans, plan)
		}

		if err := w.Plans(plans); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d case(s) could not be planned", failed, len(cases))
		}
		return nil
	},
}
