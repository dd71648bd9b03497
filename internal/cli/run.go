package cli

import (
	"fmt"
	"os"
	"os/signal"
	"slices"

	"github.com/Dicklesworthstone/approveflow/internal/config"
	"github.com/Dicklesworthstone/approveflow/internal/core"
	"github.com/Dicklesworthstone/approveflow/internal/crm"
	"github.com/Dicklesworthstone/approveflow/internal/provider"
	"github.com/Dicklesworthstone/approveflow/internal/runner"
	"github.com/spf13/cobra"
)

var (
	flagRunWorkbook string
	flagRunSheet    string
	flagRunLevels   int
	flagRunCases    []string
	flagRunKind     string
	flagRunSeed     uint64
	flagRunNotify   bool
)

func init() {
	runCmd.Flags().StringVarP(&flagRunWorkbook, "workbook", "w", "", "test-case workbook (overrides workbook.path)")
	runCmd.Flags().StringVarP(&flagRunSheet, "sheet", "s", "", "sheet to run (default <levels>级审批)")
	runCmd.Flags().IntVarP(&flagRunLevels, "levels", "l", 0, "chain depth selecting the sheet (overrides business.levels)")
	runCmd.Flags().StringSliceVar(&flagRunCases, "case", nil, "run only the named cases")
	runCmd.Flags().StringVarP(&flagRunKind, "kind", "k", "", "business kind (overrides business.kind)")
	runCmd.Flags().Uint64Var(&flagRunSeed, "seed", 0, "random seed for actor selection (overrides random.seed)")
	runCmd.Flags().BoolVar(&flagRunNotify, "notifications", false, "also compare the applicant's notifications after each action (logged only)")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workbook sheet against the CRM",
	Long: `Run every test case of one workbook sheet against the CRM.

For each case the approval chain is reconfigured as the pc admin, a new
business record is applied as the applicant and every approver acts in
turn. The status shown in the record list must match after each action.
A failing case does not stop the others; results are stored in the run
history.

Examples:
  approveflow run
  approveflow run --levels 3
  approveflow run --sheet 2级审批 --case "happy path" --seed 42`,
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

		sheet, cases, err := loadCases(cfg, flagRunWorkbook, flagRunSheet, flagRunLevels, flagRunCases)
		if err != nil {
			return err
		}

		kindName := cfg.Business.Kind
		if flagRunKind != "" {
			kindName = flagRunKind
		}
		kind, err := crm.LookupKind(kindName)
		if err != nil {
			return err
		}
		labels, err := core.LabelsFor(cfg.Labels.Locale)
		if err != nil {
			return err
		}
		seed := cfg.Random.Seed
		if cmd.Flags().Changed("seed") {
			seed = flagRunSeed
		}

		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		client, err := crm.New(crm.Options{
			BaseURL:     cfg.Server.Domain,
			Kind:        kind,
			Timeout:     cfg.Server.Timeout,
			Credentials: cfg.Password,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		r, err := runner.New(runner.Options{
			Directory:          database,
			Business:           client,
			Recorder:           database,
			BusinessName:       kind.Singular,
			Labels:             labels,
			Seed:               seed,
			CheckNotifications: flagRunNotify,
			Logger:             logger,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		logger.Info("running sheet", "sheet", sheet, "cases", len(cases), "business", kind.Singular, "crm", cfg.Server.Domain)
		rep, runErr := r.RunAll(ctx, sheet, cases)
		if rep == nil {
			return runErr
		}
		if err := w.Results(rep); err != nil {
			return err
		}
		if runErr != nil {
			_, failed, errored := rep.Counts()
			if failed+errored == 0 {
				return runErr
			}
			return fmt.Errorf("%d of %d scenario(s) did not pass", failed+errored, len(rep.Results))
		}
		return nil
	},
}

// loadCases reads the selected sheet, optionally keeping only named cases.
func loadCases(cfg config.Config, workbook, sheet string, levels int, names []string) (string, []provider.Case, error) {
	if workbook == "" {
		workbook = cfg.Workbook.Path
	}
	if sheet == "" {
		if levels <= 0 {
			levels = cfg.Business.Levels
		}
		sheet = provider.SheetForLevels(levels)
	}

	wb, err := provider.Open(workbook)
	if err != nil {
		return sheet, nil, err
	}
	defer wb.Close()

	cases, err := wb.Records(sheet)
	if err != nil {
		return sheet, nil, err
	}
	if len(names) > 0 {
		cases = slices.DeleteFunc(cases, func(c provider.Case) bool {
			return !slices.Contains(names, c.Name)
		})
	}
	if len(cases) == 0 {
		return sheet, nil, fmt.Errorf("no test cases in sheet %q of %s", sheet, workbook)
	}
	return sheet, cases, nil
}
