package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/Dicklesworthstone/approveflow/internal/testutil"
	"github.com/spf13/cobra"
)

// newTestPlanCmd creates a fresh plan command for testing.
func newTestPlanCmd(dbPath, configPath string) *cobra.Command {
	root := newTestRoot(dbPath, configPath)
	cmd := &cobra.Command{
		Use:  "plan",
		Args: cobra.NoArgs,
		RunE: planCmd.RunE,
	}
	cmd.Flags().StringVarP(&flagPlanWorkbook, "workbook", "w", "", "test-case workbook")
	cmd.Flags().StringVarP(&flagPlanSheet, "sheet", "s", "", "sheet to plan")
	cmd.Flags().IntVarP(&flagPlanLevels, "levels", "l", 0, "chain depth")
	cmd.Flags().StringSliceVar(&flagPlanCases, "case", nil, "case names")
	cmd.Flags().Uint64Var(&flagPlanSeed, "seed", 0, "random seed")
	root.AddCommand(cmd)
	return root
}

func resetPlanFlags() {
	resetFlags()
	flagPlanWorkbook = ""
	flagPlanSheet = ""
	flagPlanLevels = 0
	flagPlanCases = nil
	flagPlanSeed = 0
}

type planOutput []struct {
	Name  string `json:"name"`
	Error string `json:"error"`
	Steps []struct {
		Step     int    `json:"step"`
		Policy   string `json:"policy"`
		Actor    string `json:"actor"`
		Result   string `json:"result"`
		Expected string `json:"expected"`
	} `json:"steps"`
}

func TestPlanCommand_ResolvesOffline(t *testing.T) {
	// No CRM is listening on this domain; plan must not need one.
	e := newEnv(t, "http://127.0.0.1:1")
	writeWorkbook(t, e.Workbook, "2级审批", [][]any{
		{"name", "result", "interrupt", "1step", "2step"},
		{"admin", "通过", 2, "负责人主管", "超管"},
		{"cross", "否决", nil, "越级主管", "上一级审批人主管"},
	})
	resetPlanFlags()

	stdout, err := executeCommandCapture(t, newTestPlanCmd(e.DBPath, e.ConfigPath), "plan", "-j", "--seed", "9")
	if err != nil {
		t.Fatalf("unexpected error: %v\nstdout: %s", err, stdout)
	}
	var got planOutput
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("failed to parse JSON: %v\nstdout: %s", err, stdout)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(got))
	}

	admin := got[0]
	if len(admin.Steps) != 2 || admin.Steps[0].Actor != "manager" || admin.Steps[1].Actor != "root" {
		t.Fatalf("unexpected admin plan: %+v", admin)
	}
	if admin.Steps[1].Policy != "Administrator" || admin.Steps[1].Expected != "Approved" {
		t.Errorf("unexpected final step: %+v", admin.Steps[1])
	}

	cross := got[1]
	if len(cross.Steps) != 2 || cross.Steps[0].Actor != "director" || cross.Steps[1].Actor != "vp" {
		t.Fatalf("unexpected cross-level plan: %+v", cross)
	}
	if cross.Steps[1].Result != "Deny" || cross.Steps[1].Expected != "Denied" {
		t.Errorf("unexpected final step: %+v", cross.Steps[1])
	}
}

func TestPlanCommand_ReportsBrokenCases(t *testing.T) {
	e := newEnv(t, "http://127.0.0.1:1")
	writeWorkbook(t, e.Workbook, "1级审批", [][]any{
		{"name", "result", "interrupt", "1step"},
		{"ok", "撤销", nil, "任意一人"},
		{"bad interrupt", "通过", 4, "任意一人"},
	})
	resetPlanFlags()

	stdout, err := executeCommandCapture(t, newTestPlanCmd(e.DBPath, e.ConfigPath), "plan", "--levels", "1")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 case(s) could not be planned") {
		t.Fatalf("expected a planning error, got %v", err)
	}
	for _, want := range []string{"ok (configured levels: 1", "applicant", "Revoked", "bad interrupt", "error: configuration error"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestPlanCommand_MatchesRunWithSeed(t *testing.T) {
	fake := testutil.NewFakeCRM(t)
	e := newEnv(t, fake.URL())
	fake.AddDirectory(e.Org.Dir, "secret")
	writeWorkbook(t, e.Workbook, "2级审批", [][]any{
		{"name", "result", "interrupt", "1step", "2step"},
		{"pick one", "通过", 2, "负责人主管", "任意一人"},
		{"pick two", "通过", 2, "负责人主管", "任意一人"},
		{"pick three", "通过", 2, "负责人主管", "任意一人"},
	})

	for seed := 1; seed <= 5; seed++ {
		seedArg := fmt.Sprint(seed)

		resetPlanFlags()
		stdout, err := executeCommandCapture(t, newTestPlanCmd(e.DBPath, e.ConfigPath), "plan", "-j", "--seed", seedArg)
		if err != nil {
			t.Fatalf("plan: %v\nstdout: %s", err, stdout)
		}
		var plans planOutput
		if err := json.Unmarshal([]byte(stdout), &plans); err != nil {
			t.Fatalf("failed to parse plan JSON: %v\nstdout: %s", err, stdout)
		}

		resetRunFlags()
		stdout, err = executeCommandCapture(t, newTestRunCmd(e.DBPath, e.ConfigPath), "run", "-j", "--seed", seedArg)
		if err != nil {
			t.Fatalf("run: %v\nstdout: %s", err, stdout)
		}
		var ran runOutput
		if err := json.Unmarshal([]byte(stdout), &ran); err != nil {
			t.Fatalf("failed to parse run JSON: %v\nstdout: %s", err, stdout)
		}

		if len(plans) != 3 || len(ran.Results) != 3 {
			t.Fatalf("seed %d: %d plans, %d results", seed, len(plans), len(ran.Results))
		}
		for i := range plans {
			planned := plans[i].Steps[len(plans[i].Steps)-1].Actor
			actions := ran.Results[i].Actions
			if got := actions[len(actions)-1].Actor; got != planned {
				t.Errorf("seed %d, %s: plan picks %s, run picked %s", seed, plans[i].Name, planned, got)
			}
		}
	}
}
