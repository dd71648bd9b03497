package runner_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Dicklesworthstone/approveflow/internal/core"
	"github.com/Dicklesworthstone/approveflow/internal/crm"
	"github.com/Dicklesworthstone/approveflow/internal/db"
	"github.com/Dicklesworthstone/approveflow/internal/provider"
	"github.com/Dicklesworthstone/approveflow/internal/runner"
	"github.com/Dicklesworthstone/approveflow/internal/testutil"
	"github.com/hashicorp/go-multierror"
)

// scriptedBusiness replays a fixed list of statuses per applied record.
type scriptedBusiness struct {
	scripts [][]string
	refuse  map[string]bool

	applied    int
	cursor     map[string]int
	configured []url.Values
	acts       []string
	applyErr   error
}

func newScripted(scripts ...[]string) *scriptedBusiness {
	return &scriptedBusiness{scripts: scripts, refuse: map[string]bool{}, cursor: map[string]int{}}
}

func (b *scriptedBusiness) Configure(_ context.Context, _ *core.User, payload url.Values) error {
	b.configured = append(b.configured, payload)
	return nil
}

func (b *scriptedBusiness) Apply(_ context.Context, _ *core.User) (string, error) {
	if b.applyErr != nil {
		return "", b.applyErr
	}
	id := strconv.Itoa(b.applied)
	b.applied++
	return id, nil
}

func (b *scriptedBusiness) Act(_ context.Context, actor *core.User, _ string, step int, result core.Outcome) (bool, error) {
	b.acts = append(b.acts, fmt.Sprintf("%d:%s:%s", step, actor.Name, result.Action()))
	return !b.refuse[actor.Phone], nil
}

func (b *scriptedBusiness) Status(_ context.Context, _ *core.User, id string) (string, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return "", err
	}
	script := b.scripts[n]
	i := b.cursor[id]
	b.cursor[id]++
	if i >= len(script) {
		return script[len(script)-1], nil
	}
	return script[i], nil
}

func newRunner(t *testing.T, org *testutil.Org, business runner.Business, rec runner.Recorder) *runner.Runner {
	t.Helper()
	r, err := runner.New(runner.Options{
		Directory:    org.Dir,
		Business:     business,
		Recorder:     rec,
		BusinessName: "customer",
		Seed:         7,
		Logger:       testutil.TestLogger(t),
	})
	testutil.RequireNoError(t, err, "new runner")
	return r
}

func awaiting(n int) string {
	return core.EnglishLabels.AwaitingLevel(n)
}

var twoLevelApprove = provider.Case{Name: "approve", Row: 2, Record: core.Record{
	"result":    "通过",
	"interrupt": "2",
	"1step":     "负责人主管",
	"2step":     "超管",
}}

func TestNewRequiresDirectory(t *testing.T) {
	if _, err := runner.New(runner.Options{Business: newScripted()}); err == nil {
		t.Fatal("expected an error without a directory")
	}
}

func TestRunWithoutBusinessOnlyPlans(t *testing.T) {
	org := testutil.NewOrg()
	r, err := runner.New(runner.Options{Directory: org.Dir, Logger: testutil.TestLogger(t)})
	testutil.RequireNoError(t, err, "planning runner")

	_, steps, err := r.Plan(context.Background(), twoLevelApprove.Record)
	testutil.RequireNoError(t, err, "plan")
	testutil.RequireLen(t, steps, 2, "steps")

	res := r.RunScenario(context.Background(), twoLevelApprove)
	if !errors.Is(res.Err, runner.ErrNoBusiness) || res.Status != db.ScenarioErrored {
		t.Fatalf("RunScenario() = %v (%s), want ErrNoBusiness", res.Err, res.Status)
	}
	if _, err := r.RunAll(context.Background(), "2级审批", []provider.Case{twoLevelApprove}); !errors.Is(err, runner.ErrNoBusiness) {
		t.Fatalf("RunAll() error = %v, want ErrNoBusiness", err)
	}
}

func TestPlanMatchesRunWithSameSeed(t *testing.T) {
	org := testutil.NewOrg()
	cases := []provider.Case{
		{Name: "first", Row: 2, Record: core.Record{"result": "通过", "interrupt": "1", "1step": "任意一人"}},
		{Name: "second", Row: 3, Record: core.Record{"result": "通过", "interrupt": "1", "1step": "任意一人"}},
		{Name: "third", Row: 4, Record: core.Record{"result": "否决", "1step": "多人会签"}},
	}

	for seed := uint64(1); seed <= 20; seed++ {
		planner, err := runner.New(runner.Options{Directory: org.Dir, Seed: seed, Logger: testutil.TestLogger(t)})
		testutil.RequireNoError(t, err, "planner")
		var planned []string
		for _, c := range cases {
			_, steps, err := planner.Plan(context.Background(), c.Record)
			testutil.RequireNoError(t, err, "plan "+c.Name)
			planned = append(planned, steps[len(steps)-1].Actors()[0].Name)
		}

		b := newScripted(
			[]string{awaiting(1), "Approved"},
			[]string{awaiting(1), "Approved"},
			[]string{awaiting(1), "Denied"},
		)
		r, err := runner.New(runner.Options{Directory: org.Dir, Business: b, Seed: seed, Logger: testutil.TestLogger(t)})
		testutil.RequireNoError(t, err, "runner")
		report, err := r.RunAll(context.Background(), "1级审批", cases)
		testutil.RequireNoError(t, err, fmt.Sprintf("run all, seed %d", seed))
		var ran []string
		for _, res := range report.Results {
			ran = append(ran, res.Actions[len(res.Actions)-1].Actor)
		}
		testutil.RequireEqual(t, planned, ran, fmt.Sprintf("actors for seed %d", seed))
	}
}

type notifyingBusiness struct {
	*scriptedBusiness
	reads int
}

func (b *notifyingBusiness) Notifications(context.Context, *core.User, string) ([]string, error) {
	b.reads++
	return nil, nil
}

func TestNotificationsCheckedOnlyWhenEnabled(t *testing.T) {
	org := testutil.NewOrg()
	for _, enabled := range []bool{false, true} {
		t.Run(fmt.Sprintf("enabled=%v", enabled), func(t *testing.T) {
			b := &notifyingBusiness{scriptedBusiness: newScripted([]string{awaiting(1), awaiting(2), "Approved"})}
			r, err := runner.New(runner.Options{
				Directory:          org.Dir,
				Business:           b,
				CheckNotifications: enabled,
				Logger:             testutil.TestLogger(t),
			})
			testutil.RequireNoError(t, err, "runner")
			res := r.RunScenario(context.Background(), twoLevelApprove)
			testutil.RequireNoError(t, res.Err, "scenario")
			want := 0
			if enabled {
				want = 2
			}
			testutil.RequireEqual(t, want, b.reads, "notification reads")
		})
	}
}

func TestRunScenarioPassed(t *testing.T) {
	org := testutil.NewOrg()
	b := newScripted([]string{awaiting(1), awaiting(2), "Approved"})
	r := newRunner(t, org, b, nil)

	res := r.RunScenario(context.Background(), twoLevelApprove)
	testutil.RequireNoError(t, res.Err, "scenario")
	testutil.RequireEqual(t, db.ScenarioPassed, res.Status, "status")
	testutil.RequireEqual(t, "0", res.BusinessID, "business id")
	testutil.RequireEqual(t, []string{"1:manager:approve", "2:root:approve"}, b.acts, "actions")
	testutil.RequireLen(t, res.Actions, 2, "recorded actions")
	if a := res.Actions[1]; a.Policy != core.PolicyAdministrator || a.Expected != "Approved" || a.Actual != "Approved" || !a.Accepted {
		t.Fatalf("unexpected action: %+v", a)
	}

	testutil.RequireLen(t, b.configured, 1, "configure calls")
	testutil.RequireEqual(t, "superior", b.configured[0].Get("_approve[multistep][1][type]"), "step 1 type")
	testutil.RequireEqual(t, "specified", b.configured[0].Get("_approve[multistep][2][type]"), "step 2 type")
}

func TestRunScenarioMismatch(t *testing.T) {
	org := testutil.NewOrg()
	b := newScripted([]string{awaiting(1), "Approved"})
	r := newRunner(t, org, b, nil)

	res := r.RunScenario(context.Background(), twoLevelApprove)
	testutil.RequireEqual(t, db.ScenarioFailed, res.Status, "status")

	var mismatch *runner.AssertionMismatch
	testutil.RequireErrorAs(t, res.Err, &mismatch, "mismatch")
	testutil.RequireEqual(t, runner.AssertionMismatch{
		Scenario: "approve",
		Step:     1,
		Actor:    "manager",
		Expected: awaiting(2),
		Actual:   "Approved",
	}, *mismatch, "mismatch details")
	testutil.RequireLen(t, res.Actions, 1, "walk stops at the mismatch")
	testutil.RequireEqual(t, "Approved", res.Actions[0].Actual, "actual status recorded")
	if !strings.HasPrefix(res.Message(), "approve: step 1 (manager)") {
		t.Fatalf("unexpected message %q", res.Message())
	}
}

func TestRunScenarioStatusAfterApply(t *testing.T) {
	org := testutil.NewOrg()
	b := newScripted([]string{"Approved"})
	r := newRunner(t, org, b, nil)

	res := r.RunScenario(context.Background(), twoLevelApprove)
	var mismatch *runner.AssertionMismatch
	testutil.RequireErrorAs(t, res.Err, &mismatch, "mismatch")
	testutil.RequireEqual(t, 0, mismatch.Step, "step")
	testutil.RequireEqual(t, "applicant", mismatch.Actor, "actor")
	testutil.RequireLen(t, b.acts, 0, "no actions after a failed apply check")
}

func TestRunScenarioErrored(t *testing.T) {
	org := testutil.NewOrg()
	b := newScripted([]string{awaiting(1)})
	r := newRunner(t, org, b, nil)

	res := r.RunScenario(context.Background(), provider.Case{Name: "broken", Record: core.Record{
		"result": "通过", "interrupt": "1", "1step": "nobody",
	}})
	testutil.RequireEqual(t, db.ScenarioErrored, res.Status, "status")
	if !core.IsConfigurationError(res.Err) {
		t.Fatalf("expected a configuration error, got %v", res.Err)
	}
	testutil.RequireLen(t, b.configured, 0, "nothing configured")

	b.applyErr = errors.New("connection refused")
	res = r.RunScenario(context.Background(), twoLevelApprove)
	testutil.RequireEqual(t, db.ScenarioErrored, res.Status, "status")
	if !strings.Contains(res.Message(), "connection refused") {
		t.Fatalf("unexpected message %q", res.Message())
	}
}

func TestRunScenarioUnauthorized(t *testing.T) {
	tc := provider.Case{Name: "illegal", Record: core.Record{"result": "无权限", "1step": "负责人主管"}}

	t.Run("refused", func(t *testing.T) {
		org := testutil.NewOrg()
		b := newScripted([]string{awaiting(1)})
		b.refuse[org.Illegal.Phone] = true
		res := newRunner(t, org, b, nil).RunScenario(context.Background(), tc)
		testutil.RequireNoError(t, res.Err, "scenario")
		testutil.RequireEqual(t, []string{"1:mallory:approve"}, b.acts, "actions")
		if res.Actions[0].Accepted {
			t.Fatal("action should be recorded as refused")
		}
	})

	t.Run("accepted", func(t *testing.T) {
		org := testutil.NewOrg()
		b := newScripted([]string{awaiting(1)})
		res := newRunner(t, org, b, nil).RunScenario(context.Background(), tc)
		var mismatch *runner.AssertionMismatch
		testutil.RequireErrorAs(t, res.Err, &mismatch, "mismatch")
		testutil.RequireEqual(t, "refused", mismatch.Expected, "expected")
		testutil.RequireEqual(t, "accepted", mismatch.Actual, "actual")
	})
}

func TestRunScenarioReject(t *testing.T) {
	org := testutil.NewOrg()
	b := newScripted([]string{awaiting(1), awaiting(2), awaiting(2), "Denied"})
	r := newRunner(t, org, b, nil)

	res := r.RunScenario(context.Background(), provider.Case{Name: "reject", Record: core.Record{
		"result":    "驳回",
		"interrupt": "2",
		"1step":     "负责人主管",
		"2step":     "超管",
	}})
	testutil.RequireNoError(t, res.Err, "scenario")
	testutil.RequireEqual(t, []string{"1:manager:approve", "2:root:approve", "2:root:deny"}, b.acts, "actions")
	testutil.RequireEqual(t, core.OutcomeReject, res.Actions[2].Result, "terminal result")
}

func TestRunAllRecordsEveryCase(t *testing.T) {
	org := testutil.NewOrg()
	database := testutil.NewTestDB(t)
	b := newScripted(
		[]string{awaiting(1), awaiting(2), "Approved"},
		[]string{awaiting(1), "Denied"},
	)
	r := newRunner(t, org, b, database)

	cases := []provider.Case{
		twoLevelApprove,
		{Name: "mismatch", Row: 3, Record: twoLevelApprove.Record},
		{Name: "broken", Row: 4, Record: core.Record{"result": "maybe", "1step": "超管"}},
	}
	report, err := r.RunAll(context.Background(), "2级审批", cases)
	if err == nil {
		t.Fatal("expected an aggregated error")
	}
	var merr *multierror.Error
	testutil.RequireErrorAs(t, err, &merr, "multierror")
	testutil.RequireLen(t, merr.Errors, 2, "failed cases")

	passed, failed, errored := report.Counts()
	testutil.RequireEqual(t, [3]int{1, 1, 1}, [3]int{passed, failed, errored}, "counts")
	if report.RunID == "" {
		t.Fatal("run id not set")
	}

	ctx := context.Background()
	run, err := database.GetRun(ctx, report.RunID)
	testutil.RequireNoError(t, err, "get run")
	if run.FinishedAt == nil || run.Business != "customer" || run.Sheet != "2级审批" {
		t.Fatalf("unexpected run: %+v", run)
	}
	stored, err := database.ListResults(ctx, report.RunID)
	testutil.RequireNoError(t, err, "list results")
	testutil.RequireLen(t, stored, 3, "stored results")
	if s := stored[1]; s.Status != db.ScenarioFailed || s.Step != 1 || s.Actor != "manager" || s.Expected != awaiting(2) || s.Actual != "Denied" {
		t.Fatalf("mismatch not recorded: %+v", s)
	}
	testutil.RequireEqual(t, db.ScenarioErrored, stored[2].Status, "errored status")
}

func TestRunAllStopsOnCancel(t *testing.T) {
	org := testutil.NewOrg()
	r := newRunner(t, org, newScripted([]string{awaiting(1)}), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.RunAll(ctx, "2级审批", []provider.Case{twoLevelApprove})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	testutil.RequireLen(t, report.Results, 0, "no cases run")
}

func TestPlan(t *testing.T) {
	org := testutil.NewOrg()
	r := newRunner(t, org, newScripted(), nil)

	flow, steps, err := r.Plan(context.Background(), twoLevelApprove.Record)
	testutil.RequireNoError(t, err, "plan")
	testutil.RequireEqual(t, 2, flow.Len(), "flow length")
	testutil.RequireLen(t, steps, 2, "steps")
	testutil.RequireEqual(t, []*core.User{org.Super}, steps[1].Actors(), "administrator actor")
}

func TestRunAgainstFakeCRM(t *testing.T) {
	fake := testutil.NewFakeCRM(t)
	org := testutil.NewOrg()
	fake.AddDirectory(org.Dir, "secret")
	kind, err := crm.LookupKind("customer")
	testutil.RequireNoError(t, err, "kind")
	client, err := crm.New(crm.Options{
		BaseURL:     fake.URL(),
		Kind:        kind,
		Timeout:     5 * time.Second,
		Credentials: fake.Password,
		Logger:      testutil.TestLogger(t),
	})
	testutil.RequireNoError(t, err, "client")

	database := testutil.NewTestDB(t)
	r := newRunner(t, org, client, database)
	cases := []provider.Case{
		{Name: "co-sign", Row: 2, Record: core.Record{"result": "通过", "interrupt": "2", "1step": "负责人主管", "2step": "多人会签"}},
		{Name: "deny", Row: 3, Record: core.Record{"result": "否决", "1step": "负责人主管", "2step": "任意一人"}},
		{Name: "revoke", Row: 4, Record: core.Record{"result": "撤销", "1step": "上一级审批人主管"}},
		{Name: "illegal", Row: 5, Record: core.Record{"result": "无权限", "1step": "越级主管", "2step": "超管"}},
		{Name: "revoke chain", Row: 6, Record: core.Record{"result": "撤销", "1step": "负责人主管", "2step": "多人会签", "3step": "超管"}},
	}
	report, err := r.RunAll(context.Background(), "2级审批", cases)
	testutil.RequireNoError(t, err, "run all")

	passed, failed, errored := report.Counts()
	testutil.RequireEqual(t, [3]int{5, 0, 0}, [3]int{passed, failed, errored}, "counts")
	testutil.RequireLen(t, report.Results[0].Actions, 4, "superior plus three co-signers")
	testutil.RequireEqual(t, "Approved", fake.Status(report.Results[0].BusinessID), "co-sign record")
	testutil.RequireEqual(t, "Denied", fake.Status(report.Results[1].BusinessID), "denied record")
	testutil.RequireEqual(t, "Revoked", fake.Status(report.Results[2].BusinessID), "revoked record")
	testutil.RequireEqual(t, awaiting(1), fake.Status(report.Results[3].BusinessID), "untouched record")
	testutil.RequireEqual(t, "Revoked", fake.Status(report.Results[4].BusinessID), "revoked chain")
	testutil.RequireLen(t, report.Results[4].Actions, 3, "applicant revokes at every step")
	for i, a := range report.Results[4].Actions {
		testutil.RequireEqual(t, org.Applicant.Name, a.Actor, fmt.Sprintf("revoke actor %d", i))
		testutil.RequireEqual(t, core.OutcomeRevoke, a.Result, fmt.Sprintf("revoke action %d", i))
		testutil.RequireEqual(t, "Revoked", a.Actual, fmt.Sprintf("revoke status %d", i))
	}
	testutil.RequireEqual(t, 5, fake.Configured(), "one configuration per case")

	summaries, err := database.ListRuns(context.Background(), 1)
	testutil.RequireNoError(t, err, "list runs")
	testutil.RequireEqual(t, 5, summaries[0].Passed, "recorded passes")
}
