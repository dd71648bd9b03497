// Package runner drives approval scenarios against a business backend:
// it configures the chain, applies a record, walks every actor and checks
// the status the backend reports after each action.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/Dicklesworthstone/approveflow/internal/core"
	"github.com/Dicklesworthstone/approveflow/internal/db"
	"github.com/Dicklesworthstone/approveflow/internal/provider"
	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"
)

// Business is the system under test.
type Business interface {
	// Configure replaces the approval chain with payload, acting as admin.
	Configure(ctx context.Context, admin *core.User, payload url.Values) error
	// Apply submits a new record for approval and returns its id.
	Apply(ctx context.Context, applicant *core.User) (string, error)
	// Act submits result for step. accepted is false when the backend
	// refused the action.
	Act(ctx context.Context, actor *core.User, id string, step int, result core.Outcome) (accepted bool, err error)
	// Status returns the record's approval status label as seen by viewer.
	Status(ctx context.Context, viewer *core.User, id string) (string, error)
}

// Notifier is implemented by backends that expose the applicant's
// notifications. Checking them is best effort.
type Notifier interface {
	Notifications(ctx context.Context, viewer *core.User, id string) ([]string, error)
}

// Recorder persists run history. *db.DB implements it.
type Recorder interface {
	CreateRun(ctx context.Context, r *db.Run) error
	RecordResult(ctx context.Context, res *db.ScenarioResult) error
	FinishRun(ctx context.Context, id string) error
}

// ErrNoBusiness is returned when scenarios run on a runner built without
// a Business.
var ErrNoBusiness = errors.New("runner: no business backend configured")

// Options configures a Runner.
type Options struct {
	Directory core.Directory
	// Business is required to run scenarios; a runner without one can
	// only Plan.
	Business Business
	// Recorder is optional; nil disables run history.
	Recorder Recorder
	// BusinessName labels recorded runs, for example "customer".
	BusinessName string
	Labels       core.Labels
	// Rand overrides the random source; Seed is used when Rand is nil
	// and Seed is non-zero.
	Rand core.Rand
	Seed uint64
	// CheckNotifications compares the applicant's notifications after
	// every action when Business implements Notifier. Mismatches are
	// logged, never failed.
	CheckNotifications bool
	Logger             *log.Logger
}

// Runner executes scenarios one at a time.
type Runner struct {
	opts   Options
	logger *log.Logger
}

// New creates a runner.
func New(opts Options) (*Runner, error) {
	if opts.Directory == nil {
		return nil, errors.New("runner: directory is required")
	}
	if opts.Labels.Approved == "" {
		opts.Labels = core.EnglishLabels
	}
	if opts.Rand == nil && opts.Seed != 0 {
		opts.Rand = core.NewSeededRand(opts.Seed)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{opts: opts, logger: logger}, nil
}

func (r *Runner) flowOptions() []core.Option {
	return []core.Option{
		core.WithLogger(r.logger),
		core.WithLabels(r.opts.Labels),
		core.WithRand(r.opts.Rand),
	}
}

// Plan parses rec and resolves its flow without touching the backend.
// Plans share the runner's random source, so planning the cases of a
// sheet in order picks the same actors as running them with the same seed.
func (r *Runner) Plan(ctx context.Context, rec core.Record) (*core.Flow, []*core.ApprovalStep, error) {
	spec, err := core.ParseSpec(rec, r.flowOptions()...)
	if err != nil {
		return nil, nil, err
	}
	flow, err := core.NewFlow(ctx, spec, r.opts.Directory, r.flowOptions()...)
	if err != nil {
		return nil, nil, err
	}
	plan, err := flow.Steps(ctx)
	return flow, plan, err
}

// RunScenario executes one test case. The returned result is never nil;
// its Err carries configuration, resolution, transport or assertion errors.
func (r *Runner) RunScenario(ctx context.Context, c provider.Case) *Result {
	res := &Result{Name: c.Name, Row: c.Row}
	res.Err = r.runScenario(ctx, c, res)

	var mismatch *AssertionMismatch
	switch {
	case res.Err == nil:
		res.Status = db.ScenarioPassed
		r.logger.Info("scenario passed", "name", c.Name, "actions", len(res.Actions))
	case errors.As(res.Err, &mismatch):
		mismatch.Scenario = c.Name
		res.Status = db.ScenarioFailed
		r.logger.Error("scenario failed", "name", c.Name, "err", res.Err)
	default:
		res.Status = db.ScenarioErrored
		r.logger.Error("scenario errored", "name", c.Name, "err", res.Err)
	}
	return res
}

func (r *Runner) runScenario(ctx context.Context, c provider.Case, res *Result) error {
	if r.opts.Business == nil {
		return ErrNoBusiness
	}
	spec, err := core.ParseSpec(c.Record, r.flowOptions()...)
	if err != nil {
		return err
	}
	res.Spec = spec

	flow, err := core.NewFlow(ctx, spec, r.opts.Directory, r.flowOptions()...)
	if err != nil {
		return err
	}

	admin, err := r.opts.Directory.FindUser(ctx, core.RoleAdmin)
	if err != nil {
		return fmt.Errorf("finding admin: %w", err)
	}
	applicant, err := r.opts.Directory.FindUser(ctx, core.RoleApplier)
	if err != nil {
		return fmt.Errorf("finding applicant: %w", err)
	}

	if err := r.opts.Business.Configure(ctx, admin, flow.SettingsPayload("")); err != nil {
		return fmt.Errorf("configuring approval chain: %w", err)
	}
	id, err := r.opts.Business.Apply(ctx, applicant)
	if err != nil {
		return fmt.Errorf("applying record: %w", err)
	}
	res.BusinessID = id

	if _, err := r.check(ctx, applicant, id, 0, applicant, r.opts.Labels.AwaitingLevel(1)); err != nil {
		return err
	}

	return flow.Walk(ctx, func(step *core.ApprovalStep, us *core.UserStep) error {
		accepted, err := r.opts.Business.Act(ctx, us.User, id, us.Number, us.Result)
		if err != nil {
			return fmt.Errorf("step %d: %s acting: %w", us.Number, us.User.Name, err)
		}
		res.Actions = append(res.Actions, Action{
			Step:     us.Number,
			Policy:   step.Policy,
			Actor:    us.User.Name,
			Result:   us.Result,
			Accepted: accepted,
			Expected: us.Expected,
		})
		unauthorized := us.Outcome == core.OutcomeUnauthorized
		if accepted == unauthorized {
			return &AssertionMismatch{
				Step:     us.Number,
				Actor:    us.User.Name,
				Expected: acceptance(!unauthorized),
				Actual:   acceptance(accepted),
			}
		}

		actual, err := r.check(ctx, applicant, id, us.Number, us.User, us.Expected)
		res.Actions[len(res.Actions)-1].Actual = actual
		if err != nil {
			return err
		}
		if r.opts.CheckNotifications {
			r.checkNotifications(ctx, applicant, id, us)
		}
		return nil
	})
}

// check compares the backend's status with expected.
func (r *Runner) check(ctx context.Context, viewer *core.User, id string, step int, actor *core.User, expected string) (string, error) {
	actual, err := r.opts.Business.Status(ctx, viewer, id)
	if err != nil {
		return "", fmt.Errorf("step %d: reading status: %w", step, err)
	}
	r.logger.Debug("status observed", "step", step, "actor", actor.Name, "expected", expected, "actual", actual)
	if actual != expected {
		return actual, &AssertionMismatch{Step: step, Actor: actor.Name, Expected: expected, Actual: actual}
	}
	return actual, nil
}

func (r *Runner) checkNotifications(ctx context.Context, viewer *core.User, id string, us *core.UserStep) {
	n, ok := r.opts.Business.(Notifier)
	if !ok {
		return
	}
	got, err := n.Notifications(ctx, viewer, id)
	if err != nil {
		r.logger.Warn("reading notifications", "step", us.Number, "err", err)
		return
	}
	for _, want := range us.Notifications() {
		if !slices.Contains(got, want) {
			r.logger.Warn("notification missing", "step", us.Number, "want", want)
		}
	}
}

// RunAll executes every case in order and records them under one run when
// a Recorder is set. A failing case never stops the rest; the returned
// error aggregates every failed or errored case.
func (r *Runner) RunAll(ctx context.Context, sheet string, cases []provider.Case) (*Report, error) {
	if r.opts.Business == nil {
		return nil, ErrNoBusiness
	}
	report := &Report{Sheet: sheet}
	if rec := r.opts.Recorder; rec != nil {
		run := &db.Run{Business: r.opts.BusinessName, Sheet: sheet}
		if err := rec.CreateRun(ctx, run); err != nil {
			return nil, err
		}
		report.RunID = run.ID
	}

	var result error
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}
		res := r.RunScenario(ctx, c)
		report.Results = append(report.Results, res)
		if res.Err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
		if err := r.record(ctx, report.RunID, res); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if report.RunID != "" {
		if err := r.opts.Recorder.FinishRun(ctx, report.RunID); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return report, result
}

func (r *Runner) record(ctx context.Context, runID string, res *Result) error {
	if runID == "" {
		return nil
	}
	row := &db.ScenarioResult{
		RunID:      runID,
		Name:       res.Name,
		Status:     res.Status,
		BusinessID: res.BusinessID,
	}
	var mismatch *AssertionMismatch
	if errors.As(res.Err, &mismatch) {
		row.Step = mismatch.Step
		row.Actor = mismatch.Actor
		row.Expected = mismatch.Expected
		row.Actual = mismatch.Actual
	}
	if res.Err != nil {
		row.Message = res.Err.Error()
	}
	if err := r.opts.Recorder.RecordResult(ctx, row); err != nil {
		return fmt.Errorf("recording %s: %w", res.Name, err)
	}
	return nil
}

func acceptance(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "refused"
}
