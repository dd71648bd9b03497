package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Flow is one configured and executed approval chain.
//
// Steps are produced lazily by Next. The executed sequence is fixed at
// construction: the first InterruptLevel configured steps, with the last
// one repeated for OutcomeReject so that the repeated step is first
// observed as a pass-through and then as the terminal reject.
type Flow struct {
	spec     *Spec
	dir      Directory
	opts     options
	settings []*SettingStep
	sequence []StepConfig
	cursor   int

	// previous holds the last produced step's actors for the next resolution.
	previous []*User
	// applicant is looked up once, on first use.
	applicant *User
}

// NewFlow builds the setting steps for spec and prepares step iteration.
func NewFlow(ctx context.Context, spec *Spec, dir Directory, opts ...Option) (*Flow, error) {
	if spec == nil {
		return nil, errors.New("nil spec")
	}
	if dir == nil {
		return nil, errors.New("nil directory")
	}

	f := &Flow{
		spec: spec,
		dir:  dir,
		opts: buildOptions(opts),
	}

	var eligible []*User
	var looked bool
	for _, cfg := range spec.Steps {
		step := &SettingStep{Number: cfg.Number, Policy: cfg.Policy}
		if cfg.Policy.RequiresExplicitParticipants() {
			if !looked {
				users, err := dir.FindUsersByAuthority(ctx, RoleNormal)
				if err != nil {
					return nil, &ResolutionError{
						Step:    cfg.Number,
						Policy:  cfg.Policy,
						Role:    RoleNormal,
						Message: "looking up eligible users",
						Err:     err,
					}
				}
				eligible, looked = users, true
			}
			step.EligibleUsers = append([]*User(nil), eligible...)
		}
		f.settings = append(f.settings, step)
	}

	f.sequence = append([]StepConfig(nil), spec.Steps[:spec.InterruptLevel]...)
	if spec.Outcome == OutcomeReject {
		f.sequence = append(f.sequence, f.sequence[len(f.sequence)-1])
	}

	f.opts.logger.Info("approval flow ready", "summary", spec.String(), "executed_steps", len(f.sequence))
	return f, nil
}

// Spec returns the parsed test case.
func (f *Flow) Spec() *Spec {
	return f.spec
}

// Settings returns the setting steps in step order.
func (f *Flow) Settings() []*SettingStep {
	return append([]*SettingStep(nil), f.settings...)
}

// SettingsPayload merges every setting fragment, prefixing each key
// (for example with the business singular "customer").
func (f *Flow) SettingsPayload(prefix string) url.Values {
	return mergeFragments(prefix, f.settings)
}

// Len returns the number of approval steps the flow produces in total.
func (f *Flow) Len() int {
	return len(f.sequence)
}

// HasNext reports whether another approval step remains.
func (f *Flow) HasNext() bool {
	return f.cursor < len(f.sequence)
}

// Next resolves and returns the next approval step.
// It returns ErrFlowExhausted once every step was produced.
func (f *Flow) Next(ctx context.Context) (*ApprovalStep, error) {
	if !f.HasNext() {
		return nil, ErrFlowExhausted
	}
	cfg := f.sequence[f.cursor]
	f.cursor++
	remaining := len(f.sequence) - f.cursor

	actors, err := f.resolve(ctx, cfg, f.previous, remaining == 0)
	if err != nil {
		return nil, err
	}
	f.previous = actors

	step := &ApprovalStep{
		Number:    cfg.Number,
		Policy:    cfg.Policy,
		Outcome:   f.spec.Outcome,
		actors:    append([]*User(nil), actors...),
		remaining: remaining,
		labels:    f.opts.labels,
	}
	f.opts.logger.Debug("approval step resolved",
		"step", step.Number, "policy", step.Policy, "actors", len(step.actors), "remaining", remaining)
	return step, nil
}

// Steps resolves every remaining approval step.
func (f *Flow) Steps(ctx context.Context) ([]*ApprovalStep, error) {
	var steps []*ApprovalStep
	for f.HasNext() {
		step, err := f.Next(ctx)
		if err != nil {
			return steps, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// Walk calls fn for every user step of every remaining approval step,
// in execution order. A non-nil error from fn stops the walk.
func (f *Flow) Walk(ctx context.Context, fn func(*ApprovalStep, *UserStep) error) error {
	for f.HasNext() {
		step, err := f.Next(ctx)
		if err != nil {
			return err
		}
		for step.HasNext() {
			us, err := step.Next()
			if err != nil {
				return err
			}
			if err := fn(step, us); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *Flow) setting(n int) (*SettingStep, error) {
	if n < 1 || n > len(f.settings) {
		return nil, &ConfigurationError{Step: n, Field: "steps", Message: fmt.Sprintf("no setting for step %d", n)}
	}
	return f.settings[n-1], nil
}

func (f *Flow) lookupApplicant(ctx context.Context) (*User, error) {
	if f.applicant != nil {
		return f.applicant, nil
	}
	u, err := f.dir.FindUser(ctx, RoleApplier)
	if err != nil {
		return nil, err
	}
	f.applicant = u
	return u, nil
}
