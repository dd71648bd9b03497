package core

import (
	"context"
)

// resolveInput carries what a policy resolver may consult.
type resolveInput struct {
	cfg      StepConfig
	setting  *SettingStep
	previous []*User
}

type resolver func(ctx context.Context, f *Flow, in resolveInput) ([]*User, error)

// resolvers maps each policy to its execution-time actor resolution.
var resolvers = map[Policy]resolver{
	PolicySuperior:         resolveSuperior,
	PolicyCrossLevel:       resolveCrossLevel,
	PolicyPreviousSuperior: resolvePreviousSuperior,
	PolicySpecified:        resolveSpecified,
	PolicySpecifiedJointly: resolveSpecifiedJointly,
	PolicyAdministrator:    resolveAdministrator,
}

// resolve returns the actors of one dequeued step. Outcome overrides are
// applied on top of the policy's base resolution.
func (f *Flow) resolve(ctx context.Context, cfg StepConfig, previous []*User, terminal bool) ([]*User, error) {
	switch f.spec.Outcome {
	case OutcomeRevoke:
		u, err := f.lookupApplicant(ctx)
		if err != nil {
			return nil, lookupError(cfg, RoleApplier, err)
		}
		return []*User{u}, nil
	case OutcomeUnauthorized:
		u, err := f.dir.FindUser(ctx, RoleIllegal)
		if err != nil {
			return nil, lookupError(cfg, RoleIllegal, err)
		}
		return []*User{u}, nil
	}

	setting, err := f.setting(cfg.Number)
	if err != nil {
		return nil, err
	}
	fn, ok := resolvers[cfg.Policy]
	if !ok {
		return nil, &ConfigurationError{Step: cfg.Number, Field: "policy", Message: "no resolver for " + cfg.Policy.String()}
	}
	actors, err := fn(ctx, f, resolveInput{cfg: cfg, setting: setting, previous: previous})
	if err != nil {
		return nil, err
	}

	if terminal {
		switch f.spec.Outcome {
		case OutcomeReject:
			// A previous actor sends the record back.
			if len(previous) == 0 {
				return nil, &ResolutionError{Step: cfg.Number, Policy: cfg.Policy, Message: "reject needs a previous actor"}
			}
			actors = pickOne(f.opts.rand, previous)
		case OutcomeDeny:
			// One decisive denier, even within a co-sign group.
			actors = pickOne(f.opts.rand, actors)
		}
	}
	return actors, nil
}

func resolveSuperior(ctx context.Context, f *Flow, in resolveInput) ([]*User, error) {
	applicant, err := f.lookupApplicant(ctx)
	if err != nil {
		return nil, lookupError(in.cfg, RoleApplier, err)
	}
	if len(applicant.Superiors) == 0 {
		return nil, emptyPool(in.cfg, "applicant has no superiors")
	}
	return append([]*User(nil), applicant.Superiors...), nil
}

func resolveCrossLevel(ctx context.Context, f *Flow, in resolveInput) ([]*User, error) {
	applicant, err := f.lookupApplicant(ctx)
	if err != nil {
		return nil, lookupError(in.cfg, RoleApplier, err)
	}
	if len(applicant.Superiors) == 0 {
		return nil, emptyPool(in.cfg, "applicant has no superiors")
	}
	next := applicant.Superiors[0].Superiors
	if len(next) == 0 {
		return nil, emptyPool(in.cfg, "applicant's superior has no superiors")
	}
	return append([]*User(nil), next...), nil
}

func resolvePreviousSuperior(_ context.Context, _ *Flow, in resolveInput) ([]*User, error) {
	if len(in.previous) == 0 {
		return nil, emptyPool(in.cfg, "no previous actor")
	}
	superiors := in.previous[0].Superiors
	if len(superiors) == 0 {
		return nil, emptyPool(in.cfg, "previous actor has no superiors")
	}
	return append([]*User(nil), superiors...), nil
}

func resolveSpecified(_ context.Context, f *Flow, in resolveInput) ([]*User, error) {
	if len(in.setting.EligibleUsers) == 0 {
		return nil, &ResolutionError{Step: in.cfg.Number, Policy: in.cfg.Policy, Role: RoleNormal, Message: "no eligible users"}
	}
	return pickOne(f.opts.rand, in.setting.EligibleUsers), nil
}

func resolveSpecifiedJointly(_ context.Context, _ *Flow, in resolveInput) ([]*User, error) {
	if len(in.setting.EligibleUsers) == 0 {
		return nil, &ResolutionError{Step: in.cfg.Number, Policy: in.cfg.Policy, Role: RoleNormal, Message: "no eligible users"}
	}
	return append([]*User(nil), in.setting.EligibleUsers...), nil
}

func resolveAdministrator(ctx context.Context, f *Flow, in resolveInput) ([]*User, error) {
	u, err := f.dir.FindUser(ctx, RoleSuper)
	if err != nil {
		return nil, lookupError(in.cfg, RoleSuper, err)
	}
	return []*User{u}, nil
}

func lookupError(cfg StepConfig, role string, err error) error {
	return &ResolutionError{Step: cfg.Number, Policy: cfg.Policy, Role: role, Message: "directory lookup failed", Err: err}
}

func emptyPool(cfg StepConfig, msg string) error {
	return &ResolutionError{Step: cfg.Number, Policy: cfg.Policy, Message: msg}
}
