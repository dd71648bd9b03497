// Package core implements the approval-flow simulation engine.
//
// A flow is parsed from one test-case record, configures an approval chain
// (setting steps) and then yields, step by step, the users that act on the
// business record together with the status the CRM must show afterwards.
package core

import (
	"fmt"
	"strings"
)

// Policy selects who may act at an approval step.
type Policy int

const (
	// PolicySuperior is resolved from the applicant's superiors.
	PolicySuperior Policy = iota + 1
	// PolicyCrossLevel is configured as Superior but executed by the
	// applicant's superior's superiors.
	PolicyCrossLevel
	// PolicyPreviousSuperior is resolved from the previous actor's superiors.
	PolicyPreviousSuperior
	// PolicySpecified lets any one configured participant act.
	PolicySpecified
	// PolicySpecifiedJointly requires every configured participant to co-sign.
	PolicySpecifiedJointly
	// PolicyAdministrator is configured as Specified and executed by the
	// super-authority user.
	PolicyAdministrator
)

type policyInfo struct {
	ident    string
	name     string
	value    string
	explicit bool
}

var policyTable = map[Policy]policyInfo{
	PolicySuperior:         {ident: "Superior", name: "负责人主管", value: "superior"},
	PolicyCrossLevel:       {ident: "CrossLevel", name: "越级主管", value: "superior"},
	PolicyPreviousSuperior: {ident: "PreviousSuperior", name: "上一级审批人主管", value: "previous_superior"},
	PolicySpecified:        {ident: "Specified", name: "任意一人", value: "specified", explicit: true},
	PolicySpecifiedJointly: {ident: "SpecifiedJointly", name: "多人会签", value: "specified_jointly", explicit: true},
	PolicyAdministrator:    {ident: "Administrator", name: "超管", value: "specified", explicit: true},
}

// Policies returns every registered policy in declaration order.
func Policies() []Policy {
	return []Policy{
		PolicySuperior,
		PolicyCrossLevel,
		PolicyPreviousSuperior,
		PolicySpecified,
		PolicySpecifiedJointly,
		PolicyAdministrator,
	}
}

// LookupPolicy finds a policy by its display name (for example "多人会签")
// or its identifier (for example "SpecifiedJointly", matched case-insensitively).
func LookupPolicy(name string) (Policy, error) {
	trimmed := strings.TrimSpace(name)
	for _, p := range Policies() {
		info := policyTable[p]
		if trimmed == info.name || strings.EqualFold(trimmed, info.ident) {
			return p, nil
		}
	}
	return 0, &ConfigurationError{Field: "policy", Message: fmt.Sprintf("unknown policy %q", name)}
}

// Valid returns true if p is a registered policy.
func (p Policy) Valid() bool {
	_, ok := policyTable[p]
	return ok
}

// Name returns the display name used in test-case workbooks.
func (p Policy) Name() string {
	return policyTable[p].name
}

// Value returns the wire token sent in the settings payload.
func (p Policy) Value() string {
	return policyTable[p].value
}

// RequiresExplicitParticipants reports whether participants must be
// configured for the step.
func (p Policy) RequiresExplicitParticipants() bool {
	return policyTable[p].explicit
}

func (p Policy) String() string {
	if info, ok := policyTable[p]; ok {
		return info.ident
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// MarshalText renders the policy identifier.
func (p Policy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText accepts anything LookupPolicy does.
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := LookupPolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
