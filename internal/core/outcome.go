package core

import (
	"fmt"
	"strings"
)

// Outcome is the terminal result a scenario drives the flow towards.
type Outcome int

const (
	// OutcomeApprove approves every executed step.
	OutcomeApprove Outcome = iota + 1
	// OutcomeDeny denies at the last step; co-sign groups collapse to one denier.
	OutcomeDeny
	// OutcomeReject approves through the interrupt level, then a previous
	// actor rejects.
	OutcomeReject
	// OutcomeRevoke has the applicant revoke at every step.
	OutcomeRevoke
	// OutcomeUnauthorized has a user without permission attempt step 1.
	OutcomeUnauthorized
)

type outcomeInfo struct {
	ident  string
	label  string
	action string
}

var outcomeTable = map[Outcome]outcomeInfo{
	OutcomeApprove:      {ident: "Approve", label: "通过", action: "approve"},
	OutcomeDeny:         {ident: "Deny", label: "否决", action: "deny"},
	OutcomeReject:       {ident: "Reject", label: "驳回", action: "deny"},
	OutcomeRevoke:       {ident: "Revoke", label: "撤销", action: "revert"},
	OutcomeUnauthorized: {ident: "Unauthorized", label: "无权限", action: "approve"},
}

// ParseOutcome converts a raw result label ("通过", "驳回", ...) or an
// English name ("approve", "Reject", ...) into an Outcome.
func ParseOutcome(raw string) (Outcome, error) {
	trimmed := strings.TrimSpace(raw)
	for o, info := range outcomeTable {
		if trimmed == info.label || strings.EqualFold(trimmed, info.ident) {
			return o, nil
		}
	}
	return 0, &ConfigurationError{Field: FieldResult, Message: fmt.Sprintf("unknown result %q", raw)}
}

// Label returns the raw workbook label.
func (o Outcome) Label() string {
	return outcomeTable[o].label
}

// Action returns the CRM approval endpoint action for this outcome.
func (o Outcome) Action() string {
	return outcomeTable[o].action
}

// IsDenial returns true for outcomes that end in a denied record.
func (o Outcome) IsDenial() bool {
	return o == OutcomeDeny || o == OutcomeReject
}

func (o Outcome) String() string {
	if info, ok := outcomeTable[o]; ok {
		return info.ident
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MarshalText renders the outcome's English name.
func (o Outcome) MarshalText() ([]byte, error) {
	if _, ok := outcomeTable[o]; !ok {
		return nil, fmt.Errorf("invalid outcome %d", int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText accepts anything ParseOutcome does.
func (o *Outcome) UnmarshalText(text []byte) error {
	v, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}
