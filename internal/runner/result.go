package runner

import (
	"fmt"

	"github.com/Dicklesworthstone/approveflow/internal/core"
	"github.com/Dicklesworthstone/approveflow/internal/db"
)

// AssertionMismatch reports that the backend disagreed with the flow's
// expectation. It stops the current scenario only.
type AssertionMismatch struct {
	Scenario string
	// Step is 0 for the check right after the record is applied.
	Step     int
	Actor    string
	Expected string
	Actual   string
}

func (e *AssertionMismatch) Error() string {
	prefix := ""
	if e.Scenario != "" {
		prefix = e.Scenario + ": "
	}
	return fmt.Sprintf("%sstep %d (%s): expected %q, got %q", prefix, e.Step, e.Actor, e.Expected, e.Actual)
}

// Action is one submitted user step.
type Action struct {
	Step     int          `json:"step"`
	Policy   core.Policy  `json:"policy"`
	Actor    string       `json:"actor"`
	Result   core.Outcome `json:"result"`
	Accepted bool         `json:"accepted"`
	Expected string       `json:"expected"`
	Actual   string       `json:"actual,omitempty"`
}

// Result is the outcome of one scenario.
type Result struct {
	Name       string            `json:"name"`
	Row        int               `json:"row"`
	Status     db.ScenarioStatus `json:"status"`
	BusinessID string            `json:"business_id,omitempty"`
	Spec       *core.Spec        `json:"spec,omitempty"`
	Actions    []Action          `json:"actions"`
	Err        error             `json:"-"`
}

// Message returns the error text, or "" for a passing scenario.
func (r *Result) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Report collects the results of one sheet.
type Report struct {
	RunID   string    `json:"run_id,omitempty"`
	Sheet   string    `json:"sheet"`
	Results []*Result `json:"results"`
}

// Counts returns the number of passed, failed and errored scenarios.
func (r *Report) Counts() (passed, failed, errored int) {
	for _, res := range r.Results {
		switch res.Status {
		case db.ScenarioPassed:
			passed++
		case db.ScenarioFailed:
			failed++
		default:
			errored++
		}
	}
	return passed, failed, errored
}
