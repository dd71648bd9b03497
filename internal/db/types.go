package db

import (
	"encoding/json"
	"time"
)

// UserSeed describes one account to load into the directory.
type UserSeed struct {
	ID        int64  `toml:"id" json:"id"`
	Name      string `toml:"name" json:"name"`
	Phone     string `toml:"phone" json:"phone"`
	Authority string `toml:"authority" json:"authority"`
	// Superiors lists direct superiors by phone, in order.
	Superiors []string `toml:"superiors" json:"superiors,omitempty"`
}

// Run is one execution of a workbook sheet against the CRM.
type Run struct {
	ID         string     `json:"id"`
	Business   string     `json:"business"`
	Sheet      string     `json:"sheet"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ScenarioResult is the recorded outcome of one scenario.
type ScenarioResult struct {
	ID         int64          `json:"id"`
	RunID      string         `json:"run_id"`
	Name       string         `json:"name"`
	Status     ScenarioStatus `json:"status"`
	BusinessID string         `json:"business_id,omitempty"`
	// Step, Actor, Expected and Actual describe the first mismatch.
	Step      int       `json:"step,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Expected  string    `json:"expected,omitempty"`
	Actual    string    `json:"actual,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RunSummary aggregates a run's results.
type RunSummary struct {
	Run     Run `json:"run"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
}

// Total returns the number of recorded scenarios.
func (s RunSummary) Total() int {
	return s.Passed + s.Failed + s.Errored
}

// MarshalJSON keeps timestamps in RFC 3339.
func (r *Run) MarshalJSON() ([]byte, error) {
	type Alias Run
	return json.Marshal(&struct {
		*Alias
		StartedAt  string  `json:"started_at"`
		FinishedAt *string `json:"finished_at,omitempty"`
	}{
		Alias:      (*Alias)(r),
		StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: formatTimePtr(r.FinishedAt),
	})
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
