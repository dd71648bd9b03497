package db

import "errors"

// ScenarioStatus is the outcome of one scenario within a run.
type ScenarioStatus string

const (
	// ScenarioPassed means every expected status matched.
	ScenarioPassed ScenarioStatus = "passed"
	// ScenarioFailed means an observed status disagreed with the expectation.
	ScenarioFailed ScenarioStatus = "failed"
	// ScenarioErrored means the scenario aborted on a configuration,
	// resolution or transport error.
	ScenarioErrored ScenarioStatus = "errored"
)

// Valid returns true if the status is a known scenario status.
func (s ScenarioStatus) Valid() bool {
	switch s {
	case ScenarioPassed, ScenarioFailed, ScenarioErrored:
		return true
	default:
		return false
	}
}

var (
	// ErrUserNotFound indicates no user carries the requested authority.
	ErrUserNotFound = errors.New("user not found")
	// ErrRunNotFound indicates a missing run.
	ErrRunNotFound = errors.New("run not found")
	// ErrDuplicatePhone is returned when seeding two users with one phone.
	ErrDuplicatePhone = errors.New("duplicate phone")
	// ErrDuplicateUser is returned when seeding two users with one id.
	ErrDuplicateUser = errors.New("duplicate user id")
)
