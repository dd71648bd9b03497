package core

import (
	"errors"
	"fmt"
)

// ErrFlowExhausted is returned by Flow.Next once every step was produced.
var ErrFlowExhausted = errors.New("approval flow exhausted")

// ErrNoActors is returned by ApprovalStep.Next once every actor acted.
var ErrNoActors = errors.New("no actors left in step")

// Record field names that are not step entries.
const (
	FieldResult    = "result"
	FieldInterrupt = "interrupt"
)

// ConfigurationError reports a malformed test-case record.
type ConfigurationError struct {
	// Step is the offending step number (0 when not step specific).
	Step    int
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("configuration error at step %d (%s): %s", e.Step, e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Field, e.Message)
}

// ResolutionError reports that the users required by a step could not be found.
type ResolutionError struct {
	Step   int
	Policy Policy
	// Role is the directory authority that was queried, if any.
	Role    string
	Message string
	Err     error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("resolving step %d (%s): %s", e.Step, e.Policy, e.Message)
	if e.Role != "" {
		msg += fmt.Sprintf(" [role=%s]", e.Role)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsResolutionError reports whether err wraps a ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}
