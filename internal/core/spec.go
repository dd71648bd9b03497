package core

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cast"
)

var interruptPattern = regexp.MustCompile(`^[0-9]+(\.0+)?$`)

// Record is one raw test case: "result", "interrupt" and
// "<stepNumber><suffix>" -> policy name entries.
type Record map[string]string

// StepConfig is one configured approval level.
type StepConfig struct {
	Number int    `json:"number"`
	Policy Policy `json:"policy"`
}

// Spec is a parsed test case.
type Spec struct {
	Outcome Outcome      `json:"outcome"`
	Steps   []StepConfig `json:"steps"`
	// InterruptLevel is the number of steps executed before the outcome applies.
	InterruptLevel int `json:"interrupt_level"`
}

func (s *Spec) String() string {
	return fmt.Sprintf("configured levels: %d; executed levels: %d; result: %s",
		len(s.Steps), s.InterruptLevel, s.Outcome)
}

// ParseSpec parses a raw record. The record itself is left untouched.
func ParseSpec(rec Record, opts ...Option) (*Spec, error) {
	o := buildOptions(opts)

	fields := make(map[string]string, len(rec))
	for k, v := range rec {
		fields[strings.TrimSpace(k)] = v
	}

	rawResult, ok := fields[FieldResult]
	if !ok {
		return nil, &ConfigurationError{Field: FieldResult, Message: "missing result"}
	}
	delete(fields, FieldResult)
	rawInterrupt, hasInterrupt := fields[FieldInterrupt]
	delete(fields, FieldInterrupt)

	outcome, err := ParseOutcome(rawResult)
	if err != nil {
		return nil, err
	}

	steps, err := parseSteps(fields)
	if err != nil {
		return nil, err
	}

	interrupt := len(steps)
	switch outcome {
	case OutcomeUnauthorized:
		interrupt = 1
	case OutcomeApprove, OutcomeReject:
		if !hasInterrupt || strings.TrimSpace(rawInterrupt) == "" {
			return nil, &ConfigurationError{Field: FieldInterrupt, Message: fmt.Sprintf("interrupt is required for result %s", outcome)}
		}
		// Workbook cells often come back as "2.0"; anything but a whole
		// decimal number is rejected.
		raw := strings.TrimSpace(rawInterrupt)
		f, ferr := cast.ToFloat64E(raw)
		if !interruptPattern.MatchString(raw) || ferr != nil {
			return nil, &ConfigurationError{Field: FieldInterrupt, Message: fmt.Sprintf("invalid interrupt %q", rawInterrupt)}
		}
		interrupt = int(f)
	}

	if interrupt < 1 || interrupt > len(steps) {
		return nil, &ConfigurationError{
			Field:   FieldInterrupt,
			Message: fmt.Sprintf("interrupt level %d out of range 1..%d", interrupt, len(steps)),
		}
	}

	spec := &Spec{Outcome: outcome, Steps: steps, InterruptLevel: interrupt}
	o.logger.Info("parsed approval flow",
		"levels", len(spec.Steps), "interrupt", spec.InterruptLevel, "result", spec.Outcome)
	return spec, nil
}

func parseSteps(fields map[string]string) ([]StepConfig, error) {
	if len(fields) == 0 {
		return nil, &ConfigurationError{Field: "steps", Message: "no approval steps configured"}
	}

	steps := make([]StepConfig, 0, len(fields))
	seen := make(map[int]string, len(fields))
	for key, name := range fields {
		n, err := stepNumber(key)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[n]; dup {
			return nil, &ConfigurationError{Step: n, Field: key, Message: fmt.Sprintf("duplicate step number (also %q)", prev)}
		}
		seen[n] = key

		policy, err := LookupPolicy(name)
		if err != nil {
			return nil, &ConfigurationError{Step: n, Field: key, Message: fmt.Sprintf("unknown policy %q", name)}
		}
		steps = append(steps, StepConfig{Number: n, Policy: policy})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Number < steps[j].Number })

	// Steps are addressed positionally elsewhere, so numbering must be 1..n.
	for i, s := range steps {
		if s.Number != i+1 {
			return nil, &ConfigurationError{
				Step:    s.Number,
				Field:   "steps",
				Message: fmt.Sprintf("step numbers must be contiguous from 1, expected %d", i+1),
			}
		}
	}
	return steps, nil
}

func stepNumber(key string) (int, error) {
	end := 0
	for end < len(key) && key[end] >= '0' && key[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, &ConfigurationError{Field: key, Message: "step key must start with a step number"}
	}
	n, err := strconv.Atoi(key[:end])
	if err != nil || n < 1 {
		return 0, &ConfigurationError{Field: key, Message: "step number must be >= 1"}
	}
	return n, nil
}

// Option configures parsing and flow construction.
type Option func(*options)

type options struct {
	logger *log.Logger
	rand   Rand
	labels Labels
}

func buildOptions(opts []Option) options {
	o := options{
		rand:   globalRand{},
		labels: EnglishLabels,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	return o
}

// WithLogger sets the logger for summaries and step traces.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRand sets the random source used for Specified and terminal
// collapse selections.
func WithRand(r Rand) Option {
	return func(o *options) {
		if r != nil {
			o.rand = r
		}
	}
}

// WithSeed is WithRand(NewSeededRand(seed)).
func WithSeed(seed uint64) Option {
	return WithRand(NewSeededRand(seed))
}

// WithLabels sets the status label texts.
func WithLabels(l Labels) Option {
	return func(o *options) { o.labels = l }
}
