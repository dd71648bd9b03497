package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Dicklesworthstone/approveflow/internal/core"
	"github.com/Dicklesworthstone/approveflow/internal/db"
	"github.com/Dicklesworthstone/approveflow/internal/runner"
	"github.com/charmbracelet/lipgloss"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/term"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	colorBlue    = lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"}
	colorGreen   = lipgloss.AdaptiveColor{Light: "#40a02b", Dark: "#a6e3a1"}
	colorRed     = lipgloss.AdaptiveColor{Light: "#d20f39", Dark: "#f38ba8"}
	colorYellow  = lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"}
	colorOverlay = lipgloss.AdaptiveColor{Light: "#9ca0b0", Dark: "#6c7086"}
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON:
		return Format(s), nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// Writer renders values to an output stream.
type Writer struct {
	out    io.Writer
	format Format
	styled bool
}

// New creates a writer. Text output is styled only when out is a terminal.
func New(out io.Writer, format Format) *Writer {
	return &Writer{out: out, format: format, styled: IsTerminal(out)}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Format returns the writer's format.
func (w *Writer) Format() Format {
	return w.format
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

func (w *Writer) table(t *Table) error {
	_, err := fmt.Fprintln(w.out, t.WithStyle(w.styled).Render())
	return err
}

func statusColor(status string) lipgloss.TerminalColor {
	switch db.ScenarioStatus(status) {
	case db.ScenarioPassed:
		return colorGreen
	case db.ScenarioFailed:
		return colorRed
	case db.ScenarioErrored:
		return colorYellow
	}
	return nil
}

// Results renders a run report.
func (w *Writer) Results(r *runner.Report) error {
	if w.format == FormatJSON {
		type resultJSON struct {
			*runner.Result
			Message string `json:"message,omitempty"`
		}
		out := struct {
			RunID   string       `json:"run_id,omitempty"`
			Sheet   string       `json:"sheet"`
			Results []resultJSON `json:"results"`
		}{RunID: r.RunID, Sheet: r.Sheet, Results: []resultJSON{}}
		for _, res := range r.Results {
			out.Results = append(out.Results, resultJSON{Result: res, Message: res.Message()})
		}
		return w.JSON(out)
	}

	t := NewTable([]Column{
		{Header: "SCENARIO", MaxWidth: 32},
		{Header: "STATUS"},
		{Header: "RECORD"},
		{Header: "ACTIONS", Align: lipgloss.Right},
		{Header: "MESSAGE", MaxWidth: 72},
	})
	t.Highlight = func(row []string) lipgloss.TerminalColor { return statusColor(row[1]) }
	for _, res := range r.Results {
		t.AddRow(res.Name, string(res.Status), res.BusinessID, strconv.Itoa(len(res.Actions)), res.Message())
	}
	if err := w.table(t); err != nil {
		return err
	}
	passed, failed, errored := r.Counts()
	_, err := fmt.Fprintf(w.out, "\n%s: %d passed, %d failed, %d errored\n", r.Sheet, passed, failed, errored)
	return err
}

// PlanStep is one actor's planned action.
type PlanStep struct {
	Step          int          `json:"step"`
	Policy        core.Policy  `json:"policy"`
	Actor         string       `json:"actor"`
	Result        core.Outcome `json:"result"`
	Expected      string       `json:"expected"`
	Notifications []string     `json:"notifications,omitempty"`
}

// Plan is a resolved flow for one case.
type Plan struct {
	Name  string     `json:"name"`
	Spec  *core.Spec `json:"spec,omitempty"`
	Steps []PlanStep `json:"steps"`
	Error string     `json:"error,omitempty"`
}

// NewPlan expands resolved approval steps into planned actions. It
// dequeues every actor of steps.
func NewPlan(name string, spec *core.Spec, steps []*core.ApprovalStep) (Plan, error) {
	p := Plan{Name: name, Spec: spec, Steps: []PlanStep{}}
	for _, step := range steps {
		for step.HasNext() {
			us, err := step.Next()
			if err != nil {
				return p, err
			}
			p.Steps = append(p.Steps, PlanStep{
				Step:          us.Number,
				Policy:        step.Policy,
				Actor:         us.User.Name,
				Result:        us.Result,
				Expected:      us.Expected,
				Notifications: us.Notifications(),
			})
		}
	}
	return p, nil
}

// Plans renders resolved flows.
func (w *Writer) Plans(plans []Plan) error {
	if w.format == FormatJSON {
		return w.JSON(plans)
	}
	for i, p := range plans {
		if i > 0 {
			fmt.Fprintln(w.out)
		}
		title := p.Name
		if p.Spec != nil {
			title += " (" + p.Spec.String() + ")"
		}
		if w.styled {
			title = lipgloss.NewStyle().Bold(true).Render(title)
		}
		fmt.Fprintln(w.out, title)
		if p.Error != "" {
			fmt.Fprintf(w.out, "  error: %s\n", p.Error)
			continue
		}
		t := NewTable([]Column{
			{Header: "STEP", Align: lipgloss.Right},
			{Header: "POLICY"},
			{Header: "ACTOR"},
			{Header: "RESULT"},
			{Header: "EXPECTED"},
		})
		for _, s := range p.Steps {
			t.AddRow(strconv.Itoa(s.Step), s.Policy.Name(), s.Actor, s.Result.Label(), s.Expected)
		}
		if err := w.table(t); err != nil {
			return err
		}
	}
	return nil
}

// History renders run summaries.
func (w *Writer) History(runs []db.RunSummary) error {
	if w.format == FormatJSON {
		if runs == nil {
			runs = []db.RunSummary{}
		}
		return w.JSON(runs)
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w.out, "No runs recorded.")
		return err
	}
	t := NewTable([]Column{
		{Header: "RUN"},
		{Header: "BUSINESS"},
		{Header: "SHEET"},
		{Header: "STARTED"},
		{Header: "PASSED", Align: lipgloss.Right},
		{Header: "FAILED", Align: lipgloss.Right},
		{Header: "ERRORED", Align: lipgloss.Right},
	})
	for _, s := range runs {
		t.AddRow(s.Run.ID, s.Run.Business, s.Run.Sheet, s.Run.StartedAt.Local().Format(time.DateTime),
			strconv.Itoa(s.Passed), strconv.Itoa(s.Failed), strconv.Itoa(s.Errored))
	}
	return w.table(t)
}

// Users renders directory entries with their direct superiors by phone.
func (w *Writer) Users(users []*core.User) error {
	type userJSON struct {
		ID        int64    `json:"id"`
		Name      string   `json:"name"`
		Phone     string   `json:"phone"`
		Authority string   `json:"authority"`
		Superiors []string `json:"superiors"`
	}
	list := make([]userJSON, 0, len(users))
	for _, u := range users {
		sup := make([]string, 0, len(u.Superiors))
		for _, s := range u.Superiors {
			sup = append(sup, s.Phone)
		}
		list = append(list, userJSON{u.ID, u.Name, u.Phone, u.Authority, sup})
	}
	if w.format == FormatJSON {
		return w.JSON(list)
	}
	if len(list) == 0 {
		_, err := fmt.Fprintln(w.out, "No users seeded.")
		return err
	}
	t := NewTable([]Column{
		{Header: "ID", Align: lipgloss.Right},
		{Header: "NAME"},
		{Header: "PHONE"},
		{Header: "AUTHORITY"},
		{Header: "SUPERIORS"},
	})
	for _, u := range list {
		t.AddRow(strconv.FormatInt(u.ID, 10), u.Name, u.Phone, u.Authority, strings.Join(u.Superiors, ","))
	}
	return w.table(t)
}

// RunResults renders the stored results of one run.
func (w *Writer) RunResults(run *db.Run, results []*db.ScenarioResult) error {
	if w.format == FormatJSON {
		if results == nil {
			results = []*db.ScenarioResult{}
		}
		return w.JSON(struct {
			Run     *db.Run              `json:"run"`
			Results []*db.ScenarioResult `json:"results"`
		}{run, results})
	}
	fmt.Fprintf(w.out, "Run %s (%s, %s)\n", run.ID, run.Business, run.Sheet)
	t := NewTable([]Column{
		{Header: "SCENARIO", MaxWidth: 32},
		{Header: "STATUS"},
		{Header: "STEP", Align: lipgloss.Right},
		{Header: "ACTOR"},
		{Header: "EXPECTED"},
		{Header: "ACTUAL"},
	})
	t.Highlight = func(row []string) lipgloss.TerminalColor { return statusColor(row[1]) }
	for _, r := range results {
		step := ""
		if r.Step > 0 {
			step = strconv.Itoa(r.Step)
		}
		t.AddRow(r.Name, string(r.Status), step, r.Actor, r.Expected, r.Actual)
	}
	return w.table(t)
}

// Policies renders the policy registry.
func (w *Writer) Policies() error {
	type policyJSON struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Value    string `json:"value"`
		Explicit bool   `json:"requires_explicit_participants"`
	}
	var list []policyJSON
	for _, p := range core.Policies() {
		list = append(list, policyJSON{p.String(), p.Name(), p.Value(), p.RequiresExplicitParticipants()})
	}
	if w.format == FormatJSON {
		return w.JSON(list)
	}
	t := NewTable([]Column{{Header: "ID"}, {Header: "NAME"}, {Header: "VALUE"}, {Header: "EXPLICIT"}})
	for _, p := range list {
		t.AddRow(p.ID, p.Name, p.Value, strconv.FormatBool(p.Explicit))
	}
	return w.table(t)
}
