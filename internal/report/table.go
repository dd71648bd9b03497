// Package report renders scenario results, flow plans and run history as
// terminal tables or JSON.
package report

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column defines a table column.
type Column struct {
	Header   string
	Width    int // Fixed width (0 = auto)
	MinWidth int
	MaxWidth int
	Align    lipgloss.Position
}

// Table renders rows as aligned text, optionally styled.
type Table struct {
	Columns    []Column
	Rows       [][]string
	ShowHeader bool
	Striped    bool
	// Styled enables colors; plain output is used for pipes and files.
	Styled bool
	// Highlight, if set, picks a foreground color for a row.
	Highlight func(row []string) lipgloss.TerminalColor
}

// NewTable creates a new table.
func NewTable(columns []Column) *Table {
	return &Table{
		Columns:    columns,
		ShowHeader: true,
		Striped:    true,
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) *Table {
	t.Rows = append(t.Rows, cells)
	return t
}

// WithStyle enables or disables colors.
func (t *Table) WithStyle(styled bool) *Table {
	t.Styled = styled
	return t
}

// Render renders the table.
func (t *Table) Render() string {
	if len(t.Columns) == 0 {
		return ""
	}
	widths := t.calculateWidths()

	var lines []string
	if t.ShowHeader {
		headerStyle := lipgloss.NewStyle()
		sepStyle := lipgloss.NewStyle()
		if t.Styled {
			headerStyle = headerStyle.Bold(true).Foreground(colorBlue)
			sepStyle = sepStyle.Foreground(colorOverlay)
		}
		var cells []string
		for i, col := range t.Columns {
			cells = append(cells, headerStyle.Render(padCell(col.Header, widths[i], col.Align)))
		}
		lines = append(lines, strings.Join(cells, " "))
		lines = append(lines, sepStyle.Render(strings.Repeat("─", totalWidth(widths))))
	}

	for rowIdx, row := range t.Rows {
		style := lipgloss.NewStyle()
		if t.Styled {
			if t.Striped && rowIdx%2 == 1 {
				style = style.Faint(true)
			}
			if t.Highlight != nil {
				if c := t.Highlight(row); c != nil {
					style = style.Foreground(c)
				}
			}
		}
		var cells []string
		for i, col := range t.Columns {
			content := ""
			if i < len(row) {
				content = row[i]
			}
			cells = append(cells, style.Render(padCell(content, widths[i], col.Align)))
		}
		lines = append(lines, strings.TrimRight(strings.Join(cells, " "), " "))
	}
	return strings.Join(lines, "\n")
}

func (t *Table) calculateWidths() []int {
	widths := make([]int, len(t.Columns))
	for i, col := range t.Columns {
		if col.Width > 0 {
			widths[i] = col.Width
		} else {
			widths[i] = lipgloss.Width(col.Header)
		}
		if col.MinWidth > 0 && widths[i] < col.MinWidth {
			widths[i] = col.MinWidth
		}
	}

	for _, row := range t.Rows {
		for i, cell := range row {
			if i >= len(widths) || t.Columns[i].Width > 0 {
				continue
			}
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	for i, col := range t.Columns {
		if col.MaxWidth > 0 && widths[i] > col.MaxWidth {
			widths[i] = col.MaxWidth
		}
	}
	return widths
}

func totalWidth(widths []int) int {
	total := 0
	for _, w := range widths {
		total += w
	}
	if len(widths) > 1 {
		total += len(widths) - 1
	}
	return total
}

// padCell pads content to width display cells, truncating with an ellipsis.
func padCell(content string, width int, align lipgloss.Position) string {
	if lipgloss.Width(content) > width {
		runes := []rune(content)
		for len(runes) > 0 && lipgloss.Width(string(runes))+3 > width {
			runes = runes[:len(runes)-1]
		}
		if width > 3 {
			return padCell(string(runes)+"...", width, align)
		}
		return strings.Repeat(".", width)
	}

	padding := width - lipgloss.Width(content)
	switch align {
	case lipgloss.Right:
		return strings.Repeat(" ", padding) + content
	case lipgloss.Center:
		left := padding / 2
		return strings.Repeat(" ", left) + content + strings.Repeat(" ", padding-left)
	default:
		return content + strings.Repeat(" ", padding)
	}
}
