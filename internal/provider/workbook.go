// Package provider reads approval test cases from .xlsx workbooks.
//
// Each sheet holds the cases for one chain depth (for example "2级审批").
// The first row is the header: "result", "interrupt", an optional "name"
// column and one "<n>step" column per approval level. Every further row
// is one case.
package provider

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Dicklesworthstone/approveflow/internal/core"
	"github.com/xuri/excelize/v2"
)

// NameColumn is the optional header naming each case.
const NameColumn = "name"

// Case is one row of a workbook sheet.
type Case struct {
	// Name identifies the case in reports.
	Name string
	// Row is the 1-based spreadsheet row.
	Row    int
	Record core.Record
}

// Workbook is an opened test-case workbook.
type Workbook struct {
	file *excelize.File
	path string
}

// SheetForLevels returns the conventional sheet name for n-level chains.
func SheetForLevels(n int) string {
	return fmt.Sprintf("%d级审批", n)
}

// Open opens the workbook at path.
func Open(path string) (*Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workbook: %w", err)
	}
	wb, err := OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	wb.path = path
	return wb, nil
}

// OpenReader opens a workbook from r.
func OpenReader(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	return &Workbook{file: f}, nil
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// Path returns the file the workbook was opened from, if any.
func (w *Workbook) Path() string {
	return w.path
}

// Sheets lists the sheet names in workbook order.
func (w *Workbook) Sheets() []string {
	return w.file.GetSheetList()
}

// Records reads every case of sheet. Empty cells are omitted from the
// record; fully empty rows are skipped.
func (w *Workbook) Records(sheet string) ([]Case, error) {
	if idx, err := w.file.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}

	rows, err := w.file.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading header of %q: %w", sheet, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var cases []Case
	rowNum := 1
	for rows.Next() {
		rowNum++
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("reading %q row %d: %w", sheet, rowNum, err)
		}

		rec := core.Record{}
		name := ""
		for i := 0; i < len(header) && i < len(cols); i++ {
			key, val := header[i], strings.TrimSpace(cols[i])
			if key == "" || val == "" {
				continue
			}
			if key == NameColumn {
				name = val
				continue
			}
			rec[key] = val
		}
		if len(rec) == 0 {
			continue
		}
		if name == "" {
			name = fmt.Sprintf("%s#%d", sheet, rowNum)
		}
		cases = append(cases, Case{Name: name, Row: rowNum, Record: rec})
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("iterating %q: %w", sheet, err)
	}
	return cases, nil
}
