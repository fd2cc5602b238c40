package domain

import "sort"

// ValidationErrors maps an error code to its detail.
type ValidationErrors map[string]string

// ImportReport collects every finding of a transmittal import validation.
type ImportReport struct {
	Global    ValidationErrors         `json:"global,omitempty"`
	Lines     map[int]ValidationErrors `json:"lines,omitempty"`
	Revisions map[string]string        `json:"revisions,omitempty"`
}

func NewImportReport() ImportReport {
	return ImportReport{
		Global:    ValidationErrors{},
		Lines:     map[int]ValidationErrors{},
		Revisions: map[string]string{},
	}
}

func (r ImportReport) Valid() bool {
	return len(r.Global) == 0 && len(r.Lines) == 0 && len(r.Revisions) == 0
}

// LineNumbers returns the failing line numbers in ascending order.
func (r ImportReport) LineNumbers() []int {
	out := make([]int, 0, len(r.Lines))
	for n := range r.Lines {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Manifest is a parsed import CSV.
type Manifest struct {
	Columns []string
	Rows    []map[string]string
}
