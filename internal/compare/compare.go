// Package compare diffs two extracted trade documents field by field.
// It is used to check a fresh extraction against a trusted reference
// file, typically one produced by the trade mapper from bank records.
package compare

import (
	"fmt"

	"github.com/jmfuenzalida/contractreaderflow/internal/swap"
)

// Change describes one differing leaf between the two documents.
type Change struct {
	Path      string `json:"path"`
	Reference any    `json:"reference,omitempty"`
	Extracted any    `json:"extracted,omitempty"`
}

// Report is the full field-level diff between a reference document and
// an extracted one.
type Report struct {
	Added       []Change `json:"added"`
	Removed     []Change `json:"removed"`
	Modified    []Change `json:"modified"`
	TypeChanged []Change `json:"typeChanged"`
	Matched     int      `json:"matched"`
	Total       int      `json:"total"`
}

// MatchRatio is the fraction of compared paths that agree. It is 1 when
// both documents are empty.
func (r *Report) MatchRatio() float64 {
	if r.Total == 0 {
		return 1
	}
	return float64(r.Matched) / float64(r.Total)
}

// Clean reports whether the two documents agree on every path.
func (r *Report) Clean() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 &&
		len(r.Modified) == 0 && len(r.TypeChanged) == 0
}

// Documents flattens both documents to dot-notation paths and compares
// them leaf by leaf. "Added" paths exist only in the extracted document,
// "removed" only in the reference. Values that differ in kind (string vs
// number) are reported as typeChanged rather than modified, since those
// usually point at a mapping bug rather than a bad extraction.
func Documents(reference, extracted map[string]any) *Report {
	refFlat := swap.Flatten(reference, "")
	extFlat := swap.Flatten(extracted, "")

	report := &Report{}
	seen := map[string]bool{}

	for _, path := range swap.SortedPaths(refFlat) {
		seen[path] = true
		report.Total++
		refVal := refFlat[path]
		extVal, ok := extFlat[path]
		if !ok {
			report.Removed = append(report.Removed, Change{Path: path, Reference: refVal})
			continue
		}
		switch {
		case swap.NormalizedEqual(refVal, extVal):
			report.Matched++
		case kindOf(refVal) != kindOf(extVal):
			report.TypeChanged = append(report.TypeChanged, Change{Path: path, Reference: refVal, Extracted: extVal})
		default:
			report.Modified = append(report.Modified, Change{Path: path, Reference: refVal, Extracted: extVal})
		}
	}

	for _, path := range swap.SortedPaths(extFlat) {
		if seen[path] {
			continue
		}
		report.Total++
		report.Added = append(report.Added, Change{Path: path, Extracted: extFlat[path]})
	}

	return report
}

// Summary renders a one-line human summary for logs and CLI output.
func Summary(r *Report) string {
	return fmt.Sprintf("%d/%d fields match (%.1f%%): %d modified, %d missing, %d extra, %d type mismatches",
		r.Matched, r.Total, r.MatchRatio()*100,
		len(r.Modified), len(r.Removed), len(r.Added), len(r.TypeChanged))
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	default:
		return "number"
	}
}
