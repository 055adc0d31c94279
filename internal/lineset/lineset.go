// Package lineset implements the set algebra applied to decoded dictionary
// lines: normalising a dictionary, merging new words into it and subtracting
// unwanted words from it.
//
// Normalize and Merge always produce a deduplicated sequence ordered by the
// supplied Comparator. Subtract only filters: it keeps the primary order and
// any duplicates the primary already had. Callers wanting a clean dictionary
// after a deletion run Normalize separately.
//
// A nil Comparator selects Russian collation.
package lineset

import "slices"

// WordSet holds unique lines compared by exact byte equality.
type WordSet map[string]struct{}

// NewWordSet builds a set from lines, returning it together with the number
// of lines that were exact duplicates of an earlier one.
func NewWordSet(lines []string) (WordSet, int) {
	s := make(WordSet, len(lines))
	dups := 0
	for _, line := range lines {
		if !s.Add(line) {
			dups++
		}
	}
	return s, dups
}

// Add inserts line and reports whether it was not already present.
func (s WordSet) Add(line string) bool {
	if _, ok := s[line]; ok {
		return false
	}
	s[line] = struct{}{}
	return true
}

// Contains reports whether line is in the set.
func (s WordSet) Contains(line string) bool {
	_, ok := s[line]
	return ok
}

// Len returns the number of unique lines.
func (s WordSet) Len() int {
	return len(s)
}

// Sorted returns the members ordered by cmp.
func (s WordSet) Sorted(cmp Comparator) []string {
	out := make([]string, 0, len(s))
	for line := range s {
		out = append(out, line)
	}
	slices.SortFunc(out, orDefault(cmp))
	return out
}

// NormalizeResult is the outcome of Normalize.
type NormalizeResult struct {
	Lines      []string `json:"lines"`
	Duplicates int      `json:"duplicates_removed"`
	Total      int      `json:"total"`
}

// Normalize deduplicates lines and orders them by cmp.
func Normalize(lines []string, cmp Comparator) NormalizeResult {
	set, dups := NewWordSet(lines)
	return NormalizeResult{
		Lines:      set.Sorted(cmp),
		Duplicates: dups,
		Total:      set.Len(),
	}
}

// MergeResult is the outcome of Merge.
type MergeResult struct {
	Lines []string `json:"lines"`
	Added int      `json:"added"`
	Total int      `json:"total"`
}

// Merge adds every line of secondary that primary does not already hold.
// Added counts first occurrences only; repeats inside secondary are skipped.
func Merge(primary, secondary []string, cmp Comparator) MergeResult {
	set, _ := NewWordSet(primary)
	added := 0
	for _, line := range secondary {
		if set.Add(line) {
			added++
		}
	}
	return MergeResult{
		Lines: set.Sorted(cmp),
		Added: added,
		Total: set.Len(),
	}
}

// SubtractResult is the outcome of Subtract.
type SubtractResult struct {
	Lines   []string `json:"lines"`
	Removed int      `json:"removed"`
}

// Subtract drops every line of primary that appears in reject, preserving the
// order of the remaining lines.
func Subtract(primary, reject []string) SubtractResult {
	rejected, _ := NewWordSet(reject)
	out := make([]string, 0, len(primary))
	for _, line := range primary {
		if rejected.Contains(line) {
			continue
		}
		out = append(out, line)
	}
	return SubtractResult{
		Lines:   out,
		Removed: len(primary) - len(out),
	}
}
