// Package batch holds the mutex-protected verdict table a batch run
// against a directory of fixtures accumulates, one Verdict per fixture,
// sortable for a final summary report — the same "accumulate results
// from concurrent workers behind one mutex, sort on read" shape as the
// teacher's result table, repurposed from optimization rules to
// verification verdicts.
package batch

import (
	"sort"
	"sync"
)

// Verdict is the outcome of verifying one fixture.
type Verdict struct {
	Fixture    string
	Accepted   bool
	Log        string
	Err        error
	StatesSeen int
}

// Table accumulates Verdicts from concurrent workers.
type Table struct {
	mu       sync.Mutex
	verdicts []Verdict
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{}
}

// Add inserts a verdict into the table.
func (t *Table) Add(v Verdict) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.verdicts = append(t.verdicts, v)
}

// Verdicts returns a copy of all verdicts, sorted by fixture name so a
// batch report reads deterministically regardless of completion order.
func (t *Table) Verdicts() []Verdict {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Verdict, len(t.verdicts))
	copy(out, t.verdicts)
	sort.Slice(out, func(i, j int) bool { return out[i].Fixture < out[j].Fixture })
	return out
}

// Len returns the number of verdicts recorded so far.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.verdicts)
}

// Summary tallies accepted vs rejected across all verdicts.
func (t *Table) Summary() (accepted, rejected int) {
	for _, v := range t.Verdicts() {
		if v.Accepted {
			accepted++
		} else {
			rejected++
		}
	}
	return
}
