package research

import (
	"sort"
	"strings"
)

// EntityTracker is the cross-cycle deduplicating index of discovered
// companies, decision makers, solutions, and challenges.
//
// Dedup rule, decided once: keys are trimmed and compared
// case-insensitively, with the first-seen casing preserved for display.
// No substring folding: "Rakuten" and "Rakuten Inc" stay distinct
// entries, while "Rakuten" and "rakuten" collapse into one.
//
// Entries are never removed; set sizes are monotonically non-decreasing
// for the life of a run.
type EntityTracker struct {
	companies      map[string]string // normalized key -> display form
	decisionMakers map[string]string
	solutions      map[string]string
	challenges     map[string]string
}

// NewEntityTracker creates an empty tracker.
func NewEntityTracker() *EntityTracker {
	return &EntityTracker{
		companies:      map[string]string{},
		decisionMakers: map[string]string{},
		solutions:      map[string]string{},
		challenges:     map[string]string{},
	}
}

// Update folds each finding's extracted entities into the tracker.
// Idempotent: updating twice with the same findings changes nothing.
func (t *EntityTracker) Update(findings []Finding) {
	for _, f := range findings {
		for _, c := range f.ExtractedData.Companies {
			addEntity(t.companies, c.Name)
		}
		for _, p := range f.ExtractedData.DecisionMakers {
			addEntity(t.decisionMakers, p)
		}
		for _, s := range f.ExtractedData.CurrentSolutions {
			addEntity(t.solutions, s)
		}
		for _, c := range f.ExtractedData.Challenges {
			addEntity(t.challenges, c)
		}
	}
}

func addEntity(set map[string]string, raw string) {
	display := strings.TrimSpace(raw)
	if display == "" {
		return
	}
	key := strings.ToLower(display)
	if _, seen := set[key]; !seen {
		set[key] = display
	}
}

// Snapshot returns the current sets as sorted sequences, safe to hold
// across later updates.
func (t *EntityTracker) Snapshot() EntityState {
	return EntityState{
		Companies:      sortedValues(t.companies),
		DecisionMakers: sortedValues(t.decisionMakers),
		Solutions:      sortedValues(t.solutions),
		Challenges:     sortedValues(t.challenges),
	}
}

// Counts returns the size of each set for progress reporting.
func (t *EntityTracker) Counts() (companies, decisionMakers, solutions, challenges int) {
	return len(t.companies), len(t.decisionMakers), len(t.solutions), len(t.challenges)
}

func sortedValues(set map[string]string) []string {
	out := make([]string, 0, len(set))
	for _, v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
