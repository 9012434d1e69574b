// Package research implements the iterative research pipeline: strategy
// planning, per-cycle query generation, relevance gating, structured
// extraction, entity tracking, and per-cycle checkpointing.
package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidAssignment marks an assignment missing its required fields.
var ErrInvalidAssignment = errors.New("research: assignment requires a title and at least one objective")

// Assignment is the external input describing a research goal. It is
// immutable for the duration of a run.
type Assignment struct {
	Title       string   `yaml:"title" json:"title"`
	Objectives  []string `yaml:"objectives" json:"objectives"`
	Depth       string   `yaml:"depth,omitempty" json:"depth,omitempty"`       // comprehensive, balanced
	Priority    string   `yaml:"priority,omitempty" json:"priority,omitempty"` // normal, high
	ReportStyle string   `yaml:"report_style,omitempty" json:"report_style,omitempty"`
	Output      struct {
		Format string `yaml:"format,omitempty" json:"format,omitempty"`
	} `yaml:"output,omitempty" json:"output,omitempty"`
}

// Validate rejects assignments that cannot enter the pipeline.
func (a Assignment) Validate() error {
	if strings.TrimSpace(a.Title) == "" || len(a.Objectives) == 0 {
		return ErrInvalidAssignment
	}
	return nil
}

// LoadAssignment reads and validates a YAML assignment file.
func LoadAssignment(path string) (Assignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Assignment{}, fmt.Errorf("read assignment: %w", err)
	}
	var a Assignment
	if err := yaml.Unmarshal(data, &a); err != nil {
		return Assignment{}, fmt.Errorf("parse assignment: %w", err)
	}
	if err := a.Validate(); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

// Strategy is the plan guiding a run. PrioritySources is the only field
// mutated after planning, by the per-cycle refinement step.
type Strategy struct {
	Approach        string   `json:"approach" yaml:"approach"`
	KeyQuestions    []string `json:"key_questions" yaml:"key_questions"`
	SearchQueries   []string `json:"search_queries" yaml:"search_queries"`
	Cycles          int      `json:"cycles" yaml:"cycles"`
	PrioritySources []string `json:"priority_sources" yaml:"priority_sources"`
}

// Finding is one accepted page: its URL, relevance score, and the data
// extracted from it. Immutable once appended to the run's sequence.
type Finding struct {
	URL           string        `json:"url"`
	Title         string        `json:"title"`
	QualityScore  int           `json:"quality_score"`
	ExtractedData ExtractedData `json:"extracted_data"`
	Query         string        `json:"query"`
}

// CompanyRef names a company, with optional location and size when the
// model supplies them as a structured record.
type CompanyRef struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Size     string `json:"size,omitempty"`
}

// UnmarshalJSON accepts either a bare string or an object record, since
// the model alternates between the two without warning.
func (c *CompanyRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Name = strings.TrimSpace(s)
		return nil
	}
	type record CompanyRef
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*c = CompanyRef(r)
	c.Name = strings.TrimSpace(c.Name)
	return nil
}

// StringList decodes a JSON array whose items may be strings, records,
// or nested arrays, coercing each to a string and dropping what cannot
// be coerced.
type StringList []string

// UnmarshalJSON coerces heterogeneous array items via ToQueryString.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		// A lone string is tolerated as a single-item list.
		var s string
		if err2 := json.Unmarshal(data, &s); err2 == nil {
			if s = strings.TrimSpace(s); s != "" {
				*l = StringList{s}
			}
			return nil
		}
		return err
	}
	out := make(StringList, 0, len(items))
	for _, item := range items {
		if s := ToQueryString(item); s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// ExtractedData is the fixed extraction schema. Every field defaults to
// an empty sequence; the model's output is coerced into this shape, never
// trusted to match it.
type ExtractedData struct {
	Companies        []CompanyRef `json:"companies"`
	Challenges       StringList   `json:"challenges"`
	CurrentSolutions StringList   `json:"current_solutions"`
	DecisionMakers   StringList   `json:"decision_makers"`
	ExpansionInfo    StringList   `json:"expansion_info"`
	EmployeeFeedback StringList   `json:"employee_feedback"`
	BudgetInfo       StringList   `json:"budget_info"`
	KeyInsights      StringList   `json:"key_insights"`
	RelevantFindings bool         `json:"relevant_findings"`
}

// NewExtractedData returns a record with all sequences empty rather
// than nil, so serialized checkpoints carry [] instead of null.
func NewExtractedData() ExtractedData {
	return ExtractedData{
		Companies:        []CompanyRef{},
		Challenges:       StringList{},
		CurrentSolutions: StringList{},
		DecisionMakers:   StringList{},
		ExpansionInfo:    StringList{},
		EmployeeFeedback: StringList{},
		BudgetInfo:       StringList{},
		KeyInsights:      StringList{},
	}
}

// FillDefaults replaces nil sequences with empty ones.
func (d *ExtractedData) FillDefaults() {
	if d.Companies == nil {
		d.Companies = []CompanyRef{}
	}
	if d.Challenges == nil {
		d.Challenges = StringList{}
	}
	if d.CurrentSolutions == nil {
		d.CurrentSolutions = StringList{}
	}
	if d.DecisionMakers == nil {
		d.DecisionMakers = StringList{}
	}
	if d.ExpansionInfo == nil {
		d.ExpansionInfo = StringList{}
	}
	if d.EmployeeFeedback == nil {
		d.EmployeeFeedback = StringList{}
	}
	if d.BudgetInfo == nil {
		d.BudgetInfo = StringList{}
	}
	if d.KeyInsights == nil {
		d.KeyInsights = StringList{}
	}
}

// HasFindings reports whether any of the fields that define relevance
// carry data.
func (d ExtractedData) HasFindings() bool {
	return len(d.Companies) > 0 || len(d.Challenges) > 0 ||
		len(d.CurrentSolutions) > 0 || len(d.DecisionMakers) > 0
}

// EntityState is a point-in-time snapshot of the entity tracker's four
// deduplicated sets, serialized as sorted sequences.
type EntityState struct {
	Companies      []string `json:"companies"`
	DecisionMakers []string `json:"decision_makers"`
	Solutions      []string `json:"solutions"`
	Challenges     []string `json:"challenges"`
}

// Checkpoint is one persisted per-cycle snapshot of full run state.
type Checkpoint struct {
	Assignment    Assignment  `json:"assignment"`
	Findings      []Finding   `json:"findings"`
	FoundEntities EntityState `json:"found_entities"`
	Cycle         int         `json:"cycle"`
	Timestamp     time.Time   `json:"timestamp"`
	RunID         string      `json:"run_id,omitempty"`
}

// ToQueryString coerces a model-echoed value to a plain string. Strings
// pass through trimmed; mappings prefer a "query" then "q" key, then the
// first string value in key order; sequences yield their first coercible
// element. Anything else coerces to "".
func ToQueryString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if q, ok := t["query"].(string); ok {
			return strings.TrimSpace(q)
		}
		if q, ok := t["q"].(string); ok {
			return strings.TrimSpace(q)
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := t[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		return ""
	case []any:
		for _, item := range t {
			if s := ToQueryString(item); s != "" {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}
