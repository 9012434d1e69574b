package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"deepscout/internal/llm"
)

// Planner turns an assignment into an initial strategy via the language
// model, with a deterministic fallback so planning never fails.
type Planner struct {
	llm       llm.Client
	maxCycles int
	logger    *zap.Logger
}

// NewPlanner creates a strategy planner.
func NewPlanner(client llm.Client, maxCycles int, logger *zap.Logger) *Planner {
	if maxCycles < 1 {
		maxCycles = 1
	}
	return &Planner{llm: client, maxCycles: maxCycles, logger: logger}
}

const planPromptTemplate = `You are planning a web research strategy.

Research title: %s
Depth: %s

Objectives:
%s

Respond with ONLY a JSON object in this exact shape:
{
  "approach": "one-paragraph description of the research approach",
  "key_questions": ["question", ...],
  "search_queries": ["10 to 15 concrete web search queries"],
  "cycles": 3,
  "priority_sources": ["source type", ...]
}`

// Plan asks the model for a strategy and falls back to a deterministic
// one on any parse failure or an under-filled query list. Always returns
// a usable strategy with cycles >= 1 and at least 5 queries.
func (p *Planner) Plan(ctx context.Context, a Assignment) Strategy {
	depth := a.Depth
	if depth == "" {
		depth = "balanced"
	}
	prompt := fmt.Sprintf(planPromptTemplate, a.Title, depth, bulletList(a.Objectives))

	raw, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		p.logger.Warn("strategy call failed, using fallback", zap.Error(err))
		return p.fallbackStrategy(a)
	}

	var s Strategy
	if obj := isolateJSONObject(raw); obj == "" || json.Unmarshal([]byte(obj), &s) != nil {
		p.logger.Warn("strategy response unparsable, using fallback",
			zap.String("excerpt", excerpt(raw)))
		return p.fallbackStrategy(a)
	}

	s.SearchQueries = cleanQueries(s.SearchQueries)
	if len(s.SearchQueries) < 5 {
		p.logger.Warn("strategy returned too few queries, using fallback",
			zap.Int("queries", len(s.SearchQueries)))
		return p.fallbackStrategy(a)
	}

	if s.Cycles < 1 {
		s.Cycles = 1
	}
	if s.Cycles > p.maxCycles {
		s.Cycles = p.maxCycles
	}
	if s.Approach == "" {
		s.Approach = "Iterative web research across the stated objectives."
	}
	if len(s.PrioritySources) == 0 {
		s.PrioritySources = []string{"news sites", "industry reports"}
	}
	return s
}

// angleTemplates are the deterministic query angles applied to each
// objective when the model's plan is unusable.
var angleTemplates = []string{
	"%s companies %s",
	"%s employee experiences",
	"%s solutions comparison",
	"%s decision makers",
	"%s industry report %s",
}

// fallbackStrategy derives a strategy purely from the assignment text.
func (p *Planner) fallbackStrategy(a Assignment) Strategy {
	year := fmt.Sprintf("%d", time.Now().Year())

	var queries []string
	for _, obj := range a.Objectives {
		obj = strings.TrimSpace(obj)
		if obj == "" {
			continue
		}
		for _, tmpl := range angleTemplates {
			if strings.Count(tmpl, "%s") == 2 {
				queries = append(queries, fmt.Sprintf(tmpl, obj, year))
			} else {
				queries = append(queries, fmt.Sprintf(tmpl, obj))
			}
		}
	}
	if len(queries) == 0 {
		queries = []string{
			fmt.Sprintf("%s overview %s", a.Title, year),
			fmt.Sprintf("%s key companies", a.Title),
			fmt.Sprintf("%s challenges", a.Title),
			fmt.Sprintf("%s case studies", a.Title),
			fmt.Sprintf("%s industry report %s", a.Title, year),
		}
	}
	if len(queries) > 15 {
		queries = queries[:15]
	}

	questions := make([]string, 0, len(a.Objectives))
	for _, obj := range a.Objectives {
		questions = append(questions, fmt.Sprintf("What is known about: %s?", obj))
	}

	cycles := 3
	if cycles > p.maxCycles {
		cycles = p.maxCycles
	}

	return Strategy{
		Approach:        fmt.Sprintf("Systematic search across each objective of %q, one angle at a time.", a.Title),
		KeyQuestions:    questions,
		SearchQueries:   queries,
		Cycles:          cycles,
		PrioritySources: []string{"news sites", "industry reports", "company websites"},
	}
}

// cleanQueries trims entries and drops empties.
func cleanQueries(in []string) []string {
	out := make([]string, 0, len(in))
	for _, q := range in {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

func bulletList(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
	return sb.String()
}

// excerpt shortens raw model output for log fields.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 160 {
		return s
	}
	return truncateAtRune(s, 160) + "..."
}

// truncateAtRune cuts s to at most limit bytes without splitting a
// multi-byte rune at the boundary.
func truncateAtRune(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
