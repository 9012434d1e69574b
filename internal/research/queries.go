package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"deepscout/internal/llm"
)

// QueryGenerator produces the search queries for one cycle. Early cycles
// explore the seed queries, cycle 1 exploits known entities, and later
// cycles ask the model to diversify based on what has been found.
type QueryGenerator struct {
	llm        llm.Client
	maxQueries int
	logger     *zap.Logger
}

// NewQueryGenerator creates a per-cycle query generator.
func NewQueryGenerator(client llm.Client, maxQueries int, logger *zap.Logger) *QueryGenerator {
	if maxQueries < 1 {
		maxQueries = 5
	}
	return &QueryGenerator{llm: client, maxQueries: maxQueries, logger: logger}
}

// QueriesForCycle returns at most maxQueries queries, never an empty
// slice, for any cycle index and entity state.
func (g *QueryGenerator) QueriesForCycle(ctx context.Context, strategy Strategy, entities EntityState, recent []Finding, cycle int) []string {
	var queries []string
	switch {
	case cycle == 0:
		queries = sliceOf(strategy.SearchQueries, 0, g.maxQueries)
	case cycle == 1:
		queries = g.entityQueries(entities)
		if len(queries) == 0 {
			queries = sliceOf(strategy.SearchQueries, g.maxQueries, g.maxQueries)
		}
	default:
		queries = g.diversifiedQueries(ctx, entities, recent)
		if len(queries) == 0 {
			queries = g.entityQueries(entities)
		}
		if len(queries) == 0 {
			queries = sliceOf(strategy.SearchQueries, cycle*g.maxQueries, g.maxQueries)
		}
	}

	if len(queries) == 0 {
		queries = sliceOf(strategy.SearchQueries, 0, g.maxQueries)
	}
	if len(queries) == 0 {
		// A planner strategy always carries seeds, but guard anyway.
		queries = []string{"latest industry developments"}
	}
	if len(queries) > g.maxQueries {
		queries = queries[:g.maxQueries]
	}
	return queries
}

// entityQueries pivots to targeted queries for up to 3 known companies.
func (g *QueryGenerator) entityQueries(entities EntityState) []string {
	var queries []string
	for i, company := range entities.Companies {
		if i >= 3 {
			break
		}
		queries = append(queries,
			fmt.Sprintf("%s training program", company),
			fmt.Sprintf("%s decision makers", company),
		)
	}
	if len(queries) > g.maxQueries {
		queries = queries[:g.maxQueries]
	}
	return queries
}

const diversifyPromptTemplate = `Previous research found:
%s

Known entities:
- companies: %s
- decision makers: %s
- challenges: %s

Propose %d NEW web search queries that deepen or diversify this research.
Avoid repeating ground already covered. Respond with ONLY a JSON array of
query strings.`

// diversifiedQueries asks the model for new queries based on the last 10
// findings and the entity snapshot. Returns nil on any failure so the
// caller can fall back.
func (g *QueryGenerator) diversifiedQueries(ctx context.Context, entities EntityState, recent []Finding) []string {
	prompt := fmt.Sprintf(diversifyPromptTemplate,
		summarizeFindings(recent, 10),
		joinOrNone(entities.Companies),
		joinOrNone(entities.DecisionMakers),
		joinOrNone(entities.Challenges),
		g.maxQueries)

	raw, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		g.logger.Warn("query diversification call failed", zap.Error(err))
		return nil
	}

	arr := isolateJSONArray(raw)
	if arr == "" {
		g.logger.Warn("query response contains no JSON array", zap.String("excerpt", excerpt(raw)))
		return nil
	}

	var items []any
	if err := json.Unmarshal([]byte(arr), &items); err != nil {
		g.logger.Warn("query array unparsable", zap.Error(err), zap.String("excerpt", excerpt(raw)))
		return nil
	}

	var queries []string
	for _, item := range items {
		if q := ToQueryString(item); q != "" {
			queries = append(queries, q)
		}
	}
	return queries
}

// summarizeFindings renders the last n findings newest-last, matching
// the append order of the run's sequence.
func summarizeFindings(findings []Finding, n int) string {
	if len(findings) == 0 {
		return "(nothing yet)"
	}
	start := 0
	if len(findings) > n {
		start = len(findings) - n
	}
	var sb strings.Builder
	for _, f := range findings[start:] {
		sb.WriteString(fmt.Sprintf("- [%d/10] %s", f.QualityScore, f.Title))
		if len(f.ExtractedData.KeyInsights) > 0 {
			sb.WriteString(": ")
			sb.WriteString(f.ExtractedData.KeyInsights[0])
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// sliceOf returns up to count items of s starting at offset, tolerating
// out-of-range offsets.
func sliceOf(s []string, offset, count int) []string {
	if offset >= len(s) {
		return nil
	}
	end := offset + count
	if end > len(s) {
		end = len(s)
	}
	out := make([]string, end-offset)
	copy(out, s[offset:end])
	return out
}
