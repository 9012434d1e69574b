package research

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"deepscout/internal/config"
	"deepscout/internal/search"
)

func TestMain(m *testing.M) {
	// go.opencensus.io starts a background stats worker in its package init
	// (pulled in transitively via the genai SDK's gRPC dependencies); it is
	// not a goroutine leaked by this package.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// scriptedLLM answers each pipeline step by prompt shape.
func scriptedLLM() *fakeLLM {
	extraction := 0
	return &fakeLLM{fn: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "planning a web research strategy"):
			return `{"approach":"focused sweep",
				"key_questions":["who pays?"],
				"search_queries":["q1","q2","q3","q4","q5","q6"],
				"cycles":2,
				"priority_sources":["news sites"]}`, nil
		case strings.Contains(prompt, "Rate how useful"):
			return "8", nil
		case strings.Contains(prompt, "Extract factual research findings"):
			extraction++
			return fmt.Sprintf(`{"companies":[{"name":"Company %d","location":"Tokyo"}],
				"decision_makers":["Person %d"],
				"relevant_findings":true}`, extraction, extraction), nil
		case strings.Contains(prompt, "Propose"):
			return `["deeper query one","deeper query two"]`, nil
		default:
			return "", fmt.Errorf("unexpected prompt: %s", prompt[:40])
		}
	}}
}

func testEngineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Checkpoint.Dir = t.TempDir()
	cfg.Search.QueryDelay = "1ms"
	cfg.Research.MaxCycles = 2
	cfg.Research.MaxQueriesPerCycle = 2
	cfg.Research.MaxPagesPerQuery = 2
	cfg.Research.RelevanceThreshold = 7
	return cfg
}

var engineAssignment = Assignment{
	Title:      "English training demand",
	Objectives: []string{"find companies that invest in language training"},
}

func TestEngineRunsFullPipeline(t *testing.T) {
	cfg := testEngineConfig(t)
	provider := &fakeProvider{candidates: []search.Candidate{
		{URL: "https://example.com/one", Title: "One"},
		{URL: "https://example.com/two", Title: "Two"},
	}}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/one": "long article about corporate language training budgets",
		"https://example.com/two": "another page on the same topic with hiring details",
	}}

	var progress []ProgressStats
	var findingsSeen [][]Finding
	hooks := Hooks{
		OnProgress:        func(s ProgressStats) { progress = append(progress, s) },
		OnFindingsUpdated: func(f []Finding) { findingsSeen = append(findingsSeen, f) },
	}

	engine := NewEngine(cfg, scriptedLLM(), provider, fetcher, hooks, zap.NewNop())
	result, err := engine.Run(context.Background(), engineAssignment)
	require.NoError(t, err)

	assert.Equal(t, 2, result.CyclesRun)
	require.NotEmpty(t, result.Findings)

	// findings keep query order within each cycle
	for _, f := range result.Findings {
		assert.NotEmpty(t, f.Query)
		assert.Equal(t, 8, f.QualityScore)
		assert.True(t, f.ExtractedData.RelevantFindings)
	}

	// entities accumulated across cycles
	assert.NotEmpty(t, result.Entities.Companies)
	assert.NotEmpty(t, result.Entities.DecisionMakers)

	// hooks fired once per cycle
	require.Len(t, progress, 2)
	require.Len(t, findingsSeen, 2)
	assert.Equal(t, len(result.Findings), len(findingsSeen[1]))
	assert.Equal(t, len(result.Entities.Companies), progress[1].CompaniesFound)

	// one checkpoint file per cycle
	entries, err := os.ReadDir(cfg.Checkpoint.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	cp, err := LoadCheckpoint(filepath.Join(cfg.Checkpoint.Dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, engineAssignment.Title, cp.Assignment.Title)
}

func TestEngineSurvivesFailingCollaborators(t *testing.T) {
	cfg := testEngineConfig(t)
	// dead provider and a fetcher with no pages: every candidate fails
	provider := &fakeProvider{err: fmt.Errorf("search api down")}
	fetcher := &fakeFetcher{}

	engine := NewEngine(cfg, failingLLM(), provider, fetcher, Hooks{}, zap.NewNop())
	result, err := engine.Run(context.Background(), engineAssignment)
	require.NoError(t, err)

	// run completes with zero findings and a full checkpoint trail
	assert.Empty(t, result.Findings)
	assert.Equal(t, cfg.Research.MaxCycles, result.CyclesRun)
	entries, err := os.ReadDir(cfg.Checkpoint.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, cfg.Research.MaxCycles)
}

func TestEngineNilProviderUsesFallback(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.Research.MaxCycles = 1
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://japan-dev.com/blog": "an article about japanese tech companies and training",
	}}

	llm := &fakeLLM{fn: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "planning a web research strategy"):
			return `{"approach":"a","search_queries":["japan tech hiring","x","y","z","w"],"cycles":1}`, nil
		case strings.Contains(prompt, "Rate how useful"):
			return "9", nil
		case strings.Contains(prompt, "Extract factual research findings"):
			return `{"companies":["Mercari"],"relevant_findings":true}`, nil
		default:
			return "[]", nil
		}
	}}

	engine := NewEngine(cfg, llm, nil, fetcher, Hooks{}, zap.NewNop())
	result, err := engine.Run(context.Background(), engineAssignment)
	require.NoError(t, err)

	// the fallback candidate list for a japan-keyed query includes
	// japan-dev.com, which is the only fetchable page
	require.NotEmpty(t, result.Findings)
	assert.Equal(t, "https://japan-dev.com/blog", result.Findings[0].URL)
}

func TestEngineCancellationStopsAtCycleBoundary(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.Research.MaxCycles = 5

	ctx, cancel := context.WithCancel(context.Background())
	provider := &fakeProvider{candidates: []search.Candidate{{URL: "https://example.com/one"}}}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/one": "enough text to process normally here",
	}}

	hooks := Hooks{OnProgress: func(ProgressStats) { cancel() }}
	engine := NewEngine(cfg, scriptedLLM(), provider, fetcher, hooks, zap.NewNop())

	result, err := engine.Run(ctx, engineAssignment)
	require.NoError(t, err)
	// cancelled after the first cycle's progress hook
	assert.Equal(t, 1, result.CyclesRun)

	// the completed cycle's checkpoint survives
	entries, readErr := os.ReadDir(cfg.Checkpoint.Dir)
	require.NoError(t, readErr)
	assert.Len(t, entries, 1)
}

func TestEngineRejectsInvalidAssignment(t *testing.T) {
	cfg := testEngineConfig(t)
	engine := NewEngine(cfg, failingLLM(), nil, &fakeFetcher{}, Hooks{}, zap.NewNop())
	_, err := engine.Run(context.Background(), Assignment{Title: "no objectives"})
	assert.ErrorIs(t, err, ErrInvalidAssignment)
}

func TestEngineObservationHook(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.Research.MaxCycles = 1
	cfg.Research.MaxQueriesPerCycle = 1

	provider := &fakeProvider{candidates: []search.Candidate{
		{URL: "https://example.com/1"},
		{URL: "https://example.com/2"},
		{URL: "https://example.com/3"},
	}}
	cfg.Research.MaxPagesPerQuery = 3
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/1": "text one",
		"https://example.com/2": "text two",
		"https://example.com/3": "text three",
	}}

	// every extraction reports a Tokyo company, so the third page
	// crosses the location-cluster threshold
	llm := &fakeLLM{fn: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "planning a web research strategy"):
			return `{"approach":"a","search_queries":["a","b","c","d","e"],"cycles":1}`, nil
		case strings.Contains(prompt, "Rate how useful"):
			return "9", nil
		case strings.Contains(prompt, "Extract factual research findings"):
			return `{"companies":[{"name":"K.K. Example","location":"Tokyo"}],"relevant_findings":true}`, nil
		default:
			return "[]", nil
		}
	}}

	var observations []string
	hooks := Hooks{OnObservation: func(o string) { observations = append(observations, o) }}
	engine := NewEngine(cfg, llm, provider, fetcher, hooks, zap.NewNop())

	_, err := engine.Run(context.Background(), engineAssignment)
	require.NoError(t, err)
	require.Len(t, observations, 1)
	assert.Contains(t, observations[0], "Tokyo")
}

func TestRefineStrategyBuckets(t *testing.T) {
	cfg := testEngineConfig(t)
	engine := NewEngine(cfg, failingLLM(), nil, &fakeFetcher{}, Hooks{}, zap.NewNop())

	s := Strategy{}
	tracker := NewEntityTracker()

	// bucket 1: few companies known
	engine.refineStrategy(&s, tracker)
	assert.Equal(t, []string{"news sites", "industry reports"}, s.PrioritySources)

	// bucket 2: companies known, decision makers lagging
	tracker.Update([]Finding{findingWith(ExtractedData{Companies: []CompanyRef{
		{Name: "A"}, {Name: "B"}, {Name: "C"},
	}})})
	engine.refineStrategy(&s, tracker)
	assert.Equal(t, []string{"professional networks", "press releases"}, s.PrioritySources)

	// bucket 3: people caught up with companies
	tracker.Update([]Finding{findingWith(ExtractedData{DecisionMakers: StringList{"p1", "p2", "p3"}})})
	engine.refineStrategy(&s, tracker)
	assert.Equal(t, []string{"case studies", "review sites"}, s.PrioritySources)
}
