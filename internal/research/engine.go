package research

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deepscout/internal/config"
	"deepscout/internal/fetch"
	"deepscout/internal/llm"
	"deepscout/internal/search"
)

// ProgressStats is reported to external collaborators after each cycle.
type ProgressStats struct {
	CompaniesFound   int `json:"companies_found"`
	PeopleFound      int `json:"people_found"`
	PatternsDetected int `json:"patterns_detected"`
}

// Hooks are optional callbacks into external collaborators. Nil hooks
// are skipped. They replace any need to patch engine internals from
// outside.
type Hooks struct {
	// OnFindingsUpdated fires after each cycle's entity update with the
	// full findings sequence so far.
	OnFindingsUpdated func([]Finding)

	// OnProgress fires after each cycle with current counts.
	OnProgress func(ProgressStats)

	// OnObservation fires whenever the pattern tracker crosses a
	// threshold, with a free-text observation.
	OnObservation func(string)
}

// Result is what a completed run hands to the external report renderer.
type Result struct {
	Findings  []Finding
	Strategy  Strategy
	Entities  EntityState
	CyclesRun int
}

// Engine drives the cycle loop: plan, then for each cycle generate
// queries, retrieve, fetch, gate, extract, update entities, and
// checkpoint. A failure in any sub-step is absorbed and the cycle
// continues with whatever it has; only pre-loop configuration problems
// are fatal.
type Engine struct {
	cfg       *config.Config
	provider  search.Provider // nil means fallback candidates only
	fetcher   fetch.Fetcher
	planner   *Planner
	queries   *QueryGenerator
	gate      *Gate
	extractor *Extractor
	hooks     Hooks
	logger    *zap.Logger

	runID      string
	queryDelay time.Duration
}

// NewEngine wires the pipeline components together. The provider may be
// nil when no search API is configured.
func NewEngine(cfg *config.Config, client llm.Client, provider search.Provider, fetcher fetch.Fetcher, hooks Hooks, logger *zap.Logger) *Engine {
	runID := uuid.NewString()
	return &Engine{
		cfg:        cfg,
		provider:   provider,
		fetcher:    fetcher,
		planner:    NewPlanner(client, cfg.Research.MaxCycles, logger),
		queries:    NewQueryGenerator(client, cfg.Research.MaxQueriesPerCycle, logger),
		gate:       NewGate(client, cfg.Research.RelevanceThreshold, cfg.Research.TrustedDomains, logger),
		extractor:  NewExtractor(client, logger),
		hooks:      hooks,
		logger:     logger.With(zap.String("run_id", runID)),
		runID:      runID,
		queryDelay: config.Duration(cfg.Search.QueryDelay, 2*time.Second),
	}
}

// RunID identifies this engine's run in logs and checkpoints.
func (e *Engine) RunID() string {
	return e.runID
}

// Plan exposes strategy planning without running cycles, for dry runs.
func (e *Engine) Plan(ctx context.Context, a Assignment) (Strategy, error) {
	if err := a.Validate(); err != nil {
		return Strategy{}, err
	}
	return e.planner.Plan(ctx, a), nil
}

// Run executes the full research loop. It returns an error only for an
// invalid assignment; provider and model failures inside the loop are
// recovered per cycle. Cancellation is cooperative: it is checked
// between cycles, stops further cycles, and keeps the checkpoint trail.
func (e *Engine) Run(ctx context.Context, a Assignment) (Result, error) {
	if err := a.Validate(); err != nil {
		return Result{}, err
	}

	strategy := e.planner.Plan(ctx, a)
	cycles := strategy.Cycles
	if cycles > e.cfg.Research.MaxCycles {
		cycles = e.cfg.Research.MaxCycles
	}

	e.logger.Info("research run starting",
		zap.String("title", a.Title),
		zap.Int("cycles", cycles),
		zap.Int("seed_queries", len(strategy.SearchQueries)))

	tracker := NewEntityTracker()
	patterns := NewPatternTracker()
	checkpoints := NewCheckpointer(e.cfg.Checkpoint.Dir, e.runID, e.logger)

	var findings []Finding
	cyclesRun := 0

	for cycle := 0; cycle < cycles; cycle++ {
		if ctx.Err() != nil {
			e.logger.Info("run cancelled at cycle boundary", zap.Int("next_cycle", cycle))
			break
		}

		newFindings := e.runCycle(ctx, strategy, tracker.Snapshot(), findings, patterns, cycle)
		findings = append(findings, newFindings...)
		tracker.Update(newFindings)
		cyclesRun++

		e.refineStrategy(&strategy, tracker)

		if _, err := checkpoints.Save(a, findings, tracker.Snapshot(), cycle); err != nil {
			e.logger.Warn("checkpoint save failed", zap.Int("cycle", cycle), zap.Error(err))
		}

		if e.hooks.OnFindingsUpdated != nil {
			e.hooks.OnFindingsUpdated(findings)
		}
		if e.hooks.OnProgress != nil {
			companies, people, _, _ := tracker.Counts()
			e.hooks.OnProgress(ProgressStats{
				CompaniesFound:   companies,
				PeopleFound:      people,
				PatternsDetected: patterns.Detected(),
			})
		}

		e.logger.Info("cycle complete",
			zap.Int("cycle", cycle),
			zap.Int("new_findings", len(newFindings)),
			zap.Int("total_findings", len(findings)))
	}

	return Result{
		Findings:  findings,
		Strategy:  strategy,
		Entities:  tracker.Snapshot(),
		CyclesRun: cyclesRun,
	}, nil
}

// runCycle processes one cycle's queries in order and returns the new
// findings in that same order. Nothing in here aborts the cycle.
func (e *Engine) runCycle(ctx context.Context, strategy Strategy, entities EntityState, prior []Finding, patterns *PatternTracker, cycle int) []Finding {
	queries := e.queries.QueriesForCycle(ctx, strategy, entities, prior, cycle)

	var newFindings []Finding
	for i, query := range queries {
		if i > 0 {
			// Minimum inter-search delay; queries are sequential on
			// purpose, never concurrent.
			time.Sleep(e.queryDelay)
		}

		candidates := e.retrieve(ctx, query)
		if len(candidates) > e.cfg.Research.MaxPagesPerQuery {
			candidates = candidates[:e.cfg.Research.MaxPagesPerQuery]
		}

		for _, cand := range candidates {
			finding, ok := e.processCandidate(ctx, cand, query, patterns)
			if !ok {
				continue
			}
			newFindings = append(newFindings, finding)
		}
	}
	return newFindings
}

// retrieve turns a query into candidates, falling back to the
// deterministic list when the provider is missing, failing, or empty.
func (e *Engine) retrieve(ctx context.Context, query string) []search.Candidate {
	if e.provider == nil {
		e.logger.Warn("no search provider configured, using fallback candidates",
			zap.String("query", query))
		return search.FallbackCandidates(query)
	}

	candidates, err := e.provider.Search(ctx, query, e.cfg.Search.MaxResults)
	if err != nil {
		e.logger.Warn("search failed, using fallback candidates",
			zap.String("query", query),
			zap.Error(err))
		return search.FallbackCandidates(query)
	}
	if len(candidates) == 0 {
		e.logger.Warn("search returned nothing, using fallback candidates",
			zap.String("query", query))
		return search.FallbackCandidates(query)
	}
	return candidates
}

// processCandidate runs fetch, gate, and extract for one URL. Returns
// ok=false for anything that should be dropped.
func (e *Engine) processCandidate(ctx context.Context, cand search.Candidate, query string, patterns *PatternTracker) (Finding, bool) {
	page, err := e.fetcher.Fetch(ctx, cand.URL)
	if err != nil {
		if errors.Is(err, fetch.ErrTooThin) {
			e.logger.Info("skipping thin page", zap.String("url", cand.URL))
		} else {
			e.logger.Info("fetch failed", zap.String("url", cand.URL), zap.Error(err))
		}
		return Finding{}, false
	}

	title := page.Title
	if title == "" {
		title = cand.Title
	}

	score := e.gate.Score(ctx, page.Text, query, title)
	if !e.gate.ShouldExtract(score, cand.URL) {
		e.logger.Debug("page below relevance threshold",
			zap.String("url", cand.URL),
			zap.Int("score", score))
		return Finding{}, false
	}

	data := e.extractor.Extract(ctx, page.Text, query, cand.URL)
	if !data.RelevantFindings {
		e.logger.Debug("extraction found nothing relevant", zap.String("url", cand.URL))
		return Finding{}, false
	}

	for _, observation := range patterns.Observe(data) {
		e.logger.Info("pattern observed", zap.String("observation", observation))
		if e.hooks.OnObservation != nil {
			e.hooks.OnObservation(observation)
		}
	}

	return Finding{
		URL:           cand.URL,
		Title:         title,
		QualityScore:  score,
		ExtractedData: data,
		Query:         query,
	}, true
}

// refineStrategy rebalances priority sources from entity counts alone.
// Three buckets: discover companies first, then the people in them, then
// ground truth about the solutions in play.
func (e *Engine) refineStrategy(strategy *Strategy, tracker *EntityTracker) {
	companies, decisionMakers, _, _ := tracker.Counts()
	switch {
	case companies < 3:
		strategy.PrioritySources = []string{"news sites", "industry reports"}
	case decisionMakers < companies:
		strategy.PrioritySources = []string{"professional networks", "press releases"}
	default:
		strategy.PrioritySources = []string{"case studies", "review sites"}
	}
}
