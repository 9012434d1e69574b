package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"deepscout/internal/config"
	"deepscout/internal/fetch"
	"deepscout/internal/llm"
	"deepscout/internal/research"
	"deepscout/internal/search"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "deepscout",
	Short: "deepscout - iterative web research pipeline",
	Long: `deepscout runs multi-cycle web research from a YAML assignment.

Each cycle generates search queries, retrieves and fetches candidate
pages, gates them for relevance, extracts structured findings with a
language model, and checkpoints the full run state to disk.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd executes a full research run
var runCmd = &cobra.Command{
	Use:   "run [assignment.yaml]",
	Short: "Run the full research loop for an assignment",
	Long: `Loads an assignment, plans a strategy, and runs the research cycles.
Progress and observations are printed as they happen; findings and
entity counts are summarized at the end.`,
	Args: cobra.ExactArgs(1),
	RunE: runResearch,
}

// planCmd prints the strategy without spending search or fetch budget
var planCmd = &cobra.Command{
	Use:   "plan [assignment.yaml]",
	Short: "Plan a strategy for an assignment without running cycles",
	Args:  cobra.ExactArgs(1),
	RunE:  planOnly,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
}

func buildEngine(assignmentPath string, hooks research.Hooks) (*research.Engine, research.Assignment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, research.Assignment{}, err
	}

	assignment, err := research.LoadAssignment(assignmentPath)
	if err != nil {
		return nil, research.Assignment{}, err
	}

	client, err := llm.NewClient(cfg.LLM, logger)
	if err != nil {
		return nil, research.Assignment{}, err
	}

	var provider search.Provider
	if cfg.Search.Provider == "brave" && cfg.Search.APIKey != "" {
		provider = search.NewBrave(cfg.Search.APIKey)
	} else {
		logger.Warn("no search provider configured, runs will use fallback candidates only")
	}

	var fetcher fetch.Fetcher
	if cfg.Fetch.UseBrowser {
		fetcher = fetch.NewBrowserFetcher(cfg.Fetch, logger)
	} else {
		fetcher = fetch.NewHTTPFetcher(cfg.Fetch, logger)
	}

	return research.NewEngine(cfg, client, provider, fetcher, hooks, logger), assignment, nil
}

func runResearch(cmd *cobra.Command, args []string) error {
	hooks := research.Hooks{
		OnProgress: func(s research.ProgressStats) {
			fmt.Printf("progress: %d companies, %d people, %d patterns\n",
				s.CompaniesFound, s.PeopleFound, s.PatternsDetected)
		},
		OnObservation: func(o string) {
			fmt.Printf("observation: %s\n", o)
		},
	}

	engine, assignment, err := buildEngine(args[0], hooks)
	if err != nil {
		return err
	}

	// Cooperative cancellation: first signal stops after the current
	// cycle, second signal kills the process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := engine.Run(ctx, assignment)
	if err != nil {
		return err
	}

	fmt.Printf("\nrun %s complete: %d cycles, %d findings\n",
		engine.RunID(), result.CyclesRun, len(result.Findings))
	fmt.Printf("entities: %d companies, %d decision makers, %d solutions, %d challenges\n",
		len(result.Entities.Companies),
		len(result.Entities.DecisionMakers),
		len(result.Entities.Solutions),
		len(result.Entities.Challenges))
	for _, f := range result.Findings {
		fmt.Printf("  [%d/10] %s (%s)\n", f.QualityScore, f.Title, f.URL)
	}
	return nil
}

func planOnly(cmd *cobra.Command, args []string) error {
	engine, assignment, err := buildEngine(args[0], research.Hooks{})
	if err != nil {
		return err
	}

	strategy, err := engine.Plan(context.Background(), assignment)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(strategy)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
