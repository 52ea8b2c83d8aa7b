package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/cache"
	"github.com/venedict/inquest/internal/fetch"
	"github.com/venedict/inquest/internal/model"
	"github.com/venedict/inquest/internal/pipeline"
	"github.com/venedict/inquest/internal/provenance"
	"github.com/venedict/inquest/internal/provider"
	"github.com/venedict/inquest/internal/render"
	"github.com/venedict/inquest/internal/resilience"
	"github.com/venedict/inquest/internal/worker"
)

var (
	outJSON    string
	outMD      string
	depth      string
	maxSources int
	style      string
	noVerify   bool
	noCache    bool
	userAgent  string
)

// researchCmd represents the research command
var researchCmd = &cobra.Command{
	Use:   "research <question>",
	Short: "Run a full research pipeline over a question",
	Long: `Research decomposes the question, searches the web for each sub-query,
synthesizes sourced findings, verifies and scores them, and writes a
cited report.

Example:
  inquest research "impact of remote work on urban housing markets"
  inquest research "history of the transistor" --depth deep --json out.json --md report.md
  inquest research "current go release cadence" --depth quick --max-sources 5`,
	Args: cobra.ExactArgs(1),
	RunE: runResearch,
}

func init() {
	rootCmd.AddCommand(researchCmd)

	// Output flags
	researchCmd.Flags().StringVar(&outJSON, "json", "result.json", "output JSON path")
	researchCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	researchCmd.Flags().StringVar(&style, "style", "apa", "citation style (apa, mla, chicago, ieee, harvard)")

	// Pipeline flags
	researchCmd.Flags().StringVar(&depth, "depth", "standard", "research depth (quick, standard, deep)")
	researchCmd.Flags().IntVar(&maxSources, "max-sources", 0, "max sources to gather (0 = config default)")
	researchCmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip claim verification calls")

	// HTTP flags
	researchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable cache (force fresh fetches)")
	researchCmd.Flags().StringVar(&userAgent, "ua", "", "HTTP User-Agent override")
}

func runResearch(cmd *cobra.Command, args []string) error {
	question := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if userAgent != "" {
		cfg.HTTP.UserAgent = userAgent
	}
	cfg.Output.Verbose = verbose

	logger, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	orch, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Researching: %s\n", question)
		fmt.Fprintf(os.Stderr, "Depth: %s (%v budget)\n", depth, cfg.DeadlineFor(depth))
		fmt.Fprintln(os.Stderr)
	}

	opts := pipeline.Options{
		MaxSources:    maxSources,
		Depth:         depth,
		VerifyClaims:  !noVerify,
		CitationStyle: model.CitationStyle(style),
	}

	// The orchestrator enforces its own deadline from the depth budget;
	// the extra headroom here covers rendering
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DeadlineFor(depth)+10*time.Second)
	defer cancel()

	result, err := orch.Research(ctx, question, opts)
	if err != nil && result == nil {
		return fmt.Errorf("research failed: %w", err)
	}
	if err != nil {
		// Failed runs still carry partial accounting worth rendering
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	r := render.NewRenderer(verbose)
	if outJSON != "" {
		if err := r.RenderJSON(result, outJSON); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
	}
	if outMD != "" {
		if err := r.RenderMarkdown(result, outMD); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
	}
	r.RenderSummary(result)

	return nil
}

// loadConfig layers the config file and INQUEST_* environment over the
// built-in defaults
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Cache.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Cache.Dir = filepath.Join(home, ".inquest", "cache")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// buildOrchestrator wires providers, resilience, fetching, and the
// pipeline from configuration
func buildOrchestrator(cfg *model.Config, logger *zap.Logger) (*pipeline.Orchestrator, error) {
	var store cache.Cache
	if cfg.Cache.Enabled {
		store = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
	}

	gateway := provider.NewGateway(logger)
	chain := resilience.NewFallbackChain(cfg.Health, logger)
	chain.BindStats(gateway.Stats)

	for _, pc := range cfg.Providers.Reasoning {
		switch pc.Name {
		case "openai":
			if pc.APIKey == "" {
				pc.APIKey = os.Getenv("OPENAI_API_KEY")
			}
			if pc.APIKey == "" {
				return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
			}
			llm, err := provider.NewOpenAIProvider(pc)
			if err != nil {
				return nil, fmt.Errorf("init provider %s: %w", pc.Name, err)
			}
			gateway.RegisterLLM(llm, pc)
		default:
			return nil, fmt.Errorf("unknown reasoning provider %q", pc.Name)
		}
		chain.Register(provider.CapabilityReasoning, pc.Name)
	}

	var searchCache *provider.CacheSearchProvider
	for _, pc := range cfg.Providers.Search {
		switch pc.Name {
		case "duckduckgo":
			gateway.RegisterSearch(provider.NewDuckDuckGoProvider(pc, cfg.HTTP.UserAgent), pc)
		case "cache":
			if store == nil {
				continue // Cache-backed search needs the cache enabled
			}
			searchCache = provider.NewCacheSearchProvider(store, cfg.Cache.DiskTTL, pc)
			gateway.RegisterSearch(searchCache, pc)
		default:
			return nil, fmt.Errorf("unknown search provider %q", pc.Name)
		}
		chain.Register(provider.CapabilitySearch, pc.Name)
	}

	exec := &resilience.Executor{
		Retry: resilience.NewRetryPolicy(cfg.Retry, logger),
		Chain: chain,
	}

	p := pipeline.NewPipeline(pipeline.Deps{
		Config:      cfg,
		Logger:      logger,
		Gateway:     gateway,
		Executor:    exec,
		Fetcher:     fetch.NewFetcher(cfg.HTTP, store, cfg.Cache.DiskTTL, logger),
		Limiter:     worker.NewLimiter(1, 2),
		Graph:       provenance.NewGraph(),
		SearchCache: searchCache,
	})

	return pipeline.NewOrchestrator(cfg, logger, p), nil
}
