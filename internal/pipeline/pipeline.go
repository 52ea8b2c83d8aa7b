package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/confidence"
	"github.com/venedict/inquest/internal/credibility"
	"github.com/venedict/inquest/internal/fetch"
	"github.com/venedict/inquest/internal/model"
	"github.com/venedict/inquest/internal/provenance"
	"github.com/venedict/inquest/internal/provider"
	"github.com/venedict/inquest/internal/resilience"
	"github.com/venedict/inquest/internal/worker"
)

// Options are the per-request knobs of the research entry point
type Options struct {
	MaxSources    int
	Depth         string // quick, standard, deep
	OutputFormat  string
	VerifyClaims  bool
	CitationStyle model.CitationStyle
}

// Pipeline holds the stage implementations and their shared dependencies.
// Stage functions are pure transformations over the session, reaching
// providers only through the fallback executor.
type Pipeline struct {
	cfg         *model.Config
	logger      *zap.Logger
	gateway     *provider.Gateway
	exec        *resilience.Executor
	fetcher     *fetch.Fetcher
	limiter     *worker.Limiter
	classifier  *credibility.Classifier
	aggregator  *confidence.Aggregator
	graph       *provenance.Graph
	searchCache *provider.CacheSearchProvider // nil when caching is disabled
}

// Deps bundles the pipeline's collaborators
type Deps struct {
	Config      *model.Config
	Logger      *zap.Logger
	Gateway     *provider.Gateway
	Executor    *resilience.Executor
	Fetcher     *fetch.Fetcher
	Limiter     *worker.Limiter
	Graph       *provenance.Graph
	SearchCache *provider.CacheSearchProvider
}

// NewPipeline wires the stage implementations
func NewPipeline(deps Deps) *Pipeline {
	return &Pipeline{
		cfg:         deps.Config,
		logger:      deps.Logger,
		gateway:     deps.Gateway,
		exec:        deps.Executor,
		fetcher:     deps.Fetcher,
		limiter:     deps.Limiter,
		classifier:  credibility.NewClassifier(deps.Config.Credibility),
		aggregator:  confidence.NewAggregator(deps.Config.Confidence),
		graph:       deps.Graph,
		searchCache: deps.SearchCache,
	}
}

// completeJSON runs a reasoning call through retry and fallback and
// decodes the structured JSON reply. A malformed payload is a
// non-transient invalid response: surfaced, never retried.
func (p *Pipeline) completeJSON(ctx context.Context, system, prompt string, out interface{}) error {
	return p.exec.Do(ctx, provider.CapabilityReasoning, func(ctx context.Context, name string) error {
		resp, err := p.gateway.Complete(ctx, name, provider.CompletionRequest{
			System:      system,
			Prompt:      prompt,
			Temperature: 0.2,
		})
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(stripFences(resp.Text)), out); err != nil {
			return provider.NewError(name, provider.ErrInvalidResponse,
				fmt.Errorf("decode reasoning payload: %w", err))
		}
		return nil
	})
}

// completeText runs a reasoning call expecting free text
func (p *Pipeline) completeText(ctx context.Context, system, prompt string) (string, error) {
	var text string
	err := p.exec.Do(ctx, provider.CapabilityReasoning, func(ctx context.Context, name string) error {
		resp, err := p.gateway.Complete(ctx, name, provider.CompletionRequest{
			System:      system,
			Prompt:      prompt,
			Temperature: 0.3,
		})
		if err != nil {
			return err
		}
		text = resp.Text
		return nil
	})
	return text, err
}

// failureReason maps an internal failure to the description recorded in
// missing-work accounting. Results carry only these taxonomy phrases;
// raw provider error text goes to the log, never to the caller.
func failureReason(err error) string {
	switch {
	case err == nil:
		return "did not complete before the stage deadline"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return "did not complete before the stage deadline"
	case errors.Is(err, provider.ErrInvalidResponse):
		return "provider returned an unusable response"
	case errors.Is(err, provider.ErrRateLimited):
		return "providers exhausted (rate limited)"
	case errors.Is(err, provider.ErrProviderUnavailable):
		return "providers exhausted (unavailable)"
	case errors.Is(err, resilience.ErrChainExhausted):
		return "all providers exhausted"
	default:
		return "internal error"
	}
}

// stripFences removes markdown code fences models wrap JSON in
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
