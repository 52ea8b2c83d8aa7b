package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/venedict/inquest/internal/model"
)

// Stats holds per-provider health counters. The fallback chain reads
// these when deciding provider order.
type Stats struct {
	Requests            int64
	Failures            int64
	ConsecutiveFailures int64
	LastFailure         time.Time
}

type providerSlot struct {
	bucket *rate.Limiter
	slots  chan struct{} // Concurrency cap, one token per in-flight call
}

// Gateway is the uniform call surface for all registered providers. It
// enforces per-provider token buckets and concurrency ceilings and keeps
// the health counters. Every call returns either a typed response or a
// typed failure; nothing is silently dropped.
type Gateway struct {
	logger *zap.Logger

	mu        sync.RWMutex
	llms      map[string]LLM
	searchers map[string]Search
	limits    map[string]*providerSlot
	stats     map[string]*Stats
}

// NewGateway creates an empty gateway
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		logger:    logger,
		llms:      make(map[string]LLM),
		searchers: make(map[string]Search),
		limits:    make(map[string]*providerSlot),
		stats:     make(map[string]*Stats),
	}
}

// RegisterLLM adds a reasoning provider with its rate-limit ceiling
func (g *Gateway) RegisterLLM(p LLM, cfg model.ProviderConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.llms[p.Name()] = p
	g.limits[p.Name()] = newSlot(cfg)
	g.stats[p.Name()] = &Stats{}
}

// RegisterSearch adds a search provider with its rate-limit ceiling
func (g *Gateway) RegisterSearch(p Search, cfg model.ProviderConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searchers[p.Name()] = p
	g.limits[p.Name()] = newSlot(cfg)
	g.stats[p.Name()] = &Stats{}
}

func newSlot(cfg model.ProviderConfig) *providerSlot {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 1
	}
	return &providerSlot{
		bucket: rate.NewLimiter(rate.Limit(rps), burst),
		slots:  make(chan struct{}, maxConc),
	}
}

// Complete invokes a reasoning provider by name
func (g *Gateway) Complete(ctx context.Context, name string, req CompletionRequest) (*CompletionResponse, error) {
	g.mu.RLock()
	p, ok := g.llms[name]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown reasoning provider %q", name)
	}

	release, err := g.acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := p.Complete(ctx, req)
	g.record(name, err)
	return resp, err
}

// Search invokes a search provider by name
func (g *Gateway) Search(ctx context.Context, name string, query string, maxResults int) ([]model.SearchHit, error) {
	g.mu.RLock()
	p, ok := g.searchers[name]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown search provider %q", name)
	}

	release, err := g.acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	defer release()

	hits, err := p.Search(ctx, query, maxResults)
	g.record(name, err)
	return hits, err
}

// acquire waits for a rate-limit token and a concurrency slot. The
// returned release func must be called regardless of call outcome so that
// a degraded call never leaks its slot.
func (g *Gateway) acquire(ctx context.Context, name string) (func(), error) {
	g.mu.RLock()
	slot, ok := g.limits[name]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no limits registered for provider %q", name)
	}

	if err := slot.bucket.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate wait for %s: %w", name, err)
	}

	select {
	case slot.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return func() { <-slot.slots }, nil
}

func (g *Gateway) record(name string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stats[name]
	if s == nil {
		return
	}
	s.Requests++
	if err != nil {
		s.Failures++
		s.ConsecutiveFailures++
		s.LastFailure = time.Now()
		g.logger.Debug("provider call failed",
			zap.String("provider", name),
			zap.Int64("consecutive_failures", s.ConsecutiveFailures),
			zap.Error(err))
		return
	}
	s.ConsecutiveFailures = 0
}

// Stats returns a copy of the health counters for a provider
func (g *Gateway) Stats(name string) Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if s := g.stats[name]; s != nil {
		return *s
	}
	return Stats{}
}
