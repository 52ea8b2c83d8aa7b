package resilience

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/model"
	"github.com/venedict/inquest/internal/provider"
)

// ErrChainExhausted reports that every provider in a capability's chain is
// unhealthy or has failed. The orchestrator maps this to a stage-level
// partial outcome, not a pipeline-level fatal error.
var ErrChainExhausted = errors.New("fallback chain exhausted")

type providerHealth struct {
	exhaustions    []time.Time // Retry exhaustion timestamps within the sliding window
	unhealthyUntil time.Time
}

// StatsFunc reports live gateway call counters for a provider
type StatsFunc func(name string) provider.Stats

// FallbackChain holds the ordered provider list per capability and the
// process-wide health state shared by every concurrent research request.
// All mutations are serialized through one mutex.
type FallbackChain struct {
	logger *zap.Logger
	cfg    model.HealthConfig

	mu     sync.Mutex
	chains map[provider.Capability][]string
	health map[string]*providerHealth
	stats  StatsFunc
	now    func() time.Time
}

// NewFallbackChain builds the chain from configuration
func NewFallbackChain(cfg model.HealthConfig, logger *zap.Logger) *FallbackChain {
	return &FallbackChain{
		logger: logger,
		cfg:    cfg,
		chains: make(map[provider.Capability][]string),
		health: make(map[string]*providerHealth),
		now:    time.Now,
	}
}

// Register appends a provider to a capability's ordered chain
func (c *FallbackChain) Register(cap provider.Capability, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chains[cap] = append(c.chains[cap], name)
	if c.health[name] == nil {
		c.health[name] = &providerHealth{}
	}
}

// Resolve returns the first healthy provider for the capability
func (c *FallbackChain) Resolve(cap provider.Capability) (string, error) {
	healthy := c.Candidates(cap)
	if len(healthy) == 0 {
		return "", fmt.Errorf("%s: %w", cap, ErrChainExhausted)
	}
	return healthy[0], nil
}

// BindStats attaches the gateway's live health counters. Candidates with
// fewer consecutive failures are tried first; declared order breaks ties.
func (c *FallbackChain) BindStats(fn StatsFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = fn
}

// Candidates returns all currently healthy providers, in declared chain
// order reordered by live failure counters when a gateway is bound
func (c *FallbackChain) Candidates(cap provider.Capability) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var healthy []string
	for _, name := range c.chains[cap] {
		h := c.health[name]
		if h != nil && now.Before(h.unhealthyUntil) {
			continue
		}
		healthy = append(healthy, name)
	}
	if c.stats != nil && len(healthy) > 1 {
		sort.SliceStable(healthy, func(i, j int) bool {
			return c.stats(healthy[i]).ConsecutiveFailures < c.stats(healthy[j]).ConsecutiveFailures
		})
	}
	return healthy
}

// Healthy reports whether a provider is outside its cooldown window
func (c *FallbackChain) Healthy(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.health[name]
	return h == nil || !c.now().Before(h.unhealthyUntil)
}

// ReportExhaustion records one retry-policy exhaustion for the provider.
// Once the threshold is reached inside the sliding window, the provider is
// skipped until the cooldown elapses.
func (c *FallbackChain) ReportExhaustion(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.health[name]
	if h == nil {
		h = &providerHealth{}
		c.health[name] = h
	}

	now := c.now()
	h.exhaustions = append(h.exhaustions, now)

	// Prune events outside the window
	cutoff := now.Add(-c.cfg.Window)
	kept := h.exhaustions[:0]
	for _, t := range h.exhaustions {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	h.exhaustions = kept

	if len(h.exhaustions) >= c.cfg.FailureThreshold {
		h.unhealthyUntil = now.Add(c.cfg.Cooldown)
		h.exhaustions = nil
		c.logger.Warn("provider marked unhealthy",
			zap.String("provider", name),
			zap.Duration("cooldown", c.cfg.Cooldown))
	}
}

// ReportSuccess clears the provider's exhaustion history
func (c *FallbackChain) ReportSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h := c.health[name]; h != nil {
		h.exhaustions = nil
	}
}

// Executor couples the retry policy and fallback chain into the single
// call path stages use for every provider invocation.
type Executor struct {
	Retry *RetryPolicy
	Chain *FallbackChain
}

// Do tries each healthy provider in chain order, applying the retry policy
// per provider. A transient exhaustion moves to the next provider; a
// non-transient failure propagates immediately.
func (e *Executor) Do(ctx context.Context, cap provider.Capability, call func(ctx context.Context, providerName string) error) error {
	candidates := e.Chain.Candidates(cap)
	if len(candidates) == 0 {
		return fmt.Errorf("%s: %w", cap, ErrChainExhausted)
	}

	var lastErr error
	for _, name := range candidates {
		err := e.Retry.Execute(ctx, func(ctx context.Context) error {
			return call(ctx, name)
		})
		if err == nil {
			e.Chain.ReportSuccess(name)
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		var exhausted *ExhaustedError
		if errors.As(err, &exhausted) {
			e.Chain.ReportExhaustion(name)
			lastErr = err
			continue
		}
		return err
	}

	// lastErr stays wrapped so callers can classify the failure kind
	// without parsing provider text
	return fmt.Errorf("%s: %w (last: %w)", cap, ErrChainExhausted, lastErr)
}
