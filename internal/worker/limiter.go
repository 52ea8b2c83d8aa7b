package worker

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter rate-limits source fetches per target domain, so fanning out
// over many URLs on the same host stays polite.
type Limiter struct {
	mu           sync.RWMutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a per-domain limiter
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 2
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// Wait blocks until a request to the URL's domain is allowed
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain, err := domainOf(rawURL)
	if err != nil {
		return err
	}
	return l.limiterFor(domain).Wait(ctx)
}

// Allow reports whether a request may proceed without waiting
func (l *Limiter) Allow(rawURL string) bool {
	domain, err := domainOf(rawURL)
	if err != nil {
		return false
	}
	return l.limiterFor(domain).Allow()
}

func (l *Limiter) limiterFor(domain string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[domain]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists := l.limiters[domain]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[domain] = limiter
	return limiter
}

func domainOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return parsed.Host, nil
}
