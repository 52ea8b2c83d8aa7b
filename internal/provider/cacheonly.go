package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/venedict/inquest/internal/cache"
	"github.com/venedict/inquest/internal/model"
)

// CacheSearchProvider serves previously cached search results. It sits
// last in the search fallback chain so a fully rate-limited run can still
// produce sources for queries seen before.
type CacheSearchProvider struct {
	cache cache.Cache
	ttl   time.Duration
	name  string
}

// NewCacheSearchProvider creates a cache-backed search provider
func NewCacheSearchProvider(c cache.Cache, ttl time.Duration, cfg model.ProviderConfig) *CacheSearchProvider {
	name := cfg.Name
	if name == "" {
		name = "cache"
	}
	return &CacheSearchProvider{cache: c, ttl: ttl, name: name}
}

// Name returns the provider name
func (p *CacheSearchProvider) Name() string { return p.name }

// Search returns cached hits for the query, failing as unavailable on a
// cache miss so the chain treats it like any other provider outage.
func (p *CacheSearchProvider) Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, found := p.cache.Get(searchKey(query))
	if !found {
		return nil, NewError(p.name, ErrProviderUnavailable, fmt.Errorf("no cached results for query"))
	}

	var hits []model.SearchHit
	if err := json.Unmarshal(data, &hits); err != nil {
		return nil, NewError(p.name, ErrInvalidResponse, fmt.Errorf("decode cached results: %w", err))
	}

	if maxResults > 0 && len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits, nil
}

// Store records live search results so later degraded runs can reuse them
func (p *CacheSearchProvider) Store(query string, hits []model.SearchHit) error {
	data, err := json.Marshal(hits)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return p.cache.Set(searchKey(query), data, p.ttl)
}

func searchKey(query string) string {
	return cache.Key("search:" + query)
}
