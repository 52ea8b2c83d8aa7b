package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/venedict/inquest/internal/cache"
	"github.com/venedict/inquest/internal/model"
)

func newCacheProvider(t *testing.T) *CacheSearchProvider {
	t.Helper()
	store := cache.NewMemoryCache(time.Minute, time.Minute)
	return NewCacheSearchProvider(store, time.Minute, model.ProviderConfig{Name: "cache"})
}

func TestCacheSearch_MissIsUnavailable(t *testing.T) {
	p := newCacheProvider(t)

	_, err := p.Search(context.Background(), "never seen", 5)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected unavailable on cache miss, got %v", err)
	}
}

func TestCacheSearch_StoreAndHit(t *testing.T) {
	p := newCacheProvider(t)
	hits := []model.SearchHit{
		{URL: "https://example.com/1", Title: "One"},
		{URL: "https://example.com/2", Title: "Two"},
		{URL: "https://example.com/3", Title: "Three"},
	}

	if err := p.Store("golang generics", hits); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := p.Search(context.Background(), "golang generics", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 3 || got[0].URL != "https://example.com/1" {
		t.Errorf("got %v", got)
	}

	// maxResults truncates
	got, err = p.Search(context.Background(), "golang generics", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected truncation to 2, got %d", len(got))
	}
}

func TestCacheSearch_QueriesAreIsolated(t *testing.T) {
	p := newCacheProvider(t)
	_ = p.Store("query one", []model.SearchHit{{URL: "https://a.example"}})

	if _, err := p.Search(context.Background(), "query two", 0); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("different query must miss, got %v", err)
	}
}
