package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/model"
)

// fakeLLM implements LLM
type fakeLLM struct {
	name     string
	response string
	err      error
	delay    time.Duration
	inflight int32
	maxSeen  int32
	mu       sync.Mutex
}

func (f *fakeLLM) Name() string { return f.name }

func (f *fakeLLM) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	cur := atomic.AddInt32(&f.inflight, 1)
	f.mu.Lock()
	if cur > f.maxSeen {
		f.maxSeen = cur
	}
	f.mu.Unlock()
	defer atomic.AddInt32(&f.inflight, -1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &CompletionResponse{Text: f.response, Model: f.name}, nil
}

// fakeSearch implements Search
type fakeSearch struct {
	name string
	hits []model.SearchHit
	err  error
}

func (f *fakeSearch) Name() string { return f.name }

func (f *fakeSearch) Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func fastCfg() model.ProviderConfig {
	return model.ProviderConfig{RatePerSecond: 1000, Burst: 1000, MaxConcurrent: 8}
}

func TestGateway_Complete(t *testing.T) {
	g := NewGateway(zap.NewNop())
	g.RegisterLLM(&fakeLLM{name: "fake", response: "hello"}, fastCfg())

	resp, err := g.Complete(context.Background(), "fake", CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("response = %q", resp.Text)
	}
}

func TestGateway_UnknownProvider(t *testing.T) {
	g := NewGateway(zap.NewNop())

	if _, err := g.Complete(context.Background(), "nope", CompletionRequest{}); err == nil {
		t.Error("expected error for unknown reasoning provider")
	}
	if _, err := g.Search(context.Background(), "nope", "q", 5); err == nil {
		t.Error("expected error for unknown search provider")
	}
}

func TestGateway_ConcurrencyCeiling(t *testing.T) {
	llm := &fakeLLM{name: "fake", response: "ok", delay: 20 * time.Millisecond}
	g := NewGateway(zap.NewNop())
	g.RegisterLLM(llm, model.ProviderConfig{RatePerSecond: 1000, Burst: 1000, MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Complete(context.Background(), "fake", CompletionRequest{})
		}()
	}
	wg.Wait()

	llm.mu.Lock()
	max := llm.maxSeen
	llm.mu.Unlock()
	if max > 2 {
		t.Errorf("max in-flight calls %d exceeded ceiling 2", max)
	}
}

func TestGateway_RateLimitRespectsContext(t *testing.T) {
	g := NewGateway(zap.NewNop())
	// One token, then a ~100s refill: the second call must wait
	g.RegisterLLM(&fakeLLM{name: "fake", response: "ok"}, model.ProviderConfig{RatePerSecond: 0.01, Burst: 1, MaxConcurrent: 1})

	if _, err := g.Complete(context.Background(), "fake", CompletionRequest{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := g.Complete(ctx, "fake", CompletionRequest{}); err == nil {
		t.Error("expected second call to fail on rate wait")
	}
}

func TestGateway_Stats(t *testing.T) {
	g := NewGateway(zap.NewNop())
	failing := &fakeLLM{name: "flaky", err: NewError("flaky", ErrProviderUnavailable, errors.New("down"))}
	g.RegisterLLM(failing, fastCfg())

	_, _ = g.Complete(context.Background(), "flaky", CompletionRequest{})
	_, _ = g.Complete(context.Background(), "flaky", CompletionRequest{})

	s := g.Stats("flaky")
	if s.Requests != 2 {
		t.Errorf("requests = %d", s.Requests)
	}
	if s.Failures != 2 || s.ConsecutiveFailures != 2 {
		t.Errorf("failures = %d, consecutive = %d", s.Failures, s.ConsecutiveFailures)
	}

	failing.err = nil
	_, _ = g.Complete(context.Background(), "flaky", CompletionRequest{})
	if s := g.Stats("flaky"); s.ConsecutiveFailures != 0 {
		t.Errorf("success should reset consecutive failures, got %d", s.ConsecutiveFailures)
	}
}

func TestGateway_Search(t *testing.T) {
	g := NewGateway(zap.NewNop())
	g.RegisterSearch(&fakeSearch{name: "fake", hits: []model.SearchHit{
		{URL: "https://example.com", Title: "Example"},
	}}, fastCfg())

	hits, err := g.Search(context.Background(), "fake", "query", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].URL != "https://example.com" {
		t.Errorf("hits = %v", hits)
	}
}
