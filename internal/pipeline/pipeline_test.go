package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/fetch"
	"github.com/venedict/inquest/internal/model"
	"github.com/venedict/inquest/internal/provenance"
	"github.com/venedict/inquest/internal/provider"
	"github.com/venedict/inquest/internal/resilience"
	"github.com/venedict/inquest/internal/worker"
)

// scriptedLLM answers by pipeline stage, recognized from the system prompt
type scriptedLLM struct {
	calls int64
}

func (s *scriptedLLM) Name() string { return "fake-llm" }

func (s *scriptedLLM) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	atomic.AddInt64(&s.calls, 1)
	var text string
	switch {
	case strings.Contains(req.System, "research planner"):
		text = `{
  "intent": "overview",
  "domain": "computing",
  "complexity": "medium",
  "sub_queries": [
    {"text": "history of the topic", "priority": 1, "depends_on": []},
    {"text": "current state of the topic", "priority": 2, "depends_on": [0]}
  ]
}`
	case strings.Contains(req.System, "research analyst"):
		text = `{
  "findings": [
    {
      "content": "The topic emerged in the early 2000s and matured over two decades.",
      "category": "history",
      "source_indices": [0, 1],
      "reasoning": ["both sources describe the timeline"],
      "caveats": ["exact dates vary between accounts"]
    }
  ]
}`
	case strings.Contains(req.System, "fact-checking"):
		text = `{"supported": true, "support_strength": 0.9, "contradiction": false, "contradiction_detail": "", "uncertainty": 0.1}`
	case strings.Contains(req.System, "research writer"):
		text = "The topic emerged in the early 2000s and has matured since."
	default:
		return nil, provider.NewError(s.Name(), provider.ErrInvalidResponse, fmt.Errorf("unexpected system prompt"))
	}
	return &provider.CompletionResponse{Text: text, Model: "fake"}, nil
}

// scriptedSearch returns fixed hits; URLs point at a closed local port so
// content fetches fail fast and the snippet fallback kicks in
type scriptedSearch struct {
	hits []model.SearchHit
	err  error
}

func (s *scriptedSearch) Name() string { return "fake-search" }

func (s *scriptedSearch) Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

// splitSearch answers sub-queries containing answer and blocks on the
// rest until the stage deadline cancels them
type splitSearch struct {
	answer string
	hits   []model.SearchHit
}

func (s *splitSearch) Name() string { return "fake-search" }

func (s *splitSearch) Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error) {
	if strings.Contains(query, s.answer) {
		return s.hits, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.HTTP.Timeout = 200 * time.Millisecond
	cfg.HTTP.RespectRobots = false
	cfg.Cache.Enabled = false
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond
	cfg.Retry.Jitter = 0
	return cfg
}

func newTestOrchestrator(t *testing.T, search provider.Search) (*Orchestrator, *provenance.Graph) {
	t.Helper()
	return newTestOrchestratorCfg(t, testConfig(), search)
}

func newTestOrchestratorCfg(t *testing.T, cfg *model.Config, search provider.Search) (*Orchestrator, *provenance.Graph) {
	t.Helper()
	logger := zap.NewNop()

	gateway := provider.NewGateway(logger)
	gateway.RegisterLLM(&scriptedLLM{}, model.ProviderConfig{RatePerSecond: 1000, Burst: 1000, MaxConcurrent: 8})
	gateway.RegisterSearch(search, model.ProviderConfig{RatePerSecond: 1000, Burst: 1000, MaxConcurrent: 8})

	chain := resilience.NewFallbackChain(cfg.Health, logger)
	chain.BindStats(gateway.Stats)
	chain.Register(provider.CapabilityReasoning, "fake-llm")
	chain.Register(provider.CapabilitySearch, "fake-search")

	graph := provenance.NewGraph()
	p := NewPipeline(Deps{
		Config:  cfg,
		Logger:  logger,
		Gateway: gateway,
		Executor: &resilience.Executor{
			Retry: resilience.NewRetryPolicy(cfg.Retry, logger),
			Chain: chain,
		},
		Fetcher: fetch.NewFetcher(cfg.HTTP, nil, 0, logger),
		Limiter: worker.NewLimiter(1000, 100),
		Graph:   graph,
	})
	return NewOrchestrator(cfg, logger, p), graph
}

func defaultHits() []model.SearchHit {
	return []model.SearchHit{
		{URL: "http://127.0.0.1:1/history", Title: "A History", Snippet: "The topic began around 2003."},
		{URL: "http://127.0.0.1:1/overview", Title: "An Overview", Snippet: "A survey of two decades of work."},
	}
}

func TestResearch_CompletesWithScoredFindings(t *testing.T) {
	orch, graph := newTestOrchestrator(t, &scriptedSearch{hits: defaultHits()})

	result, err := orch.Research(context.Background(), "how did the topic evolve?", Options{
		Depth:        "quick",
		VerifyClaims: true,
	})
	if err != nil {
		t.Fatalf("research: %v", err)
	}

	if result.Status != model.StatusCompleted {
		t.Errorf("status = %s, missing = %v", result.Status, result.Missing)
	}
	if len(result.Findings) == 0 {
		t.Fatal("expected findings")
	}
	for _, f := range result.Findings {
		if f.State != model.FindingScored {
			t.Errorf("finding %s in state %s, want scored", f.ID, f.State)
		}
		if f.Confidence <= 0 || f.Confidence > 1 {
			t.Errorf("finding confidence out of range: %.4f", f.Confidence)
		}
		if len(f.SourceIDs) == 0 {
			t.Error("finding without sources survived the pipeline")
		}
		for _, id := range f.SourceIDs {
			if _, ok := result.SourceByID(id); !ok {
				t.Errorf("finding references source %s missing from result", id)
			}
		}

		// Scored findings carry the signals their confidence came from
		types := make(map[model.SignalType]bool)
		for _, sig := range f.Signals {
			types[sig.Type] = true
		}
		if !types[model.SignalCredibility] || !types[model.SignalRecency] {
			t.Errorf("finding %s signals = %v, want credibility and recency", f.ID, f.Signals)
		}
	}

	if result.Summary == "" {
		t.Error("expected a summary")
	}
	if result.OverallConfidence <= 0 {
		t.Errorf("overall confidence = %.4f", result.OverallConfidence)
	}
	if len(result.Citations) == 0 {
		t.Error("expected citations")
	}
	for _, c := range result.Citations {
		if _, ok := result.SourceByID(c.SourceID); !ok {
			t.Errorf("citation references unknown source %s", c.SourceID)
		}
	}

	// Every finding must trace back to source roots
	for _, f := range result.Findings {
		roots, err := graph.Roots(f.ID)
		if err != nil {
			t.Errorf("trace finding %s: %v", f.ID, err)
			continue
		}
		if len(roots) == 0 {
			t.Errorf("finding %s has no source roots", f.ID)
		}
	}
}

func TestResearch_EmptyQueryRejected(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &scriptedSearch{hits: defaultHits()})

	if _, err := orch.Research(context.Background(), "   ", Options{Depth: "quick"}); err == nil {
		t.Error("expected empty query to be rejected")
	}
}

func TestResearch_SearchOutageFailsWithAccounting(t *testing.T) {
	vendorDetail := "upstream said: quota_exceeded for key sk-12345"
	down := &scriptedSearch{err: provider.NewError("fake-search", provider.ErrProviderUnavailable, errors.New(vendorDetail))}
	orch, _ := newTestOrchestrator(t, down)

	result, err := orch.Research(context.Background(), "how did the topic evolve?", Options{
		Depth:        "quick",
		VerifyClaims: true,
	})
	if err == nil {
		t.Fatal("expected an error when no findings can be produced")
	}
	if result == nil {
		t.Fatal("failed runs must still return accounting")
	}
	if result.Status != model.StatusFailed {
		t.Errorf("status = %s", result.Status)
	}
	if len(result.Missing) == 0 {
		t.Error("expected missing work to be enumerated")
	}

	// Missing-work reasons stay within the failure taxonomy; provider
	// error text must never reach the caller-facing result
	for _, m := range result.Missing {
		if strings.Contains(m.Reason, "sk-12345") || strings.Contains(m.Reason, "quota_exceeded") {
			t.Errorf("raw provider text leaked into result: %q", m.Reason)
		}
	}
}

func TestResearch_PartialWhenSomeSubQueriesMissDeadline(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.QuickDeadline = 2 * time.Second

	orch, _ := newTestOrchestratorCfg(t, cfg, &splitSearch{answer: "history", hits: defaultHits()})

	result, err := orch.Research(context.Background(), "how did the topic evolve?", Options{
		Depth:        "quick",
		VerifyClaims: true,
	})
	if err != nil {
		t.Fatalf("research: %v", err)
	}

	if result.Status != model.StatusPartial {
		t.Fatalf("status = %s, missing = %v", result.Status, result.Missing)
	}
	if len(result.Findings) == 0 {
		t.Fatal("the completed sub-query's findings must survive")
	}

	var searchMissing []model.MissingWork
	for _, m := range result.Missing {
		if m.Stage == string(StateSearching) {
			searchMissing = append(searchMissing, m)
		}
	}
	if len(searchMissing) == 0 {
		t.Fatalf("missing = %v, want the timed-out sub-query enumerated", result.Missing)
	}
	for _, m := range searchMissing {
		if m.SubQueryID == "" {
			t.Error("missing search work without a sub-query id")
		}
		if m.Reason != "did not complete before the stage deadline" {
			t.Errorf("reason = %q", m.Reason)
		}
	}

	// Exactly one of the two sub-queries completed its search
	status, ok := orch.Status(result.QueryID)
	if !ok {
		t.Fatal("expected status for finished query")
	}
	if status.SubQueriesSearched != 1 {
		t.Errorf("sub-queries searched = %d, want 1", status.SubQueriesSearched)
	}
}

func TestResearch_StatusTracking(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &scriptedSearch{hits: defaultHits()})

	result, err := orch.Research(context.Background(), "how did the topic evolve?", Options{Depth: "quick", VerifyClaims: true})
	if err != nil {
		t.Fatalf("research: %v", err)
	}

	status, ok := orch.Status(result.QueryID)
	if !ok {
		t.Fatal("expected status for finished query")
	}
	if status.State != StateCompleted {
		t.Errorf("state = %s", status.State)
	}
	if status.Completeness != 100 {
		t.Errorf("completeness = %.1f", status.Completeness)
	}
	if status.SubQueriesSearched != 2 {
		t.Errorf("sub-queries searched = %d, want 2", status.SubQueriesSearched)
	}

	if _, ok := orch.Status("no-such-query"); ok {
		t.Error("expected miss for unknown query id")
	}
}

func TestFailureReason(t *testing.T) {
	rateLimited := provider.NewError("p", provider.ErrRateLimited, errors.New("429 key sk-secret"))
	cases := []struct {
		err  error
		want string
	}{
		{nil, "did not complete before the stage deadline"},
		{context.DeadlineExceeded, "did not complete before the stage deadline"},
		{provider.NewError("p", provider.ErrInvalidResponse, errors.New("garbled")), "provider returned an unusable response"},
		{rateLimited, "providers exhausted (rate limited)"},
		{fmt.Errorf("search: %w (last: %w)", resilience.ErrChainExhausted, rateLimited), "providers exhausted (rate limited)"},
		{provider.NewError("p", provider.ErrProviderUnavailable, errors.New("down")), "providers exhausted (unavailable)"},
		{resilience.ErrChainExhausted, "all providers exhausted"},
		{errors.New("nil pointer dereference in adapter"), "internal error"},
	}
	for _, c := range cases {
		got := failureReason(c.err)
		if got != c.want {
			t.Errorf("failureReason(%v) = %q, want %q", c.err, got, c.want)
		}
		if strings.Contains(got, "sk-secret") {
			t.Errorf("raw provider text leaked: %q", got)
		}
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, c := range cases {
		if got := stripFences(c.in); got != c.want {
			t.Errorf("stripFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
