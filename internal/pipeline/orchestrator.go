package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/model"
)

// Stage budget shares, each taken from the budget remaining when the
// stage starts. Later stages get a larger share of a smaller pot, so the
// schedule self-corrects when early stages run long or finish early.
const (
	shareAnalyze    = 0.20
	shareSearch     = 0.45
	shareSynthesize = 0.50
	shareVerify     = 0.50
	shareCite       = 0.20
	shareFormat     = 0.90
)

// refinementFloor is the minimum confidence below which a refinement
// pass is worth spending remaining budget on
const refinementFloor = 0.5

// Orchestrator drives research runs through the stage state machine.
// One orchestrator serves many concurrent runs; sessions are retained
// after completion so Status can answer for finished queries.
type Orchestrator struct {
	cfg      *model.Config
	logger   *zap.Logger
	pipeline *Pipeline
	exec     *StageExecutor

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewOrchestrator creates an orchestrator over a wired pipeline
func NewOrchestrator(cfg *model.Config, logger *zap.Logger, p *Pipeline) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		pipeline: p,
		exec:     NewStageExecutor(logger),
		sessions: make(map[string]*session),
	}
}

// Status reports progress for a running or finished query
func (o *Orchestrator) Status(queryID string) (Status, bool) {
	o.mu.RLock()
	sess, ok := o.sessions[queryID]
	o.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	return sess.snapshot(), true
}

// Research runs the full pipeline for one query and returns the
// immutable result. A failure before any source was gathered fails the
// run; from the search stage on, failures degrade to a partial result
// that enumerates what is missing.
func (o *Orchestrator) Research(ctx context.Context, rawText string, opts Options) (*model.ResearchResult, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, fmt.Errorf("empty research query")
	}
	if opts.MaxSources <= 0 {
		opts.MaxSources = o.cfg.Pipeline.MaxSources
	}
	if opts.CitationStyle == "" {
		opts.CitationStyle = o.cfg.Output.CitationStyle
	}

	query := model.NewQuery(rawText)
	budget := o.cfg.DeadlineFor(opts.Depth)
	sess := newSession(query, opts, time.Now().Add(budget))

	o.mu.Lock()
	o.sessions[query.ID] = sess
	o.mu.Unlock()

	runCtx, cancel := context.WithDeadline(ctx, sess.deadline)
	defer cancel()

	o.logger.Info("research run starting",
		zap.String("query_id", query.ID),
		zap.String("depth", opts.Depth),
		zap.Duration("budget", budget))

	// Analysis failure leaves nothing to research from
	outcome := o.exec.Run(runCtx, sess, StateAnalyzing, shareAnalyze, func(ctx context.Context) StageOutcome {
		return o.pipeline.analyze(ctx, sess)
	})
	if outcome.Status == OutcomeFailed {
		sess.setState(StateFailed)
		return o.assemble(sess, model.StatusFailed), fmt.Errorf("query analysis failed: %w", outcome.Err)
	}

	degraded := outcome.Status == OutcomePartial

	outcome = o.exec.Run(runCtx, sess, StateSearching, shareSearch, func(ctx context.Context) StageOutcome {
		return o.pipeline.search(ctx, sess)
	})
	degraded = degraded || outcome.Status != OutcomeSuccess

	degraded = o.synthesizeAndVerify(runCtx, sess) || degraded

	// One bounded refinement: when confidence came out low and budget
	// remains, re-enter synthesis for uncovered sub-queries
	for sess.refinements < o.cfg.Pipeline.MaxRefinements && o.needsRefinement(sess) {
		sess.refinements++
		o.logger.Info("low confidence, running refinement pass",
			zap.String("query_id", query.ID),
			zap.Int("refinement", sess.refinements))
		degraded = o.synthesizeAndVerify(runCtx, sess) || degraded
	}

	outcome = o.exec.Run(runCtx, sess, StateCiting, shareCite, func(ctx context.Context) StageOutcome {
		return o.pipeline.cite(ctx, sess)
	})
	degraded = degraded || outcome.Status != OutcomeSuccess

	outcome = o.exec.Run(runCtx, sess, StateFormatting, shareFormat, func(ctx context.Context) StageOutcome {
		return o.pipeline.format(ctx, sess)
	})
	degraded = degraded || outcome.Status != OutcomeSuccess

	sess.mu.Lock()
	noFindings := len(sess.findings) == 0
	sess.mu.Unlock()

	switch {
	case noFindings:
		sess.setState(StateFailed)
		result := o.assemble(sess, model.StatusFailed)
		return result, fmt.Errorf("research produced no findings for query %s", query.ID)
	case degraded:
		sess.setState(StatePartial)
		return o.assemble(sess, model.StatusPartial), nil
	default:
		sess.setState(StateCompleted)
		return o.assemble(sess, model.StatusCompleted), nil
	}
}

// synthesizeAndVerify runs the synthesis/verification pair and reports
// whether either degraded
func (o *Orchestrator) synthesizeAndVerify(ctx context.Context, sess *session) bool {
	outcome := o.exec.Run(ctx, sess, StateSynthesizing, shareSynthesize, func(ctx context.Context) StageOutcome {
		return o.pipeline.synthesize(ctx, sess)
	})
	degraded := outcome.Status != OutcomeSuccess

	outcome = o.exec.Run(ctx, sess, StateVerifying, shareVerify, func(ctx context.Context) StageOutcome {
		return o.pipeline.verify(ctx, sess)
	})
	return degraded || outcome.Status != OutcomeSuccess
}

// needsRefinement decides whether spending budget on another synthesis
// pass is likely to help: low overall confidence, uncovered sub-queries
// with sources to draw on, and enough wall clock left to matter.
func (o *Orchestrator) needsRefinement(sess *session) bool {
	if time.Until(sess.deadline) < 5*time.Second {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if len(sess.sources) == 0 {
		return false
	}
	covered := make(map[string]bool)
	for _, f := range sess.findings {
		covered[f.SubQueryID] = true
	}
	uncovered := false
	for _, sub := range sess.query.SubQueries {
		if !covered[sub.ID] {
			uncovered = true
			break
		}
	}
	if !uncovered {
		return false
	}
	return o.pipeline.aggregator.Overall(sess.findings) < refinementFloor
}

// assemble freezes the session into the immutable result. Findings that
// never reached the scored state are dropped here; their absence is
// already accounted for in Missing.
func (o *Orchestrator) assemble(sess *session, status model.ResultStatus) *model.ResearchResult {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	findings := make([]model.Finding, 0, len(sess.findings))
	referenced := make(map[string]bool)
	for _, f := range sess.findings {
		if f.State != model.FindingScored {
			continue
		}
		findings = append(findings, f)
		for _, id := range f.SourceIDs {
			referenced[id] = true
		}
	}

	// Only sources some finding cites survive into the result, keeping
	// finding -> source references closed over the result itself
	sources := make([]model.Source, 0, len(sess.sources))
	for _, src := range sess.sources {
		if referenced[src.ID] {
			sources = append(sources, src)
		}
	}

	times := make(map[string]int, len(sess.stageTimes))
	for k, v := range sess.stageTimes {
		times[k] = int(v.Milliseconds())
	}

	missing := make([]model.MissingWork, len(sess.missing))
	copy(missing, sess.missing)

	return &model.ResearchResult{
		QueryID:           sess.query.ID,
		Query:             sess.query,
		Summary:           sess.summary,
		Report:            sess.report,
		Findings:          findings,
		Sources:           sources,
		Citations:         sess.citations,
		OverallConfidence: o.pipeline.aggregator.Overall(findings),
		Status:            status,
		Missing:           missing,
		Metadata: model.ResultMetadata{
			ProcessingTime:   time.Since(sess.startedAt),
			SourcesConsulted: len(sess.sources),
			Status:           status,
			StageTimes:       times,
			Depth:            sess.opts.Depth,
		},
		CreatedAt: time.Now(),
	}
}
