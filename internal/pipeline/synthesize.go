package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/model"
	"github.com/venedict/inquest/internal/worker"
)

const synthesizeSystem = "You are a research analyst. Synthesize findings strictly from the numbered sources given. Never invent sources. Respond with JSON only."

const synthesizePrompt = `Research question: %q
Sub-question: %q

Sources:
%s

Produce findings supported by these sources as JSON:
{
  "findings": [
    {
      "content": "<one synthesized claim>",
      "category": "<short topic label>",
      "source_indices": [<zero-based indices of supporting sources>],
      "reasoning": ["<step>", "..."],
      "caveats": ["<limitation>", "..."]
    }
  ]
}

Every finding must cite at least one source index. Prefer findings
corroborated by multiple sources.`

type synthesisPayload struct {
	Findings []struct {
		Content       string   `json:"content"`
		Category      string   `json:"category"`
		SourceIndices []int    `json:"source_indices"`
		Reasoning     []string `json:"reasoning"`
		Caveats       []string `json:"caveats"`
	} `json:"findings"`
}

type synthesisResult struct {
	sub      model.SubQuery
	findings []model.Finding
	err      error
}

func (r *synthesisResult) GetError() error { return r.err }

type synthesisJob struct {
	p       *Pipeline
	sub     model.SubQuery
	raw     string
	sources []model.Source
}

func (j *synthesisJob) Execute(ctx context.Context) worker.Result {
	res := &synthesisResult{sub: j.sub}

	var numbered strings.Builder
	for i, src := range j.sources {
		content := src.Content
		if content == "" {
			content = src.Snippet
		}
		fmt.Fprintf(&numbered, "[%d] %s (%s)\n%s\n\n", i, src.Title, src.URL, truncate(content, 2000))
	}

	var payload synthesisPayload
	prompt := fmt.Sprintf(synthesizePrompt, j.raw, j.sub.Text, numbered.String())
	if err := j.p.completeJSON(ctx, synthesizeSystem, prompt, &payload); err != nil {
		res.err = err
		return res
	}

	for _, pf := range payload.Findings {
		var sourceIDs []string
		for _, idx := range pf.SourceIndices {
			if idx >= 0 && idx < len(j.sources) {
				sourceIDs = append(sourceIDs, j.sources[idx].ID)
			}
		}
		finding := model.NewFinding(pf.Content, sourceIDs)
		finding.Category = pf.Category
		finding.Caveats = pf.Caveats
		finding.SubQueryID = j.sub.ID
		for i, step := range pf.Reasoning {
			finding.ReasoningChain = append(finding.ReasoningChain, model.ReasoningStep{
				Number:  i + 1,
				Thought: step,
			})
		}

		// Findings without sources are invalid and never reach verification
		if err := finding.Validate(); err != nil {
			j.p.logger.Warn("rejecting unsourced finding", zap.Error(err))
			continue
		}
		res.findings = append(res.findings, finding)
	}
	return res
}

// synthesize fans reasoning out per sub-query over that sub-query's
// sources. On a refinement pass, sub-queries that already produced
// findings are skipped.
func (p *Pipeline) synthesize(ctx context.Context, sess *session) StageOutcome {
	sess.mu.Lock()
	subs := sess.query.SubQueries
	raw := sess.query.RawText
	sources := sess.sources
	covered := make(map[string]bool)
	for _, f := range sess.findings {
		covered[f.SubQueryID] = true
	}
	sess.mu.Unlock()

	bySub := make(map[string][]model.Source)
	for _, src := range sources {
		bySub[src.SubQueryID] = append(bySub[src.SubQueryID], src)
	}

	pool := worker.NewPool(ctx, p.cfg.Concurrency.VerifyWorkers)
	pool.Start()

	var missing []model.MissingWork
	submitted := 0
	for _, sub := range subs {
		if covered[sub.ID] {
			continue
		}
		subSources := bySub[sub.ID]
		if len(subSources) == 0 {
			// Sub-queries that found nothing can still draw on the shared pool
			subSources = sources
		}
		if len(subSources) == 0 {
			missing = append(missing, model.MissingWork{
				Stage:      string(StateSynthesizing),
				SubQueryID: sub.ID,
				Reason:     "no sources available for synthesis",
			})
			continue
		}
		pool.Submit(&synthesisJob{p: p, sub: sub, raw: raw, sources: subSources})
		submitted++
	}

	results := pool.Wait()

	var findings []model.Finding
	done := make(map[string]bool)
	for _, r := range results {
		sr := r.(*synthesisResult)
		if sr.err != nil {
			p.logger.Warn("sub-query synthesis failed",
				zap.String("sub_query_id", sr.sub.ID),
				zap.Error(sr.err))
			missing = append(missing, model.MissingWork{
				Stage:      string(StateSynthesizing),
				SubQueryID: sr.sub.ID,
				Reason:     failureReason(sr.err),
			})
			continue
		}
		done[sr.sub.ID] = true
		findings = append(findings, sr.findings...)
	}
	for _, sub := range subs {
		if !covered[sub.ID] && !done[sub.ID] && !inMissing(missing, sub.ID) {
			missing = append(missing, model.MissingWork{
				Stage:      string(StateSynthesizing),
				SubQueryID: sub.ID,
				Reason:     "synthesis did not complete before the stage deadline",
			})
		}
	}

	for _, f := range findings {
		if err := p.graph.Add(f.ID, string(StateSynthesizing), f.SourceIDs); err != nil {
			p.logger.Warn("provenance record rejected", zap.String("finding_id", f.ID), zap.Error(err))
		}
	}

	// Keep output ordering anchored to sub-query priority
	priority := make(map[string]int, len(subs))
	for _, sub := range subs {
		priority[sub.ID] = sub.Priority
	}

	sess.mu.Lock()
	sess.findings = append(sess.findings, findings...)
	sort.SliceStable(sess.findings, func(i, j int) bool {
		return priority[sess.findings[i].SubQueryID] < priority[sess.findings[j].SubQueryID]
	})
	total := len(sess.findings)
	sess.mu.Unlock()

	p.logger.Info("synthesis produced findings",
		zap.String("query_id", sess.query.ID),
		zap.Int("new_findings", len(findings)),
		zap.Int("total_findings", total))

	switch {
	case len(missing) == 0:
		return Success()
	case total > 0:
		return Partial(missing...)
	default:
		out := Failed(fmt.Errorf("no findings synthesized"))
		out.Missing = missing
		return out
	}
}

func inMissing(missing []model.MissingWork, subID string) bool {
	for _, m := range missing {
		if m.SubQueryID == subID {
			return true
		}
	}
	return false
}
