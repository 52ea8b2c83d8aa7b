package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/credibility"
	"github.com/venedict/inquest/internal/model"
	"github.com/venedict/inquest/internal/worker"
)

const verifySystem = "You are a fact-checking assistant. Judge only how well the claim is supported by the sources given. Respond with JSON only."

const verifyPrompt = `Claim: %q

Sources:
%s

Respond with JSON:
{
  "supported": <true|false>,
  "support_strength": <0.0-1.0, how strongly the sources back the claim>,
  "contradiction": <true if any source contradicts another about this claim>,
  "contradiction_detail": "<what conflicts, or empty>",
  "uncertainty": <0.0-1.0, hedging or ambiguity in the evidence>
}`

type verifyPayload struct {
	Supported           bool    `json:"supported"`
	SupportStrength     float64 `json:"support_strength"`
	Contradiction       bool    `json:"contradiction"`
	ContradictionDetail string  `json:"contradiction_detail"`
	Uncertainty         float64 `json:"uncertainty"`
}

type verifyResult struct {
	findingID string
	signals   []model.VerificationSignal
	caveat    string
	err       error
}

func (r *verifyResult) GetError() error { return r.err }

type verifyJob struct {
	p       *Pipeline
	finding model.Finding
	sources []model.Source
	useLLM  bool
}

func (j *verifyJob) Execute(ctx context.Context) worker.Result {
	res := &verifyResult{findingID: j.finding.ID}

	// Deterministic signals first: they survive any reasoning failure
	res.signals = append(res.signals,
		credibilitySignal(j.finding, j.sources),
		recencySignal(j.finding, j.sources))

	if !j.useLLM {
		return res
	}

	var numbered strings.Builder
	for i, src := range j.sources {
		content := src.Content
		if content == "" {
			content = src.Snippet
		}
		fmt.Fprintf(&numbered, "[%d] %s (%s, credibility %s)\n%s\n\n",
			i, src.Title, src.URL, src.Tier, truncate(content, 1500))
	}

	var payload verifyPayload
	prompt := fmt.Sprintf(verifyPrompt, j.finding.Content, numbered.String())
	if err := j.p.completeJSON(ctx, verifySystem, prompt, &payload); err != nil {
		// A verification failure degrades confidence and flags the
		// finding; it never discards the finding itself
		res.caveat = "automated verification unavailable for this finding"
		res.signals = append(res.signals, model.VerificationSignal{
			FindingID: j.finding.ID,
			Type:      model.SignalUncertainty,
			Value:     1.0,
			Weight:    1,
			Detail:    "verification call failed",
		})
		return res
	}

	crossRef := payload.SupportStrength
	if !payload.Supported && crossRef > 0.3 {
		crossRef = 0.3
	}
	res.signals = append(res.signals, model.VerificationSignal{
		FindingID: j.finding.ID,
		Type:      model.SignalCrossReference,
		Value:     crossRef,
		Weight:    1,
	})
	if payload.Uncertainty > 0 {
		res.signals = append(res.signals, model.VerificationSignal{
			FindingID: j.finding.ID,
			Type:      model.SignalUncertainty,
			Value:     payload.Uncertainty,
			Weight:    1,
		})
	}
	if payload.Contradiction {
		res.signals = append(res.signals, model.VerificationSignal{
			FindingID: j.finding.ID,
			Type:      model.SignalConflict,
			Value:     1.0,
			Weight:    1,
			Detail:    payload.ContradictionDetail,
		})
	}
	return res
}

// verify assesses source credibility, fans verification out per finding,
// and scores every finding. Findings the deadline leaves unverified are
// scored with maximal uncertainty rather than dropped.
func (p *Pipeline) verify(ctx context.Context, sess *session) StageOutcome {
	sess.mu.Lock()
	// Credibility is written exactly once; refinement passes must not
	// rewrite it
	for i := range sess.sources {
		if sess.sources[i].Tier == model.TierUnknown {
			tier := p.classifier.Classify(sess.sources[i].URL)
			sess.sources[i].Tier = tier
			sess.sources[i].CredibilityScore = credibility.Score(tier)
		}
	}
	sources := sess.sources
	findings := make([]model.Finding, len(sess.findings))
	copy(findings, sess.findings)
	useLLM := sess.opts.VerifyClaims
	sess.mu.Unlock()

	byID := make(map[string]model.Source, len(sources))
	for _, src := range sources {
		byID[src.ID] = src
	}

	pool := worker.NewPool(ctx, p.cfg.Concurrency.VerifyWorkers)
	pool.Start()
	submitted := 0
	for _, f := range findings {
		if f.State != model.FindingDraft {
			continue
		}
		var fSources []model.Source
		for _, id := range f.SourceIDs {
			if src, ok := byID[id]; ok {
				fSources = append(fSources, src)
			}
		}
		pool.Submit(&verifyJob{p: p, finding: f, sources: fSources, useLLM: useLLM})
		submitted++
	}
	results := pool.Wait()

	verified := make(map[string]*verifyResult, len(results))
	for _, r := range results {
		vr := r.(*verifyResult)
		verified[vr.findingID] = vr
	}

	var missing []model.MissingWork
	sess.mu.Lock()
	for i := range sess.findings {
		f := &sess.findings[i]
		if f.State != model.FindingDraft {
			continue
		}

		vr, ok := verified[f.ID]
		if !ok {
			// Deadline cut this finding's verification short
			missing = append(missing, model.MissingWork{
				Stage:      string(StateVerifying),
				SubQueryID: f.SubQueryID,
				Reason:     "verification did not complete before the stage deadline",
			})
			vr = &verifyResult{
				findingID: f.ID,
				caveat:    "not verified before deadline",
				signals: []model.VerificationSignal{{
					FindingID: f.ID,
					Type:      model.SignalUncertainty,
					Value:     1.0,
					Weight:    1,
				}},
			}
		}
		if vr.caveat != "" {
			f.Caveats = append(f.Caveats, vr.caveat)
		}
		f.Signals = vr.signals

		if err := f.Advance(model.FindingVerified); err != nil {
			p.logger.Warn("finding state transition rejected", zap.Error(err))
			continue
		}

		score := p.aggregator.ScoreFinding(*f, vr.signals)
		f.Confidence = score.Confidence
		f.Disputed = score.Disputed
		if err := f.Advance(model.FindingScored); err != nil {
			p.logger.Warn("finding state transition rejected", zap.Error(err))
		}
	}
	sess.mu.Unlock()

	p.logger.Info("verification scored findings",
		zap.String("query_id", sess.query.ID),
		zap.Int("findings", submitted),
		zap.Int("unfinished", len(missing)))

	if len(missing) > 0 {
		return Partial(missing...)
	}
	return Success()
}

// credibilitySignal averages the credibility of the finding's sources
func credibilitySignal(f model.Finding, sources []model.Source) model.VerificationSignal {
	var sum float64
	for _, src := range sources {
		sum += src.CredibilityScore
	}
	value := 0.5
	if len(sources) > 0 {
		value = sum / float64(len(sources))
	}
	return model.VerificationSignal{
		FindingID: f.ID,
		Type:      model.SignalCredibility,
		Value:     value,
		Weight:    1,
	}
}

// recencySignal decays with the median age of dated sources; undated
// sources count as moderately fresh
func recencySignal(f model.Finding, sources []model.Source) model.VerificationSignal {
	var ages []float64
	for _, src := range sources {
		if src.PublishedAt != nil {
			ages = append(ages, time.Since(*src.PublishedAt).Hours()/24/365)
		}
	}
	value := 0.6
	if len(ages) > 0 {
		var sum float64
		for _, a := range ages {
			sum += a
		}
		years := sum / float64(len(ages))
		value = 1 - years/5 // Linear decay, floor at zero after 5 years
		if value < 0 {
			value = 0
		}
	}
	return model.VerificationSignal{
		FindingID: f.ID,
		Type:      model.SignalRecency,
		Value:     value,
		Weight:    1,
	}
}
