package confidence

import (
	"math"

	"github.com/venedict/inquest/internal/model"
)

// Score breaks down an aggregated confidence value. Components are kept
// so reports can explain how a number was produced.
type Score struct {
	Confidence float64               `json:"confidence"`
	Level      model.ConfidenceLevel `json:"level"`
	Disputed   bool                  `json:"disputed"`
	Components map[string]float64    `json:"components"`
}

// Aggregator combines heterogeneous verification signals into one
// calibrated confidence per finding. Scoring is deterministic: the same
// finding and signal set always yields the same value.
type Aggregator struct {
	cfg model.ConfidenceConfig
}

// NewAggregator builds an aggregator. The weight-sum invariant is checked
// by Config.Validate at startup, never here at request time.
func NewAggregator(cfg model.ConfidenceConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// ScoreFinding computes the weighted confidence for a finding. Policy
// caps apply after the weighted sum: fewer than 2 sources caps at the
// single-source ceiling, a detected contradiction caps at the conflict
// ceiling and marks the finding disputed.
func (a *Aggregator) ScoreFinding(finding model.Finding, signals []model.VerificationSignal) Score {
	components := map[string]float64{
		"source_count":        sourceCountComponent(len(finding.SourceIDs)),
		"source_quality":      typeComponent(signals, model.SignalCredibility, 0.5),
		"consistency":         consistencyComponent(signals),
		"recency":             typeComponent(signals, model.SignalRecency, 0.5),
		"verification_status": verificationComponent(signals),
	}

	confidence := a.cfg.SourceCountWeight*components["source_count"] +
		a.cfg.SourceQualityWeight*components["source_quality"] +
		a.cfg.ConsistencyWeight*components["consistency"] +
		a.cfg.RecencyWeight*components["recency"] +
		a.cfg.VerificationWeight*components["verification_status"]

	disputed := hasConflict(signals)
	if disputed && confidence > a.cfg.ConflictCeiling {
		confidence = a.cfg.ConflictCeiling
	}
	if len(finding.SourceIDs) < 2 && confidence > a.cfg.SingleSourceCeiling {
		confidence = a.cfg.SingleSourceCeiling
	}
	confidence = clamp01(confidence)

	return Score{
		Confidence: confidence,
		Level:      model.LevelFor(confidence),
		Disputed:   disputed,
		Components: components,
	}
}

// Overall computes the result-level confidence as the weighted mean of
// finding confidences, weighting by source count so thinly sourced
// findings drag less.
func (a *Aggregator) Overall(findings []model.Finding) float64 {
	if len(findings) == 0 {
		return 0
	}
	var sum, weight float64
	for _, f := range findings {
		w := float64(len(f.SourceIDs))
		if w < 1 {
			w = 1
		}
		sum += f.Confidence * w
		weight += w
	}
	return clamp01(sum / weight)
}

// sourceCountComponent saturates at 5 independent sources
func sourceCountComponent(n int) float64 {
	return math.Min(float64(n)/5.0, 1.0)
}

// typeComponent is the weight-averaged value of one signal type,
// defaulting when the type is absent
func typeComponent(signals []model.VerificationSignal, t model.SignalType, def float64) float64 {
	var sum, weight float64
	for _, s := range signals {
		if s.Type != t {
			continue
		}
		w := s.Weight
		if w <= 0 {
			w = 1
		}
		sum += clamp01(s.Value) * w
		weight += w
	}
	if weight == 0 {
		return def
	}
	return sum / weight
}

// consistencyComponent inverts conflict evidence: strong contradiction
// means low consistency
func consistencyComponent(signals []model.VerificationSignal) float64 {
	conflict := typeComponent(signals, model.SignalConflict, 0)
	return clamp01(1 - conflict)
}

// verificationComponent blends cross-reference support against flagged
// uncertainty
func verificationComponent(signals []model.VerificationSignal) float64 {
	crossRef := typeComponent(signals, model.SignalCrossReference, 0.5)
	uncertainty := typeComponent(signals, model.SignalUncertainty, 0)
	return clamp01(crossRef * (1 - 0.5*uncertainty))
}

func hasConflict(signals []model.VerificationSignal) bool {
	for _, s := range signals {
		if s.Type == model.SignalConflict && s.Value > 0.5 {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
