package model

import (
	"fmt"

	"github.com/google/uuid"
)

// FindingState tracks a finding through the pipeline lifecycle.
// Transitions are strictly draft -> verified -> scored.
type FindingState string

const (
	FindingDraft    FindingState = "draft"    // Produced by synthesis, not yet verified
	FindingVerified FindingState = "verified" // Passed through the verification stage
	FindingScored   FindingState = "scored"   // Confidence assigned, eligible for the final result
)

// ReasoningStep is one step in the chain that produced a finding
type ReasoningStep struct {
	Number     int    `json:"number"`
	Thought    string `json:"thought"`
	Evidence   string `json:"evidence,omitempty"`
	Conclusion string `json:"conclusion,omitempty"`
}

// Finding is a synthesized, sourced claim. A finding with zero sources is
// invalid and must be rejected before it reaches verification.
type Finding struct {
	ID             string          `json:"id"`
	Content        string          `json:"content"`
	Category       string          `json:"category,omitempty"`
	State          FindingState    `json:"state"`
	Confidence     float64         `json:"confidence"` // [0,1], set when State becomes scored
	Disputed       bool            `json:"disputed"`   // Contradicting sources detected
	SourceIDs      []string        `json:"source_ids"`
	ReasoningChain []ReasoningStep `json:"reasoning_chain,omitempty"`
	Caveats        []string        `json:"caveats,omitempty"`
	SubQueryID     string          `json:"sub_query_id,omitempty"` // Originating sub-query, drives output ordering

	// Signals are the verification inputs the confidence was scored
	// from, kept on the finding so results explain their own numbers
	Signals []VerificationSignal `json:"signals,omitempty"`
}

// NewFinding builds a draft finding over the given sources
func NewFinding(content string, sourceIDs []string) Finding {
	return Finding{
		ID:        uuid.NewString(),
		Content:   content,
		State:     FindingDraft,
		SourceIDs: sourceIDs,
	}
}

// Validate rejects findings that violate the data-model invariants
func (f *Finding) Validate() error {
	if f.Content == "" {
		return fmt.Errorf("finding %s has empty content", f.ID)
	}
	if len(f.SourceIDs) == 0 {
		return fmt.Errorf("finding %s references no sources", f.ID)
	}
	return nil
}

// Advance moves the finding to the next lifecycle state. Skipping states
// or moving backwards is rejected.
func (f *Finding) Advance(next FindingState) error {
	valid := map[FindingState]FindingState{
		FindingDraft:    FindingVerified,
		FindingVerified: FindingScored,
	}
	if valid[f.State] != next {
		return fmt.Errorf("finding %s: invalid state transition %s -> %s", f.ID, f.State, next)
	}
	f.State = next
	return nil
}

// SignalType classifies a verification signal
type SignalType string

const (
	SignalCrossReference SignalType = "cross_reference" // Claim corroborated across sources
	SignalCredibility    SignalType = "credibility"     // Source quality assessment
	SignalConflict       SignalType = "conflict"        // Contradiction between sources
	SignalUncertainty    SignalType = "uncertainty"     // Hedged or ambiguous evidence
	SignalRecency        SignalType = "recency"         // Age of supporting sources
)

// VerificationSignal is one scored observation about a finding. Several
// signals per finding feed the confidence aggregator.
type VerificationSignal struct {
	FindingID string     `json:"finding_id"`
	Type      SignalType `json:"type"`
	Value     float64    `json:"value"`  // Normalized to [0,1]
	Weight    float64    `json:"weight"` // Relative importance within its type
	Detail    string     `json:"detail,omitempty"`
}

// ConfidenceLevel bands a numeric confidence for presentation
type ConfidenceLevel string

const (
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceVeryLow  ConfidenceLevel = "very_low"
)

// LevelFor maps a [0,1] confidence to its presentation band
func LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.9:
		return ConfidenceVeryHigh
	case confidence >= 0.7:
		return ConfidenceHigh
	case confidence >= 0.5:
		return ConfidenceMedium
	case confidence >= 0.3:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}
