package model

import "time"

// ResultStatus is the terminal status of a research run
type ResultStatus string

const (
	StatusCompleted ResultStatus = "completed"
	StatusPartial   ResultStatus = "partially_completed"
	StatusFailed    ResultStatus = "failed"
)

// MissingWork describes a sub-query or stage that did not complete and why.
// Partial results must enumerate these rather than silently drop information.
type MissingWork struct {
	Stage      string `json:"stage"`
	SubQueryID string `json:"sub_query_id,omitempty"`
	Reason     string `json:"reason"`
}

// ResultMetadata holds run-level accounting
type ResultMetadata struct {
	ProcessingTime   time.Duration  `json:"processing_time"`
	SourcesConsulted int            `json:"sources_consulted"`
	Status           ResultStatus   `json:"status"`
	StageTimes       map[string]int `json:"stage_times_ms,omitempty"` // Per-stage duration in milliseconds
	Depth            string         `json:"depth,omitempty"`
}

// ResearchResult is the immutable final output of a research run
type ResearchResult struct {
	QueryID           string         `json:"query_id"`
	Query             Query          `json:"query"`
	Summary           string         `json:"summary"`
	Report            string         `json:"report,omitempty"` // Full formatted report body
	Findings          []Finding      `json:"findings"`
	Sources           []Source       `json:"sources"`
	Citations         []Citation     `json:"citations,omitempty"`
	OverallConfidence float64        `json:"overall_confidence"`
	Status            ResultStatus   `json:"status"`
	Missing           []MissingWork  `json:"missing,omitempty"`
	Metadata          ResultMetadata `json:"metadata"`
	CreatedAt         time.Time      `json:"created_at"`
}

// SourceByID resolves a source id within the result
func (r *ResearchResult) SourceByID(id string) (Source, bool) {
	for _, s := range r.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}
