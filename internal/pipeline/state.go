package pipeline

import (
	"sync"
	"time"

	"github.com/venedict/inquest/internal/model"
)

// State is the orchestrator's position in the research state machine.
// Transitions are strictly forward; the single allowed re-entry is
// Verifying -> Synthesizing, bounded by the refinement counter.
type State string

const (
	StatePending      State = "pending"
	StateAnalyzing    State = "analyzing"
	StateSearching    State = "searching"
	StateSynthesizing State = "synthesizing"
	StateVerifying    State = "verifying"
	StateCiting       State = "citing"
	StateFormatting   State = "formatting"
	StateCompleted    State = "completed"
	StatePartial      State = "partially_completed"
	StateFailed       State = "failed"
)

// Terminal reports whether the state machine has finished
func (s State) Terminal() bool {
	return s == StateCompleted || s == StatePartial || s == StateFailed
}

// stageOrder drives completeness reporting; terminal states excluded
var stageOrder = []State{
	StateAnalyzing, StateSearching, StateSynthesizing,
	StateVerifying, StateCiting, StateFormatting,
}

// Status is the read-only snapshot exposed to long-running callers
type Status struct {
	QueryID            string          `json:"query_id"`
	State              State           `json:"state"`
	Completeness       float64         `json:"completeness_percent"`
	SubQueriesSearched int             `json:"sub_queries_searched"`
	PartialFindings    []model.Finding `json:"partial_findings,omitempty"`
	StageTimes         map[string]int  `json:"stage_times_ms,omitempty"`
}

// session carries one research run's intermediate artifacts. All access
// goes through the mutex because Status snapshots race with stage work.
type session struct {
	mu sync.Mutex

	query     model.Query
	opts      Options
	state     State
	startedAt time.Time
	deadline  time.Time

	sources     []model.Source
	findings    []model.Finding
	citations   []model.Citation
	summary     string
	report      string
	missing     []model.MissingWork
	stageTimes  map[string]time.Duration
	refinements int

	// searched tracks which sub-queries completed their search fan-out
	searched map[string]bool
}

func newSession(query model.Query, opts Options, deadline time.Time) *session {
	return &session{
		query:      query,
		opts:       opts,
		state:      StatePending,
		startedAt:  time.Now(),
		deadline:   deadline,
		stageTimes: make(map[string]time.Duration),
		searched:   make(map[string]bool),
	}
}

func (s *session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *session) recordStageTime(state State, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stageTimes[string(state)] = d
}

func (s *session) addMissing(work ...model.MissingWork) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing = append(s.missing, work...)
}

// snapshot builds a Status without blocking stage work for long
func (s *session) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := 0
	for _, stage := range stageOrder {
		if _, done := s.stageTimes[string(stage)]; done {
			completed++
		}
	}

	findings := make([]model.Finding, len(s.findings))
	copy(findings, s.findings)

	times := make(map[string]int, len(s.stageTimes))
	for k, v := range s.stageTimes {
		times[k] = int(v.Milliseconds())
	}

	return Status{
		QueryID:            s.query.ID,
		State:              s.state,
		Completeness:       float64(completed) / float64(len(stageOrder)) * 100,
		SubQueriesSearched: len(s.searched),
		PartialFindings:    findings,
		StageTimes:         times,
	}
}
