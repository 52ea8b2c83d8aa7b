package pipeline

import "github.com/venedict/inquest/internal/model"

// OutcomeStatus is the tagged result of one stage execution
type OutcomeStatus int

const (
	OutcomeSuccess OutcomeStatus = iota
	OutcomePartial
	OutcomeFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSuccess:
		return "success"
	case OutcomePartial:
		return "partial"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// StageOutcome describes how a stage ended. Partial outcomes enumerate
// the work that was cut short so the final result never silently drops
// information.
type StageOutcome struct {
	Status  OutcomeStatus
	Missing []model.MissingWork
	Err     error
}

// Success is the zero-missing happy outcome
func Success() StageOutcome {
	return StageOutcome{Status: OutcomeSuccess}
}

// Partial reports a stage that produced some but not all of its outputs
func Partial(missing ...model.MissingWork) StageOutcome {
	return StageOutcome{Status: OutcomePartial, Missing: missing}
}

// Failed reports a stage that produced nothing usable
func Failed(err error) StageOutcome {
	return StageOutcome{Status: OutcomeFailed, Err: err}
}
