package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/model"
)

// StageExecutor runs one stage with a deadline carved out of the
// pipeline's remaining budget. Because each stage receives a share of
// whatever budget is left, time saved by early stages flows to later ones
// and overruns shrink what follows.
type StageExecutor struct {
	logger *zap.Logger
}

// NewStageExecutor creates a stage executor
func NewStageExecutor(logger *zap.Logger) *StageExecutor {
	return &StageExecutor{logger: logger}
}

// Run executes fn under a deadline of share * remaining budget. When the
// stage deadline expires before completion, the outcome degrades to
// partial with whatever sub-results the stage harvested; the stage is
// never left blocking past the overall deadline.
func (e *StageExecutor) Run(ctx context.Context, sess *session, state State, share float64, fn func(ctx context.Context) StageOutcome) StageOutcome {
	sess.setState(state)

	remaining := time.Until(sess.deadline)
	if remaining <= 0 {
		sess.recordStageTime(state, 0)
		return Partial(model.MissingWork{
			Stage:  string(state),
			Reason: "pipeline deadline already expired",
		})
	}

	budget := time.Duration(float64(remaining) * share)
	if budget > remaining {
		budget = remaining
	}

	stageCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()
	outcome := fn(stageCtx)
	elapsed := time.Since(start)
	sess.recordStageTime(state, elapsed)

	// A stage that died purely of deadline still yields its partial work
	if outcome.Status == OutcomeFailed && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		outcome = Partial(model.MissingWork{
			Stage:  string(state),
			Reason: "stage deadline exceeded",
		})
	}

	e.logger.Info("stage finished",
		zap.String("query_id", sess.query.ID),
		zap.String("stage", string(state)),
		zap.String("outcome", outcome.Status.String()),
		zap.Duration("elapsed", elapsed),
		zap.Duration("budget", budget))

	if len(outcome.Missing) > 0 {
		sess.addMissing(outcome.Missing...)
	}
	return outcome
}
