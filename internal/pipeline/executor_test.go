package pipeline

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/model"
)

func TestStageExecutor_DeadlineDegradesToPartial(t *testing.T) {
	exec := NewStageExecutor(zap.NewNop())
	sess := newSession(model.NewQuery("q"), Options{}, time.Now().Add(50*time.Millisecond))

	outcome := exec.Run(context.Background(), sess, StateSearching, 1.0, func(ctx context.Context) StageOutcome {
		<-ctx.Done()
		return Failed(ctx.Err())
	})

	if outcome.Status != OutcomePartial {
		t.Errorf("expected deadline failure to degrade to partial, got %s", outcome.Status)
	}
	if len(outcome.Missing) == 0 {
		t.Error("expected the cut-short work to be enumerated")
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.missing) == 0 {
		t.Error("missing work not recorded on the session")
	}
	if _, ok := sess.stageTimes[string(StateSearching)]; !ok {
		t.Error("stage time not recorded")
	}
}

func TestStageExecutor_ExpiredBudgetSkipsStage(t *testing.T) {
	exec := NewStageExecutor(zap.NewNop())
	sess := newSession(model.NewQuery("q"), Options{}, time.Now().Add(-time.Second))

	ran := false
	outcome := exec.Run(context.Background(), sess, StateCiting, 0.5, func(ctx context.Context) StageOutcome {
		ran = true
		return Success()
	})

	if ran {
		t.Error("stage must not run after the pipeline deadline")
	}
	if outcome.Status != OutcomePartial {
		t.Errorf("expected partial, got %s", outcome.Status)
	}
}

func TestStageExecutor_SharesRemainingBudget(t *testing.T) {
	exec := NewStageExecutor(zap.NewNop())
	sess := newSession(model.NewQuery("q"), Options{}, time.Now().Add(time.Minute))

	var deadline time.Time
	exec.Run(context.Background(), sess, StateAnalyzing, 0.5, func(ctx context.Context) StageOutcome {
		deadline, _ = ctx.Deadline()
		return Success()
	})

	budget := time.Until(deadline)
	// Half of ~60s, with scheduling slack
	if budget < 25*time.Second || budget > 31*time.Second {
		t.Errorf("stage budget = %v, want about 30s", budget)
	}
}

func TestStageExecutor_GenuineFailureStaysFailed(t *testing.T) {
	exec := NewStageExecutor(zap.NewNop())
	sess := newSession(model.NewQuery("q"), Options{}, time.Now().Add(time.Minute))

	outcome := exec.Run(context.Background(), sess, StateAnalyzing, 0.5, func(ctx context.Context) StageOutcome {
		return Failed(context.Canceled)
	})
	if outcome.Status != OutcomeFailed {
		t.Errorf("expected failure to propagate, got %s", outcome.Status)
	}
}
