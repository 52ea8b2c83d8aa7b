package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/venedict/inquest/internal/model"
)

func TestCredibilitySignal(t *testing.T) {
	f := model.Finding{ID: "f1"}

	sig := credibilitySignal(f, nil)
	if sig.Value != 0.5 {
		t.Errorf("no-source credibility = %v, want 0.5", sig.Value)
	}

	sources := []model.Source{
		{CredibilityScore: 0.9},
		{CredibilityScore: 0.4},
	}
	sig = credibilitySignal(f, sources)
	if math.Abs(sig.Value-0.65) > 1e-9 {
		t.Errorf("credibility = %v, want 0.65", sig.Value)
	}
	if sig.Type != model.SignalCredibility || sig.FindingID != "f1" {
		t.Errorf("signal = %+v", sig)
	}
}

func TestRecencySignal(t *testing.T) {
	f := model.Finding{ID: "f1"}

	sig := recencySignal(f, []model.Source{{}, {}})
	if sig.Value != 0.6 {
		t.Errorf("undated recency = %v, want 0.6", sig.Value)
	}

	oneYear := time.Now().AddDate(-1, 0, 0)
	sig = recencySignal(f, []model.Source{{PublishedAt: &oneYear}})
	if sig.Value < 0.75 || sig.Value > 0.85 {
		t.Errorf("one-year recency = %v, want ~0.8", sig.Value)
	}

	ancient := time.Now().AddDate(-20, 0, 0)
	sig = recencySignal(f, []model.Source{{PublishedAt: &ancient}})
	if sig.Value != 0 {
		t.Errorf("decade-old recency = %v, want floor 0", sig.Value)
	}
}
