package pipeline

import (
	"strings"
	"testing"

	"github.com/venedict/inquest/internal/model"
)

func TestAssembleSummary(t *testing.T) {
	findings := []model.Finding{
		{Content: "First claim", Confidence: 0.8},
		{Content: "Second claim", Confidence: 0.6, Disputed: true},
		{Content: "Third claim", Confidence: 0.5},
		{Content: "Fourth claim", Confidence: 0.4},
	}

	summary := assembleSummary(findings)
	if !strings.Contains(summary, "First claim.") {
		t.Errorf("summary = %q", summary)
	}
	if !strings.Contains(summary, "disputed across sources") {
		t.Error("disputed finding not flagged in summary")
	}
	if strings.Contains(summary, "Fourth claim") {
		t.Error("summary should stop at three findings")
	}
}

func TestRenderReport(t *testing.T) {
	query := model.NewQuery("what changed?")
	findings := []model.Finding{
		{Content: "A thing changed", Confidence: 0.82, SourceIDs: []string{"src-1"}},
		{Content: "Another thing is contested", Confidence: 0.4, Disputed: true, Caveats: []string{"sources disagree on timing"}},
	}
	citations := []model.Citation{{SourceID: "src-1", Formatted: "example.org. (2021). A Thing. https://example.org"}}
	missing := []model.MissingWork{{Stage: "searching", Reason: "provider unavailable"}}

	report := renderReport(query, findings, citations, missing, "Short summary.")

	for _, fragment := range []string{
		"# what changed?",
		"## Summary",
		"Short summary.",
		"A thing changed",
		"0.82 (high)",
		"disputed",
		"Caveat: sources disagree on timing",
		"## Sources",
		"example.org. (2021). A Thing.",
		"## Gaps",
		"searching: provider unavailable",
	} {
		if !strings.Contains(report, fragment) {
			t.Errorf("report missing %q\n%s", fragment, report)
		}
	}
}

func TestRenderReport_NoFindings(t *testing.T) {
	report := renderReport(model.NewQuery("q"), nil, nil, nil, "Nothing.")
	if !strings.Contains(report, "No findings.") {
		t.Error("empty findings section not rendered")
	}
	if strings.Contains(report, "## Sources") {
		t.Error("sources section should be omitted without citations")
	}
}
