package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/model"
)

const summarizeSystem = "You are a research writer. Produce a tight executive summary of the findings you are given. Do not introduce claims that are not in the findings. Plain prose, no markdown."

const summarizePrompt = `Research question: %q

Findings (with confidence):
%s

Write a summary of at most 200 words answering the research question from
these findings only. Mention disputed points explicitly.`

// format produces the executive summary and the full report. The summary
// prefers a reasoning provider but falls back to deterministic assembly,
// so the stage degrades rather than fails when every provider is down.
func (p *Pipeline) format(ctx context.Context, sess *session) StageOutcome {
	sess.mu.Lock()
	query := sess.query
	findings := make([]model.Finding, len(sess.findings))
	copy(findings, sess.findings)
	citations := sess.citations
	missing := make([]model.MissingWork, len(sess.missing))
	copy(missing, sess.missing)
	sess.mu.Unlock()

	summary, degraded := p.summarize(ctx, query, findings)
	report := renderReport(query, findings, citations, missing, summary)

	findingIDs := make([]string, 0, len(findings))
	for _, f := range findings {
		findingIDs = append(findingIDs, f.ID)
	}
	if len(findingIDs) > 0 {
		if err := p.graph.Add("summary:"+query.ID, string(StateFormatting), findingIDs); err != nil {
			p.logger.Warn("provenance record rejected", zap.String("query_id", query.ID), zap.Error(err))
		}
	}

	sess.mu.Lock()
	sess.summary = summary
	sess.report = report
	sess.mu.Unlock()

	if degraded {
		return Partial(model.MissingWork{
			Stage:  string(StateFormatting),
			Reason: "summary assembled without a reasoning provider",
		})
	}
	return Success()
}

// summarize asks a reasoning provider for the executive summary; the
// second return reports whether it fell back to assembly.
func (p *Pipeline) summarize(ctx context.Context, query model.Query, findings []model.Finding) (string, bool) {
	if len(findings) == 0 {
		return "No findings could be established for this query.", false
	}

	var listed strings.Builder
	for _, f := range findings {
		marker := ""
		if f.Disputed {
			marker = " [disputed]"
		}
		fmt.Fprintf(&listed, "- (%s confidence%s) %s\n", model.LevelFor(f.Confidence), marker, f.Content)
	}

	text, err := p.completeText(ctx, summarizeSystem,
		fmt.Sprintf(summarizePrompt, query.RawText, listed.String()))
	if err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text), false
	}
	if err != nil {
		p.logger.Warn("summary generation degraded to assembly", zap.Error(err))
	}
	return assembleSummary(findings), true
}

// assembleSummary stitches the highest-confidence findings into a
// serviceable summary without any provider
func assembleSummary(findings []model.Finding) string {
	var b strings.Builder
	n := 0
	for _, f := range findings {
		if n >= 3 {
			break
		}
		sentence := strings.TrimRight(f.Content, ".") + "."
		if f.Disputed {
			sentence = strings.TrimSuffix(sentence, ".") + " (disputed across sources)."
		}
		if n > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sentence)
		n++
	}
	return b.String()
}

// renderReport builds the markdown body of the final report
func renderReport(query model.Query, findings []model.Finding, citations []model.Citation, missing []model.MissingWork, summary string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", query.RawText)
	fmt.Fprintf(&b, "## Summary\n\n%s\n\n", summary)

	b.WriteString("## Findings\n\n")
	if len(findings) == 0 {
		b.WriteString("No findings.\n\n")
	}
	for i, f := range findings {
		marker := ""
		if f.Disputed {
			marker = " ⚠ disputed"
		}
		fmt.Fprintf(&b, "%d. %s\n   - Confidence: %.2f (%s)%s\n",
			i+1, f.Content, f.Confidence, model.LevelFor(f.Confidence), marker)
		for _, caveat := range f.Caveats {
			fmt.Fprintf(&b, "   - Caveat: %s\n", caveat)
		}
		b.WriteByte('\n')
	}

	if len(citations) > 0 {
		b.WriteString("## Sources\n\n")
		for i, c := range citations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c.Formatted)
		}
		b.WriteByte('\n')
	}

	if len(missing) > 0 {
		b.WriteString("## Gaps\n\n")
		for _, m := range missing {
			fmt.Fprintf(&b, "- %s: %s\n", m.Stage, m.Reason)
		}
		b.WriteByte('\n')
	}

	return b.String()
}
