package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/model"
)

// cite formats a citation for every source referenced by a scored
// finding. Formatting is deterministic and involves no providers, so the
// stage cannot partially fail: a source either has the metadata for a
// full citation or gets a URL-only fallback.
func (p *Pipeline) cite(ctx context.Context, sess *session) StageOutcome {
	sess.mu.Lock()
	style := sess.opts.CitationStyle
	if style == "" {
		style = model.CitationStyle(p.cfg.Output.CitationStyle)
	}
	findings := make([]model.Finding, len(sess.findings))
	copy(findings, sess.findings)
	sources := sess.sources
	sess.mu.Unlock()

	byID := make(map[string]model.Source, len(sources))
	for _, src := range sources {
		byID[src.ID] = src
	}

	// Number sources in first-reference order so in-text markers are
	// stable across runs
	var ordered []string
	seen := make(map[string]bool)
	for _, f := range findings {
		for _, id := range f.SourceIDs {
			if _, ok := byID[id]; ok && !seen[id] {
				seen[id] = true
				ordered = append(ordered, id)
			}
		}
	}

	citations := make([]model.Citation, 0, len(ordered))
	for i, id := range ordered {
		src := byID[id]
		citations = append(citations, model.Citation{
			SourceID:  id,
			Style:     style,
			Formatted: formatCitation(src, style),
			InText:    inTextMarker(src, style, i+1),
		})
	}

	for _, c := range citations {
		if err := p.graph.Add("citation:"+c.SourceID, string(StateCiting), []string{c.SourceID}); err != nil {
			p.logger.Warn("provenance record rejected",
				zap.String("source_id", c.SourceID), zap.Error(err))
		}
	}

	sess.mu.Lock()
	sess.citations = citations
	sess.mu.Unlock()

	p.logger.Info("citations formatted",
		zap.String("query_id", sess.query.ID),
		zap.Int("citations", len(citations)),
		zap.String("style", string(style)))
	return Success()
}

// formatCitation renders a full reference entry. Web sources rarely
// carry author metadata, so the publishing site stands in for the
// author the way style guides prescribe for unattributed pages.
func formatCitation(src model.Source, style model.CitationStyle) string {
	title := src.Title
	if title == "" {
		title = src.URL
	}
	site := src.Domain
	year := "n.d."
	var published string
	if src.PublishedAt != nil {
		year = src.PublishedAt.Format("2006")
		published = src.PublishedAt.Format("January 2, 2006")
	}
	retrieved := src.RetrievedAt.Format("January 2, 2006")

	switch style {
	case model.StyleMLA:
		// "Title." Site, date. URL. Accessed date.
		var b strings.Builder
		fmt.Fprintf(&b, "%q %s", title+".", site)
		if published != "" {
			fmt.Fprintf(&b, ", %s", src.PublishedAt.Format("2 Jan. 2006"))
		}
		fmt.Fprintf(&b, ". %s. Accessed %s.", src.URL, src.RetrievedAt.Format("2 Jan. 2006"))
		return b.String()
	case model.StyleChicago:
		// Site. "Title." Accessed date. URL.
		return fmt.Sprintf("%s. %q Accessed %s. %s.", site, title+".", retrieved, src.URL)
	case model.StyleIEEE:
		// "Title," Site. [Online]. Available: URL
		out := fmt.Sprintf("%q %s.", title+",", site)
		if published != "" {
			out = fmt.Sprintf("%q %s, %s.", title+",", site, published)
		}
		return out + " [Online]. Available: " + src.URL
	case model.StyleHarvard:
		// Site (year) Title. Available at: URL (Accessed: date).
		return fmt.Sprintf("%s (%s) %s. Available at: %s (Accessed: %s).",
			site, year, title, src.URL, retrieved)
	default: // APA
		// Site. (year). Title. URL
		return fmt.Sprintf("%s. (%s). %s. %s", site, year, title, src.URL)
	}
}

// inTextMarker renders the in-text form; n is the 1-based position in
// first-reference order, used by numbered styles.
func inTextMarker(src model.Source, style model.CitationStyle, n int) string {
	year := "n.d."
	if src.PublishedAt != nil {
		year = src.PublishedAt.Format("2006")
	}
	switch style {
	case model.StyleIEEE:
		return fmt.Sprintf("[%d]", n)
	case model.StyleMLA:
		return fmt.Sprintf("(%s)", src.Domain)
	default:
		return fmt.Sprintf("(%s, %s)", src.Domain, year)
	}
}
