package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/venedict/inquest/internal/model"
)

const analyzeSystem = "You are a research planner. Decompose research questions into focused, independently searchable sub-queries. Respond with JSON only."

const analyzePrompt = `Analyze this research question and respond with a JSON object:

Question: %q

{
  "intent": "<what the asker wants>",
  "domain": "<subject area>",
  "complexity": "simple|medium|complex",
  "temporal_scope": "<time period if relevant, else empty>",
  "entities": [{"name": "...", "type": "PERSON|ORG|LOCATION|DATE|CONCEPT|PRODUCT|EVENT", "relevance": "primary|secondary"}],
  "sub_queries": [{"text": "<search query>", "purpose": "...", "priority": 1, "depends_on": []}]
}

Rules: 2-4 sub_queries for medium complexity, up to 6 for complex.
depends_on lists zero-based indices of sub_queries that must resolve first
and must not form a cycle. priority orders the final report sections.`

type analysisPayload struct {
	Intent        string `json:"intent"`
	Domain        string `json:"domain"`
	Complexity    string `json:"complexity"`
	TemporalScope string `json:"temporal_scope"`
	Entities      []struct {
		Name      string `json:"name"`
		Type      string `json:"type"`
		Relevance string `json:"relevance"`
	} `json:"entities"`
	SubQueries []struct {
		Text      string `json:"text"`
		Purpose   string `json:"purpose"`
		Priority  int    `json:"priority"`
		DependsOn []int  `json:"depends_on"`
	} `json:"sub_queries"`
}

// analyze turns the raw question into a validated Query with a sub-query
// DAG. Failure here is fatal to the run: without a usable Query nothing
// downstream is possible.
func (p *Pipeline) analyze(ctx context.Context, sess *session) StageOutcome {
	var payload analysisPayload
	prompt := fmt.Sprintf(analyzePrompt, sess.query.RawText)
	if err := p.completeJSON(ctx, analyzeSystem, prompt, &payload); err != nil {
		return Failed(fmt.Errorf("query analysis: %w", err))
	}

	query := sess.query
	query.Intent = payload.Intent
	query.Domain = payload.Domain
	query.TemporalScope = payload.TemporalScope
	query.Complexity = parseComplexity(payload.Complexity)
	for _, e := range payload.Entities {
		query.Entities = append(query.Entities, model.Entity{
			Name:      e.Name,
			Type:      e.Type,
			Relevance: e.Relevance,
		})
	}

	// Simple questions skip decomposition entirely
	if query.Complexity == model.ComplexitySimple || len(payload.SubQueries) == 0 {
		query.SubQueries = []model.SubQuery{{
			ID:       uuid.NewString(),
			Text:     query.RawText,
			Priority: 1,
		}}
	} else {
		ids := make([]string, len(payload.SubQueries))
		for i := range payload.SubQueries {
			ids[i] = uuid.NewString()
		}
		for i, sq := range payload.SubQueries {
			dep := make([]string, 0, len(sq.DependsOn))
			for _, idx := range sq.DependsOn {
				if idx < 0 || idx >= len(ids) || idx == i {
					return Failed(fmt.Errorf("query analysis: sub-query %d has invalid dependency index %d", i, idx))
				}
				dep = append(dep, ids[idx])
			}
			priority := sq.Priority
			if priority <= 0 {
				priority = i + 1
			}
			query.SubQueries = append(query.SubQueries, model.SubQuery{
				ID:        ids[i],
				Text:      sq.Text,
				Purpose:   sq.Purpose,
				DependsOn: dep,
				Priority:  priority,
			})
		}
	}

	// A cyclic decomposition is an invariant violation, rejected here
	if err := query.ValidateSubQueries(); err != nil {
		return Failed(fmt.Errorf("query analysis: %w", err))
	}

	sess.mu.Lock()
	sess.query = query
	sess.mu.Unlock()

	p.logger.Debug("query analyzed",
		zap.String("query_id", query.ID),
		zap.String("complexity", string(query.Complexity)),
		zap.Int("sub_queries", len(query.SubQueries)))
	return Success()
}

func parseComplexity(s string) model.QueryComplexity {
	switch s {
	case "simple":
		return model.ComplexitySimple
	case "complex":
		return model.ComplexityComplex
	default:
		return model.ComplexityMedium
	}
}
