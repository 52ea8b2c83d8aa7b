package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QueryComplexity classifies how much decomposition a query needs
type QueryComplexity string

const (
	ComplexitySimple  QueryComplexity = "simple"  // Answerable with a single search
	ComplexityMedium  QueryComplexity = "medium"  // Needs 2-3 sub-queries
	ComplexityComplex QueryComplexity = "complex" // Needs full decomposition
)

// Entity is a named concept extracted from the query during analysis
type Entity struct {
	Name      string `json:"name"`
	Type      string `json:"type"`                // PERSON, ORG, LOCATION, DATE, CONCEPT, PRODUCT, EVENT
	Relevance string `json:"relevance,omitempty"` // primary, secondary
}

// SubQuery is one decomposed search target derived from the main query.
// Sub-queries form a DAG through DependsOn; the analysis stage rejects
// decompositions that contain cycles.
type SubQuery struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Purpose   string   `json:"purpose,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"` // IDs of sub-queries that must resolve first
	Priority  int      `json:"priority"`             // Lower value means earlier in final ordering
}

// Query is the analyzed research question. Immutable once built.
type Query struct {
	ID            string          `json:"id"`
	RawText       string          `json:"raw_text"`
	Intent        string          `json:"intent,omitempty"`
	Domain        string          `json:"domain,omitempty"`
	Complexity    QueryComplexity `json:"complexity"`
	Entities      []Entity        `json:"entities,omitempty"`
	SubQueries    []SubQuery      `json:"sub_queries"`
	TemporalScope string          `json:"temporal_scope,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewQuery builds a Query with a fresh id and timestamp
func NewQuery(rawText string) Query {
	return Query{
		ID:        uuid.NewString(),
		RawText:   strings.TrimSpace(rawText),
		CreatedAt: time.Now().UTC(),
	}
}

// ValidateSubQueries checks that the declared dependencies form a DAG and
// reference known sub-query ids. Called at decomposition time; a cycle is
// an invariant violation that fails the analysis stage.
func (q *Query) ValidateSubQueries() error {
	ids := make(map[string]bool, len(q.SubQueries))
	for _, sq := range q.SubQueries {
		if sq.ID == "" {
			return fmt.Errorf("sub-query with empty id")
		}
		if ids[sq.ID] {
			return fmt.Errorf("duplicate sub-query id %q", sq.ID)
		}
		ids[sq.ID] = true
	}

	deps := make(map[string][]string, len(q.SubQueries))
	for _, sq := range q.SubQueries {
		for _, dep := range sq.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("sub-query %q depends on unknown id %q", sq.ID, dep)
			}
			deps[sq.ID] = append(deps[sq.ID], dep)
		}
	}

	// Colored DFS for cycle detection
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(q.SubQueries))
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				return fmt.Errorf("sub-query dependency cycle through %q", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for _, sq := range q.SubQueries {
		if color[sq.ID] == white {
			if err := visit(sq.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
