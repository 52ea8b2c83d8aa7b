package provenance

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrProvenanceCycle reports a record call whose inputs would make the
// graph cyclic. The graph must stay a DAG rooted at sources.
var ErrProvenanceCycle = errors.New("provenance cycle")

// Record links one derived artifact to the inputs and stage that produced
// it. Records are never deleted; the graph only grows.
type Record struct {
	ArtifactID string    `json:"artifact_id"`
	Stage      string    `json:"producing_stage"`
	InputIDs   []string  `json:"input_artifact_ids,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Graph is the append-only provenance store. Source artifacts are roots;
// every other artifact must be reachable from at least one root.
type Graph struct {
	mu      sync.RWMutex
	records map[string]Record
	roots   map[string]bool
}

// NewGraph creates an empty provenance graph
func NewGraph() *Graph {
	return &Graph{
		records: make(map[string]Record),
		roots:   make(map[string]bool),
	}
}

// RecordSource registers a raw Source as a root node
func (g *Graph) RecordSource(sourceID string, stage string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.records[sourceID]; exists {
		return
	}
	g.roots[sourceID] = true
	g.records[sourceID] = Record{
		ArtifactID: sourceID,
		Stage:      stage,
		Timestamp:  time.Now().UTC(),
	}
}

// Add records a derived artifact. Every non-source artifact needs at
// least one input, all inputs must already be recorded, and the new edge
// set must not introduce a cycle.
func (g *Graph) Add(artifactID, stage string, inputIDs []string) error {
	if len(inputIDs) == 0 {
		return fmt.Errorf("artifact %s: derived artifact needs at least one input", artifactID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, in := range inputIDs {
		if _, exists := g.records[in]; !exists {
			return fmt.Errorf("artifact %s: unknown input %s", artifactID, in)
		}
	}

	// A cycle would need the new artifact to already be an ancestor of
	// one of its inputs.
	if _, exists := g.records[artifactID]; exists {
		for _, in := range inputIDs {
			if g.reachable(in, artifactID) {
				return fmt.Errorf("artifact %s via input %s: %w", artifactID, in, ErrProvenanceCycle)
			}
		}
	}

	g.records[artifactID] = Record{
		ArtifactID: artifactID,
		Stage:      stage,
		InputIDs:   inputIDs,
		Timestamp:  time.Now().UTC(),
	}
	return nil
}

// reachable walks input edges from start looking for target
func (g *Graph) reachable(start, target string) bool {
	if start == target {
		return true
	}
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, in := range g.records[cur].InputIDs {
			if in == target {
				return true
			}
			if !seen[in] {
				seen[in] = true
				queue = append(queue, in)
			}
		}
	}
	return false
}

// Trace returns the records on every path from the artifact down to its
// root sources, ordered derived-first. Tracing a finding must terminate
// only at Source nodes.
func (g *Graph) Trace(artifactID string) ([]Record, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, exists := g.records[artifactID]; !exists {
		return nil, fmt.Errorf("unknown artifact %s", artifactID)
	}

	var path []Record
	seen := make(map[string]bool)
	var walk func(id string) error
	walk = func(id string) error {
		if seen[id] {
			return nil
		}
		seen[id] = true

		rec := g.records[id]
		path = append(path, rec)

		if g.roots[id] {
			return nil
		}
		if len(rec.InputIDs) == 0 {
			return fmt.Errorf("artifact %s is neither a source nor derived", id)
		}
		for _, in := range rec.InputIDs {
			if err := walk(in); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(artifactID); err != nil {
		return nil, err
	}
	return path, nil
}

// Roots returns the source ids the artifact ultimately derives from
func (g *Graph) Roots(artifactID string) ([]string, error) {
	path, err := g.Trace(artifactID)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	var roots []string
	for _, rec := range path {
		if g.roots[rec.ArtifactID] {
			roots = append(roots, rec.ArtifactID)
		}
	}
	return roots, nil
}

// Len returns the number of recorded artifacts
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}
