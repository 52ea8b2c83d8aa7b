package provenance

import (
	"errors"
	"testing"
)

func TestGraph_AddAndTrace(t *testing.T) {
	g := NewGraph()
	g.RecordSource("src-1", "searching")
	g.RecordSource("src-2", "searching")

	if err := g.Add("finding-1", "synthesizing", []string{"src-1", "src-2"}); err != nil {
		t.Fatalf("add finding: %v", err)
	}
	if err := g.Add("summary-1", "formatting", []string{"finding-1"}); err != nil {
		t.Fatalf("add summary: %v", err)
	}

	path, err := g.Trace("summary-1")
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if len(path) != 4 {
		t.Errorf("expected 4 records on the path, got %d", len(path))
	}
	if path[0].ArtifactID != "summary-1" {
		t.Errorf("expected derived-first ordering, got %s first", path[0].ArtifactID)
	}

	roots, err := g.Roots("summary-1")
	if err != nil {
		t.Fatalf("roots: %v", err)
	}
	if len(roots) != 2 {
		t.Errorf("expected 2 root sources, got %v", roots)
	}
}

func TestGraph_RejectsEmptyInputs(t *testing.T) {
	g := NewGraph()
	if err := g.Add("finding-1", "synthesizing", nil); err == nil {
		t.Error("expected derived artifact without inputs to be rejected")
	}
}

func TestGraph_RejectsUnknownInput(t *testing.T) {
	g := NewGraph()
	if err := g.Add("finding-1", "synthesizing", []string{"missing"}); err == nil {
		t.Error("expected unknown input to be rejected")
	}
}

func TestGraph_RejectsCycle(t *testing.T) {
	g := NewGraph()
	g.RecordSource("src-1", "searching")

	if err := g.Add("a", "synthesizing", []string{"src-1"}); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := g.Add("b", "verifying", []string{"a"}); err != nil {
		t.Fatalf("add b: %v", err)
	}

	// Re-recording a with b as input would make a -> b -> a
	err := g.Add("a", "synthesizing", []string{"b"})
	if err == nil {
		t.Fatal("expected cycle to be rejected")
	}
	if !errors.Is(err, ErrProvenanceCycle) {
		t.Errorf("expected ErrProvenanceCycle, got %v", err)
	}
}

func TestGraph_SourceRootsAreStable(t *testing.T) {
	g := NewGraph()
	g.RecordSource("src-1", "searching")
	g.RecordSource("src-1", "searching") // Duplicate registration is a no-op

	if g.Len() != 1 {
		t.Errorf("expected 1 record, got %d", g.Len())
	}

	roots, err := g.Roots("src-1")
	if err != nil {
		t.Fatalf("roots: %v", err)
	}
	if len(roots) != 1 || roots[0] != "src-1" {
		t.Errorf("expected source to be its own root, got %v", roots)
	}
}
