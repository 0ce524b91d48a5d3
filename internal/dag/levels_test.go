package dag

import (
	"reflect"
	"testing"

	"github.com/flowline/flowline/internal/flow"
)

func TestLevelsDiamond(t *testing.T) {
	d, err := Build(nodes("a", "b", "c", "d"), []flow.EdgeDefinition{
		edge("a", "b"),
		edge("a", "c"),
		edge("b", "d"),
		edge("c", "d"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	levels := d.Levels(d.TopologicalOrder())
	want := [][]string{{"a"}, {"b", "c"}, {"d"}}
	if !reflect.DeepEqual(levels, want) {
		t.Fatalf("Levels = %v, want %v", levels, want)
	}
}

func TestLevelsLongestPathDominates(t *testing.T) {
	// d has parents b (level 1) and a (level 0): its level must follow the
	// longer chain so b still finishes first.
	d, err := Build(nodes("a", "b", "d"), []flow.EdgeDefinition{
		edge("a", "b"),
		edge("a", "d"),
		edge("b", "d"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	levels := d.Levels(d.TopologicalOrder())
	want := [][]string{{"a"}, {"b"}, {"d"}}
	if !reflect.DeepEqual(levels, want) {
		t.Fatalf("Levels = %v, want %v", levels, want)
	}
}

func TestLevelsSubsetTreatsMissingParentsAsRoots(t *testing.T) {
	d, err := Build(nodes("a", "b", "c"), []flow.EdgeDefinition{
		edge("a", "b"),
		edge("b", "c"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// A resume subset excluding a: b has no in-subset parent, so it roots
	// the induced subgraph.
	levels := d.Levels([]string{"b", "c"})
	want := [][]string{{"b"}, {"c"}}
	if !reflect.DeepEqual(levels, want) {
		t.Fatalf("Levels = %v, want %v", levels, want)
	}
}

func TestLevelsNoEdgeWithinLevel(t *testing.T) {
	d, err := Build(nodes("a", "b", "c", "d", "e"), []flow.EdgeDefinition{
		edge("a", "c"),
		edge("b", "c"),
		edge("c", "d"),
		edge("a", "e"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	levelOf := make(map[string]int)
	for i, group := range d.Levels(d.TopologicalOrder()) {
		for _, id := range group {
			levelOf[id] = i
		}
	}
	for _, e := range d.Edges() {
		if levelOf[e.From] >= levelOf[e.To] {
			t.Errorf("edge %s→%s within or across levels the wrong way: %v", e.From, e.To, levelOf)
		}
	}
}

func TestLevelsEmptySubset(t *testing.T) {
	d, err := Build(nodes("a"), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := d.Levels(nil); got != nil {
		t.Fatalf("Levels(nil) = %v, want nil", got)
	}
}
