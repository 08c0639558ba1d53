package entity

import (
	"errors"
	"slices"
	"testing"
)

func TestGraph_AddEdge(t *testing.T) {
	g := NewGraph()

	if err := g.AddEdge("a", "a"); !errors.Is(err, ErrSelfDependency) {
		t.Errorf("self edge error = %v", err)
	}
	if err := g.AddEdge("a", "b"); err != nil {
		t.Fatalf("AddEdge(a,b) error = %v", err)
	}
	if err := g.AddEdge("a", "b"); err != nil {
		t.Errorf("repeated AddEdge error = %v", err)
	}
	if got := g.Downstream("a"); !slices.Equal(got, []string{"b"}) {
		t.Errorf("Downstream(a) = %v, want [b]", got)
	}

	if err := g.AddEdge("b", "c"); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("c", "a"); !errors.Is(err, ErrCycle) {
		t.Errorf("cycle error = %v", err)
	}
}

func TestGraph_Downstream(t *testing.T) {
	g := NewGraph()
	edges := [][2]string{
		{"rain", "last_rain"},
		{"rain", "last_hour_rain"},
		{"rain", "last_day_rain"},
		{"last_hour_rain", "hour_summary"},
		{"last_day_rain", "hour_summary"},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("AddEdge(%s,%s) error = %v", e[0], e[1], err)
		}
	}

	got := g.Downstream("rain")
	want := []string{"last_rain", "last_hour_rain", "last_day_rain", "hour_summary"}
	if !slices.Equal(got, want) {
		t.Errorf("Downstream(rain) = %v, want %v", got, want)
	}

	if got := g.Downstream("last_rain"); len(got) != 0 {
		t.Errorf("Downstream(leaf) = %v", got)
	}
	if got := g.Downstream("unknown"); len(got) != 0 {
		t.Errorf("Downstream(unknown) = %v", got)
	}
}

func TestGraph_Remove(t *testing.T) {
	g := NewGraph()
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("a", "c")
	_ = g.AddEdge("b", "d")

	g.Remove("b")

	if got := g.Downstream("a"); !slices.Equal(got, []string{"c"}) {
		t.Errorf("Downstream(a) = %v", got)
	}
}
