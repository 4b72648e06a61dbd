package model

import (
	"reflect"
	"sort"
	"testing"
)

// --- helpers ---

func sortedSCC(scc []string) []string {
	s := make([]string, len(scc))
	copy(s, scc)
	sort.Strings(s)
	return s
}

func storeWithIncludes(edges map[string][]string) *Store {
	s := NewStore()
	for src, targets := range edges {
		var incs []Include
		for i, tgt := range targets {
			incs = append(incs, Include{Project: "core", File: src, Path: tgt, Resolved: tgt, Line: i + 1, Active: true})
		}
		s.SetIncludes("core", src, incs)
	}
	return s
}

// --- Tarjan's SCC tests ---

func TestTarjanSCC_KnownGraphs(t *testing.T) {
	tests := []struct {
		name           string
		graph          map[string][]string
		wantCycleSizes []int // sorted sizes of non-trivial SCCs
	}{
		{"empty graph", map[string][]string{}, nil},
		{"single node no edges", map[string][]string{"A": nil}, nil},
		{"simple cycle", map[string][]string{"A": {"B"}, "B": {"A"}}, []int{2}},
		{"chain", map[string][]string{"A": {"B"}, "B": {"C"}, "C": nil}, nil},
		{"triangle plus tail", map[string][]string{"A": {"B"}, "B": {"C"}, "C": {"A", "D"}, "D": nil}, []int{3}},
		{"two cycles", map[string][]string{"A": {"B"}, "B": {"A"}, "C": {"D"}, "D": {"C"}}, []int{2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sizes []int
			for _, scc := range tarjanSCC(tt.graph) {
				if len(scc) > 1 {
					sizes = append(sizes, len(scc))
				}
			}
			sort.Ints(sizes)
			if !reflect.DeepEqual(sizes, tt.wantCycleSizes) {
				t.Errorf("cycle sizes = %v, want %v", sizes, tt.wantCycleSizes)
			}
		})
	}
}

func TestTarjanSCC_CoversAllVertices(t *testing.T) {
	graph := map[string][]string{"A": {"B"}, "B": {"C"}, "C": {"A"}, "D": {"A"}}
	seen := map[string]bool{}
	for _, scc := range tarjanSCC(graph) {
		for _, v := range sortedSCC(scc) {
			if seen[v] {
				t.Errorf("vertex %s in two SCCs", v)
			}
			seen[v] = true
		}
	}
	if len(seen) != 4 {
		t.Errorf("visited %d vertices, want 4", len(seen))
	}
}

// --- include cycles ---

func TestIncludeCycles(t *testing.T) {
	s := storeWithIncludes(map[string][]string{
		"a.h": {"b.h"},
		"b.h": {"a.h", "c.h"},
		"c.h": nil,
		"d.h": {"d.h"},
	})

	got := s.IncludeCycles()
	want := []IncludeCycle{
		{Project: "core", Files: []string{"a.h", "b.h"}},
		{Project: "core", Files: []string{"d.h"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("IncludeCycles() = %v, want %v", got, want)
	}
}

func TestIncludeCycles_IgnoresInactiveAndUnresolved(t *testing.T) {
	s := NewStore()
	s.SetIncludes("core", "a.h", []Include{{Project: "core", File: "a.h", Path: "b.h", Resolved: "b.h", Active: true}})
	s.SetIncludes("core", "b.h", []Include{
		{Project: "core", File: "b.h", Path: "a.h", Resolved: "a.h", Active: false},
		{Project: "core", File: "b.h", Path: "<vector>", System: true, Active: true},
	})
	if got := s.IncludeCycles(); len(got) != 0 {
		t.Errorf("IncludeCycles() = %v, want none", got)
	}
}
