package model

import (
	"sort"
)

// IncludeCycle is one strongly connected component of the include graph
// with more than one file, or a file that includes itself.
type IncludeCycle struct {
	Project string   `json:"project"`
	Files   []string `json:"files"`
}

// IncludeCycles finds include cycles among the resolved, active includes of
// every project using Tarjan's SCC algorithm. Files within a cycle are
// sorted, and cycles are ordered by project then first file.
func (s *Store) IncludeCycles() []IncludeCycle {
	graphs := make(map[string]map[string][]string)
	selfLoops := make(map[string]map[string]bool)
	for _, inc := range s.Includes() {
		if !inc.Active || inc.Resolved == "" {
			continue
		}
		g, ok := graphs[inc.Project]
		if !ok {
			g = make(map[string][]string)
			graphs[inc.Project] = g
			selfLoops[inc.Project] = make(map[string]bool)
		}
		g[inc.File] = append(g[inc.File], inc.Resolved)
		if _, ok := g[inc.Resolved]; !ok {
			g[inc.Resolved] = nil
		}
		if inc.Resolved == inc.File {
			selfLoops[inc.Project][inc.File] = true
		}
	}

	var out []IncludeCycle
	for project, g := range graphs {
		for _, scc := range tarjanSCC(g) {
			if len(scc) == 1 && !selfLoops[project][scc[0]] {
				continue
			}
			sort.Strings(scc)
			out = append(out, IncludeCycle{Project: project, Files: scc})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Project != out[j].Project {
			return out[i].Project < out[j].Project
		}
		return out[i].Files[0] < out[j].Files[0]
	})
	return out
}

// tarjanSCC implements Tarjan's strongly connected components algorithm.
// Vertices are visited in sorted order so results are deterministic.
func tarjanSCC(graph map[string][]string) [][]string {
	var (
		index    int
		stack    []string
		onStack  = make(map[string]bool)
		indices  = make(map[string]int)
		lowlinks = make(map[string]int)
		sccs     [][]string
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlinks[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlinks[v] = min(lowlinks[v], lowlinks[w])
			} else if onStack[w] {
				lowlinks[v] = min(lowlinks[v], indices[w])
			}
		}

		// Root of an SCC
		if lowlinks[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	vertices := make([]string, 0, len(graph))
	for v := range graph {
		vertices = append(vertices, v)
	}
	sort.Strings(vertices)
	for _, v := range vertices {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}

	return sccs
}
