package model

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
)

// minSuggestScore is the Jaro-Winkler similarity below which a name is not
// offered as a suggestion.
const minSuggestScore = 0.75

// Suggest returns up to n declared names most similar to name, for
// "did you mean" replies when a lookup finds nothing. Qualified names are
// compared when name contains "::", short names otherwise.
func (s *Store) Suggest(name string, n int) []string {
	if name == "" || n <= 0 {
		return nil
	}
	s.mu.RLock()
	index := s.byShortName
	if strings.Contains(name, "::") {
		index = s.byName
	}
	names := make([]string, 0, len(index))
	for k := range index {
		names = append(names, k)
	}
	s.mu.RUnlock()

	type scored struct {
		name  string
		score float32
	}
	var hits []scored
	lower := strings.ToLower(name)
	for _, cand := range names {
		if cand == name {
			continue
		}
		score, err := edlib.StringsSimilarity(lower, strings.ToLower(cand), edlib.JaroWinkler)
		if err != nil || score < minSuggestScore {
			continue
		}
		hits = append(hits, scored{cand, score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].name < hits[j].name
	})

	out := make([]string, 0, min(n, len(hits)))
	for _, h := range hits[:min(n, len(hits))] {
		out = append(out, h.name)
	}
	return out
}
