package scheduler

import "github.com/dejo1307/cxxmodel/internal/project"

// activity is the bookkeeping of one project. A file is in at most one of
// queued and parsing: a file re-enqueued while a worker holds it stays in
// parsing until OnFinished moves it back.
type activity struct {
	queued  map[project.File]struct{}
	parsing map[project.File]struct{}
	pending int
}

func newActivity() *activity {
	return &activity{
		queued:  make(map[project.File]struct{}),
		parsing: make(map[project.File]struct{}),
	}
}

// noActivity reports whether nothing is queued, parsing or pending, ignoring
// excluding when it is set.
func (a *activity) noActivity(excluding project.File) bool {
	if a.pending > 0 {
		return false
	}
	for _, set := range []map[project.File]struct{}{a.queued, a.parsing} {
		switch len(set) {
		case 0:
		case 1:
			if _, ok := set[excluding]; !ok || excluding.Project == nil {
				return false
			}
		default:
			return false
		}
	}
	return true
}
