package render

import (
	"github.com/dejo1307/cxxmodel/internal/model"
	"github.com/dejo1307/cxxmodel/internal/preproc"
)

// bodyRange is the range of a declaration with a body: a class, enum or
// function definition.
type bodyRange struct {
	start, end int
	owner      string
}

// includes converts the directives of the file and flags fake ones.
func (w *walker) includes() []model.Include {
	if len(w.in.Includes) == 0 {
		return nil
	}
	out := make([]model.Include, 0, len(w.in.Includes))
	for _, inc := range w.in.Includes {
		mi := model.Include{
			Project: w.in.Project,
			File:    w.in.File,
			Path:    inc.Path,
			Line:    w.in.Lines.Position(inc.Start).Line,
			System:  inc.System,
			Active:  inc.Active,
		}
		if owner, ok := w.fakeOwner(inc); ok {
			mi.Fake = true
			mi.FakeOwner = owner
		}
		out = append(out, mi)
	}
	return out
}

// fakeOwner returns the innermost declaration whose range strictly contains
// inc. An include inside a nested member belongs to that member, not to the
// outer class. Namespaces and linkage blocks never own includes.
func (w *walker) fakeOwner(inc preproc.Include) (string, bool) {
	best := -1
	for i, b := range w.bodies {
		if b.start >= inc.Start || inc.End >= b.end {
			continue
		}
		if best < 0 || b.end-b.start < w.bodies[best].end-w.bodies[best].start {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return w.bodies[best].owner, true
}
