package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dejo1307/cxxmodel/internal/condstate"
	"github.com/dejo1307/cxxmodel/internal/grammar"
	"github.com/dejo1307/cxxmodel/internal/model"
	"github.com/dejo1307/cxxmodel/internal/preproc"
	"github.com/dejo1307/cxxmodel/internal/project"
	"github.com/dejo1307/cxxmodel/internal/render"
	"github.com/dejo1307/cxxmodel/internal/scheduler"
)

// work drains the scheduler until it shuts down or ctx ends.
func (e *Engine) work(ctx context.Context, id int) error {
	for {
		t, err := e.sched.Poll(ctx)
		if err != nil {
			if errors.Is(err, scheduler.ErrShutdown) {
				logger.Debugf("worker %d stopping", id)
			}
			return err
		}
		e.process(ctx, t)
	}
}

// process parses and renders one task. It always reports the file finished.
func (e *Engine) process(ctx context.Context, t *scheduler.Task) {
	defer e.sched.OnFinished(t.File)

	f := t.File
	if f.Project.IsDisposing() {
		return
	}

	src, err := os.ReadFile(f.Abs())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.forget(f)
			return
		}
		e.failed.Add(1)
		logger.Errorf("reading %s: %v", f, err)
		return
	}

	contexts := e.contextsFor(t)
	hash := xxhash.Sum64(src)
	if e.unchanged(f, hash, src, contexts) {
		e.skipped.Add(1)
		logger.Debugf("%s unchanged, skipped", f)
		return
	}

	res, err := e.parser.Parse(ctx, f.Path, src, contexts)
	if err != nil {
		e.failed.Add(1)
		logger.Errorf("parsing %s: %v", f, err)
		return
	}
	defer res.Close()

	e.store.RetractFile(f.Project.Name, f.Path)
	out := e.renderer.Render(render.Input{
		Project:  f.Project.Name,
		File:     f.Path,
		Source:   src,
		Root:     res.Root(),
		State:    res.State,
		Includes: res.Representative().Includes,
		Lines:    e.lines.Get(f.Abs(), src),
	})
	e.store.SetIncludes(f.Project.Name, f.Path, e.resolveIncludes(f, out.Includes))

	for _, pr := range res.Contexts {
		for _, d := range pr.Diagnostics {
			logger.Debugf("%s [%s]: %s", f, pr.Context.Name(), d)
		}
	}

	e.mu.Lock()
	e.files[f] = &fileRecord{
		hash:        hash,
		state:       res.State,
		contexts:    contexts,
		dead:        res.State.CreateRanges(f.Path),
		diagnostics: out.Diagnostics,
		parsedAt:    time.Now(),
	}
	e.mu.Unlock()
	e.parsed.Add(1)
	logger.Debugf("%s: %d declarations, %d inactive, state %s", f, out.Declarations, out.Inactive, res.State)
}

// contextsFor maps the states of t to preprocessor contexts. NextState
// stands for every context of the project; PartialReparseState for the
// contexts of the previous parse.
func (e *Engine) contextsFor(t *scheduler.Task) []*preproc.Context {
	p := t.File.Project
	var out []*preproc.Context
	seen := make(map[string]bool)
	add := func(cs ...*preproc.Context) {
		for _, c := range cs {
			if !seen[c.Key()] {
				seen[c.Key()] = true
				out = append(out, c)
			}
		}
	}
	for _, s := range t.States {
		switch {
		case !s.IsPlaceholder():
			add(s.Context)
		case s == scheduler.PartialReparseState:
			e.mu.Lock()
			rec, ok := e.files[t.File]
			e.mu.Unlock()
			if ok {
				add(rec.contexts...)
			} else {
				add(p.Contexts...)
			}
		default:
			add(p.Contexts...)
		}
	}
	if len(out) == 0 {
		out = p.Contexts
	}
	return out
}

// unchanged reports whether f has the same content and the same
// representative conditional state as its last successful parse. The state
// check only evaluates the preprocessor, not the grammar.
func (e *Engine) unchanged(f project.File, hash uint64, src []byte, contexts []*preproc.Context) bool {
	e.mu.Lock()
	rec, ok := e.files[f]
	var prior model.FileHash
	if !ok {
		prior, ok = e.prior[priorKey(f.Project.Name, f.Path)]
	}
	e.mu.Unlock()
	if !ok {
		return false
	}

	want := ""
	if rec != nil {
		if rec.hash != hash {
			return false
		}
		want = rec.state.String()
	} else {
		if prior.Hash != hashString(hash) {
			return false
		}
		want = prior.State
	}

	states := make([]*condstate.State, 0, len(contexts))
	for _, c := range contexts {
		states = append(states, preproc.Evaluate(src, c).State(f.Path))
	}
	state := states[grammar.SelectRepresentative(states)]
	if state.String() != want {
		return false
	}

	if rec == nil {
		// Adopt the restored parse so later checks take the fast path.
		e.mu.Lock()
		delete(e.prior, priorKey(f.Project.Name, f.Path))
		e.files[f] = &fileRecord{
			hash:     hash,
			state:    state,
			contexts: contexts,
			dead:     state.CreateRanges(f.Path),
			parsedAt: time.Now(),
		}
		e.mu.Unlock()
	}
	return true
}

// resolveIncludes fills Resolved for includes that name a file of the
// project: quoted includes are looked up next to the including file first,
// then, like system includes, in the project's include directories.
func (e *Engine) resolveIncludes(f project.File, incs []model.Include) []model.Include {
	p := f.Project
	for i := range incs {
		inc := &incs[i]
		var candidates []string
		if !inc.System {
			candidates = append(candidates, path.Join(path.Dir(f.Path), inc.Path))
		}
		for _, dir := range p.IncludeDirs {
			candidates = append(candidates, path.Join(filepath.ToSlash(dir), inc.Path))
		}
		for _, c := range candidates {
			if c == ".." || strings.HasPrefix(c, "../") {
				continue
			}
			if st, err := os.Stat(filepath.Join(p.Root, filepath.FromSlash(c))); err == nil && !st.IsDir() {
				inc.Resolved = c
				break
			}
		}
	}
	return incs
}
