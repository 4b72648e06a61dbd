// Package engine wires the parse pipeline together: it discovers the files
// of each configured project, feeds them to the scheduler, drains the
// scheduler with a pool of workers that parse and render, and keeps the
// declaration store current as files change.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dejo1307/cxxmodel/internal/condstate"
	"github.com/dejo1307/cxxmodel/internal/config"
	"github.com/dejo1307/cxxmodel/internal/grammar"
	"github.com/dejo1307/cxxmodel/internal/lineindex"
	"github.com/dejo1307/cxxmodel/internal/model"
	"github.com/dejo1307/cxxmodel/internal/preproc"
	"github.com/dejo1307/cxxmodel/internal/project"
	"github.com/dejo1307/cxxmodel/internal/render"
	"github.com/dejo1307/cxxmodel/internal/scheduler"
)

var logger = log.WithPrefix("engine")

// ErrUnknownProject is returned for a project name that was never loaded.
var ErrUnknownProject = errors.New("unknown project")

// Engine orchestrates parsing: walk -> enqueue -> parse -> render -> store.
type Engine struct {
	cfg       *config.Config
	repo      string
	sessionID string

	store    *model.Store
	sched    *scheduler.Scheduler
	parser   *grammar.Parser
	renderer *render.Renderer
	lines    *lineindex.Cache

	mu       sync.Mutex
	projects map[string]*project.Project
	files    map[project.File]*fileRecord
	prior    map[string]model.FileHash // hashes restored from a saved model

	group  *errgroup.Group
	cancel context.CancelFunc

	parsed  atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// fileRecord is what the engine remembers about the last parse of a file.
type fileRecord struct {
	hash        uint64
	state       *condstate.State
	contexts    []*preproc.Context
	dead        []condstate.Range
	diagnostics []render.Diagnostic
	parsedAt    time.Time
}

// New creates an Engine for cfg. Workers are started by Start.
func New(cfg *config.Config) (*Engine, error) {
	repo, err := filepath.Abs(cfg.Repo)
	if err != nil {
		return nil, fmt.Errorf("resolving repo path: %w", err)
	}
	store := model.NewStore()
	e := &Engine{
		cfg:       cfg,
		repo:      repo,
		sessionID: uuid.NewString(),
		store:     store,
		sched:     scheduler.New(),
		parser:    grammar.New(),
		lines:     lineindex.NewCache(cfg.LineCacheSize),
		projects:  make(map[string]*project.Project),
		files:     make(map[project.File]*fileRecord),
	}
	e.renderer = render.New(store, store, render.Options{
		LocalBlocks:   cfg.Render.LocalBlocks,
		GlobalResolve: cfg.Render.GlobalResolve,
		DumpOnError:   cfg.Render.DumpOnError,
	})
	e.sched.OnProjectFinished(func(p *project.Project) {
		logger.Debugf("project %s idle: %d declarations", p.Name, e.store.Count())
	})
	return e, nil
}

// Store returns the declaration store.
func (e *Engine) Store() *model.Store {
	return e.store
}

// Scheduler returns the parse scheduler.
func (e *Engine) Scheduler() *scheduler.Scheduler {
	return e.sched
}

// Config returns the engine config.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// RepoPath returns the absolute repository root.
func (e *Engine) RepoPath() string {
	return e.repo
}

// SessionID identifies this engine instance in status replies and saved
// models.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Start launches the worker pool. Workers run until ctx is cancelled or
// Close is called.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	workers := max(1, e.cfg.Workers)
	for i := range workers {
		g.Go(func() error {
			return e.work(gctx, i)
		})
	}
	e.group = g
	e.cancel = cancel
	logger.Infof("started %d workers (session %s)", workers, e.sessionID)
}

// Close stops the workers and waits for them. Parses in flight finish
// first.
func (e *Engine) Close() error {
	e.sched.Shutdown()
	if e.group == nil {
		return nil
	}
	err := e.group.Wait()
	e.cancel()
	e.group = nil
	if errors.Is(err, scheduler.ErrShutdown) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// LoadAll loads every configured project.
func (e *Engine) LoadAll(ctx context.Context) error {
	for _, pc := range e.cfg.EffectiveProjects() {
		if _, _, err := e.LoadProject(ctx, pc); err != nil {
			return err
		}
	}
	return nil
}

// LoadProject registers pc (replacing a project of the same name) and
// queues all of its source files at Tail. It returns the project and the
// number of files queued.
func (e *Engine) LoadProject(ctx context.Context, pc config.ProjectConfig) (*project.Project, int, error) {
	root := filepath.Join(e.repo, pc.Root)
	contexts := make([]*preproc.Context, 0, len(pc.Contexts))
	for _, c := range pc.Contexts {
		contexts = append(contexts, preproc.NewContext(c.Name, c.Defines))
	}
	p := project.New(pc.Name, root, contexts, pc.IncludeDirs)

	files, err := e.walkProject(ctx, p)
	if err != nil {
		return nil, 0, fmt.Errorf("walking project %s: %w", pc.Name, err)
	}

	e.mu.Lock()
	old := e.projects[pc.Name]
	e.mu.Unlock()
	if old != nil {
		if err := e.disposeProject(ctx, old); err != nil {
			return nil, 0, err
		}
	}
	e.mu.Lock()
	e.projects[pc.Name] = p
	e.mu.Unlock()
	e.retractMissing(p.Name, files)

	states := scheduler.ForContexts(p.Contexts)
	e.sched.Suspend()
	n := 0
	for _, path := range files {
		if e.sched.Enqueue(p.File(path), states, scheduler.Tail, false) {
			n++
		}
	}
	e.sched.Resume()

	logger.Infof("project %s: queued %d of %d files under %d contexts", p.Name, n, len(files), len(p.Contexts))
	return p, n, nil
}

// disposeProject cancels the queued work of p, waits for its in-flight
// parses and forgets its files. Those parses write under the same project
// name as the replacement, so they must land before it is queued. The store
// keeps declarations of files the replacement parses again.
func (e *Engine) disposeProject(ctx context.Context, p *project.Project) error {
	p.Dispose()
	removed := e.sched.RemoveAllForProject(p)
	if err := e.sched.AwaitProjectIdle(ctx, p, project.File{}); err != nil {
		return fmt.Errorf("waiting for project %s to drain: %w", p.Name, err)
	}
	e.mu.Lock()
	for f := range e.files {
		if f.Project == p {
			delete(e.files, f)
		}
	}
	e.mu.Unlock()
	logger.Debugf("disposed project %s (%d queued tasks cancelled)", p.Name, removed)
	return nil
}

// retractMissing drops what the store and the restored hashes hold for
// project name under paths that are no longer among its files.
func (e *Engine) retractMissing(name string, paths []string) {
	keep := make(map[string]bool, len(paths))
	for _, path := range paths {
		keep[path] = true
	}
	n := 0
	for _, pf := range e.store.Files() {
		if pf[0] == name && !keep[pf[1]] {
			n += e.store.RetractFile(name, pf[1])
		}
	}
	e.mu.Lock()
	for k, fh := range e.prior {
		if fh.Project == name && !keep[fh.Path] {
			delete(e.prior, k)
		}
	}
	e.mu.Unlock()
	if n > 0 {
		logger.Infof("project %s: retracted %d declarations of files that are gone", name, n)
	}
}

// Project returns the loaded project called name.
func (e *Engine) Project(name string) (*project.Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name == "" && len(e.projects) == 1 {
		for _, p := range e.projects {
			return p, nil
		}
	}
	p, ok := e.projects[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProject, name)
	}
	return p, nil
}

// Projects returns the loaded projects.
func (e *Engine) Projects() []*project.Project {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*project.Project, 0, len(e.projects))
	for _, p := range e.projects {
		out = append(out, p)
	}
	return out
}

// ReparseFile queues path of the named project at pos. With force the
// incremental check is bypassed. It reports whether a new task was created.
func (e *Engine) ReparseFile(projectName, path string, pos scheduler.Position, force bool) (bool, error) {
	p, err := e.Project(projectName)
	if err != nil {
		return false, err
	}
	f := p.File(path)
	if force {
		e.mu.Lock()
		if rec, ok := e.files[f]; ok {
			rec.hash = 0
		}
		delete(e.prior, priorKey(p.Name, f.Path))
		e.mu.Unlock()
	}
	return e.sched.Enqueue(f, []scheduler.State{scheduler.NextState}, pos, false), nil
}

// RemoveFile cancels any queued parse of path and retracts its
// declarations and includes.
func (e *Engine) RemoveFile(projectName, path string) error {
	p, err := e.Project(projectName)
	if err != nil {
		return err
	}
	f := p.File(path)
	e.sched.Remove(f)
	e.forget(f)
	return nil
}

func (e *Engine) forget(f project.File) {
	n := e.store.RetractFile(f.Project.Name, f.Path)
	e.store.SetIncludes(f.Project.Name, f.Path, nil)
	e.lines.Invalidate(f.Abs())
	e.mu.Lock()
	delete(e.files, f)
	e.mu.Unlock()
	logger.Debugf("retracted %s (%d declarations)", f, n)
}

// AwaitIdle blocks until every loaded project has no queued or in-flight
// work.
func (e *Engine) AwaitIdle(ctx context.Context) error {
	for _, p := range e.Projects() {
		if err := e.sched.AwaitProjectIdle(ctx, p, project.File{}); err != nil {
			return fmt.Errorf("waiting for project %s: %w", p.Name, err)
		}
	}
	return nil
}

// FileStatus is what the engine knows about one parsed file.
type FileStatus struct {
	Project     string              `json:"project"`
	Path        string              `json:"path"`
	State       string              `json:"state"`
	Contexts    []string            `json:"contexts"`
	DeadBlocks  []condstate.Range   `json:"dead_blocks"`
	DeadBytes   int                 `json:"dead_bytes"`
	Diagnostics []render.Diagnostic `json:"diagnostics,omitempty"`
	ParsedAt    string              `json:"parsed_at"`
	Queued      bool                `json:"queued"`
	Parsing     bool                `json:"parsing"`
}

// FileStatus returns the last parse result of path.
func (e *Engine) FileStatus(projectName, path string) (FileStatus, error) {
	p, err := e.Project(projectName)
	if err != nil {
		return FileStatus{}, err
	}
	f := p.File(path)
	e.mu.Lock()
	rec, ok := e.files[f]
	e.mu.Unlock()
	if !ok {
		return FileStatus{}, fmt.Errorf("file %s has not been parsed", f)
	}
	st := FileStatus{
		Project:     p.Name,
		Path:        f.Path,
		State:       rec.state.String(),
		DeadBlocks:  rec.dead,
		DeadBytes:   rec.state.DeadLength(),
		Diagnostics: rec.diagnostics,
		ParsedAt:    rec.parsedAt.UTC().Format(time.RFC3339),
		Queued:      e.sched.IsQueued(f),
		Parsing:     e.sched.IsParsing(f),
	}
	for _, c := range rec.contexts {
		st.Contexts = append(st.Contexts, c.Name())
	}
	return st, nil
}

// Stats summarizes the engine.
type Stats struct {
	SessionID    string          `json:"session_id"`
	Projects     int             `json:"projects"`
	Files        int             `json:"files"`
	Declarations int             `json:"declarations"`
	Parsed       int64           `json:"parsed"`
	Skipped      int64           `json:"skipped"`
	Failed       int64           `json:"failed"`
	LineCache    [2]int          `json:"line_cache_hits_misses"`
	Scheduler    scheduler.Stats `json:"scheduler"`
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	projects, files := len(e.projects), len(e.files)
	e.mu.Unlock()
	hits, misses := e.lines.Stats()
	return Stats{
		SessionID:    e.sessionID,
		Projects:     projects,
		Files:        files,
		Declarations: e.store.Count(),
		Parsed:       e.parsed.Load(),
		Skipped:      e.skipped.Load(),
		Failed:       e.failed.Load(),
		LineCache:    [2]int{hits, misses},
		Scheduler:    e.sched.Stats(),
	}
}
