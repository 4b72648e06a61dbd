// Package scheduler is the parse queue: it decides which file gets parsed
// next under which preprocessor states, never hands the same file to two
// workers at once, and tracks per-project activity so callers can wait for a
// project to go idle.
//
// One Scheduler is created per engine and passed to its workers. All state
// is guarded by a single mutex; waiters block on a channel that is replaced
// on every change, so every blocking call honours its context.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dejo1307/cxxmodel/internal/invariant"
	"github.com/dejo1307/cxxmodel/internal/project"
)

var logger = log.WithPrefix("scheduler")

// ErrShutdown is returned by Poll once Shutdown has been called.
var ErrShutdown = errors.New("scheduler shut down")

// Scheduler is a priority queue of parse tasks with project bookkeeping.
type Scheduler struct {
	mu      sync.Mutex
	changed chan struct{}

	queue    taskHeap
	tasks    map[project.File]*Task
	projects map[*project.Project]*activity
	serial   int64

	suspended int
	shutdown  bool

	onFinished []func(*project.Project)
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		changed:  make(chan struct{}),
		tasks:    make(map[project.File]*Task),
		projects: make(map[*project.Project]*activity),
	}
}

// broadcast wakes every waiter. Callers hold s.mu.
func (s *Scheduler) broadcast() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Scheduler) activityFor(p *project.Project) *activity {
	a, ok := s.projects[p]
	if !ok {
		a = newActivity()
		s.projects[p] = a
	}
	return a
}

// forget drops the bookkeeping of an idle project.
func (s *Scheduler) forget(p *project.Project) {
	if a, ok := s.projects[p]; ok && a.noActivity(project.File{}) {
		delete(s.projects, p)
	}
}

// OnProjectFinished registers fn to run whenever a project runs out of
// queued and in-flight files. Callbacks run outside the scheduler lock.
func (s *Scheduler) OnProjectFinished(fn func(*project.Project)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinished = append(s.onFinished, fn)
}

// Enqueue adds file to the queue or merges states into its queued task.
// With clearPrevious the task's states are replaced instead of merged. A
// higher-priority position moves an existing task, which then gets a fresh
// serial. It returns true only when a new task was created.
func (s *Scheduler) Enqueue(file project.File, states []State, pos Position, clearPrevious bool) bool {
	if len(states) == 0 {
		if file.Project == nil || !file.Project.IsDisposing() {
			logger.Errorf("enqueue of %s with no preprocessor states rejected", file)
		}
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return false
	}

	if t, ok := s.tasks[file]; ok {
		if clearPrevious {
			t.States = mergeStates(nil, states)
		} else {
			t.States = mergeStates(t.States, states)
		}
		if pos < t.Position {
			s.queue.remove(t)
			s.serial++
			t.Position = pos
			t.Serial = s.serial
			heap.Push(&s.queue, t)
			s.broadcast()
		}
		return false
	}

	s.serial++
	t := &Task{
		File:     file,
		States:   mergeStates(nil, states),
		Position: pos,
		Serial:   s.serial,
	}
	heap.Push(&s.queue, t)
	s.tasks[file] = t

	a := s.activityFor(file.Project)
	if _, parsing := a.parsing[file]; !parsing {
		a.queued[file] = struct{}{}
	}
	s.broadcast()
	return true
}

// Poll removes and returns the highest-priority task whose file is not being
// parsed. It blocks while the queue is empty, every queued file is in flight,
// or the scheduler is suspended.
func (s *Scheduler) Poll(ctx context.Context) (*Task, error) {
	for {
		s.mu.Lock()
		if s.shutdown {
			s.mu.Unlock()
			return nil, ErrShutdown
		}
		if s.suspended == 0 {
			if t := s.takeLocked(); t != nil {
				s.mu.Unlock()
				return t, nil
			}
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

// takeLocked pops tasks in priority order until one is eligible and pushes
// the skipped ones back.
func (s *Scheduler) takeLocked() *Task {
	var skipped []*Task
	defer func() {
		for _, t := range skipped {
			heap.Push(&s.queue, t)
		}
	}()

	for s.queue.Len() > 0 {
		t := heap.Pop(&s.queue).(*Task)
		a := s.activityFor(t.File.Project)
		if _, busy := a.parsing[t.File]; busy {
			skipped = append(skipped, t)
			continue
		}

		delete(s.tasks, t.File)
		_, queued := a.queued[t.File]
		invariant.Check(queued, "task for %s was not recorded as queued", t.File)
		delete(a.queued, t.File)
		a.parsing[t.File] = struct{}{}

		out := *t
		out.States = append([]State(nil), t.States...)
		return &out
	}
	return nil
}

// Remove cancels the queued task for file. A parse already in progress is
// not affected.
func (s *Scheduler) Remove(file project.File) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(file)
}

func (s *Scheduler) removeLocked(file project.File) bool {
	t, ok := s.tasks[file]
	if !ok {
		if a, ok := s.projects[file.Project]; ok {
			_, queued := a.queued[file]
			invariant.Check(!queued, "%s recorded as queued but has no task", file)
			delete(a.queued, file)
		}
		return false
	}
	s.queue.remove(t)
	delete(s.tasks, file)
	if a, ok := s.projects[file.Project]; ok {
		delete(a.queued, file)
		s.forget(file.Project)
	}
	s.broadcast()
	return true
}

// RemoveAllForProject cancels every queued task of p and returns how many
// were removed.
func (s *Scheduler) RemoveAllForProject(p *project.Project) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var files []project.File
	for f := range s.tasks {
		if f.Project == p {
			files = append(files, f)
		}
	}
	n := 0
	for _, f := range files {
		if s.removeLocked(f) {
			n++
		}
	}
	return n
}

// Suspend pauses Poll until a matching Resume. Calls nest.
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended++
}

// Resume undoes one Suspend.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !invariant.Check(s.suspended > 0, "Resume without Suspend") {
		return
	}
	s.suspended--
	if s.suspended == 0 {
		s.broadcast()
	}
}

// OnFinished is called by a worker when it is done with file. When the
// project has nothing left queued or in flight, the finished callbacks run
// with the pending counter raised so the project is not reported idle before
// they return.
func (s *Scheduler) OnFinished(file project.File) {
	s.mu.Lock()
	a, ok := s.projects[file.Project]
	if !ok {
		s.mu.Unlock()
		invariant.Check(false, "OnFinished for %s without bookkeeping", file)
		return
	}
	_, parsing := a.parsing[file]
	invariant.Check(parsing, "OnFinished for %s which is not being parsed", file)
	delete(a.parsing, file)
	if _, requeued := s.tasks[file]; requeued {
		a.queued[file] = struct{}{}
	}

	if len(a.queued) > 0 || len(a.parsing) > 0 {
		s.broadcast()
		s.mu.Unlock()
		return
	}

	a.pending++
	callbacks := slices.Clone(s.onFinished)
	s.broadcast()
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(file.Project)
	}

	s.mu.Lock()
	a.pending--
	s.forget(file.Project)
	s.broadcast()
	s.mu.Unlock()
}

// AwaitProjectIdle blocks until p has no queued, in-flight or pending work.
// The excluding file, when set, is ignored; a worker uses it to wait for the
// rest of its project while it still holds that file.
func (s *Scheduler) AwaitProjectIdle(ctx context.Context, p *project.Project, excluding project.File) error {
	for {
		s.mu.Lock()
		a, ok := s.projects[p]
		if !ok || a.noActivity(excluding) {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Shutdown wakes every Poll with ErrShutdown and rejects further tasks.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shutdown {
		s.shutdown = true
		s.broadcast()
	}
}

// IsQueued reports whether file has a task waiting.
func (s *Scheduler) IsQueued(file project.File) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[file]
	return ok
}

// IsParsing reports whether a worker holds file.
func (s *Scheduler) IsParsing(file project.File) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.projects[file.Project]; ok {
		_, busy := a.parsing[file]
		return busy
	}
	return false
}

// HasActivity reports whether p has queued, in-flight or pending work.
func (s *Scheduler) HasActivity(p *project.Project) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.projects[p]
	return ok && !a.noActivity(project.File{})
}

// ProjectStats counts the activity of one project.
type ProjectStats struct {
	Queued  int `json:"queued"`
	Parsing int `json:"parsing"`
	Pending int `json:"pending"`
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Queued    int                     `json:"queued"`
	InFlight  int                     `json:"in_flight"`
	Suspended int                     `json:"suspended"`
	Shutdown  bool                    `json:"shutdown"`
	Projects  map[string]ProjectStats `json:"projects"`
}

// Stats returns current counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Queued:    s.queue.Len(),
		Suspended: s.suspended,
		Shutdown:  s.shutdown,
		Projects:  make(map[string]ProjectStats, len(s.projects)),
	}
	for p, a := range s.projects {
		st.InFlight += len(a.parsing)
		name := ""
		if p != nil {
			name = p.Name
		}
		ps := st.Projects[name]
		ps.Queued += len(a.queued)
		ps.Parsing += len(a.parsing)
		ps.Pending += a.pending
		st.Projects[name] = ps
	}
	return st
}
