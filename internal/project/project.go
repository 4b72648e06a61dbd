// Package project holds the identity types shared by the scheduler, the
// grammar collaborator and the engine.
package project

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/dejo1307/cxxmodel/internal/preproc"
)

// Project is a set of source files parsed under a fixed list of
// preprocessor contexts.
type Project struct {
	Name        string
	Root        string
	Contexts    []*preproc.Context
	IncludeDirs []string

	disposing atomic.Bool
}

// New creates a project rooted at root. A project without contexts gets a
// single context with no predefined macros.
func New(name, root string, contexts []*preproc.Context, includeDirs []string) *Project {
	if len(contexts) == 0 {
		contexts = []*preproc.Context{preproc.NewContext("default", nil)}
	}
	return &Project{
		Name:        name,
		Root:        root,
		Contexts:    contexts,
		IncludeDirs: includeDirs,
	}
}

// Dispose marks the project as tearing down.
func (p *Project) Dispose() {
	p.disposing.Store(true)
}

// IsDisposing reports whether Dispose has been called.
func (p *Project) IsDisposing() bool {
	return p.disposing.Load()
}

// File returns the identity of path (relative to Root) in p.
func (p *Project) File(path string) File {
	return File{Project: p, Path: filepath.ToSlash(path)}
}

func (p *Project) String() string {
	return p.Name
}

// File identifies one source file of a project. It is comparable and is used
// as a map key throughout the scheduler.
type File struct {
	Project *Project
	Path    string
}

// Abs returns the absolute path of the file on disk.
func (f File) Abs() string {
	if f.Project == nil {
		return filepath.FromSlash(f.Path)
	}
	return filepath.Join(f.Project.Root, filepath.FromSlash(f.Path))
}

func (f File) String() string {
	if f.Project == nil {
		return f.Path
	}
	return fmt.Sprintf("%s:%s", f.Project.Name, f.Path)
}
