// Package grammar is the parsing collaborator of the engine: it turns source
// text into a tree-sitter C++ syntax tree and evaluates the preprocessor
// conditionals of the file under every requested context.
package grammar

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"

	"github.com/dejo1307/cxxmodel/internal/condstate"
	"github.com/dejo1307/cxxmodel/internal/preproc"
)

// DefaultExtensions are the file extensions parsed when the configuration
// names none.
var DefaultExtensions = []string{".c", ".cc", ".cpp", ".cxx", ".c++", ".h", ".hh", ".hpp", ".hxx", ".inl", ".ipp"}

// IsSource reports whether path has one of exts (case-insensitive).
func IsSource(path string, exts []string) bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// Result is one parse of one file.
type Result struct {
	File   string
	Source []byte
	Tree   *sitter.Tree

	// Contexts holds one preprocessor evaluation per requested context, in
	// request order.
	Contexts []*preproc.Result
	// Chosen indexes the representative evaluation in Contexts.
	Chosen int
	// State is the conditional state of the representative evaluation.
	State *condstate.State
}

// Root returns the translation_unit node.
func (r *Result) Root() *sitter.Node {
	return r.Tree.RootNode()
}

// Representative returns the chosen preprocessor evaluation.
func (r *Result) Representative() *preproc.Result {
	return r.Contexts[r.Chosen]
}

// Close releases the syntax tree.
func (r *Result) Close() {
	if r.Tree != nil {
		r.Tree.Close()
		r.Tree = nil
	}
}

// Parser parses C and C++ sources. It is safe for concurrent use; every call
// gets its own tree-sitter parser.
type Parser struct {
	lang *sitter.Language
}

// New creates a parser for the tree-sitter C++ grammar, which also covers C.
func New() *Parser {
	return &Parser{lang: sitter.NewLanguage(tree_sitter_cpp.Language())}
}

// Parse parses src once and evaluates its conditionals under each context.
// With no contexts a single context without predefined macros is used.
func (p *Parser) Parse(ctx context.Context, file string, src []byte, contexts []*preproc.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(contexts) == 0 {
		contexts = []*preproc.Context{preproc.NewContext("default", nil)}
	}

	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(p.lang); err != nil {
		return nil, fmt.Errorf("setting C++ grammar: %w", err)
	}
	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("parsing %s: no syntax tree", file)
	}

	res := &Result{File: file, Source: src, Tree: tree}
	states := make([]*condstate.State, 0, len(contexts))
	for _, c := range contexts {
		if err := ctx.Err(); err != nil {
			res.Close()
			return nil, err
		}
		pr := preproc.Evaluate(src, c)
		res.Contexts = append(res.Contexts, pr)
		states = append(states, pr.State(file))
	}
	res.Chosen = SelectRepresentative(states)
	res.State = states[res.Chosen]
	return res, nil
}

// SelectRepresentative returns the index of the first state that is better
// or equal to every other one, or 0 when none dominates. The relation is
// not total, so the result depends on the order of states.
func SelectRepresentative(states []*condstate.State) int {
	for i, s := range states {
		best := true
		for j, other := range states {
			if i != j && !s.IsBetterOrEqual(other) {
				best = false
				break
			}
		}
		if best {
			return i
		}
	}
	return 0
}
