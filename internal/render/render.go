// Package render walks a C/C++ syntax tree into declaration model entities.
//
// Each declaration-bearing scope (file, namespace, class body, local block)
// is rendered child by child: a child is classified into one of a closed set
// of declaration shapes, and the shape's visitor builds model declarations
// and hands them to the Sink. A child that cannot be rendered becomes a
// Diagnostic; its siblings are rendered anyway.
//
// The tree is context-free, so a few constructs are resolved from what the
// file declared earlier. The main one is "T a(b);", which is a variable
// initialized from b when every argument names a visible variable or
// function, and a function declaration otherwise.
package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dejo1307/cxxmodel/internal/condstate"
	"github.com/dejo1307/cxxmodel/internal/lineindex"
	"github.com/dejo1307/cxxmodel/internal/model"
	"github.com/dejo1307/cxxmodel/internal/preproc"
)

var logger = log.WithPrefix("render")

// Sink receives rendered declarations. model.Store implements it; it must be
// safe for concurrent use when several files render at once.
type Sink interface {
	AddDeclaration(d model.Declaration)
}

// Resolver answers whole-program lookups for names the file itself does not
// declare. model.Store implements it.
type Resolver interface {
	LookupVisible(project, file, name string) bool
}

// Options tune rendering.
type Options struct {
	// LocalBlocks renders declarations inside function bodies.
	LocalBlocks bool
	// GlobalResolve consults the Resolver when a function-like variable
	// argument is not declared earlier in the file.
	GlobalResolve bool
	// DumpOnError attaches the s-expression of a failing node to its
	// diagnostic.
	DumpOnError bool
}

// Input is one parsed file.
type Input struct {
	Project  string
	File     string
	Source   []byte
	Root     *sitter.Node
	State    *condstate.State // nil renders everything
	Includes []preproc.Include
	Lines    *lineindex.Index // built from Source when nil
}

// Output summarizes one Render call.
type Output struct {
	Declarations int
	Inactive     int // declarations skipped because they sit in dead blocks
	Includes     []model.Include
	Diagnostics  []Diagnostic
}

// Renderer renders files into a Sink. It holds no per-file state and may be
// shared by workers.
type Renderer struct {
	sink     Sink
	resolver Resolver
	opts     Options
}

// New creates a renderer. resolver may be nil.
func New(sink Sink, resolver Resolver, opts Options) *Renderer {
	return &Renderer{sink: sink, resolver: resolver, opts: opts}
}

// Render walks in.Root and emits its declarations.
func (r *Renderer) Render(in Input) *Output {
	if in.Lines == nil {
		in.Lines = lineindex.New(in.Source)
	}
	w := &walker{
		r:          r,
		in:         in,
		src:        in.Source,
		members:    make(map[string][]valueDecl),
		namespaces: make(map[string]bool),
		out:        &Output{},
	}
	if in.Root != nil {
		w.items(in.Root, fileScope())
	}
	w.out.Includes = w.includes()
	if n := len(w.out.Diagnostics); n > 0 {
		logger.Warnf("%s: %d declarations, %d render errors", in.File, w.out.Declarations, n)
	}
	return w.out
}

// walker holds the state of one Render call.
type walker struct {
	r   *Renderer
	in  Input
	src []byte

	// members indexes the variables and functions of every namespace and
	// class by qualified name; "" is the global namespace.
	members    map[string][]valueDecl
	namespaces map[string]bool
	bodies     []bodyRange

	tmpl     *templateInfo // template header awaiting its entity
	promoted int           // depth of anonymous struct/union members

	out *Output
}

type templateInfo struct {
	start, end     int
	params         string
	specialization bool // template<>
	instantiation  bool
}

// items renders every child of parent into sc.
func (w *walker) items(parent *sitter.Node, sc *scope) {
	for i := uint(0); i < parent.ChildCount(); i++ {
		if end, ok := w.krDefinition(parent, i, sc); ok {
			i = end
			continue
		}
		w.item(parent.Child(i), sc)
	}
}

// item renders one child. Shape errors and panics are turned into
// diagnostics.
func (w *walker) item(n *sitter.Node, sc *scope) {
	defer func() {
		if p := recover(); p != nil {
			w.fail(n, fmt.Errorf("panic rendering %s: %v", n.Kind(), p))
		}
	}()

	sh, err := classify(n)
	if sh == nil && err == nil {
		return
	}
	if _, container := sh.(*conditionalShape); !container && !w.active(n) {
		w.out.Inactive++
		return
	}
	if err == nil {
		err = sh.accept(w, sc)
	}
	if err != nil {
		w.fail(n, err)
	}
}

func (w *walker) active(n *sitter.Node) bool {
	if w.in.State == nil {
		return true
	}
	start, end := int(n.StartByte()), int(n.EndByte())
	return w.in.State.IsInActiveBlock(start, max(start, end-1))
}

func (w *walker) fail(n *sitter.Node, err error) {
	d := Diagnostic{
		Offset:  int(n.StartByte()),
		Line:    w.in.Lines.Position(int(n.StartByte())).Line,
		Message: err.Error(),
	}
	var se *ShapeError
	if errors.As(err, &se) {
		d.Offset = se.Offset
		d.Line = w.in.Lines.Position(se.Offset).Line
		if w.r.opts.DumpOnError && se.Dump == "" {
			se.Dump = n.ToSexp()
		}
		d.Dump = se.Dump
	} else if w.r.opts.DumpOnError {
		d.Dump = n.ToSexp()
	}
	w.out.Diagnostics = append(w.out.Diagnostics, d)
	logger.Debugf("%s:%d: %v", w.in.File, d.Line, err)
}

// emit fills in location and scope data, applies a pending template header
// and hands d to the sink. A range already set on d is kept.
func (w *walker) emit(d model.Declaration, n *sitter.Node, sc *scope) model.Declaration {
	d.Project, d.File = w.in.Project, w.in.File
	if d.ScopeKind == "" {
		d.Scope, d.ScopeKind = sc.qname, sc.kind
	}
	if d.QualifiedName == "" && d.Name != "" && d.Kind != model.KindUsingDirective {
		d.QualifiedName = model.Qualify(d.Scope, d.Name)
	}
	if d.End == 0 {
		d.Start, d.End = int(n.StartByte()), int(n.EndByte())
	}

	if t := w.tmpl; t != nil {
		w.tmpl = nil
		d.Start, d.End = t.start, t.end
		switch {
		case t.instantiation:
			d.Flavor = model.FlavorInstantiation
		case t.specialization:
			d.Flavor = model.FlavorSpecialization
			if d.Kind == model.KindFunction && strings.Contains(d.Scope, "<") {
				setProp(&d, "member_specialization", true)
			}
		default:
			setProp(&d, "template", true)
			setProp(&d, "template_params", t.params)
		}
	}

	pos := w.in.Lines.Position(d.Start)
	d.Line, d.Col = pos.Line, pos.Col

	if d.ScopeKind == model.ScopeClass && sc.kind == model.ScopeClass && d.Scope == sc.qname {
		setProp(&d, "access", sc.access)
		if w.promoted > 0 {
			setProp(&d, "anonymous_member", true)
		}
	}
	if d.ScopeKind != model.ScopeNamespace && sc.ns != "" {
		if _, ok := d.Props["namespace"]; !ok {
			setProp(&d, "namespace", sc.ns)
		}
	}
	if sc.linkage != "" {
		setProp(&d, "linkage", sc.linkage)
	}

	w.r.sink.AddDeclaration(d)
	w.out.Declarations++
	w.remember(d, sc)
	return d
}

func setProp(d *model.Declaration, key string, v any) {
	if d.Props == nil {
		d.Props = make(map[string]any)
	}
	d.Props[key] = v
}

// qualifyIn resolves a scope prefix written in sc ("Foo", "::ns::Foo").
func (w *walker) qualifyIn(sc *scope, qual string) string {
	if strings.HasPrefix(qual, "::") {
		return strings.TrimPrefix(qual, "::")
	}
	return model.Qualify(sc.ns, qual)
}

// scopeKindOf guesses what a qualified owner is: a namespace seen in this
// file, or else a class.
func (w *walker) scopeKindOf(qname string) model.ScopeKind {
	if w.namespaces[qname] {
		return model.ScopeNamespace
	}
	return model.ScopeClass
}

// typeText renders the type of a declaration: its cv-qualifiers and type
// specifier. Class and enum specifiers render as their name.
func (w *walker) typeText(n, typeNode *sitter.Node) string {
	if typeNode == nil {
		return ""
	}
	var parts []string
	for i := range n.ChildCount() {
		c := n.Child(i)
		if c.Kind() == "type_qualifier" && c.StartByte() < typeNode.StartByte() {
			parts = append(parts, nodeText(c, w.src))
		}
	}
	switch k := typeNode.Kind(); {
	case isClassSpecifier(k) || k == "enum_specifier":
		if name := typeNode.ChildByFieldName("name"); name != nil {
			parts = append(parts, compact(nodeText(name, w.src)))
		} else {
			parts = append(parts, "(anonymous)")
		}
	default:
		parts = append(parts, compact(nodeText(typeNode, w.src)))
	}
	return strings.Join(parts, " ")
}
