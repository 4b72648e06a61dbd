package render

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// shape is the closed set of declaration layouts the renderer knows. Every
// shape dispatches to its own visitor method, so a new shape does not
// compile until the visitor handles it.
type shape interface {
	node() *sitter.Node
	accept(v visitor, sc *scope) error
}

type visitor interface {
	visitNamespace(s *namespaceShape, sc *scope) error
	visitNamespaceAlias(s *namespaceAliasShape, sc *scope) error
	visitUsing(s *usingShape, sc *scope) error
	visitAlias(s *aliasShape, sc *scope) error
	visitTypedef(s *typedefShape, sc *scope) error
	visitClass(s *classShape, sc *scope) error
	visitEnum(s *enumShape, sc *scope) error
	visitFunctionDef(s *functionDefShape, sc *scope) error
	visitDeclaration(s *declarationShape, sc *scope) error
	visitField(s *fieldShape, sc *scope) error
	visitTemplate(s *templateShape, sc *scope) error
	visitInstantiation(s *instantiationShape, sc *scope) error
	visitLinkage(s *linkageShape, sc *scope) error
	visitConditional(s *conditionalShape, sc *scope) error
	visitAccess(s *accessShape, sc *scope) error
}

type (
	// namespace a { ... }, namespace a::b { ... }, namespace { ... }
	namespaceShape struct{ n *sitter.Node }
	// namespace fs = std::filesystem;
	namespaceAliasShape struct{ n *sitter.Node }
	// using namespace std; / using std::vector;
	usingShape struct {
		n         *sitter.Node
		directive bool
	}
	// using T = int;
	aliasShape struct{ n *sitter.Node }
	// typedef int T;
	typedefShape struct{ n *sitter.Node }
	// class/struct/union specifier standing alone: a definition or a
	// forward declaration.
	classShape struct{ n, spec *sitter.Node }
	// enum specifier standing alone.
	enumShape struct{ n, spec *sitter.Node }
	functionDefShape struct{ n *sitter.Node }
	// simple declaration: variables, function declarations, static member
	// definitions, and specifiers followed by declarators.
	declarationShape struct{ n *sitter.Node }
	// member declaration inside a class body.
	fieldShape   struct{ n *sitter.Node }
	templateShape struct {
		n, params, inner *sitter.Node
	}
	// template class X<int>; / template void f<int>(int);
	instantiationShape struct{ n *sitter.Node }
	// extern "C" { ... }
	linkageShape struct{ n *sitter.Node }
	// #if/#ifdef/#else/#elif bodies.
	conditionalShape struct{ n *sitter.Node }
	// public:, private:, protected:
	accessShape struct{ n *sitter.Node }
)

func (s *namespaceShape) node() *sitter.Node { return s.n }
func (s *namespaceAliasShape) node() *sitter.Node { return s.n }
func (s *usingShape) node() *sitter.Node { return s.n }
func (s *aliasShape) node() *sitter.Node { return s.n }
func (s *typedefShape) node() *sitter.Node { return s.n }
func (s *classShape) node() *sitter.Node { return s.n }
func (s *enumShape) node() *sitter.Node { return s.n }
func (s *functionDefShape) node() *sitter.Node { return s.n }
func (s *declarationShape) node() *sitter.Node { return s.n }
func (s *fieldShape) node() *sitter.Node { return s.n }
func (s *templateShape) node() *sitter.Node { return s.n }
func (s *instantiationShape) node() *sitter.Node { return s.n }
func (s *linkageShape) node() *sitter.Node { return s.n }
func (s *conditionalShape) node() *sitter.Node { return s.n }
func (s *accessShape) node() *sitter.Node { return s.n }

func (s *namespaceShape) accept(v visitor, sc *scope) error { return v.visitNamespace(s, sc) }
func (s *namespaceAliasShape) accept(v visitor, sc *scope) error {
	return v.visitNamespaceAlias(s, sc)
}
func (s *usingShape) accept(v visitor, sc *scope) error { return v.visitUsing(s, sc) }
func (s *aliasShape) accept(v visitor, sc *scope) error { return v.visitAlias(s, sc) }
func (s *typedefShape) accept(v visitor, sc *scope) error { return v.visitTypedef(s, sc) }
func (s *classShape) accept(v visitor, sc *scope) error { return v.visitClass(s, sc) }
func (s *enumShape) accept(v visitor, sc *scope) error { return v.visitEnum(s, sc) }
func (s *functionDefShape) accept(v visitor, sc *scope) error { return v.visitFunctionDef(s, sc) }
func (s *declarationShape) accept(v visitor, sc *scope) error { return v.visitDeclaration(s, sc) }
func (s *fieldShape) accept(v visitor, sc *scope) error { return v.visitField(s, sc) }
func (s *templateShape) accept(v visitor, sc *scope) error { return v.visitTemplate(s, sc) }
func (s *instantiationShape) accept(v visitor, sc *scope) error {
	return v.visitInstantiation(s, sc)
}
func (s *linkageShape) accept(v visitor, sc *scope) error { return v.visitLinkage(s, sc) }
func (s *conditionalShape) accept(v visitor, sc *scope) error { return v.visitConditional(s, sc) }
func (s *accessShape) accept(v visitor, sc *scope) error { return v.visitAccess(s, sc) }

func isClassSpecifier(kind string) bool {
	switch kind {
	case "class_specifier", "struct_specifier", "union_specifier":
		return true
	}
	return false
}

// classify maps a child of a declaration-bearing scope to its shape. It
// returns a nil shape for nodes that declare nothing (comments, macros,
// statements, stray punctuation) and a ShapeError for syntax errors.
func classify(n *sitter.Node) (shape, error) {
	switch kind := n.Kind(); kind {
	case "namespace_definition":
		return &namespaceShape{n}, nil
	case "namespace_alias_definition":
		return &namespaceAliasShape{n}, nil
	case "using_declaration":
		return &usingShape{n: n, directive: findChildByKind(n, "namespace") != nil}, nil
	case "alias_declaration":
		return &aliasShape{n}, nil
	case "type_definition":
		return &typedefShape{n}, nil
	case "class_specifier", "struct_specifier", "union_specifier":
		return &classShape{n: n, spec: n}, nil
	case "enum_specifier":
		return &enumShape{n: n, spec: n}, nil
	case "function_definition":
		return &functionDefShape{n}, nil
	case "declaration":
		return &declarationShape{n}, nil
	case "field_declaration":
		return &fieldShape{n}, nil
	case "template_declaration":
		params := n.ChildByFieldName("parameters")
		var inner *sitter.Node
		for _, c := range namedChildren(n) {
			if params != nil && c.StartByte() == params.StartByte() {
				continue
			}
			inner = c
		}
		if inner == nil {
			return nil, shapeErr("template", n, "template without a declaration")
		}
		return &templateShape{n: n, params: params, inner: inner}, nil
	case "template_instantiation":
		return &instantiationShape{n}, nil
	case "linkage_specification":
		return &linkageShape{n}, nil
	case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef":
		return &conditionalShape{n}, nil
	case "access_specifier":
		return &accessShape{n}, nil
	case "ERROR":
		return nil, shapeErr("syntax", n, "unparsable declaration")
	}
	return nil, nil
}
