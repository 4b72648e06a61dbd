package render

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

func findChildByKind(node *sitter.Node, kind string) *sitter.Node {
	for i := range node.ChildCount() {
		child := node.Child(i)
		if child.Kind() == kind {
			return child
		}
	}
	return nil
}

func hasChildKind(node *sitter.Node, kinds ...string) bool {
	for i := range node.ChildCount() {
		k := node.Child(i).Kind()
		for _, want := range kinds {
			if k == want {
				return true
			}
		}
	}
	return false
}

func nodeText(node *sitter.Node, src []byte) string {
	return string(src[node.StartByte():node.EndByte()])
}

// namedChildren returns the named children of node in order.
func namedChildren(node *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := range node.ChildCount() {
		c := node.Child(i)
		if c.IsNamed() {
			out = append(out, c)
		}
	}
	return out
}

func firstNamedChild(node *sitter.Node) *sitter.Node {
	for i := range node.ChildCount() {
		if c := node.Child(i); c.IsNamed() {
			return c
		}
	}
	return nil
}

// specifierText collects storage class and function specifiers
// (static, extern, inline, virtual, ...) of a declaration.
func specifierText(node *sitter.Node, src []byte) map[string]bool {
	out := make(map[string]bool)
	for i := range node.ChildCount() {
		c := node.Child(i)
		switch c.Kind() {
		case "storage_class_specifier", "virtual", "virtual_function_specifier", "explicit_function_specifier", "type_qualifier":
			out[strings.TrimSpace(nodeText(c, src))] = true
		}
	}
	return out
}

var declaratorKinds = map[string]bool{
	"identifier":               true,
	"field_identifier":         true,
	"type_identifier":          true,
	"qualified_identifier":     true,
	"destructor_name":          true,
	"operator_name":            true,
	"operator_cast":            true,
	"template_function":        true,
	"init_declarator":          true,
	"function_declarator":      true,
	"pointer_declarator":       true,
	"reference_declarator":     true,
	"array_declarator":         true,
	"parenthesized_declarator": true,
	"attributed_declarator":    true,
}

// declarators returns the declarators of a declaration-like node: the named
// children after its type (all of them when there is no type) up to an
// unnamed "=" token, which starts a default member initializer or a pure
// specifier. Declarators the parser inserted during error recovery are
// skipped: "template class S<int>;" carries a missing identifier.
func declarators(node *sitter.Node) []*sitter.Node {
	from := uint(0)
	if t := node.ChildByFieldName("type"); t != nil {
		from = t.EndByte()
	}
	var out []*sitter.Node
	for i := range node.ChildCount() {
		c := node.Child(i)
		if c.StartByte() < from || c.IsMissing() {
			continue
		}
		if !c.IsNamed() {
			if c.Kind() == "=" {
				break
			}
			continue
		}
		if declaratorKinds[c.Kind()] {
			out = append(out, c)
		}
	}
	return out
}

// declInfo is a declarator unwrapped down to its name.
type declInfo struct {
	name     *sitter.Node
	function *sitter.Node // outermost function_declarator naming the entity
	value    *sitter.Node // initializer of an init_declarator
	init     *sitter.Node // the init_declarator itself
	decor    string       // pointer/reference/array decoration of the type
	funcPtr  bool         // pointer to function, i.e. a variable
}

func unwrapDeclarator(node *sitter.Node, src []byte) declInfo {
	var info declInfo
	inParens := false
	for n := node; n != nil; {
		switch n.Kind() {
		case "init_declarator":
			info.init = n
			info.value = n.ChildByFieldName("value")
			n = n.ChildByFieldName("declarator")
		case "abstract_pointer_declarator":
			info.decor += "*"
			n = n.ChildByFieldName("declarator")
		case "abstract_reference_declarator":
			info.decor += "&"
			n = n.ChildByFieldName("declarator")
		case "pointer_declarator":
			if info.function != nil && inParens {
				info.funcPtr = true
			}
			info.decor += "*"
			n = n.ChildByFieldName("declarator")
		case "reference_declarator":
			if strings.Contains(nodeText(n, src), "&&") {
				info.decor += "&&"
			} else {
				info.decor += "&"
			}
			n = lastNamedChild(n)
		case "array_declarator":
			info.decor += "[]"
			n = n.ChildByFieldName("declarator")
		case "function_declarator":
			if info.function == nil {
				info.function = n
			}
			n = n.ChildByFieldName("declarator")
		case "parenthesized_declarator":
			inParens = true
			n = firstNamedChild(n)
		case "attributed_declarator":
			n = firstNamedChild(n)
		default:
			info.name = n
			return info
		}
	}
	return info
}

func lastNamedChild(node *sitter.Node) *sitter.Node {
	var last *sitter.Node
	for i := range node.ChildCount() {
		if c := node.Child(i); c.IsNamed() {
			last = c
		}
	}
	return last
}

// splitScope splits "a::B<x::y>::f" into "a::B<x::y>" and "f", ignoring
// separators inside template argument lists.
func splitScope(text string) (string, string) {
	depth := 0
	last := -1
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ':':
			if depth == 0 && i+1 < len(text) && text[i+1] == ':' {
				last = i
				i++
			}
		}
	}
	if last < 0 {
		return "", text
	}
	return text[:last], text[last+2:]
}

// compact collapses runs of whitespace to one space.
func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
