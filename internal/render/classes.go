package render

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dejo1307/cxxmodel/internal/model"
)

var classKinds = map[string]model.Kind{
	"class_specifier":  model.KindClass,
	"struct_specifier": model.KindStruct,
	"union_specifier":  model.KindUnion,
}

func (w *walker) visitClass(s *classShape, sc *scope) error {
	_, err := w.classDecl(s.spec, s.n, sc, "")
	return err
}

func (w *walker) visitEnum(s *enumShape, sc *scope) error {
	_, err := w.enumDecl(s.spec, s.n, sc, "")
	return err
}

// classDecl renders a class, struct or union specifier. Without a body it is
// a forward declaration; a name with template arguments makes it a
// specialization. outer is the node whose range the entity covers.
func (w *walker) classDecl(spec, outer *sitter.Node, sc *scope, fallback string) (model.Declaration, error) {
	kind, ok := classKinds[spec.Kind()]
	if !ok {
		return model.Declaration{}, shapeErr("class", spec, "not a class specifier")
	}
	body := spec.ChildByFieldName("body")
	nameNode := spec.ChildByFieldName("name")

	d := model.Declaration{Kind: kind, Flavor: model.FlavorDefinition}
	if body == nil {
		if nameNode == nil {
			return d, shapeErr("class", spec, "anonymous class without a body")
		}
		d.Flavor = model.FlavorForward
	}

	var qual, name, args string
	switch {
	case nameNode != nil:
		qual, name = splitScope(compact(nodeText(nameNode, w.src)))
		if i := strings.IndexByte(name, '<'); i > 0 {
			name, args = name[:i], name[i:]
		}
	case fallback != "":
		name = fallback
	default:
		name = "(anonymous)"
		setProp(&d, "anonymous", true)
	}
	d.Name = name

	switch {
	case qual != "":
		d.Scope = w.qualifyIn(sc, qual)
		d.ScopeKind = w.scopeKindOf(d.Scope)
	default:
		d.Scope, d.ScopeKind = sc.qname, sc.kind
	}
	d.QualifiedName = model.Qualify(d.Scope, name+args)

	if args != "" {
		setProp(&d, "args", args)
		if w.tmpl == nil || !w.tmpl.instantiation {
			d.Flavor = model.FlavorSpecialization
		}
		if w.tmpl != nil && !w.tmpl.specialization && !w.tmpl.instantiation {
			setProp(&d, "partial", true)
		}
	}
	if bases := findChildByKind(spec, "base_class_clause"); bases != nil {
		var list []string
		for _, b := range namedChildren(bases) {
			switch b.Kind() {
			case "access_specifier", "virtual", "comment":
				continue
			}
			list = append(list, compact(nodeText(b, w.src)))
		}
		if len(list) > 0 {
			setProp(&d, "bases", list)
		}
	}
	if vs := findChildByKind(spec, "virtual_specifier"); vs != nil {
		setProp(&d, nodeText(vs, w.src), true)
	}

	d = w.emit(d, outer, sc)
	if body == nil {
		return d, nil
	}
	w.bodies = append(w.bodies, bodyRange{start: int(outer.StartByte()), end: int(outer.EndByte()), owner: d.QualifiedName})
	w.items(body, sc.class(d.QualifiedName, kind))
	return d, nil
}

// enumDecl renders an enum specifier and its enumerators. Enumerators of a
// scoped enum belong to the enum; the others to the enclosing scope.
func (w *walker) enumDecl(spec, outer *sitter.Node, sc *scope, fallback string) (model.Declaration, error) {
	body := spec.ChildByFieldName("body")
	nameNode := spec.ChildByFieldName("name")
	scoped := hasChildKind(spec, "class", "struct")

	d := model.Declaration{Kind: model.KindEnum, Flavor: model.FlavorDefinition}
	switch {
	case nameNode != nil:
		var qual string
		qual, d.Name = splitScope(compact(nodeText(nameNode, w.src)))
		if qual != "" {
			d.Scope = w.qualifyIn(sc, qual)
			d.ScopeKind = w.scopeKindOf(d.Scope)
			d.QualifiedName = model.Qualify(d.Scope, d.Name)
		}
	case fallback != "":
		d.Name = fallback
	case body == nil:
		return d, shapeErr("enum", spec, "anonymous enum without a body")
	default:
		d.Name = "(anonymous)"
		setProp(&d, "anonymous", true)
	}
	if body == nil {
		d.Flavor = model.FlavorForward
	}
	if scoped {
		setProp(&d, "scoped", true)
	}
	if base := spec.ChildByFieldName("base"); base != nil {
		setProp(&d, "underlying", compact(nodeText(base, w.src)))
	}

	d = w.emit(d, outer, sc)
	if body == nil {
		return d, nil
	}
	w.bodies = append(w.bodies, bodyRange{start: int(outer.StartByte()), end: int(outer.EndByte()), owner: d.QualifiedName})

	for _, e := range namedChildren(body) {
		if e.Kind() != "enumerator" {
			continue
		}
		if !w.active(e) {
			w.out.Inactive++
			continue
		}
		name := e.ChildByFieldName("name")
		if name == nil {
			return d, shapeErr("enum", e, "enumerator without a name")
		}
		ed := model.Declaration{
			Kind:   model.KindEnumerator,
			Flavor: model.FlavorDefinition,
			Name:   nodeText(name, w.src),
			Type:   d.QualifiedName,
		}
		if scoped {
			ed.Scope, ed.ScopeKind = d.QualifiedName, model.ScopeClass
		}
		if v := e.ChildByFieldName("value"); v != nil {
			setProp(&ed, "value", compact(nodeText(v, w.src)))
		}
		w.emit(ed, e, sc)
	}
	return d, nil
}

// visitField renders a member declaration: data members, bit-fields,
// method declarations, nested types and anonymous struct/union members.
func (w *walker) visitField(s *fieldShape, sc *scope) error {
	n := s.n
	typeNode := n.ChildByFieldName("type")
	decls := declarators(n)

	if typeNode != nil {
		k := typeNode.Kind()
		isClass := isClassSpecifier(k)
		body := typeNode.ChildByFieldName("body")
		switch {
		case isClass && len(decls) == 0 && body != nil && typeNode.ChildByFieldName("name") == nil:
			// union { int a; float b; }; members belong to the enclosing class
			w.promoted++
			defer func() { w.promoted-- }()
			w.items(body, sc)
			return nil
		case (isClass || k == "enum_specifier") && (body != nil || len(decls) == 0):
			outer := typeNode
			if len(decls) == 0 {
				outer = n
			}
			var err error
			if k == "enum_specifier" {
				_, err = w.enumDecl(typeNode, outer, sc, "")
			} else {
				_, err = w.classDecl(typeNode, outer, sc, "")
			}
			if err != nil {
				return err
			}
		}
	}
	if len(decls) == 0 {
		if typeNode == nil {
			return shapeErr("field", n, "member without type or declarator")
		}
		return nil
	}

	for _, dn := range decls {
		info := unwrapDeclarator(dn, w.src)
		if info.name == nil {
			return shapeErr("field", dn, "declarator without a name")
		}
		if info.function != nil && !info.funcPtr {
			d := w.function(n, info, typeNode, sc)
			if w.pure(n) {
				setProp(&d, "pure", true)
			}
			switch {
			case hasChildKind(n, "default_method_clause"):
				setProp(&d, "defaulted", true)
			case hasChildKind(n, "delete_method_clause"):
				setProp(&d, "deleted", true)
			}
			w.emit(d, n, sc)
			continue
		}

		d := model.Declaration{
			Kind:   model.KindField,
			Flavor: model.FlavorDeclaration,
			Name:   nodeText(info.name, w.src),
			Type:   w.typeText(n, typeNode) + info.decor,
		}
		if info.funcPtr {
			if params := info.function.ChildByFieldName("parameters"); params != nil {
				d.Type = w.typeText(n, typeNode) + " (*)" + compact(nodeText(params, w.src))
			}
		}
		if bf := findChildByKind(n, "bitfield_clause"); bf != nil {
			if width := firstNamedChild(bf); width != nil {
				setProp(&d, "bit_width", compact(nodeText(width, w.src)))
			}
		}
		if dv := n.ChildByFieldName("default_value"); dv != nil {
			setProp(&d, "init", compact(nodeText(dv, w.src)))
		}
		for k := range specifierText(n, w.src) {
			switch k {
			case "static", "mutable", "constexpr", "inline", "thread_local":
				setProp(&d, k, true)
			}
		}
		w.emit(d, n, sc)
	}
	return nil
}

// pure reports a "= 0" pure specifier at the end of a member declaration.
func (w *walker) pure(n *sitter.Node) bool {
	t := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(nodeText(n, w.src)), ";"))
	if !strings.HasSuffix(t, "0") {
		return false
	}
	return strings.HasSuffix(strings.TrimSpace(strings.TrimSuffix(t, "0")), "=")
}

func (w *walker) visitAccess(s *accessShape, sc *scope) error {
	if sc.kind != model.ScopeClass {
		return shapeErr("access", s.n, "access specifier outside a class body")
	}
	sc.access = strings.TrimSpace(strings.TrimSuffix(nodeText(s.n, w.src), ":"))
	return nil
}
