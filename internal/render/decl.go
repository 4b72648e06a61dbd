package render

import (
	"slices"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dejo1307/cxxmodel/internal/model"
)

func (w *walker) visitNamespace(s *namespaceShape, sc *scope) error {
	body := s.n.ChildByFieldName("body")
	if body == nil {
		return shapeErr("namespace", s.n, "namespace without a body")
	}
	text := "(anonymous)"
	if name := s.n.ChildByFieldName("name"); name != nil {
		text = compact(nodeText(name, w.src))
	}
	qual, short := splitScope(text)
	owner := model.Qualify(sc.qname, qual)
	qname := model.Qualify(owner, short)
	for q := qname; q != ""; q, _ = model.SplitQualified(q) {
		w.namespaces[q] = true
	}

	d := model.Declaration{
		Kind:          model.KindNamespace,
		Flavor:        model.FlavorDefinition,
		Name:          short,
		QualifiedName: qname,
		Scope:         owner,
		ScopeKind:     model.ScopeNamespace,
	}
	if owner == "" {
		d.ScopeKind = model.ScopeFile
	}
	if findChildByKind(s.n, "inline") != nil {
		setProp(&d, "inline", true)
	}
	if text == "(anonymous)" {
		setProp(&d, "anonymous", true)
	}
	w.emit(d, s.n, sc)
	w.items(body, sc.namespace(qname))
	return nil
}

func (w *walker) visitNamespaceAlias(s *namespaceAliasShape, sc *scope) error {
	name := s.n.ChildByFieldName("name")
	if name == nil {
		name = findChildByKind(s.n, "namespace_identifier")
	}
	target := lastNamedChild(s.n)
	if name == nil || target == nil || target.StartByte() == name.StartByte() {
		return shapeErr("namespace alias", s.n, "missing alias or target")
	}
	w.emit(model.Declaration{
		Kind:   model.KindNamespaceAlias,
		Flavor: model.FlavorDefinition,
		Name:   nodeText(name, w.src),
		Type:   compact(nodeText(target, w.src)),
	}, s.n, sc)
	return nil
}

func (w *walker) visitUsing(s *usingShape, sc *scope) error {
	target := lastNamedChild(s.n)
	if target == nil {
		return shapeErr("using", s.n, "using without a name")
	}
	text := compact(nodeText(target, w.src))
	if s.directive {
		w.emit(model.Declaration{
			Kind: model.KindUsingDirective,
			Name: text,
			Type: text,
		}, s.n, sc)
		return nil
	}
	_, short := splitScope(text)
	w.emit(model.Declaration{
		Kind: model.KindUsingDecl,
		Name: short,
		Type: text,
	}, s.n, sc)
	return nil
}

// visitAlias renders "using T = type;".
func (w *walker) visitAlias(s *aliasShape, sc *scope) error {
	name := s.n.ChildByFieldName("name")
	typ := s.n.ChildByFieldName("type")
	if name == nil || typ == nil {
		return shapeErr("type alias", s.n, "missing name or type")
	}
	w.emit(model.Declaration{
		Kind:   model.KindTypeAlias,
		Flavor: model.FlavorDefinition,
		Name:   nodeText(name, w.src),
		Type:   compact(nodeText(typ, w.src)),
	}, s.n, sc)
	return nil
}

// visitTypedef renders "typedef type a, *b;". A specifier with a body is
// rendered too; an anonymous one takes the first typedef name.
func (w *walker) visitTypedef(s *typedefShape, sc *scope) error {
	typ := s.n.ChildByFieldName("type")
	decls := declarators(s.n)
	if typ == nil || len(decls) == 0 {
		return shapeErr("typedef", s.n, "missing type or declarator")
	}
	infos := make([]declInfo, len(decls))
	for i, dn := range decls {
		infos[i] = unwrapDeclarator(dn, w.src)
		if infos[i].name == nil {
			return shapeErr("typedef", dn, "declarator without a name")
		}
	}

	typeName := w.typeText(s.n, typ)
	if typ.ChildByFieldName("body") != nil {
		fallback := ""
		if typ.ChildByFieldName("name") == nil {
			fallback = nodeText(infos[0].name, w.src)
			typeName = fallback
		}
		var err error
		if typ.Kind() == "enum_specifier" {
			_, err = w.enumDecl(typ, typ, sc, fallback)
		} else {
			_, err = w.classDecl(typ, typ, sc, fallback)
		}
		if err != nil {
			return err
		}
	}

	for _, info := range infos {
		d := model.Declaration{
			Kind:   model.KindTypedef,
			Flavor: model.FlavorDefinition,
			Name:   nodeText(info.name, w.src),
			Type:   typeName + info.decor,
		}
		if info.function != nil {
			setProp(&d, "function_type", true)
		}
		w.emit(d, s.n, sc)
	}
	return nil
}

func (w *walker) visitFunctionDef(s *functionDefShape, sc *scope) error {
	decl := s.n.ChildByFieldName("declarator")
	if decl == nil {
		return shapeErr("function", s.n, "function definition without a declarator")
	}
	info := unwrapDeclarator(decl, w.src)
	if info.function == nil || info.name == nil {
		return shapeErr("function", decl, "declarator is not a function")
	}
	d := w.function(s.n, info, s.n.ChildByFieldName("type"), sc)
	d.Flavor = model.FlavorDefinition

	body := s.n.ChildByFieldName("body")
	switch {
	case hasChildKind(s.n, "default_method_clause"):
		setProp(&d, "defaulted", true)
	case hasChildKind(s.n, "delete_method_clause"):
		setProp(&d, "deleted", true)
	}

	d = w.emit(d, s.n, sc)
	if body == nil {
		return nil
	}
	w.bodies = append(w.bodies, bodyRange{start: int(s.n.StartByte()), end: int(s.n.EndByte()), owner: d.QualifiedName})

	if !w.r.opts.LocalBlocks {
		return nil
	}
	parent := sc
	if d.ScopeKind == model.ScopeClass && !(sc.kind == model.ScopeClass && sc.qname == d.Scope) {
		// Out-of-line member: the body sees the class members.
		parent = &scope{kind: model.ScopeClass, qname: d.Scope, ns: sc.ns, parent: sc}
	}
	blk := parent.block(d.QualifiedName)
	for _, p := range d.Params {
		if p.Name != "" {
			blk.names = append(blk.names, valueDecl{name: p.Name, start: int(decl.StartByte())})
		}
	}
	w.block(body, blk)
	return nil
}

// krDefinition recognizes a K&R function definition starting at child i of
// parent and returns the index of its body. tree-sitter-cpp reads
// "int f(a, b) int a; char *b; { ... }" as an unterminated declaration with
// a direct initializer, the parameter declarations, and a bare compound
// statement.
func (w *walker) krDefinition(parent *sitter.Node, i uint, sc *scope) (uint, bool) {
	n := parent.Child(i)
	if n == nil || n.Kind() != "declaration" || sc.kind == model.ScopeClass || terminated(n) || !w.active(n) {
		return 0, false
	}
	decls := declarators(n)
	if len(decls) != 1 {
		return 0, false
	}
	info := unwrapDeclarator(decls[0], w.src)
	if info.name == nil || info.name.Kind() != "identifier" || info.funcPtr {
		return 0, false
	}
	names, ok := w.krNames(info)
	if !ok {
		return 0, false
	}

	var kr []*sitter.Node
	var body *sitter.Node
	end := i
	for j := i + 1; j < parent.ChildCount() && body == nil; j++ {
		switch c := parent.Child(j); c.Kind() {
		case "declaration":
			kr = append(kr, c)
		case "comment":
		case "compound_statement":
			body, end = c, j
		default:
			return 0, false
		}
	}
	if body == nil {
		return 0, false
	}
	for _, kd := range kr {
		for _, dn := range declarators(kd) {
			pi := unwrapDeclarator(dn, w.src)
			if pi.name == nil || !slices.Contains(names, nodeText(pi.name, w.src)) {
				return 0, false
			}
		}
	}

	fn := info
	if fn.function == nil {
		fn.function = info.init
	}
	d := w.function(n, fn, n.ChildByFieldName("type"), sc)
	d.Flavor = model.FlavorDefinition
	d.Params = nil
	for _, name := range names {
		d.Params = append(d.Params, model.Param{Name: name})
	}
	w.krParams(kr, &d)
	d.Start, d.End = int(n.StartByte()), int(body.EndByte())
	d = w.emit(d, n, sc)
	w.bodies = append(w.bodies, bodyRange{start: d.Start, end: d.End, owner: d.QualifiedName})

	if w.r.opts.LocalBlocks {
		blk := sc.block(d.QualifiedName)
		for _, name := range names {
			blk.names = append(blk.names, valueDecl{name: name, start: d.Start})
		}
		w.block(body, blk)
	}
	return end, true
}

// krNames returns the identifier list of a K&R declarator.
func (w *walker) krNames(info declInfo) ([]string, bool) {
	var names []string
	switch {
	case info.function != nil:
		params := info.function.ChildByFieldName("parameters")
		if params == nil {
			return nil, false
		}
		for _, c := range namedChildren(params) {
			switch c.Kind() {
			case "comment":
			case "identifier":
				names = append(names, nodeText(c, w.src))
			case "parameter_declaration":
				t := c.ChildByFieldName("type")
				if t == nil || t.Kind() != "type_identifier" || c.ChildByFieldName("declarator") != nil {
					return nil, false
				}
				names = append(names, nodeText(t, w.src))
			default:
				return nil, false
			}
		}
	case info.value != nil && info.value.Kind() == "argument_list":
		for _, c := range namedChildren(info.value) {
			switch c.Kind() {
			case "comment":
			case "identifier":
				names = append(names, nodeText(c, w.src))
			default:
				return nil, false
			}
		}
	}
	return names, len(names) > 0
}

// terminated reports whether n ends in a real ";".
func terminated(n *sitter.Node) bool {
	cnt := n.ChildCount()
	if cnt == 0 {
		return false
	}
	last := n.Child(cnt - 1)
	return last.Kind() == ";" && !last.IsMissing()
}

// krParams types K&R parameters from their declarations. Parameters without
// one are int.
func (w *walker) krParams(kr []*sitter.Node, d *model.Declaration) {
	setProp(d, "kr_style", true)
	for _, kd := range kr {
		typ := w.typeText(kd, kd.ChildByFieldName("type"))
		for _, dn := range declarators(kd) {
			pi := unwrapDeclarator(dn, w.src)
			if pi.name == nil {
				continue
			}
			name := nodeText(pi.name, w.src)
			for i := range d.Params {
				if d.Params[i].Name == name {
					d.Params[i].Type = typ + pi.decor
				}
			}
		}
	}
	for i := range d.Params {
		if d.Params[i].Type == "" {
			d.Params[i].Type = "int"
		}
	}
}

// function builds the declaration of a function named by info.
func (w *walker) function(n *sitter.Node, info declInfo, typeNode *sitter.Node, sc *scope) model.Declaration {
	qual, short := splitScope(compact(nodeText(info.name, w.src)))
	d := model.Declaration{Kind: model.KindFunction, Flavor: model.FlavorDeclaration}
	if info.name.Kind() == "operator_name" {
		setProp(&d, "operator", true)
	} else if i := strings.IndexByte(short, '<'); i > 0 {
		setProp(&d, "args", short[i:])
		short = short[:i]
	}
	d.Name = short

	if qual != "" {
		d.Scope = w.qualifyIn(sc, qual)
		d.ScopeKind = w.scopeKindOf(d.Scope)
		if d.ScopeKind == model.ScopeClass {
			setProp(&d, "member_of", d.Scope)
		}
	} else {
		d.Scope, d.ScopeKind = sc.qname, sc.kind
	}
	d.QualifiedName = model.Qualify(d.Scope, short)

	if typeNode != nil {
		d.Type = w.typeText(n, typeNode) + info.decor
	} else if strings.HasPrefix(short, "~") {
		setProp(&d, "destructor", true)
	} else if d.ScopeKind == model.ScopeClass {
		_, owner := splitScope(d.Scope)
		if i := strings.IndexByte(owner, '<'); i > 0 {
			owner = owner[:i]
		}
		if owner == short {
			setProp(&d, "constructor", true)
		}
	}

	if params := info.function.ChildByFieldName("parameters"); params != nil {
		d.Params = w.params(params)
	}
	for k := range specifierText(n, w.src) {
		switch k {
		case "static", "inline", "virtual", "explicit", "constexpr", "extern":
			setProp(&d, k, true)
		}
	}
	for i := range info.function.ChildCount() {
		c := info.function.Child(i)
		switch c.Kind() {
		case "type_qualifier":
			setProp(&d, nodeText(c, w.src), true)
		case "virtual_specifier":
			setProp(&d, nodeText(c, w.src), true)
		case "noexcept":
			setProp(&d, "noexcept", true)
		}
	}
	return d
}

func (w *walker) params(list *sitter.Node) []model.Param {
	var out []model.Param
	for i := range list.ChildCount() {
		c := list.Child(i)
		switch c.Kind() {
		case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration":
			var p model.Param
			if t := c.ChildByFieldName("type"); t != nil {
				p.Type = compact(string(w.src[c.StartByte():t.EndByte()]))
			}
			if dn := c.ChildByFieldName("declarator"); dn != nil {
				pi := unwrapDeclarator(dn, w.src)
				if pi.name != nil && pi.name.Kind() == "identifier" {
					p.Name = nodeText(pi.name, w.src)
				}
				p.Type += pi.decor
			}
			if c.Kind() == "variadic_parameter_declaration" {
				p.Type += "..."
			}
			out = append(out, p)
		case "identifier":
			out = append(out, model.Param{Name: nodeText(c, w.src)})
		case "...", "variadic_parameter":
			out = append(out, model.Param{Type: "..."})
		}
	}
	return out
}

// visitDeclaration renders a simple declaration. A class or enum specifier
// with a body in type position is rendered before the declarators.
func (w *walker) visitDeclaration(s *declarationShape, sc *scope) error {
	n := s.n
	typeNode := n.ChildByFieldName("type")
	decls := declarators(n)

	if typeNode != nil {
		k := typeNode.Kind()
		hasBody := typeNode.ChildByFieldName("body") != nil
		if (isClassSpecifier(k) || k == "enum_specifier") && (hasBody || len(decls) == 0) {
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
			return shapeErr("declaration", n, "declaration without type or declarator")
		}
		return nil
	}

	for _, dn := range decls {
		if err := w.declarator(n, dn, typeNode, sc); err != nil {
			return err
		}
	}
	return nil
}

// declarator renders one declarator of a simple declaration as a function,
// a variable, a field or a static member definition.
func (w *walker) declarator(n, dn, typeNode *sitter.Node, sc *scope) error {
	info := unwrapDeclarator(dn, w.src)
	if info.name == nil {
		return shapeErr("declaration", dn, "declarator without a name")
	}

	if info.function != nil && !info.funcPtr {
		if sc.kind == model.ScopeClass || !w.variableLike(info.function.ChildByFieldName("parameters"), sc) {
			d := w.function(n, info, typeNode, sc)
			w.emit(d, n, sc)
			return nil
		}
		d := w.variable(n, info, typeNode, sc)
		setProp(&d, "direct_init", true)
		if params := info.function.ChildByFieldName("parameters"); params != nil {
			setProp(&d, "init", compact(nodeText(params, w.src)))
		}
		w.emit(d, n, sc)
		return nil
	}

	if v := info.value; v != nil && v.Kind() == "argument_list" && sc.kind != model.ScopeClass {
		if args, ok := w.argumentNames(v); ok && !w.allVisible(args, sc) {
			d := w.function(n, declInfo{name: info.name, function: info.init, decor: info.decor}, typeNode, sc)
			d.Params = nil
			for _, a := range args {
				d.Params = append(d.Params, model.Param{Type: a.text})
			}
			w.emit(d, n, sc)
			return nil
		}
	}

	d := w.variable(n, info, typeNode, sc)
	if info.funcPtr {
		if params := info.function.ChildByFieldName("parameters"); params != nil {
			d.Type = strings.TrimSuffix(d.Type, info.decor) + " (*)" + compact(nodeText(params, w.src))
		}
	}
	w.emit(d, n, sc)
	return nil
}

func (w *walker) variable(n *sitter.Node, info declInfo, typeNode *sitter.Node, sc *scope) model.Declaration {
	qual, short := splitScope(compact(nodeText(info.name, w.src)))
	d := model.Declaration{
		Kind:   model.KindVariable,
		Flavor: model.FlavorDefinition,
		Name:   short,
		Type:   w.typeText(n, typeNode) + info.decor,
	}
	switch {
	case qual != "":
		d.Scope = w.qualifyIn(sc, qual)
		d.ScopeKind = w.scopeKindOf(d.Scope)
		if d.ScopeKind == model.ScopeClass {
			setProp(&d, "member_of", d.Scope)
			setProp(&d, "static_member", true)
		}
	case sc.kind == model.ScopeClass:
		d.Kind = model.KindField
	}

	specs := specifierText(n, w.src)
	if specs["extern"] && info.init == nil {
		d.Flavor = model.FlavorDeclaration
	}
	for k := range specs {
		switch k {
		case "static", "extern", "constexpr", "thread_local", "inline", "mutable":
			setProp(&d, k, true)
		}
	}
	if info.value != nil {
		init := compact(nodeText(info.value, w.src))
		if len(init) > 80 {
			init = init[:77] + "..."
		}
		setProp(&d, "init", init)
		if info.value.Kind() == "argument_list" {
			setProp(&d, "direct_init", true)
		}
	}
	return d
}

type candidate struct {
	text   string
	offset int
}

// variableLike decides "T a(b, c);": it is a variable when every entry of
// the parenthesized list reads as a name and all of them are visible at
// their offsets. Anything that can only be a parameter, an empty list
// included, makes it a function.
func (w *walker) variableLike(params *sitter.Node, sc *scope) bool {
	if params == nil {
		return false
	}
	var cands []candidate
	for i := range params.ChildCount() {
		c := params.Child(i)
		switch c.Kind() {
		case "(", ")", ",", "comment":
			continue
		case "parameter_declaration":
			if c.ChildByFieldName("declarator") != nil || hasChildKind(c, "type_qualifier", "storage_class_specifier") {
				return false
			}
			t := c.ChildByFieldName("type")
			if t == nil {
				return false
			}
			switch t.Kind() {
			case "type_identifier", "qualified_identifier":
				cands = append(cands, candidate{text: compact(nodeText(t, w.src)), offset: int(t.StartByte())})
			default:
				return false
			}
		default:
			return false
		}
	}
	return len(cands) > 0 && w.allVisible(cands, sc)
}

// argumentNames returns the entries of a direct-initializer argument list
// when all of them are plain or qualified names.
func (w *walker) argumentNames(args *sitter.Node) ([]candidate, bool) {
	var out []candidate
	for _, c := range namedChildren(args) {
		switch c.Kind() {
		case "comment":
		case "identifier", "qualified_identifier":
			out = append(out, candidate{text: compact(nodeText(c, w.src)), offset: int(c.StartByte())})
		default:
			return nil, false
		}
	}
	return out, len(out) > 0
}

func (w *walker) allVisible(cands []candidate, sc *scope) bool {
	for _, c := range cands {
		if !w.lookup(c.text, c.offset, sc) {
			return false
		}
	}
	return true
}

func (w *walker) visitTemplate(s *templateShape, sc *scope) error {
	t := &templateInfo{start: int(s.n.StartByte()), end: int(s.n.EndByte())}
	if s.params != nil {
		t.params = compact(nodeText(s.params, w.src))
		t.specialization = true
		for _, c := range namedChildren(s.params) {
			if c.Kind() != "comment" {
				t.specialization = false
				break
			}
		}
	}
	prev := w.tmpl
	w.tmpl = t
	defer func() { w.tmpl = prev }()

	sh, err := classify(s.inner)
	if err != nil || sh == nil {
		// friend templates and concepts declare nothing we model
		return err
	}
	return sh.accept(w, sc)
}

func (w *walker) visitInstantiation(s *instantiationShape, sc *scope) error {
	prev := w.tmpl
	w.tmpl = &templateInfo{start: int(s.n.StartByte()), end: int(s.n.EndByte()), instantiation: true}
	defer func() { w.tmpl = prev }()

	typeNode := s.n.ChildByFieldName("type")
	decls := declarators(s.n)
	if len(decls) == 0 {
		if typeNode == nil || !isClassSpecifier(typeNode.Kind()) {
			return shapeErr("instantiation", s.n, "nothing to instantiate")
		}
		_, err := w.classDecl(typeNode, s.n, sc, "")
		return err
	}
	for _, dn := range decls {
		info := unwrapDeclarator(dn, w.src)
		if info.function == nil || info.name == nil {
			return shapeErr("instantiation", dn, "instantiated declarator is not a function")
		}
		w.emit(w.function(s.n, info, typeNode, sc), s.n, sc)
	}
	return nil
}

// visitLinkage renders the body of extern "C" in the enclosing scope.
func (w *walker) visitLinkage(s *linkageShape, sc *scope) error {
	body := s.n.ChildByFieldName("body")
	if body == nil {
		return shapeErr("linkage", s.n, "linkage specification without a body")
	}
	inner := *sc
	inner.names = nil
	if v := s.n.ChildByFieldName("value"); v != nil {
		inner.linkage = strings.Trim(nodeText(v, w.src), `"`)
	}
	if body.Kind() == "declaration_list" {
		w.items(body, &inner)
	} else {
		w.item(body, &inner)
	}
	return nil
}

// visitConditional renders both branches of a preprocessor conditional; the
// dead one is skipped child by child.
func (w *walker) visitConditional(s *conditionalShape, sc *scope) error {
	w.items(s.n, sc)
	return nil
}

// block renders the declarations of a function body.
func (w *walker) block(body *sitter.Node, sc *scope) {
	for _, c := range namedChildren(body) {
		switch c.Kind() {
		case "compound_statement":
			w.block(c, sc.block(sc.qname))
		case "declaration", "class_specifier", "struct_specifier", "union_specifier", "enum_specifier",
			"type_definition", "alias_declaration", "using_declaration", "namespace_alias_definition":
			w.item(c, sc)
		default:
			w.statement(c, sc)
		}
	}
}

// statement looks for nested blocks and init-statement declarations.
func (w *walker) statement(n *sitter.Node, sc *scope) {
	for _, c := range namedChildren(n) {
		switch c.Kind() {
		case "compound_statement":
			w.block(c, sc.block(sc.qname))
		case "declaration":
			w.item(c, sc)
		case "lambda_expression", "identifier", "number_literal", "string_literal":
		default:
			w.statement(c, sc)
		}
	}
}
