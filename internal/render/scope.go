package render

import (
	"github.com/dejo1307/cxxmodel/internal/model"
)

// scope is one lexical container on the way from the file down to the
// declaration being rendered.
type scope struct {
	kind   model.ScopeKind
	qname  string // namespace, class or function qualified name
	ns     string // innermost enclosing namespace
	parent *scope

	// Block scopes own their names; namespace and class members live in
	// the walker's shared index so reopened namespaces see each other.
	names []valueDecl

	access    string     // current access in class scopes
	classKind model.Kind // class, struct or union in class scopes
	linkage   string
}

type valueDecl struct {
	name  string
	start int
}

func fileScope() *scope {
	return &scope{kind: model.ScopeFile}
}

func (sc *scope) namespace(qname string) *scope {
	return &scope{kind: model.ScopeNamespace, qname: qname, ns: qname, parent: sc, linkage: sc.linkage}
}

func (sc *scope) class(qname string, kind model.Kind) *scope {
	access := "private"
	if kind != model.KindClass {
		access = "public"
	}
	return &scope{kind: model.ScopeClass, qname: qname, ns: sc.ns, parent: sc, access: access, classKind: kind}
}

func (sc *scope) block(qname string) *scope {
	return &scope{kind: model.ScopeBlock, qname: qname, ns: sc.ns, parent: sc, linkage: sc.linkage}
}

// lookup reports whether a variable or function called name is declared
// before offset in sc or one of its enclosing scopes. Qualified names are
// resolved against every enclosing namespace, innermost first.
func (w *walker) lookup(name string, offset int, sc *scope) bool {
	qual, short := splitScope(name)
	if qual != "" {
		for s := sc; s != nil; s = s.parent {
			if s.kind == model.ScopeBlock {
				continue
			}
			if declaredBefore(w.members[model.Qualify(s.qname, qual)], short, offset) {
				return true
			}
		}
		if declaredBefore(w.members[qual], short, offset) {
			return true
		}
	} else {
		for s := sc; s != nil; s = s.parent {
			if s.kind == model.ScopeBlock {
				if declaredBefore(s.names, short, offset) {
					return true
				}
				continue
			}
			if declaredBefore(w.members[s.qname], short, offset) {
				return true
			}
		}
	}
	if w.r.opts.GlobalResolve && w.r.resolver != nil {
		return w.r.resolver.LookupVisible(w.in.Project, w.in.File, name)
	}
	return false
}

func declaredBefore(decls []valueDecl, name string, offset int) bool {
	for _, d := range decls {
		if d.start < offset && d.name == name {
			return true
		}
	}
	return false
}

// remember makes a value declaration visible to later lookups.
func (w *walker) remember(d model.Declaration, sc *scope) {
	switch d.Kind {
	case model.KindVariable, model.KindFunction, model.KindField, model.KindEnumerator:
	default:
		return
	}
	v := valueDecl{name: d.Name, start: d.Start}
	if d.ScopeKind == model.ScopeBlock && sc.kind == model.ScopeBlock {
		sc.names = append(sc.names, v)
		return
	}
	w.members[d.Scope] = append(w.members[d.Scope], v)
}
