// Package model holds the declaration model: the entities produced by the
// renderer and the thread-safe store that indexes them.
package model

import "strings"

// Kind tags a declaration.
type Kind string

// Declaration kinds.
const (
	KindNamespace      Kind = "namespace"
	KindClass          Kind = "class"
	KindStruct         Kind = "struct"
	KindUnion          Kind = "union"
	KindEnum           Kind = "enum"
	KindEnumerator     Kind = "enumerator"
	KindFunction       Kind = "function"
	KindVariable       Kind = "variable"
	KindField          Kind = "field"
	KindTypedef        Kind = "typedef"
	KindTypeAlias      Kind = "type_alias"
	KindUsingDirective Kind = "using_directive"
	KindUsingDecl      Kind = "using_declaration"
	KindNamespaceAlias Kind = "namespace_alias"
)

// IsClassifier reports whether k names a class-like or enum type.
func (k Kind) IsClassifier() bool {
	switch k {
	case KindClass, KindStruct, KindUnion, KindEnum:
		return true
	}
	return false
}

// Flavor refines a kind: a function may be declared, defined, specialized or
// explicitly instantiated; a class may be forward-declared.
type Flavor string

// Flavors.
const (
	FlavorDeclaration    Flavor = "declaration"
	FlavorDefinition     Flavor = "definition"
	FlavorForward        Flavor = "forward"
	FlavorSpecialization Flavor = "specialization"
	FlavorInstantiation  Flavor = "instantiation"
)

// ScopeKind says what kind of container encloses a declaration.
type ScopeKind string

// Scope kinds.
const (
	ScopeFile      ScopeKind = "file"
	ScopeNamespace ScopeKind = "namespace"
	ScopeClass     ScopeKind = "class"
	ScopeBlock     ScopeKind = "block"
)

// Param is one function parameter. Name is empty for unnamed parameters.
type Param struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// Declaration is one entity of the model.
type Declaration struct {
	Kind          Kind           `json:"kind"`
	Flavor        Flavor         `json:"flavor,omitempty"`
	Name          string         `json:"name"`
	QualifiedName string         `json:"qualified_name"`
	Scope         string         `json:"scope,omitempty"` // qualified name of the enclosing namespace or class
	ScopeKind     ScopeKind      `json:"scope_kind"`
	Project       string         `json:"project,omitempty"`
	File          string         `json:"file"`
	Start         int            `json:"start"`
	End           int            `json:"end"`
	Line          int            `json:"line,omitempty"`
	Col           int            `json:"col,omitempty"`
	Type          string         `json:"type,omitempty"`
	Params        []Param        `json:"params,omitempty"`
	Props         map[string]any `json:"props,omitempty"`
}

// Namespace returns the innermost enclosing namespace of d, or "" for the
// global namespace. Class-scoped declarations report the namespace of their
// class.
func (d Declaration) Namespace() string {
	if d.ScopeKind == ScopeNamespace {
		return d.Scope
	}
	if ns, ok := d.Props["namespace"].(string); ok {
		return ns
	}
	return ""
}

// Qualify joins scope and name with "::".
func Qualify(scope, name string) string {
	switch {
	case scope == "":
		return name
	case name == "":
		return scope
	}
	return scope + "::" + name
}

// SplitQualified returns the scope and the last component of a qualified name.
func SplitQualified(qname string) (scope, name string) {
	i := strings.LastIndex(qname, "::")
	if i < 0 {
		return "", qname
	}
	return qname[:i], qname[i+2:]
}

// Include is one #include directive of a parsed file.
type Include struct {
	Project  string `json:"project,omitempty"`
	File     string `json:"file"`
	Path     string `json:"path"`
	Resolved string `json:"resolved,omitempty"` // project-relative path when the target is a project file
	Line     int    `json:"line"`
	System   bool   `json:"system,omitempty"`
	Active   bool   `json:"active"`
	// Fake is set for an include nested inside a declaration body, e.g. a
	// table of members pulled into a class.
	Fake      bool   `json:"fake,omitempty"`
	FakeOwner string `json:"fake_owner,omitempty"`
}

// FileHash tracks a file's content hash for incremental updates.
type FileHash struct {
	Project string `json:"project,omitempty"`
	Path    string `json:"path"`
	Hash    string `json:"hash"`
	State   string `json:"state,omitempty"`
}

// Meta describes a persisted model.
type Meta struct {
	SessionID        string     `json:"session_id"`
	RepoPath         string     `json:"repo_path"`
	GeneratedAt      string     `json:"generated_at"`
	Compressed       bool       `json:"compressed"`
	DeclarationCount int        `json:"declaration_count"`
	IncludeCount     int        `json:"include_count"`
	FileHashes       []FileHash `json:"file_hashes,omitempty"`
}
