package model

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Store provides in-memory storage and querying of declarations. It is safe
// for concurrent use: workers add and retract files while readers query.
type Store struct {
	mu sync.RWMutex

	// Declarations are owned per file; every other index points into them.
	files map[fileKey][]*Declaration

	byKind      map[Kind][]*Declaration
	byName      map[string][]*Declaration // qualified name
	byShortName map[string][]*Declaration
	byNamespace map[string][]*Declaration // namespace views, "" is global

	includes map[fileKey][]Include
	count    int
}

type fileKey struct {
	project string
	path    string
}

// NewStore creates an empty declaration store.
func NewStore() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.files = make(map[fileKey][]*Declaration)
	s.byKind = make(map[Kind][]*Declaration)
	s.byName = make(map[string][]*Declaration)
	s.byShortName = make(map[string][]*Declaration)
	s.byNamespace = make(map[string][]*Declaration)
	s.includes = make(map[fileKey][]Include)
	s.count = 0
}

// AddDeclaration adds one declaration.
func (s *Store) AddDeclaration(d Declaration) {
	s.Add(d)
}

// Add adds declarations to the store.
func (s *Store) Add(dd ...Declaration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range dd {
		d := dd[i]
		p := &d
		k := fileKey{d.Project, d.File}
		s.files[k] = append(s.files[k], p)
		s.byKind[d.Kind] = append(s.byKind[d.Kind], p)
		if d.QualifiedName != "" {
			s.byName[d.QualifiedName] = append(s.byName[d.QualifiedName], p)
		}
		if d.Name != "" {
			s.byShortName[d.Name] = append(s.byShortName[d.Name], p)
		}
		if d.ScopeKind == ScopeNamespace || d.ScopeKind == ScopeFile {
			s.byNamespace[d.Scope] = append(s.byNamespace[d.Scope], p)
		}
		s.count++
	}
}

// RetractFile removes every declaration and include owned by file and
// returns the number of declarations removed.
func (s *Store) RetractFile(project, file string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := fileKey{project, file}
	owned := s.files[k]
	delete(s.files, k)
	delete(s.includes, k)
	if len(owned) == 0 {
		return 0
	}

	gone := make(map[*Declaration]bool, len(owned))
	kinds := make(map[Kind]bool)
	names := make(map[string]bool)
	shortNames := make(map[string]bool)
	namespaces := make(map[string]bool)
	for _, d := range owned {
		gone[d] = true
		kinds[d.Kind] = true
		if d.QualifiedName != "" {
			names[d.QualifiedName] = true
		}
		if d.Name != "" {
			shortNames[d.Name] = true
		}
		if d.ScopeKind == ScopeNamespace || d.ScopeKind == ScopeFile {
			namespaces[d.Scope] = true
		}
	}
	drop := func(d *Declaration) bool { return gone[d] }
	pruneIndex(s.byKind, kinds, drop)
	pruneIndex(s.byName, names, drop)
	pruneIndex(s.byShortName, shortNames, drop)
	pruneIndex(s.byNamespace, namespaces, drop)
	s.count -= len(owned)
	return len(owned)
}

// pruneIndex filters the buckets named by keys once each and deletes the
// ones left empty.
func pruneIndex[K comparable](idx map[K][]*Declaration, keys map[K]bool, drop func(*Declaration) bool) {
	for k := range keys {
		v := slices.DeleteFunc(idx[k], drop)
		if len(v) == 0 {
			delete(idx, k)
			continue
		}
		idx[k] = v
	}
}

// SetIncludes replaces the includes recorded for file.
func (s *Store) SetIncludes(project, file string, incs []Include) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := fileKey{project, file}
	if len(incs) == 0 {
		delete(s.includes, k)
		return
	}
	s.includes[k] = append([]Include(nil), incs...)
}

// Includes returns every recorded include, ordered by project, file and line.
func (s *Store) Includes() []Include {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Include
	for _, incs := range s.includes {
		out = append(out, incs...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
	return out
}

// All returns all declarations, grouped by project and file in render order.
func (s *Store) All() []Declaration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Declaration, 0, s.count)
	for _, k := range s.sortedFileKeys() {
		out = append(out, collect(s.files[k])...)
	}
	return out
}

func (s *Store) sortedFileKeys() []fileKey {
	keys := make([]fileKey, 0, len(s.files))
	for k := range s.files {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].project != keys[j].project {
			return keys[i].project < keys[j].project
		}
		return keys[i].path < keys[j].path
	})
	return keys
}

// Count returns the number of declarations in the store.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Files returns the (project, path) pairs that own declarations.
func (s *Store) Files() [][2]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.sortedFileKeys()
	out := make([][2]string, len(keys))
	for i, k := range keys {
		out[i] = [2]string{k.project, k.path}
	}
	return out
}

// ByKind returns all declarations of the given kind.
func (s *Store) ByKind(kind Kind) []Declaration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collect(s.byKind[kind])
}

// ByFile returns all declarations owned by file.
func (s *Store) ByFile(project, file string) []Declaration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collect(s.files[fileKey{project, file}])
}

// ByName returns all declarations with the given qualified name.
func (s *Store) ByName(qname string) []Declaration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collect(s.byName[qname])
}

// ByShortName returns all declarations whose unqualified name is name.
func (s *Store) ByShortName(name string) []Declaration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collect(s.byShortName[name])
}

// Namespace returns the view of a namespace: every namespace-scoped
// declaration of qname, across all files. "" is the global namespace.
func (s *Store) Namespace(qname string) []Declaration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collect(s.byNamespace[qname])
}

// Namespaces returns the qualified names of all namespaces with at least one
// declaration, sorted. The global namespace is "".
func (s *Store) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byNamespace))
	for ns := range s.byNamespace {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// LookupVisible reports whether a variable or function named name (qualified
// or not) is declared in project by another file. The renderer uses it as
// its whole-program fallback; it must not see the file being rendered.
func (s *Store) LookupVisible(project, file, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	candidates := s.byName[name]
	if !strings.Contains(name, "::") {
		candidates = s.byShortName[name]
	}
	for _, d := range candidates {
		if d.Project != project || d.File == file {
			continue
		}
		switch d.Kind {
		case KindVariable, KindFunction, KindField, KindEnumerator:
			return true
		}
	}
	return false
}

// QueryOpts holds the query filters. Multi-value filters within a dimension
// are OR-combined; filters across dimensions are AND-combined.
type QueryOpts struct {
	Kind       Kind
	Kinds      []Kind
	Project    string
	File       string
	FilePrefix string
	Name       string // substring of the qualified name
	Namespace  string // exact scope
	Flavor     Flavor
	Prop       string
	PropValue  string
	Offset     int
	Limit      int // 0 = default 100, max 500
}

// Query returns declarations matching opts and the total number of matches
// before offset/limit are applied.
func (s *Store) Query(opts QueryOpts) ([]Declaration, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := make(map[Kind]bool, len(opts.Kinds)+1)
	if opts.Kind != "" {
		kinds[opts.Kind] = true
	}
	for _, k := range opts.Kinds {
		if k != "" {
			kinds[k] = true
		}
	}

	var matched []Declaration
	for _, k := range s.sortedFileKeys() {
		if opts.Project != "" && k.project != opts.Project {
			continue
		}
		if opts.File != "" && k.path != opts.File {
			continue
		}
		if opts.FilePrefix != "" && !strings.HasPrefix(k.path, opts.FilePrefix) {
			continue
		}
		for _, d := range s.files[k] {
			if len(kinds) > 0 && !kinds[d.Kind] {
				continue
			}
			if opts.Name != "" && !strings.Contains(d.QualifiedName, opts.Name) {
				continue
			}
			if opts.Namespace != "" && d.Scope != opts.Namespace {
				continue
			}
			if opts.Flavor != "" && d.Flavor != opts.Flavor {
				continue
			}
			if opts.Prop != "" {
				v, ok := d.Props[opts.Prop]
				if !ok {
					continue
				}
				if opts.PropValue != "" && fmt.Sprintf("%v", v) != opts.PropValue {
					continue
				}
			}
			matched = append(matched, *d)
		}
	}

	total := len(matched)
	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, total
		}
		matched = matched[opts.Offset:]
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total
}

// Clear removes everything from the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func collect(ptrs []*Declaration) []Declaration {
	out := make([]Declaration, 0, len(ptrs))
	for _, p := range ptrs {
		out = append(out, *p)
	}
	return out
}
