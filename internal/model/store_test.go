package model

import (
	"fmt"
	"sync"
	"testing"
)

// --- helpers ---

func makeDecl(kind Kind, qname, file string) Declaration {
	scope, name := SplitQualified(qname)
	sk := ScopeNamespace
	if scope == "" {
		sk = ScopeFile
	}
	return Declaration{Kind: kind, Name: name, QualifiedName: qname, Scope: scope, ScopeKind: sk, Project: "core", File: file}
}

func makeMember(kind Kind, class, name, file string) Declaration {
	return Declaration{Kind: kind, Name: name, QualifiedName: Qualify(class, name), Scope: class, ScopeKind: ScopeClass, Project: "core", File: file}
}

// --- tests ---

func TestAdd_IndexesAllMaps(t *testing.T) {
	s := NewStore()
	s.Add(makeDecl(KindFunction, "app::run", "app/run.cc"))

	if got := s.ByKind(KindFunction); len(got) != 1 || got[0].QualifiedName != "app::run" {
		t.Errorf("ByKind(function) = %v, want [app::run]", got)
	}
	if got := s.ByFile("core", "app/run.cc"); len(got) != 1 {
		t.Errorf("ByFile = %d declarations, want 1", len(got))
	}
	if got := s.ByName("app::run"); len(got) != 1 {
		t.Errorf("ByName(app::run) = %d declarations, want 1", len(got))
	}
	if got := s.ByShortName("run"); len(got) != 1 {
		t.Errorf("ByShortName(run) = %d declarations, want 1", len(got))
	}
	if got := s.Namespace("app"); len(got) != 1 {
		t.Errorf("Namespace(app) = %d declarations, want 1", len(got))
	}
}

func TestNamespaceView_SpansFiles(t *testing.T) {
	s := NewStore()
	s.Add(
		makeDecl(KindFunction, "app::a", "a.cc"),
		makeDecl(KindFunction, "app::b", "b.cc"),
		makeDecl(KindVariable, "g", "b.cc"),
		makeMember(KindField, "app::Widget", "size", "b.cc"),
	)

	if got := s.Namespace("app"); len(got) != 2 {
		t.Errorf("Namespace(app) = %d, want 2 (class members are not namespace-scoped)", len(got))
	}
	if got := s.Namespace(""); len(got) != 1 || got[0].Name != "g" {
		t.Errorf("Namespace(global) = %v, want [g]", got)
	}
	want := []string{"", "app"}
	if got := s.Namespaces(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Namespaces() = %q, want %q", got, want)
	}
}

func TestRetractFile(t *testing.T) {
	s := NewStore()
	s.Add(
		makeDecl(KindFunction, "app::a", "a.cc"),
		makeDecl(KindFunction, "app::a", "b.cc"),
		makeDecl(KindVariable, "app::only_a", "a.cc"),
	)
	s.SetIncludes("core", "a.cc", []Include{{Project: "core", File: "a.cc", Path: "b.h", Active: true}})

	if n := s.RetractFile("core", "a.cc"); n != 2 {
		t.Fatalf("RetractFile = %d, want 2", n)
	}
	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}
	if got := s.ByName("app::a"); len(got) != 1 || got[0].File != "b.cc" {
		t.Errorf("ByName(app::a) = %v, want the b.cc copy", got)
	}
	if got := s.ByName("app::only_a"); len(got) != 0 {
		t.Errorf("ByName(app::only_a) = %v, want none", got)
	}
	if got := s.ByKind(KindVariable); len(got) != 0 {
		t.Errorf("ByKind(variable) = %v, want none", got)
	}
	if got := s.Includes(); len(got) != 0 {
		t.Errorf("Includes() = %v, want none", got)
	}
	if n := s.RetractFile("core", "a.cc"); n != 0 {
		t.Errorf("second RetractFile = %d, want 0", n)
	}
}

func TestRetractFile_OtherProjectUntouched(t *testing.T) {
	s := NewStore()
	a := makeDecl(KindFunction, "f", "x.cc")
	b := a
	b.Project = "other"
	s.Add(a, b)

	s.RetractFile("core", "x.cc")
	if got := s.ByFile("other", "x.cc"); len(got) != 1 {
		t.Errorf("other project lost its declaration: %v", got)
	}
}

func TestQuery_Filters(t *testing.T) {
	s := NewStore()
	fn := makeDecl(KindFunction, "app::run", "app/run.cc")
	fn.Flavor = FlavorDefinition
	s.Add(
		fn,
		makeDecl(KindFunction, "app::stop", "app/stop.cc"),
		makeDecl(KindClass, "app::Runner", "app/run.h"),
		makeDecl(KindVariable, "util::count", "util/count.cc"),
	)

	tests := []struct {
		name string
		opts QueryOpts
		want int
	}{
		{"all", QueryOpts{}, 4},
		{"kind", QueryOpts{Kind: KindFunction}, 2},
		{"kinds", QueryOpts{Kinds: []Kind{KindClass, KindVariable}}, 2},
		{"file prefix", QueryOpts{FilePrefix: "app/"}, 3},
		{"exact file", QueryOpts{File: "app/run.h"}, 1},
		{"name substring", QueryOpts{Name: "Run"}, 1},
		{"namespace", QueryOpts{Namespace: "util"}, 1},
		{"flavor", QueryOpts{Flavor: FlavorDefinition}, 1},
		{"project miss", QueryOpts{Project: "nope"}, 0},
		{"combined", QueryOpts{Kind: KindFunction, FilePrefix: "app/", Name: "stop"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total := s.Query(tt.opts)
			if total != tt.want || len(got) != tt.want {
				t.Errorf("Query(%+v) = %d results (total %d), want %d", tt.opts, len(got), total, tt.want)
			}
		})
	}
}

func TestQuery_OffsetLimit(t *testing.T) {
	s := NewStore()
	for i := range 10 {
		s.Add(makeDecl(KindVariable, fmt.Sprintf("v%d", i), "vars.cc"))
	}

	got, total := s.Query(QueryOpts{Offset: 8, Limit: 5})
	if total != 10 || len(got) != 2 {
		t.Errorf("offset 8 limit 5 = %d (total %d), want 2 (total 10)", len(got), total)
	}
	got, _ = s.Query(QueryOpts{Offset: 20})
	if got != nil {
		t.Errorf("offset past end = %v, want nil", got)
	}
	got, _ = s.Query(QueryOpts{Limit: 3})
	if len(got) != 3 || got[0].Name != "v0" {
		t.Errorf("limit 3 = %v, want v0..v2", got)
	}
}

func TestQuery_PropFilter(t *testing.T) {
	s := NewStore()
	d := makeMember(KindField, "S", "flags", "s.h")
	d.Props = map[string]any{"bit_width": "3"}
	s.Add(d, makeMember(KindField, "S", "n", "s.h"))

	if got, _ := s.Query(QueryOpts{Prop: "bit_width"}); len(got) != 1 {
		t.Errorf("Prop filter = %d, want 1", len(got))
	}
	if got, _ := s.Query(QueryOpts{Prop: "bit_width", PropValue: "4"}); len(got) != 0 {
		t.Errorf("PropValue mismatch = %d, want 0", len(got))
	}
}

func TestLookupVisible(t *testing.T) {
	s := NewStore()
	s.Add(
		makeDecl(KindVariable, "config::level", "config.cc"),
		makeDecl(KindClass, "Widget", "widget.h"),
	)

	if !s.LookupVisible("core", "main.cc", "level") {
		t.Error("short name of a variable in another file should be visible")
	}
	if !s.LookupVisible("core", "main.cc", "config::level") {
		t.Error("qualified name should be visible")
	}
	if s.LookupVisible("core", "config.cc", "level") {
		t.Error("the file being rendered must not see its own old declarations")
	}
	if s.LookupVisible("core", "main.cc", "Widget") {
		t.Error("types are not values")
	}
	if s.LookupVisible("other", "main.cc", "level") {
		t.Error("declarations of another project are not visible")
	}
}

func TestConcurrentAddAndRetract(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			file := fmt.Sprintf("f%d.cc", w)
			for i := range 50 {
				s.RetractFile("core", file)
				s.Add(makeDecl(KindFunction, fmt.Sprintf("fn%d", i), file))
				_ = s.Namespace("")
			}
		}()
	}
	wg.Wait()

	if s.Count() != 8 {
		t.Errorf("Count() = %d, want one declaration per file", s.Count())
	}
	if got := len(s.Files()); got != 8 {
		t.Errorf("Files() = %d, want 8", got)
	}
}

func TestQualify(t *testing.T) {
	tests := []struct{ scope, name, want string }{
		{"", "a", "a"},
		{"n", "a", "n::a"},
		{"n::m", "", "n::m"},
	}
	for _, tt := range tests {
		if got := Qualify(tt.scope, tt.name); got != tt.want {
			t.Errorf("Qualify(%q, %q) = %q, want %q", tt.scope, tt.name, got, tt.want)
		}
	}
	if scope, name := SplitQualified("a::b::c"); scope != "a::b" || name != "c" {
		t.Errorf("SplitQualified = %q, %q", scope, name)
	}
}

// bigStore spreads perFile functions over files files. Every file declares
// the same short names, so the shared buckets are large.
func bigStore(files, perFile int) *Store {
	s := NewStore()
	for f := range files {
		file := fmt.Sprintf("f%d.cc", f)
		dd := make([]Declaration, 0, perFile)
		for i := range perFile {
			d := makeDecl(KindFunction, fmt.Sprintf("big::fn%d", i), file)
			d.QualifiedName = fmt.Sprintf("big::fn%d_%d", i, f)
			dd = append(dd, d)
		}
		s.Add(dd...)
	}
	return s
}

func TestRetractFile_LargeSharedBuckets(t *testing.T) {
	s := bigStore(100, 500)

	if n := s.RetractFile("core", "f50.cc"); n != 500 {
		t.Fatalf("RetractFile = %d, want 500", n)
	}
	if got := s.Count(); got != 99*500 {
		t.Errorf("Count = %d, want %d", got, 99*500)
	}
	if got := s.ByShortName("fn7"); len(got) != 99 {
		t.Errorf("ByShortName(fn7) = %d, want 99", len(got))
	}
	if got := s.Namespace("big"); len(got) != 99*500 {
		t.Errorf("Namespace(big) = %d, want %d", len(got), 99*500)
	}
	if got := s.ByName("big::fn7_50"); len(got) != 0 {
		t.Errorf("ByName(big::fn7_50) = %v, want none", got)
	}
	if _, ok := s.byName["big::fn7_50"]; ok {
		t.Error("emptied name bucket was not deleted")
	}

	for f := range 100 {
		s.RetractFile("core", fmt.Sprintf("f%d.cc", f))
	}
	if len(s.byKind)+len(s.byName)+len(s.byShortName)+len(s.byNamespace) != 0 {
		t.Errorf("indexes not empty after retracting every file: %d kinds, %d names, %d short names, %d namespaces",
			len(s.byKind), len(s.byName), len(s.byShortName), len(s.byNamespace))
	}
}

func BenchmarkRetractFile(b *testing.B) {
	for range b.N {
		b.StopTimer()
		s := bigStore(100, 2000)
		b.StartTimer()
		s.RetractFile("core", "f50.cc")
	}
}
