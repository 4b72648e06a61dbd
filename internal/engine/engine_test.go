package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dejo1307/cxxmodel/internal/config"
	"github.com/dejo1307/cxxmodel/internal/model"
	"github.com/dejo1307/cxxmodel/internal/outline"
	"github.com/dejo1307/cxxmodel/internal/scheduler"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- helpers ---

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func testConfig(dir string, projects ...config.ProjectConfig) *config.Config {
	cfg := config.Default()
	cfg.Repo = dir
	cfg.Workers = 2
	cfg.Watch.DebounceMS = 20
	cfg.Projects = projects
	return cfg
}

func startEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	e.Start(context.Background())
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func loadAndWait(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.LoadAll(ctx))
	require.NoError(t, e.AwaitIdle(ctx))
}

func awaitIdle(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.AwaitIdle(ctx))
}

func names(decls []model.Declaration) []string {
	out := make([]string, 0, len(decls))
	for _, d := range decls {
		out = append(out, d.QualifiedName)
	}
	return out
}

// --- tests ---

func TestMatchIgnore(t *testing.T) {
	tests := []struct {
		name     string
		relPath  string
		isDir    bool
		patterns []string
		want     bool
	}{
		{"build directory contents", "build/gen/x.h", false, []string{"build/**"}, true},
		{"build directory itself", "build", true, []string{"build/**"}, true},
		{"git directory", ".git/HEAD", false, []string{".git/**"}, true},
		{"nested cmake dir", "src/CMakeFiles/foo.c", false, []string{"**/CMakeFiles/**"}, true},
		{"nested cmake dir itself", "src/CMakeFiles", true, []string{"**/CMakeFiles/**"}, true},
		{"generated headers", "src/proto/a.pb.h", false, []string{"**/*.pb.h"}, true},
		{"normal source", "src/main.cc", false, []string{"build/**", "**/*.pb.h"}, false},
		{"prefix is not a directory match", "builder/x.cc", false, []string{"build/**"}, false},
		{"output dir", ".cxxmodel/model.jsonl", false, []string{".cxxmodel/**"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchIgnore(tt.patterns, tt.relPath, tt.isDir)
			assert.Equal(t, tt.want, got, "matchIgnore(%v, %q, %v)", tt.patterns, tt.relPath, tt.isDir)
		})
	}
}

func TestWalkProject(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/a.cc":           "int a;",
		"src/a.h":            "int b;",
		"src/notes.txt":      "not code",
		"build/gen.h":        "int gen;",
		"src/CMakeFiles/x.c": "int x;",
	})
	e, err := New(testConfig(dir))
	require.NoError(t, err)

	ps := e.cfg.EffectiveProjects()
	require.Len(t, ps, 1)
	_, n, err := e.LoadProject(context.Background(), ps[0])
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, e.sched.IsQueued(e.projects[ps[0].Name].File("src/a.cc")))
	assert.False(t, e.sched.IsQueued(e.projects[ps[0].Name].File("build/gen.h")))
	e.sched.Shutdown()
}

func TestLoadAndRender(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"geo.h": `namespace geo {
struct Point { int x; int y; };
double distance(Point a, Point b);
}
`,
		"geo.cc": `#include "geo.h"
namespace geo {
double distance(Point a, Point b) { return 0; }
}
`,
	})
	e := startEngine(t, testConfig(dir, config.ProjectConfig{Name: "geo", Root: "."}))
	loadAndWait(t, e)

	s := e.Store()
	assert.Len(t, s.ByName("geo::Point"), 1)
	assert.Len(t, s.ByName("geo::Point::x"), 1)
	assert.Len(t, s.ByName("geo::distance"), 2)
	assert.NotEmpty(t, s.ByFile("geo", "geo.cc"))

	st := e.Stats()
	assert.Equal(t, int64(2), st.Parsed)
	assert.Equal(t, 2, st.Files)
	assert.Equal(t, 1, st.Projects)
	assert.NotEmpty(t, st.SessionID)

	incs := s.Includes()
	require.Len(t, incs, 1)
	assert.Equal(t, "geo.h", incs[0].Resolved)
}

func TestConditionalContexts(t *testing.T) {
	src := "#ifdef WITH_GPU\nint gpu_init();\n#endif\nint cpu_init();\n"
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"plain/init.c": src, "gpu/init.c": src})

	e := startEngine(t, testConfig(dir,
		config.ProjectConfig{Name: "plain", Root: "plain"},
		config.ProjectConfig{Name: "gpu", Root: "gpu", Contexts: []config.ContextConfig{
			{Name: "cpu"},
			{Name: "gpu", Defines: map[string]string{"WITH_GPU": "1"}},
		}},
	))
	loadAndWait(t, e)

	plain := e.Store().ByFile("plain", "init.c")
	assert.ElementsMatch(t, []string{"cpu_init"}, names(plain))
	st, err := e.FileStatus("plain", "init.c")
	require.NoError(t, err)
	assert.Len(t, st.DeadBlocks, 1)
	assert.Positive(t, st.DeadBytes)

	// The gpu context has no dead code, so it is the representative one.
	gpu := e.Store().ByFile("gpu", "init.c")
	assert.ElementsMatch(t, []string{"gpu_init", "cpu_init"}, names(gpu))
	st, err = e.FileStatus("gpu", "init.c")
	require.NoError(t, err)
	assert.Empty(t, st.DeadBlocks)
	assert.Equal(t, []string{"cpu", "gpu"}, st.Contexts)
}

func TestReparse_SkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.c": "int first;\n"})
	e := startEngine(t, testConfig(dir, config.ProjectConfig{Name: "p", Root: "."}))
	loadAndWait(t, e)
	require.Equal(t, int64(1), e.Stats().Parsed)

	created, err := e.ReparseFile("p", "a.c", scheduler.Head, false)
	require.NoError(t, err)
	assert.True(t, created)
	awaitIdle(t, e)
	assert.Equal(t, int64(1), e.Stats().Parsed)
	assert.Equal(t, int64(1), e.Stats().Skipped)

	writeFiles(t, dir, map[string]string{"a.c": "int first;\nint second;\n"})
	_, err = e.ReparseFile("p", "a.c", scheduler.Immediate, false)
	require.NoError(t, err)
	awaitIdle(t, e)
	assert.Equal(t, int64(2), e.Stats().Parsed)
	assert.ElementsMatch(t, []string{"first", "second"}, names(e.Store().ByFile("p", "a.c")))

	_, err = e.ReparseFile("p", "a.c", scheduler.Head, true)
	require.NoError(t, err)
	awaitIdle(t, e)
	assert.Equal(t, int64(3), e.Stats().Parsed)
	assert.Len(t, e.Store().ByFile("p", "a.c"), 2, "reparse replaces, never duplicates")

	_, err = e.ReparseFile("nope", "a.c", scheduler.Head, false)
	assert.ErrorIs(t, err, ErrUnknownProject)
}

func TestLoadProject_ReplaceWhileParsing(t *testing.T) {
	dir := t.TempDir()
	files := make(map[string]string)
	for i := range 40 {
		files[fmt.Sprintf("f%02d.c", i)] = fmt.Sprintf("int v%d;\nint shared_%d(int);\n", i, i)
	}
	writeFiles(t, dir, files)
	cfg := testConfig(dir, config.ProjectConfig{Name: "p", Root: "."})
	cfg.Workers = 4
	e := startEngine(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for range 5 {
		_, _, err := e.LoadProject(ctx, cfg.Projects[0])
		require.NoError(t, err)
	}
	awaitIdle(t, e)

	assert.Equal(t, 80, e.Store().Count())
	for i := range 40 {
		assert.Len(t, e.Store().ByName(fmt.Sprintf("v%d", i)), 1, "v%d declared once", i)
	}
	assert.Equal(t, 40, e.Stats().Files)

	// Files gone from disk leave the model when the project is reloaded.
	require.NoError(t, os.Remove(filepath.Join(dir, "f07.c")))
	_, _, err := e.LoadProject(ctx, cfg.Projects[0])
	require.NoError(t, err)
	awaitIdle(t, e)
	assert.Empty(t, e.Store().ByFile("p", "f07.c"))
	assert.Equal(t, 78, e.Store().Count())
}

func TestRemoveFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.c": "int a;\n", "b.c": "#include \"a.c\"\nint b;\n"})
	e := startEngine(t, testConfig(dir, config.ProjectConfig{Name: "p", Root: "."}))
	loadAndWait(t, e)

	require.NoError(t, e.RemoveFile("p", "b.c"))
	assert.Empty(t, e.Store().ByFile("p", "b.c"))
	assert.Empty(t, e.Store().Includes())
	_, err := e.FileStatus("p", "b.c")
	assert.Error(t, err)

	// A file deleted on disk is retracted when its parse comes up.
	require.NoError(t, os.Remove(filepath.Join(dir, "a.c")))
	_, err = e.ReparseFile("p", "a.c", scheduler.Head, false)
	require.NoError(t, err)
	awaitIdle(t, e)
	assert.Zero(t, e.Store().Count())
}

func TestIncludeResolutionAndCycles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/a.h":       "#include \"b.h\"\nint a;\n",
		"src/b.h":       "#include \"a.h\"\nint b;\n",
		"src/main.cc":   "#include <vec.h>\n#include <vector>\n#include \"a.h\"\n",
		"include/vec.h": "struct Vec {};\n",
	})
	e := startEngine(t, testConfig(dir, config.ProjectConfig{Name: "p", Root: ".", IncludeDirs: []string{"include"}}))
	loadAndWait(t, e)

	resolved := map[string]string{}
	for _, inc := range e.Store().Includes() {
		if inc.File == "src/main.cc" {
			resolved[inc.Path] = inc.Resolved
		}
	}
	assert.Equal(t, map[string]string{"vec.h": "include/vec.h", "vector": "", "a.h": "src/a.h"}, resolved)

	cycles := e.Store().IncludeCycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"src/a.h", "src/b.h"}, cycles[0].Files)
}

func TestSaveAndRestore(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.c": "int a;\n", "b.c": "int b(void);\n"})
	cfg := testConfig(dir, config.ProjectConfig{Name: "p", Root: "."})
	cfg.Output.Compress = true

	first := startEngine(t, cfg)
	loadAndWait(t, first)
	require.NoError(t, first.Save())
	assert.FileExists(t, filepath.Join(dir, ".cxxmodel", model.CompressedModelFile))
	assert.FileExists(t, filepath.Join(dir, ".cxxmodel", outline.FileName))

	second := startEngine(t, cfg)
	ok, err := second.Restore()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.Store().Count(), second.Store().Count())

	loadAndWait(t, second)
	assert.Equal(t, int64(0), second.Stats().Parsed)
	assert.Equal(t, int64(2), second.Stats().Skipped)
	assert.Equal(t, 2, second.Store().Count())
	assert.NotEqual(t, first.SessionID(), second.SessionID())

	empty := startEngine(t, testConfig(t.TempDir()))
	ok, err = empty.Restore()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOutline(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.cc": "namespace n { class C { int m; }; }\n"})
	e := startEngine(t, testConfig(dir, config.ProjectConfig{Name: "p", Root: "."}))
	loadAndWait(t, e)

	out := string(e.Outline())
	assert.Contains(t, out, "# Declaration Model")
	assert.Contains(t, out, "`n::C`")
	assert.Contains(t, out, e.SessionID())
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.c": "int a;\n"})
	e := startEngine(t, testConfig(dir, config.ProjectConfig{Name: "p", Root: "."}))
	loadAndWait(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	// Keep touching the file until the watcher has picked it up.
	require.Eventually(t, func() bool {
		writeFiles(t, dir, map[string]string{"sub/new.c": "int fresh;\n"})
		return len(e.Store().ByName("fresh")) == 1
	}, 10*time.Second, 100*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.c")))
	require.Eventually(t, func() bool {
		return len(e.Store().ByFile("p", "a.c")) == 0
	}, 10*time.Second, 50*time.Millisecond)
}
