package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ".", cfg.Repo)
	assert.Equal(t, ".cxxmodel", cfg.Output.Dir)
	assert.Equal(t, 4000, cfg.Output.MaxOutlineTokens)
	assert.Positive(t, cfg.Workers)
	assert.True(t, cfg.Render.GlobalResolve)
	assert.Contains(t, cfg.Ignore, ".git/**")
	require.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "cxxmodel.yaml", `
repo: /src/engine
workers: 3
projects:
  - name: core
    root: core
    include_dirs: [include]
    contexts:
      - name: release
        defines: {NDEBUG: "1"}
      - name: debug
render:
  local_blocks: true
output:
  compress: true
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/src/engine", cfg.Repo)
	assert.Equal(t, 3, cfg.Workers)
	require.Len(t, cfg.Projects, 1)
	p := cfg.Projects[0]
	assert.Equal(t, "core", p.Name)
	assert.Equal(t, []string{"include"}, p.IncludeDirs)
	require.Len(t, p.Contexts, 2)
	assert.Equal(t, "1", p.Contexts[0].Defines["NDEBUG"])
	assert.True(t, cfg.Render.LocalBlocks)
	assert.True(t, cfg.Render.GlobalResolve, "unset fields keep their defaults")
	assert.True(t, cfg.Output.Compress)
	assert.Equal(t, ".cxxmodel", cfg.Output.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "cxxmodel.toml", `
repo = "."
extensions = [".c", ".h"]

[[projects]]
name = "kernel"
root = "src"

[[projects.contexts]]
name = "x86"
defines = { ARCH_X86 = "1" }

[watch]
enabled = true
debounce_ms = 50
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{".c", ".h"}, cfg.Extensions)
	require.Len(t, cfg.Projects, 1)
	assert.Equal(t, "kernel", cfg.Projects[0].Name)
	require.Len(t, cfg.Projects[0].Contexts, 1)
	assert.Equal(t, "1", cfg.Projects[0].Contexts[0].Defines["ARCH_X86"])
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, 50, cfg.Watch.DebounceMS)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad yaml", "c.yaml", "projects: [unterminated"},
		{"bad toml", "c.toml", "repo = "},
		{"unnamed project", "c.yaml", "projects:\n  - root: x\n"},
		{"duplicate project", "c.yaml", "projects:\n  - name: a\n  - name: a\n"},
		{"duplicate context", "c.yaml", "projects:\n  - name: a\n    contexts: [{name: x}, {name: x}]\n"},
		{"bad log level", "c.yaml", "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEffectiveProjects(t *testing.T) {
	cfg := Default()
	cfg.Repo = "/work/engine"
	ps := cfg.EffectiveProjects()
	require.Len(t, ps, 1)
	assert.Equal(t, "engine", ps[0].Name)
	assert.Equal(t, ".", ps[0].Root)

	cfg.Projects = []ProjectConfig{{Name: "a"}, {Name: "b"}}
	assert.Len(t, cfg.EffectiveProjects(), 2)
}
