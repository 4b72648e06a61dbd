package project

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejo1307/cxxmodel/internal/preproc"
)

func TestNew_DefaultContext(t *testing.T) {
	p := New("core", "/src/core", nil, nil)
	require.Len(t, p.Contexts, 1)
	assert.Equal(t, "default", p.Contexts[0].Name())
}

func TestFile_IsComparable(t *testing.T) {
	p := New("core", "/src/core", []*preproc.Context{preproc.NewContext("dbg", map[string]string{"DEBUG": "1"})}, nil)
	a := p.File("lib/a.cc")
	b := p.File("lib/a.cc")

	seen := map[File]int{a: 1}
	assert.Equal(t, 1, seen[b])
	assert.Equal(t, "core:lib/a.cc", a.String())
	assert.Equal(t, filepath.Join("/src/core", "lib", "a.cc"), a.Abs())

	other := New("core", "/src/core", nil, nil)
	assert.NotEqual(t, a, other.File("lib/a.cc"), "files of distinct projects differ")
}

func TestDispose(t *testing.T) {
	p := New("core", "/src/core", nil, nil)
	assert.False(t, p.IsDisposing())
	p.Dispose()
	assert.True(t, p.IsDisposing())
}
