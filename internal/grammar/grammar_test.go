package grammar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejo1307/cxxmodel/internal/condstate"
	"github.com/dejo1307/cxxmodel/internal/preproc"
)

func TestParse_TreeAndContexts(t *testing.T) {
	src := []byte("#ifdef FAST\nint fast();\n#else\nint slow();\n#endif\nint always;\n")
	fast := preproc.NewContext("fast", map[string]string{"FAST": "1"})
	slow := preproc.NewContext("slow", nil)

	res, err := New().Parse(context.Background(), "a.cc", src, []*preproc.Context{fast, slow})
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, "translation_unit", res.Root().Kind())
	require.Len(t, res.Contexts, 2)
	assert.Same(t, fast, res.Contexts[0].Context)
	assert.Same(t, slow, res.Contexts[1].Context)
	assert.False(t, res.State.IsEmpty())
	assert.Equal(t, res.Contexts[res.Chosen], res.Representative())
}

func TestParse_DefaultContext(t *testing.T) {
	res, err := New().Parse(context.Background(), "a.h", []byte("struct S {};\n"), nil)
	require.NoError(t, err)
	defer res.Close()

	require.Len(t, res.Contexts, 1)
	assert.Equal(t, "default", res.Contexts[0].Context.Name())
	assert.True(t, res.State.IsEmpty())
}

func TestParse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Parse(ctx, "a.cc", []byte("int a;"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelectRepresentative(t *testing.T) {
	wide := condstate.Build("wide", []int{10, 50})
	narrow := condstate.Build("narrow", []int{20, 30})
	disjoint := condstate.Build("disjoint", []int{60, 70})

	tests := []struct {
		name   string
		states []*condstate.State
		want   int
	}{
		{"single", []*condstate.State{wide}, 0},
		{"empty wins", []*condstate.State{wide, condstate.Empty}, 1},
		{"narrower dead zone wins", []*condstate.State{wide, narrow}, 1},
		{"no dominance falls back to first", []*condstate.State{narrow, disjoint}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectRepresentative(tt.states))
		})
	}
}

func TestIsSource(t *testing.T) {
	assert.True(t, IsSource("src/a.CPP", nil))
	assert.True(t, IsSource("include/a.hpp", nil))
	assert.False(t, IsSource("README.md", nil))
	assert.True(t, IsSource("gen/x.tpp", []string{".tpp"}))
	assert.False(t, IsSource("a.cc", []string{".tpp"}))
}
