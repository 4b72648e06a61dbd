package preproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejo1307/cxxmodel/internal/condstate"
)

// --- helpers ---

func eval(t *testing.T, src string, defines map[string]string) *Result {
	t.Helper()
	return Evaluate([]byte(src), NewContext("test", defines))
}

func idx(t *testing.T, src, sub string) int {
	t.Helper()
	i := strings.Index(src, sub)
	require.GreaterOrEqual(t, i, 0, "%q not found", sub)
	return i
}

// --- conditionals ---

func TestEvaluate_IfdefElse(t *testing.T) {
	src := "#ifdef FOO\nint a;\n#else\nint b;\n#endif\nint c;\n"

	undefined := eval(t, src, nil)
	assert.Equal(t, []int{idx(t, src, "int a"), idx(t, src, "#else")}, undefined.DeadBlocks)

	defined := eval(t, src, map[string]string{"FOO": ""})
	assert.Equal(t, []int{idx(t, src, "int b"), idx(t, src, "#endif")}, defined.DeadBlocks)
}

func TestEvaluate_Ifndef(t *testing.T) {
	src := "#ifndef GUARD_H\n#define GUARD_H\nint a;\n#endif\n"
	res := eval(t, src, nil)
	assert.Empty(t, res.DeadBlocks)
	assert.True(t, res.IsDefined("GUARD_H"))

	guarded := eval(t, src, map[string]string{"GUARD_H": ""})
	assert.Equal(t, []int{idx(t, src, "#define"), idx(t, src, "#endif")}, guarded.DeadBlocks)
}

func TestEvaluate_ElifChain(t *testing.T) {
	src := "#if V == 1\none;\n#elif V == 2\ntwo;\n#elif V == 3\nthree;\n#else\nother;\n#endif\n"

	res := eval(t, src, map[string]string{"V": "2"})
	assert.Equal(t, []int{
		idx(t, src, "one;"), idx(t, src, "#elif V == 2"),
		idx(t, src, "three;"), idx(t, src, "#endif"),
	}, res.DeadBlocks)

	none := eval(t, src, map[string]string{"V": "9"})
	assert.Equal(t, []int{idx(t, src, "one;"), idx(t, src, "#else")}, none.DeadBlocks)
}

func TestEvaluate_NestedDeadRegionIsOneBlock(t *testing.T) {
	src := "#if 0\n#ifdef X\nint a;\n#else\nint b;\n#endif\n#endif\nint c;\n"
	res := eval(t, src, map[string]string{"X": ""})
	assert.Equal(t, []int{idx(t, src, "#ifdef X"), strings.LastIndex(src, "#endif")}, res.DeadBlocks)
}

func TestEvaluate_DefineInFileAffectsLaterConditionals(t *testing.T) {
	src := "#define LEVEL 3\n#if LEVEL > 2\nint hi;\n#endif\n#undef LEVEL\n#ifdef LEVEL\nint gone;\n#endif\n"
	res := eval(t, src, nil)
	assert.Equal(t, []int{idx(t, src, "int gone"), strings.LastIndex(src, "#endif")}, res.DeadBlocks)
}

func TestEvaluate_FunctionLikeMacroInCondition(t *testing.T) {
	src := "#define F(x) x\n#if F(1)\nint a;\n#endif\n"
	res := eval(t, src, nil)
	assert.Equal(t, []int{idx(t, src, "int a"), idx(t, src, "#endif")}, res.DeadBlocks)
	assert.True(t, res.IsDefined("F"))
}

func TestEvaluate_DirectivesInBlockCommentIgnored(t *testing.T) {
	src := "/*\n#if 0\n*/\nint a;\n"
	res := eval(t, src, nil)
	assert.Empty(t, res.DeadBlocks)
}

func TestEvaluate_LineContinuation(t *testing.T) {
	src := "#if defined(A) && \\\n    defined(B)\nint ab;\n#endif\n"
	res := eval(t, src, map[string]string{"A": "1"})
	assert.Equal(t, []int{idx(t, src, "int ab"), idx(t, src, "#endif")}, res.DeadBlocks)

	both := eval(t, src, map[string]string{"A": "1", "B": "1"})
	assert.Empty(t, both.DeadBlocks)
}

func TestEvaluate_Unterminated(t *testing.T) {
	src := "#if 0\nint a;\n"
	res := eval(t, src, nil)
	assert.Equal(t, []int{idx(t, src, "int a"), len(src)}, res.DeadBlocks)
	assert.NotEmpty(t, res.Diagnostics)
}

func TestEvaluate_StrayEndif(t *testing.T) {
	res := eval(t, "#endif\nint a;\n", nil)
	assert.Empty(t, res.DeadBlocks)
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0], "#endif without #if")
}

// --- error and pragma ---

func TestEvaluate_ErrorDirectiveTruncates(t *testing.T) {
	src := "int a;\n#error unsupported\nint b;\n#if 0\nint c;\n#endif\n"
	res := eval(t, src, nil)

	at := idx(t, src, "#error")
	assert.Equal(t, at, res.ErrorAt)
	assert.Equal(t, []int{at, condstate.ErrorDirectiveEnd}, res.DeadBlocks)

	st := res.State("a.cc")
	assert.True(t, st.IsFromErrorDirective())
	assert.False(t, st.IsInActiveBlock(idx(t, src, "int b"), idx(t, src, "int b")+6))
}

func TestEvaluate_InactiveErrorIsIgnored(t *testing.T) {
	src := "#ifdef WIN32\n#error no windows\n#endif\nint a;\n"
	res := eval(t, src, nil)
	assert.Equal(t, -1, res.ErrorAt)
	assert.Equal(t, []int{idx(t, src, "#error"), idx(t, src, "#endif")}, res.DeadBlocks)
}

func TestEvaluate_PragmaOnce(t *testing.T) {
	src := "// header\n#pragma once\nint a;\n"
	res := eval(t, src, nil)
	assert.Equal(t, idx(t, src, "#pragma"), res.PragmaOnce)
	assert.Equal(t, []int{res.PragmaOnce, condstate.PragmaOnceEnd}, res.DeadBlocks)
}

// --- includes ---

func TestEvaluate_Includes(t *testing.T) {
	src := "#include \"local.h\"\n#include <vector>\n#if 0\n#include <dead.h>\n#endif\n#define HDR <macro.h>\n#include HDR\n"
	res := eval(t, src, nil)

	require.Len(t, res.Includes, 4)
	assert.Equal(t, Include{Path: "local.h", Start: 0, End: len("#include \"local.h\""), Active: true}, res.Includes[0])
	assert.Equal(t, "vector", res.Includes[1].Path)
	assert.True(t, res.Includes[1].System)
	assert.Equal(t, "dead.h", res.Includes[2].Path)
	assert.False(t, res.Includes[2].Active)
	assert.Equal(t, "macro.h", res.Includes[3].Path)
	assert.True(t, res.Includes[3].System)
}

// --- contexts ---

func TestContext_KeyIsOrderIndependent(t *testing.T) {
	a := NewContext("tu", map[string]string{"A": "1", "B": "2"})
	b := NewContext("tu", map[string]string{"B": "2", "A": "1"})
	c := NewContext("tu", map[string]string{"A": "1"})

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, "tu", a.Name())

	defs := a.Defines()
	defs["C"] = "3"
	assert.NotContains(t, a.Defines(), "C")
}
