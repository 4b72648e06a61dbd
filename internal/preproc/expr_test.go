package preproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalExpr(t *testing.T) {
	macros := newMacroTable(NewContext("t", map[string]string{
		"ONE":   "1",
		"TWO":   "(ONE + ONE)",
		"EMPTY": "",
		"SELF":  "SELF",
	}))
	macros.fn["FN"] = true

	tests := []struct {
		expr string
		want int64
	}{
		{"1", 1},
		{"0x10 + 010", 24},
		{"0b101", 5},
		{"10UL / 3", 3},
		{"7 % 4", 3},
		{"1 << 4 >> 2", 4},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"-3 + 5", 2},
		{"~0 == -1", 1},
		{"!0 && !1", 0},
		{"1 || 0 && 0", 1},
		{"3 > 2 ? 10 : 20", 10},
		{"0 ? 10 : 1 ? 30 : 40", 30},
		{"'A' == 65", 1},
		{"'\\n'", 10},
		{"defined ONE", 1},
		{"defined(TWO) && TWO == 2", 1},
		{"defined(MISSING)", 0},
		{"MISSING + 1", 1},
		{"EMPTY", 0},
		{"FN(3, (4)) + 2", 2},
		{"UNKNOWN_FN(3) + 2", 2},
		{"__has_include(<vector>)", 0},
		{"__has_include(\"a.h\") || 1", 1},
		{"true && !false", 1},
		{"1'000 == 1000", 1},
		{"6 & 3 | 8 ^ 1", 11},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := evalExpr(tt.expr, macros, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalExpr_Errors(t *testing.T) {
	macros := newMacroTable(NewContext("t", map[string]string{"SELF": "SELF + 1"}))
	for _, expr := range []string{
		"",
		"1 / 0",
		"(1 + 2",
		"1 +",
		"1 2",
		"@",
		"SELF",
		"defined",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := evalExpr(expr, macros, 0)
			assert.Error(t, err)
		})
	}
}
