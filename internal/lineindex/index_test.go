package lineindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_Position(t *testing.T) {
	x := New([]byte("ab\ncde\n\nf"))

	tests := []struct {
		offset int
		want   Position
	}{
		{0, Position{1, 1}},
		{2, Position{1, 3}}, // the newline itself
		{3, Position{2, 1}},
		{6, Position{2, 4}},
		{7, Position{3, 1}},
		{8, Position{4, 1}},
		{9, Position{4, 2}}, // end of text
		{-5, Position{1, 1}},
		{99, Position{4, 2}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.offset), func(t *testing.T) {
			assert.Equal(t, tt.want, x.Position(tt.offset))
		})
	}
	assert.Equal(t, 4, x.LineCount())
	assert.Equal(t, 9, x.Size())
}

func TestIndex_RoundTrip(t *testing.T) {
	src := []byte("int a;\r\nnamespace n {\n  int b;\n}\n")
	x := New(src)
	for off := range len(src) + 1 {
		back, ok := x.Offset(x.Position(off))
		require.True(t, ok, "offset %d", off)
		assert.Equal(t, off, back)
	}
}

func TestIndex_OffsetOutOfRange(t *testing.T) {
	x := New([]byte("ab\ncd"))

	_, ok := x.Offset(Position{Line: 0, Col: 1})
	assert.False(t, ok)
	_, ok = x.Offset(Position{Line: 3, Col: 1})
	assert.False(t, ok)
	_, ok = x.Offset(Position{Line: 1, Col: 5})
	assert.False(t, ok, "column past end of line")

	start, ok := x.LineStart(2)
	require.True(t, ok)
	assert.Equal(t, 3, start)
}

func TestIndex_Empty(t *testing.T) {
	x := New(nil)
	assert.Equal(t, 1, x.LineCount())
	assert.Equal(t, Position{1, 1}, x.Position(0))
}
