// Package lineindex maps byte offsets to 1-based line/column positions and
// back.
package lineindex

import (
	"bytes"
	"sort"
)

// Position is a 1-based line and column. Columns count bytes.
type Position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// Index holds the start offset of every line of one source text.
type Index struct {
	starts []int
	size   int
}

// New scans src once and records line starts.
func New(src []byte) *Index {
	starts := make([]int, 1, bytes.Count(src, []byte{'\n'})+1)
	for i := 0; ; {
		j := bytes.IndexByte(src[i:], '\n')
		if j < 0 {
			break
		}
		i += j + 1
		starts = append(starts, i)
	}
	return &Index{starts: starts, size: len(src)}
}

// LineCount returns the number of lines. A trailing newline opens an empty
// last line.
func (x *Index) LineCount() int {
	return len(x.starts)
}

// Size returns the length of the indexed text.
func (x *Index) Size() int {
	return x.size
}

// Position converts offset to a line/column pair. Offsets are clamped to
// [0, Size].
func (x *Index) Position(offset int) Position {
	offset = max(0, min(offset, x.size))
	line := sort.Search(len(x.starts), func(i int) bool { return x.starts[i] > offset }) - 1
	return Position{Line: line + 1, Col: offset - x.starts[line] + 1}
}

// Offset converts a position back to a byte offset. It returns false when
// line is out of range or col runs past the end of the line.
func (x *Index) Offset(p Position) (int, bool) {
	if p.Line < 1 || p.Line > len(x.starts) || p.Col < 1 {
		return 0, false
	}
	start := x.starts[p.Line-1]
	end := x.size
	if p.Line < len(x.starts) {
		end = x.starts[p.Line] - 1
	}
	off := start + p.Col - 1
	if off > end {
		return 0, false
	}
	return off, true
}

// LineStart returns the offset of the first byte of line (1-based).
func (x *Index) LineStart(line int) (int, bool) {
	if line < 1 || line > len(x.starts) {
		return 0, false
	}
	return x.starts[line-1], true
}
