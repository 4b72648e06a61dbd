// Package condstate records which source ranges of one (file, preprocessor
// context) pair were excluded by conditional compilation, and answers
// coverage and subsumption queries over them.
//
// A State is an immutable, sorted sequence of half-open [start, end) dead
// blocks. Two sentinel encodings reuse the end field: ErrorDirectiveEnd marks
// the offset of an active #error (everything from there on is dead), and
// PragmaOnceEnd marks the offset of an active #pragma once (a boundary, not
// dead code). Sentinel pairs always follow the real blocks.
package condstate

import (
	"fmt"
	"math"
	"strings"

	"github.com/dejo1307/cxxmodel/internal/invariant"
)

// Sentinel values stored in the end slot of a pair.
const (
	ErrorDirectiveEnd = -1
	PragmaOnceEnd     = -2
)

// Empty is the state of a file in which nothing is excluded.
var Empty = &State{name: "<empty>", errorAt: -1, pragmaOnce: -1}

// Computing marks a file whose state is being computed by its first parse.
// It must not be compared as ordinary data.
var Computing = &State{name: "<computing>", computing: true, errorAt: -1, pragmaOnce: -1}

type block struct {
	start, end int
}

// State holds the dead blocks of one file under one preprocessor context.
// A nil *State behaves like Empty.
type State struct {
	name       string
	offsets    []int
	blocks     []block
	errorAt    int
	pragmaOnce int
	computing  bool
}

// Range is a dead region decoded into file-relative form.
type Range struct {
	File  string `json:"file"`
	Start int    `json:"start"`
	// End is exclusive. It is -1 when the region runs to the end of the file.
	End            int  `json:"end"`
	ErrorDirective bool `json:"error_directive,omitempty"`
}

// Build creates a state from flat offset pairs (start0, end0, start1, end1, ...).
// Real pairs must be strictly ascending and non-overlapping; sentinel pairs
// must come last, pragma-once before error-directive. The ordering is only
// verified in cxxdebug builds; producers are trusted otherwise.
func Build(name string, offsets []int) *State {
	if len(offsets) == 0 {
		return Empty
	}
	s := &State{
		name:       name,
		offsets:    append([]int(nil), offsets...),
		errorAt:    -1,
		pragmaOnce: -1,
	}
	for i := 0; i+1 < len(offsets); i += 2 {
		start, end := offsets[i], offsets[i+1]
		switch end {
		case ErrorDirectiveEnd:
			s.errorAt = start
		case PragmaOnceEnd:
			s.pragmaOnce = start
		default:
			s.blocks = append(s.blocks, block{start, end})
		}
	}
	if invariant.Enabled() {
		validate(name, offsets)
	}
	return s
}

func validate(name string, offsets []int) {
	invariant.Check(len(offsets)%2 == 0, "%s: odd offset count %d", name, len(offsets))
	prevEnd := -1
	sentinelSeen := false
	lastSentinel := 0
	for i := 0; i+1 < len(offsets); i += 2 {
		start, end := offsets[i], offsets[i+1]
		if end == ErrorDirectiveEnd || end == PragmaOnceEnd {
			invariant.Check(!sentinelSeen || (lastSentinel == PragmaOnceEnd && end == ErrorDirectiveEnd),
				"%s: misplaced sentinel pair at %d", name, i)
			sentinelSeen = true
			lastSentinel = end
			continue
		}
		invariant.Check(!sentinelSeen, "%s: dead block [%d,%d) after sentinel", name, start, end)
		invariant.Check(start < end, "%s: empty or inverted block [%d,%d)", name, start, end)
		invariant.Check(start >= prevEnd, "%s: block [%d,%d) overlaps previous end %d", name, start, end, prevEnd)
		prevEnd = end
	}
}

// Name returns the label the state was built with.
func (s *State) Name() string {
	if s == nil {
		return Empty.name
	}
	return s.name
}

// IsEmpty reports whether nothing at all is recorded.
func (s *State) IsEmpty() bool {
	return s == nil || (!s.computing && len(s.offsets) == 0)
}

// IsComputing reports whether s is the Computing sentinel.
func (s *State) IsComputing() bool {
	return s != nil && s.computing
}

// IsFromErrorDirective reports whether an active #error truncated the file.
func (s *State) IsFromErrorDirective() bool {
	return s != nil && s.errorAt >= 0
}

// PragmaOnceOffset returns the offset of an active #pragma once.
func (s *State) PragmaOnceOffset() (int, bool) {
	if s == nil || s.pragmaOnce < 0 {
		return 0, false
	}
	return s.pragmaOnce, true
}

// Offsets returns a copy of the raw pair encoding.
func (s *State) Offsets() []int {
	if s == nil {
		return nil
	}
	return append([]int(nil), s.offsets...)
}

// deadBlocks returns real blocks plus the #error truncation as an open block.
func (s *State) deadBlocks() []block {
	if s.errorAt < 0 {
		return s.blocks
	}
	out := make([]block, 0, len(s.blocks)+1)
	out = append(out, s.blocks...)
	return append(out, block{s.errorAt, math.MaxInt})
}

// IsInActiveBlock reports whether the point pair (start, end) avoids every
// dead block. Offset 0 can never be inside a block and is always active.
func (s *State) IsInActiveBlock(start, end int) bool {
	if s.IsEmpty() || s.computing || start == 0 {
		return true
	}
	for _, b := range s.deadBlocks() {
		if b.start <= start && start < b.end {
			return false
		}
		if b.start <= end && end < b.end {
			return false
		}
	}
	return true
}

// ActiveCoverage returns the length of [start, end) left after subtracting
// every dead block it fully contains. It returns -1 when start (unless 0) or
// end lies on a block boundary or inside a block.
func (s *State) ActiveCoverage(start, end int) int64 {
	total := int64(end - start)
	if s.IsEmpty() || s.computing {
		return total
	}
	for _, b := range s.deadBlocks() {
		if start != 0 && b.start <= start && start <= b.end {
			return -1
		}
		if b.start <= end && end <= b.end {
			return -1
		}
		if start <= b.start && b.end <= end {
			total -= int64(b.end - b.start)
		}
	}
	return total
}

// IsBetterOrEqual reports whether s may replace other as the representative
// state of a file. Empty dominates everything. Otherwise every dead block of
// s must be strictly contained in a dead block of other, i.e. s excludes
// less. Equal states are better-or-equal to each other.
//
// The relation is neither total nor guaranteed transitive.
func (s *State) IsBetterOrEqual(other *State) bool {
	if s.IsEmpty() {
		return true
	}
	if other.IsEmpty() {
		return false
	}
	if s.Equal(other) {
		return true
	}
	theirs := other.deadBlocks()
	for _, mine := range s.deadBlocks() {
		contained := false
		for _, o := range theirs {
			if o.start <= mine.start && mine.end <= o.end && o != mine {
				contained = true
				break
			}
		}
		if !contained {
			return false
		}
	}
	return true
}

// Equal compares the recorded offsets; names are ignored.
func (s *State) Equal(other *State) bool {
	if s.IsComputing() || other.IsComputing() {
		return s == other
	}
	a, b := s.Offsets(), other.Offsets()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CreateRanges decodes the dead regions as file-relative ranges. The #error
// truncation becomes an open range flagged ErrorDirective; the pragma-once
// boundary is not dead code and is omitted.
func (s *State) CreateRanges(file string) []Range {
	if s.IsEmpty() || s.computing {
		return nil
	}
	out := make([]Range, 0, len(s.blocks)+1)
	for _, b := range s.blocks {
		out = append(out, Range{File: file, Start: b.start, End: b.end})
	}
	if s.errorAt >= 0 {
		out = append(out, Range{File: file, Start: s.errorAt, End: -1, ErrorDirective: true})
	}
	return out
}

// DeadLength returns the number of bytes in real dead blocks.
func (s *State) DeadLength() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, b := range s.blocks {
		n += b.end - b.start
	}
	return n
}

func (s *State) String() string {
	if s.IsComputing() {
		return Computing.name
	}
	if s.IsEmpty() {
		return Empty.name
	}
	var sb strings.Builder
	sb.WriteString(s.name)
	sb.WriteString(" [")
	for i, b := range s.blocks {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "[%d,%d)", b.start, b.end)
	}
	sb.WriteByte(']')
	if s.pragmaOnce >= 0 {
		fmt.Fprintf(&sb, " once@%d", s.pragmaOnce)
	}
	if s.errorAt >= 0 {
		fmt.Fprintf(&sb, " #error@%d", s.errorAt)
	}
	return sb.String()
}
