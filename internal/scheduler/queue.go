package scheduler

import (
	"container/heap"
	"fmt"

	"github.com/dejo1307/cxxmodel/internal/project"
)

// Position is the priority tier of a queued task.
type Position int

const (
	Immediate Position = iota
	Head
	Tail
)

func (p Position) String() string {
	switch p {
	case Immediate:
		return "immediate"
	case Head:
		return "head"
	case Tail:
		return "tail"
	}
	return fmt.Sprintf("Position(%d)", int(p))
}

// ParsePosition maps a name to a Position.
func ParsePosition(s string) (Position, error) {
	switch s {
	case "immediate":
		return Immediate, nil
	case "head", "":
		return Head, nil
	case "tail":
		return Tail, nil
	}
	return 0, fmt.Errorf("unknown queue position %q", s)
}

// Task is one file waiting to be parsed under a set of states.
type Task struct {
	File     project.File
	States   []State
	Position Position
	Serial   int64

	index int
}

// taskHeap orders tasks by (position, serial). Head tasks run newest first;
// Immediate and Tail tasks run oldest first.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if a.Position == Head {
		return a.Serial > b.Serial
	}
	return a.Serial < b.Serial
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

func (h *taskHeap) remove(t *Task) {
	if t.index >= 0 && t.index < len(*h) && (*h)[t.index] == t {
		heap.Remove(h, t.index)
	}
}
