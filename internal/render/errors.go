package render

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ShapeError reports a declaration node whose layout the renderer does not
// understand. Rendering of the enclosing item stops; its siblings continue.
type ShapeError struct {
	Shape    string // shape being rendered, e.g. "function"
	NodeKind string
	Offset   int
	Reason   string
	Dump     string // s-expression of the node, when Options.DumpOnError is set
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("render %s: unexpected %s at offset %d: %s", e.Shape, e.NodeKind, e.Offset, e.Reason)
}

func shapeErr(shape string, n *sitter.Node, format string, args ...any) *ShapeError {
	return &ShapeError{
		Shape:    shape,
		NodeKind: n.Kind(),
		Offset:   int(n.StartByte()),
		Reason:   fmt.Sprintf(format, args...),
	}
}

// Diagnostic is one problem recorded while rendering a file.
type Diagnostic struct {
	Offset  int    `json:"offset"`
	Line    int    `json:"line"`
	Message string `json:"message"`
	Dump    string `json:"dump,omitempty"`
}
