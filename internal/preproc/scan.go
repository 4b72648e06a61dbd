// Package preproc evaluates C preprocessor conditionals for one file under one
// preprocessor context and reports which source ranges are dead.
//
// It only interprets what the code model needs: conditionals, object-like and
// function-like #define/#undef, #include, #error and #pragma once. Macro
// expansion in ordinary code is left to the grammar.
package preproc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dejo1307/cxxmodel/internal/condstate"
)

// Include is one #include (or #include_next / #import) directive.
type Include struct {
	Path   string `json:"path"`
	System bool   `json:"system,omitempty"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Active bool   `json:"active"`
}

// Result is the outcome of evaluating one file under one context.
type Result struct {
	Context *Context
	// DeadBlocks holds flat [start, end) pairs followed by the pragma-once and
	// error-directive sentinel pairs, ready for condstate.Build.
	DeadBlocks  []int
	Includes    []Include
	ErrorAt     int
	PragmaOnce  int
	Diagnostics []string
	macros      *macroTable
}

// State builds the conditional state for file.
func (r *Result) State(file string) *condstate.State {
	name := file
	if r.Context != nil {
		name = file + "@" + r.Context.Name()
	}
	return condstate.Build(name, r.DeadBlocks)
}

// IsDefined reports whether name was defined when evaluation ended.
func (r *Result) IsDefined(name string) bool {
	return r.macros.isDefined(name)
}

type macroTable struct {
	obj map[string]string
	fn  map[string]bool
}

func newMacroTable(ctx *Context) *macroTable {
	m := &macroTable{obj: make(map[string]string), fn: make(map[string]bool)}
	if ctx != nil {
		for k, v := range ctx.defines {
			m.obj[k] = v
		}
	}
	return m
}

func (m *macroTable) isDefined(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.obj[name]
	return ok || m.fn[name]
}

func (m *macroTable) isFunctionLike(name string) bool {
	return m.fn[name]
}

func (m *macroTable) objectValue(name string) (string, bool) {
	v, ok := m.obj[name]
	return v, ok
}

func (m *macroTable) define(line string) {
	i := 0
	for i < len(line) && isIdentChar(line[i]) {
		i++
	}
	name := line[:i]
	if name == "" {
		return
	}
	if i < len(line) && line[i] == '(' {
		delete(m.obj, name)
		m.fn[name] = true
		return
	}
	delete(m.fn, name)
	m.obj[name] = strings.TrimSpace(line[i:])
}

func (m *macroTable) undef(name string) {
	delete(m.obj, name)
	delete(m.fn, name)
}

type frame struct {
	parentActive bool
	taken        bool
	sawElse      bool
}

type evaluator struct {
	src       []byte
	res       *Result
	stack     []frame
	active    bool
	deadStart int
	blocks    []int
}

// Evaluate runs the conditional directives of src under ctx.
func Evaluate(src []byte, ctx *Context) *Result {
	ev := &evaluator{
		src: src,
		res: &Result{
			Context:    ctx,
			ErrorAt:    -1,
			PragmaOnce: -1,
			macros:     newMacroTable(ctx),
		},
		active:    true,
		deadStart: -1,
	}
	ev.run()
	return ev.res
}

func (ev *evaluator) run() {
	inComment := false
	pos := 0
	for pos < len(ev.src) {
		lineStart := pos
		text, next := logicalLine(ev.src, pos)
		pos = next

		trimmed := bytes.TrimLeft(text, " \t")
		if !inComment && len(trimmed) > 0 && trimmed[0] == '#' {
			lineEnd := lineStart + len(text)
			stop := ev.directive(string(trimmed[1:]), lineStart, lineEnd, next)
			if stop {
				return
			}
			continue
		}
		inComment = commentStateAfter(text, inComment)
	}
	if !ev.active {
		ev.addBlock(ev.deadStart, len(ev.src))
	}
	if len(ev.stack) > 0 {
		ev.diag(len(ev.src), "unterminated conditional (%d open)", len(ev.stack))
	}
	ev.finish()
}

func (ev *evaluator) finish() {
	out := ev.blocks
	if ev.res.PragmaOnce >= 0 {
		out = append(out, ev.res.PragmaOnce, condstate.PragmaOnceEnd)
	}
	if ev.res.ErrorAt >= 0 {
		out = append(out, ev.res.ErrorAt, condstate.ErrorDirectiveEnd)
	}
	ev.res.DeadBlocks = out
}

func (ev *evaluator) diag(offset int, format string, args ...any) {
	ev.res.Diagnostics = append(ev.res.Diagnostics, fmt.Sprintf("%d: %s", offset, fmt.Sprintf(format, args...)))
}

func (ev *evaluator) addBlock(start, end int) {
	if start < 0 || end <= start {
		return
	}
	ev.blocks = append(ev.blocks, start, end)
}

// setActive switches the current branch. A dead region starts after the
// directive that disables code and ends where the re-enabling directive starts.
func (ev *evaluator) setActive(active bool, lineStart, afterLine int) {
	switch {
	case ev.active && !active:
		ev.deadStart = afterLine
	case !ev.active && active:
		ev.addBlock(ev.deadStart, lineStart)
		ev.deadStart = -1
	}
	ev.active = active
}

// directive handles one directive line; it returns true when scanning must
// stop (an active #error).
func (ev *evaluator) directive(body string, lineStart, lineEnd, afterLine int) bool {
	body = stripComments(body)
	body = strings.TrimSpace(body)
	name, rest := splitDirective(body)

	switch name {
	case "if", "ifdef", "ifndef":
		f := frame{parentActive: ev.active}
		cond := false
		if ev.active {
			cond = ev.condition(name, rest, lineStart)
		}
		f.taken = cond || !ev.active
		ev.stack = append(ev.stack, f)
		ev.setActive(ev.active && cond, lineStart, afterLine)

	case "elif", "elifdef", "elifndef", "else":
		if len(ev.stack) == 0 {
			ev.diag(lineStart, "#%s without #if", name)
			return false
		}
		f := &ev.stack[len(ev.stack)-1]
		if f.sawElse {
			ev.diag(lineStart, "#%s after #else", name)
		}
		if name == "else" {
			f.sawElse = true
		}
		if !f.parentActive {
			return false
		}
		if f.taken {
			ev.setActive(false, lineStart, afterLine)
			return false
		}
		cond := true
		if name != "else" {
			cond = ev.condition(strings.Replace(name, "el", "", 1), rest, lineStart)
		}
		if cond {
			f.taken = true
		}
		ev.setActive(cond, lineStart, afterLine)

	case "endif":
		if len(ev.stack) == 0 {
			ev.diag(lineStart, "#endif without #if")
			return false
		}
		f := ev.stack[len(ev.stack)-1]
		ev.stack = ev.stack[:len(ev.stack)-1]
		ev.setActive(f.parentActive, lineStart, afterLine)

	case "define":
		if ev.active {
			ev.res.macros.define(rest)
		}
	case "undef":
		if ev.active {
			ev.res.macros.undef(strings.TrimSpace(rest))
		}
	case "include", "include_next", "import":
		ev.include(rest, lineStart, lineEnd)
	case "error":
		if ev.active {
			ev.res.ErrorAt = lineStart
			ev.finish()
			return true
		}
	case "pragma":
		if ev.active && strings.TrimSpace(rest) == "once" && ev.res.PragmaOnce < 0 {
			ev.res.PragmaOnce = lineStart
		}
	}
	return false
}

func (ev *evaluator) condition(kind, rest string, offset int) bool {
	switch kind {
	case "ifdef":
		return ev.res.macros.isDefined(firstIdent(rest))
	case "ifndef":
		return !ev.res.macros.isDefined(firstIdent(rest))
	}
	ok, err := evalCondition(rest, ev.res.macros)
	if err != nil {
		ev.diag(offset, "%v", err)
		return false
	}
	return ok
}

func (ev *evaluator) include(rest string, start, end int) {
	inc := Include{Start: start, End: end, Active: ev.active}
	rest = strings.TrimSpace(rest)
	if name := firstIdent(rest); name != "" && name == rest {
		if v, ok := ev.res.macros.objectValue(name); ok {
			rest = strings.TrimSpace(v)
		}
	}
	switch {
	case strings.HasPrefix(rest, "<"):
		if i := strings.IndexByte(rest, '>'); i > 0 {
			inc.Path = rest[1:i]
			inc.System = true
		}
	case strings.HasPrefix(rest, `"`):
		if i := strings.IndexByte(rest[1:], '"'); i >= 0 {
			inc.Path = rest[1 : i+1]
		}
	}
	if inc.Path == "" {
		ev.diag(start, "unresolved #include %q", rest)
		inc.Path = rest
	}
	ev.res.Includes = append(ev.res.Includes, inc)
}

// logicalLine returns the line starting at pos, joined across backslash
// continuations (the returned text keeps the raw bytes), and the offset of the
// next line.
func logicalLine(src []byte, pos int) ([]byte, int) {
	end := pos
	for {
		i := bytes.IndexByte(src[end:], '\n')
		if i < 0 {
			return src[pos:], len(src)
		}
		nl := end + i
		body := bytes.TrimRight(src[end:nl], "\r")
		if len(body) > 0 && body[len(body)-1] == '\\' {
			end = nl + 1
			continue
		}
		return bytes.TrimRight(src[pos:nl], "\r"), nl + 1
	}
}

func splitDirective(body string) (string, string) {
	i := 0
	for i < len(body) && isIdentChar(body[i]) {
		i++
	}
	rest := strings.ReplaceAll(body[i:], "\\\n", " ")
	rest = strings.ReplaceAll(rest, "\\\r\n", " ")
	return body[:i], strings.TrimSpace(rest)
}

func firstIdent(s string) string {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && isIdentChar(s[i]) {
		i++
	}
	return s[:i]
}

// stripComments removes // and /* */ comments outside string literals.
func stripComments(s string) string {
	var sb strings.Builder
	inStr := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr != 0 {
			sb.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				sb.WriteByte(s[i])
			} else if c == inStr {
				inStr = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			inStr = c
			sb.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(s) {
			if s[i+1] == '/' {
				break
			}
			if s[i+1] == '*' {
				j := strings.Index(s[i+2:], "*/")
				if j < 0 {
					break
				}
				sb.WriteByte(' ')
				i += j + 3
				continue
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// commentStateAfter reports whether a block comment is still open at the
// end of line.
func commentStateAfter(line []byte, in bool) bool {
	inStr := byte(0)
	for i := 0; i < len(line); i++ {
		c := line[i]
		if in {
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				in = false
				i++
			}
			continue
		}
		if inStr != 0 {
			if c == '\\' {
				i++
			} else if c == inStr {
				inStr = 0
			}
			continue
		}
		switch {
		case c == '"' || c == '\'':
			inStr = c
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return false
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			in = true
			i++
		}
	}
	return in
}
