package preproc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errDivideByZero = errors.New("division by zero in #if")

// maxExpandDepth bounds object-like macro expansion inside #if.
const maxExpandDepth = 32

type tokKind int

const (
	tokNum tokKind = iota
	tokIdent
	tokOp
	tokEOF
)

type token struct {
	kind tokKind
	text string
	val  int64
}

// tokenizeExpr splits the text of an #if/#elif condition.
func tokenizeExpr(s string) ([]token, error) {
	var out []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case isIdentStart(c):
			j := i + 1
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			out = append(out, token{kind: tokIdent, text: s[i:j]})
			i = j
		case c >= '0' && c <= '9':
			j := i + 1
			for j < len(s) && (isIdentChar(s[j]) || s[j] == '\'') {
				j++
			}
			v, err := parseIntLiteral(s[i:j])
			if err != nil {
				return nil, err
			}
			out = append(out, token{kind: tokNum, text: s[i:j], val: v})
			i = j
		case c == '\'':
			v, n, err := parseCharLiteral(s[i:])
			if err != nil {
				return nil, err
			}
			out = append(out, token{kind: tokNum, text: s[i : i+n], val: v})
			i += n
		case c == '"':
			end := strings.IndexByte(s[i+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated string in #if")
			}
			out = append(out, token{kind: tokOp, text: s[i : i+end+2]})
			i += end + 2
		default:
			op := ""
			for _, cand := range []string{"<<", ">>", "<=", ">=", "==", "!=", "&&", "||"} {
				if strings.HasPrefix(s[i:], cand) {
					op = cand
					break
				}
			}
			if op == "" {
				if !strings.ContainsRune("+-*/%<>!~&|^?:(),.", rune(c)) {
					return nil, fmt.Errorf("unexpected character %q in #if", c)
				}
				op = string(c)
			}
			out = append(out, token{kind: tokOp, text: op})
			i += len(op)
		}
	}
	return out, nil
}

func parseIntLiteral(lit string) (int64, error) {
	lit = strings.ReplaceAll(lit, "'", "")
	lit = strings.TrimRight(lit, "uUlL")
	base := 10
	switch {
	case strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X"):
		base = 16
		lit = lit[2:]
	case strings.HasPrefix(lit, "0b") || strings.HasPrefix(lit, "0B"):
		base = 2
		lit = lit[2:]
	case len(lit) > 1 && lit[0] == '0':
		base = 8
		lit = lit[1:]
	}
	v, err := strconv.ParseUint(lit, base, 64)
	if err != nil {
		return 0, fmt.Errorf("bad integer literal %q: %w", lit, err)
	}
	return int64(v), nil
}

func parseCharLiteral(s string) (int64, int, error) {
	end := strings.IndexByte(s[1:], '\'')
	if end < 0 {
		return 0, 0, fmt.Errorf("unterminated character literal")
	}
	body := s[1 : end+1]
	n := end + 2
	if body == "" {
		return 0, n, fmt.Errorf("empty character literal")
	}
	if body[0] != '\\' {
		return int64(body[0]), n, nil
	}
	if len(body) < 2 {
		return 0, n, fmt.Errorf("bad escape in character literal")
	}
	switch body[1] {
	case 'n':
		return '\n', n, nil
	case 't':
		return '\t', n, nil
	case 'r':
		return '\r', n, nil
	case '0':
		return 0, n, nil
	default:
		return int64(body[1]), n, nil
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// exprParser evaluates a tokenized condition with C precedence. Identifiers
// expand through the macro table; unknown identifiers evaluate to 0.
type exprParser struct {
	toks   []token
	pos    int
	macros *macroTable
	depth  int
}

func evalCondition(text string, macros *macroTable) (bool, error) {
	v, err := evalExpr(text, macros, 0)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func evalExpr(text string, macros *macroTable, depth int) (int64, error) {
	if depth > maxExpandDepth {
		return 0, fmt.Errorf("macro expansion too deep in #if")
	}
	toks, err := tokenizeExpr(text)
	if err != nil {
		return 0, err
	}
	p := &exprParser{toks: toks, macros: macros, depth: depth}
	if len(toks) == 0 {
		return 0, fmt.Errorf("empty #if condition")
	}
	v, err := p.ternary()
	if err != nil {
		return 0, err
	}
	if p.peek().kind != tokEOF {
		return 0, fmt.Errorf("unexpected %q in #if", p.peek().text)
	}
	return v, nil
}

func (p *exprParser) peek() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *exprParser) next() token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *exprParser) acceptOp(op string) bool {
	t := p.peek()
	if t.kind == tokOp && t.text == op {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) expectOp(op string) error {
	if !p.acceptOp(op) {
		return fmt.Errorf("expected %q in #if, got %q", op, p.peek().text)
	}
	return nil
}

func (p *exprParser) ternary() (int64, error) {
	cond, err := p.binary(0)
	if err != nil {
		return 0, err
	}
	if !p.acceptOp("?") {
		return cond, nil
	}
	a, err := p.ternary()
	if err != nil {
		return 0, err
	}
	if err := p.expectOp(":"); err != nil {
		return 0, err
	}
	b, err := p.ternary()
	if err != nil {
		return 0, err
	}
	if cond != 0 {
		return a, nil
	}
	return b, nil
}

var binaryPrec = map[string]int{
	"||": 1, "&&": 2, "|": 3, "^": 4, "&": 5,
	"==": 6, "!=": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

// binary is a precedence-climbing loop over left-associative operators.
func (p *exprParser) binary(minPrec int) (int64, error) {
	lhs, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		t := p.peek()
		prec, ok := binaryPrec[t.text]
		if t.kind != tokOp || !ok || prec <= minPrec {
			return lhs, nil
		}
		p.pos++
		rhs, err := p.binary(prec)
		if err != nil {
			return 0, err
		}
		lhs, err = applyBinary(t.text, lhs, rhs)
		if err != nil {
			return 0, err
		}
	}
}

func applyBinary(op string, a, b int64) (int64, error) {
	switch op {
	case "||":
		return boolInt(a != 0 || b != 0), nil
	case "&&":
		return boolInt(a != 0 && b != 0), nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "&":
		return a & b, nil
	case "==":
		return boolInt(a == b), nil
	case "!=":
		return boolInt(a != b), nil
	case "<":
		return boolInt(a < b), nil
	case ">":
		return boolInt(a > b), nil
	case "<=":
		return boolInt(a <= b), nil
	case ">=":
		return boolInt(a >= b), nil
	case "<<":
		return a << uint64(b&63), nil
	case ">>":
		return a >> uint64(b&63), nil
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, errDivideByZero
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return 0, errDivideByZero
		}
		return a % b, nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (p *exprParser) unary() (int64, error) {
	switch {
	case p.acceptOp("!"):
		v, err := p.unary()
		return boolInt(v == 0), err
	case p.acceptOp("~"):
		v, err := p.unary()
		return ^v, err
	case p.acceptOp("-"):
		v, err := p.unary()
		return -v, err
	case p.acceptOp("+"):
		return p.unary()
	}
	return p.primary()
}

func (p *exprParser) primary() (int64, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return t.val, nil
	case tokOp:
		if t.text != "(" {
			return 0, fmt.Errorf("unexpected %q in #if", t.text)
		}
		v, err := p.ternary()
		if err != nil {
			return 0, err
		}
		return v, p.expectOp(")")
	case tokIdent:
		return p.identifier(t.text)
	}
	return 0, fmt.Errorf("unexpected end of #if condition")
}

func (p *exprParser) identifier(name string) (int64, error) {
	switch name {
	case "defined":
		paren := p.acceptOp("(")
		id := p.next()
		if id.kind != tokIdent {
			return 0, fmt.Errorf("defined without a macro name")
		}
		if paren {
			if err := p.expectOp(")"); err != nil {
				return 0, err
			}
		}
		return boolInt(p.macros.isDefined(id.text)), nil
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}

	// Function-like invocations (including __has_include and friends) are
	// not expanded; the whole call evaluates to 0.
	if p.peek().kind == tokOp && p.peek().text == "(" && (p.macros.isFunctionLike(name) || !p.macros.isDefined(name) || strings.HasPrefix(name, "__has_")) {
		p.skipArguments()
		return 0, nil
	}

	value, ok := p.macros.objectValue(name)
	if !ok || strings.TrimSpace(value) == "" {
		return 0, nil
	}
	return evalExpr(value, p.macros, p.depth+1)
}

func (p *exprParser) skipArguments() {
	depth := 0
	for {
		t := p.next()
		if t.kind == tokEOF {
			return
		}
		if t.kind != tokOp {
			continue
		}
		switch t.text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return
			}
		}
	}
}
