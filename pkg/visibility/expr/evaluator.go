// Package expr implements the small rule language used by wizard schemas.
//
// Supported forms:
//   - truthiness: `online`, `!online`
//   - comparisons: `registration_method == "full"`, `count != 0`
//   - ordering: `registration.max_age >= registration.min_age`, `end > start`
//   - composition: `a && (b || !c)`
//
// Identifiers are dotted paths into visibility.Context.Values, or into Extras
// with the `extras.` prefix. On the right-hand side a bare identifier refers to
// a field when that field exists and is otherwise read as a string literal.
package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-formwizard/pkg/values"
	"github.com/goliatone/go-formwizard/pkg/visibility"
)

// Evaluator compiles rules once and caches the result.
type Evaluator struct {
	cache sync.Map
}

var _ visibility.Evaluator = (*Evaluator)(nil)

func New() *Evaluator { return &Evaluator{} }

func (e *Evaluator) Eval(target, rule string, ctx visibility.Context) (bool, error) {
	_ = target
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return true, nil
	}
	if cached, ok := e.cache.Load(trimmed); ok {
		return cached.(*Program).Eval(ctx)
	}
	program, err := Compile(trimmed)
	if err != nil {
		return false, err
	}
	e.cache.Store(trimmed, program)
	return program.Eval(ctx)
}

// Program is a compiled rule.
type Program struct {
	source string
	root   node
}

// Compile parses rule. An empty rule compiles to a program that always holds.
func Compile(rule string) (*Program, error) {
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return &Program{}, nil
	}
	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}
	stream := &tokenStream{tokens: tokens}
	root, err := parseOr(stream)
	if err != nil {
		return nil, err
	}
	if stream.pos < len(stream.tokens) {
		return nil, fmt.Errorf("expr: unexpected token %q", stream.tokens[stream.pos].raw)
	}
	return &Program{source: trimmed, root: root}, nil
}

// MustCompile is like Compile but panics on error. Intended for package-level
// rule tables.
func MustCompile(rule string) *Program {
	program, err := Compile(rule)
	if err != nil {
		panic(err)
	}
	return program
}

// String returns the rule source.
func (p *Program) String() string {
	return p.source
}

// Eval runs the program against ctx.
func (p *Program) Eval(ctx visibility.Context) (bool, error) {
	if p == nil || p.root == nil {
		return true, nil
	}
	return p.root.eval(ctx)
}

// Fields lists the identifiers the program reads, in order of appearance.
func (p *Program) Fields() []string {
	if p == nil || p.root == nil {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	p.root.fields(func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	})
	return out
}

type tokenKind int

const (
	tokenIdentifier tokenKind = iota
	tokenString
	tokenNumber
	tokenBool
	tokenNull
	tokenEq
	tokenNeq
	tokenLt
	tokenLte
	tokenGt
	tokenGte
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	raw  string
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	peek := func(offset int) byte {
		if i+offset >= len(input) {
			return 0
		}
		return input[i+offset]
	}
	emit := func(kind tokenKind, raw string) {
		tokens = append(tokens, token{kind: kind, raw: raw})
		i += len(raw)
	}

	for i < len(input) {
		ch := input[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(':
			emit(tokenLParen, "(")
		case ch == ')':
			emit(tokenRParen, ")")
		case ch == '!' && peek(1) == '=':
			emit(tokenNeq, "!=")
		case ch == '!':
			emit(tokenNot, "!")
		case ch == '=' && peek(1) == '=':
			emit(tokenEq, "==")
		case ch == '=':
			return nil, errors.New("expr: unexpected '='; use '=='")
		case ch == '<' && peek(1) == '=':
			emit(tokenLte, "<=")
		case ch == '<':
			emit(tokenLt, "<")
		case ch == '>' && peek(1) == '=':
			emit(tokenGte, ">=")
		case ch == '>':
			emit(tokenGt, ">")
		case ch == '&' && peek(1) == '&':
			emit(tokenAnd, "&&")
		case ch == '|' && peek(1) == '|':
			emit(tokenOr, "||")
		case ch == '&' || ch == '|':
			return nil, fmt.Errorf("expr: unexpected %q; use %q", string(ch), strings.Repeat(string(ch), 2))
		case ch == '"' || ch == '\'':
			value, width, err := readString(input[i:])
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenString, raw: value})
			i += width
		default:
			start := i
			for i < len(input) && !isDelimiter(input[i]) {
				i++
			}
			raw := input[start:i]
			switch lower := strings.ToLower(raw); {
			case lower == "true" || lower == "false":
				tokens = append(tokens, token{kind: tokenBool, raw: lower})
			case lower == "null" || lower == "nil":
				tokens = append(tokens, token{kind: tokenNull, raw: "null"})
			case looksLikeNumber(raw):
				tokens = append(tokens, token{kind: tokenNumber, raw: raw})
			default:
				tokens = append(tokens, token{kind: tokenIdentifier, raw: raw})
			}
		}
	}
	return tokens, nil
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '(', ')', '!', '=', '<', '>', '&', '|', '"', '\'':
		return true
	}
	return false
}

// readString returns the unquoted literal at the start of input and how many
// bytes it spans.
func readString(input string) (string, int, error) {
	quote := input[0]
	escaped := false
	for i := 1; i < len(input); i++ {
		c := input[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == quote:
			body := input[1:i]
			if quote == '\'' {
				body = strings.ReplaceAll(strings.ReplaceAll(body, `\'`, `'`), `"`, `\"`)
			}
			value, err := strconv.Unquote(`"` + body + `"`)
			if err != nil {
				return "", 0, fmt.Errorf("expr: invalid string literal: %w", err)
			}
			return value, i + 1, nil
		}
	}
	return "", 0, errors.New("expr: unterminated string literal")
}

func looksLikeNumber(raw string) bool {
	if raw == "" {
		return false
	}
	_, err := strconv.ParseFloat(raw, 64)
	return err == nil
}

type node interface {
	eval(ctx visibility.Context) (bool, error)
	fields(fn func(string))
}

type orNode struct{ left, right node }

func (n orNode) eval(ctx visibility.Context) (bool, error) {
	ok, err := n.left.eval(ctx)
	if err != nil || ok {
		return ok, err
	}
	return n.right.eval(ctx)
}

func (n orNode) fields(fn func(string)) { n.left.fields(fn); n.right.fields(fn) }

type andNode struct{ left, right node }

func (n andNode) eval(ctx visibility.Context) (bool, error) {
	ok, err := n.left.eval(ctx)
	if err != nil || !ok {
		return false, err
	}
	return n.right.eval(ctx)
}

func (n andNode) fields(fn func(string)) { n.left.fields(fn); n.right.fields(fn) }

type notNode struct{ inner node }

func (n notNode) eval(ctx visibility.Context) (bool, error) {
	ok, err := n.inner.eval(ctx)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (n notNode) fields(fn func(string)) { n.inner.fields(fn) }

type truthyNode struct{ identifier string }

func (n truthyNode) eval(ctx visibility.Context) (bool, error) {
	value, ok := lookup(ctx, n.identifier)
	return ok && truthy(value), nil
}

func (n truthyNode) fields(fn func(string)) { fn(n.identifier) }

type operandKind int

const (
	operandField operandKind = iota
	operandString
	operandNumber
	operandBool
	operandNull
	// operandName is a bare identifier on the right-hand side: a field when
	// present, a string otherwise.
	operandName
)

type operand struct {
	kind operandKind
	raw  string
}

func (o operand) resolve(ctx visibility.Context) (any, operandKind) {
	switch o.kind {
	case operandField:
		value, _ := lookup(ctx, o.raw)
		return value, operandField
	case operandName:
		if value, ok := lookup(ctx, o.raw); ok {
			return value, operandField
		}
		return o.raw, operandString
	case operandNumber:
		f, _ := strconv.ParseFloat(o.raw, 64)
		return f, operandNumber
	case operandBool:
		return o.raw == "true", operandBool
	case operandNull:
		return nil, operandNull
	default:
		return o.raw, operandString
	}
}

type compareNode struct {
	left  operand
	op    tokenKind
	right operand
}

func (n compareNode) fields(fn func(string)) {
	for _, side := range []operand{n.left, n.right} {
		if side.kind == operandField || side.kind == operandName {
			fn(side.raw)
		}
	}
}

func (n compareNode) eval(ctx visibility.Context) (bool, error) {
	left, leftKind := n.left.resolve(ctx)
	right, rightKind := n.right.resolve(ctx)

	switch {
	case leftKind == operandNull || rightKind == operandNull:
		other := left
		if leftKind == operandNull {
			other = right
		}
		return n.equality(values.IsEmpty(other) && !isBool(other))
	case leftKind == operandBool || rightKind == operandBool:
		l, _ := coerceBool(left)
		r, _ := coerceBool(right)
		return n.equality(l == r)
	}

	if n.op == tokenEq || n.op == tokenNeq {
		if leftKind == operandNumber || rightKind == operandNumber {
			l, lok := coerceNumber(left)
			r, rok := coerceNumber(right)
			return n.equality(lok && rok && l == r)
		}
		if l, r, ok := bothNumbers(left, right); ok && leftKind == operandField && rightKind == operandField {
			return n.equality(l == r)
		}
		return n.equality(coerceString(left) == coerceString(right))
	}

	cmp, ok := order(left, right)
	if !ok {
		return false, nil
	}
	switch n.op {
	case tokenLt:
		return cmp < 0, nil
	case tokenLte:
		return cmp <= 0, nil
	case tokenGt:
		return cmp > 0, nil
	case tokenGte:
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("expr: unsupported operator")
}

func (n compareNode) equality(equal bool) (bool, error) {
	switch n.op {
	case tokenEq:
		return equal, nil
	case tokenNeq:
		return !equal, nil
	default:
		return false, fmt.Errorf("expr: ordering operator used with null or bool operand")
	}
}

// order compares numbers numerically, RFC3339 timestamps chronologically and
// anything else lexically. Missing values never order.
func order(left, right any) (int, bool) {
	if values.IsEmpty(left) || values.IsEmpty(right) {
		return 0, false
	}
	if l, r, ok := bothNumbers(left, right); ok {
		switch {
		case l < r:
			return -1, true
		case l > r:
			return 1, true
		}
		return 0, true
	}
	if l, lok := coerceTime(left); lok {
		if r, rok := coerceTime(right); rok {
			return l.Compare(r), true
		}
	}
	return strings.Compare(coerceString(left), coerceString(right)), true
}

func bothNumbers(left, right any) (float64, float64, bool) {
	l, lok := coerceNumber(left)
	r, rok := coerceNumber(right)
	return l, r, lok && rok
}

type tokenStream struct {
	tokens []token
	pos    int
}

func parseOr(stream *tokenStream) (node, error) {
	left, err := parseAnd(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenOr) {
		right, err := parseAnd(stream)
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func parseAnd(stream *tokenStream) (node, error) {
	left, err := parseUnary(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenAnd) {
		right, err := parseUnary(stream)
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func parseUnary(stream *tokenStream) (node, error) {
	if stream.match(tokenNot) {
		inner, err := parseUnary(stream)
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return parsePrimary(stream)
}

func parsePrimary(stream *tokenStream) (node, error) {
	if stream.match(tokenLParen) {
		inner, err := parseOr(stream)
		if err != nil {
			return nil, err
		}
		if !stream.match(tokenRParen) {
			return nil, errors.New("expr: missing closing ')'")
		}
		return inner, nil
	}

	ident, ok := stream.consume(tokenIdentifier)
	if !ok {
		if stream.pos >= len(stream.tokens) {
			return nil, errors.New("expr: empty expression")
		}
		return nil, fmt.Errorf("expr: expected identifier, got %q", stream.tokens[stream.pos].raw)
	}

	for _, op := range []tokenKind{tokenEq, tokenNeq, tokenLt, tokenLte, tokenGt, tokenGte} {
		if stream.match(op) {
			right, err := stream.consumeOperand()
			if err != nil {
				return nil, err
			}
			return compareNode{left: operand{kind: operandField, raw: ident.raw}, op: op, right: right}, nil
		}
	}
	return truthyNode{identifier: ident.raw}, nil
}

func (s *tokenStream) match(kind tokenKind) bool {
	if s.pos >= len(s.tokens) || s.tokens[s.pos].kind != kind {
		return false
	}
	s.pos++
	return true
}

func (s *tokenStream) consume(kind tokenKind) (token, bool) {
	if s.pos >= len(s.tokens) || s.tokens[s.pos].kind != kind {
		return token{}, false
	}
	out := s.tokens[s.pos]
	s.pos++
	return out, true
}

func (s *tokenStream) consumeOperand() (operand, error) {
	if s.pos >= len(s.tokens) {
		return operand{}, errors.New("expr: missing right-hand operand")
	}
	tok := s.tokens[s.pos]
	s.pos++
	switch tok.kind {
	case tokenString:
		return operand{kind: operandString, raw: tok.raw}, nil
	case tokenNumber:
		return operand{kind: operandNumber, raw: tok.raw}, nil
	case tokenBool:
		return operand{kind: operandBool, raw: tok.raw}, nil
	case tokenNull:
		return operand{kind: operandNull}, nil
	case tokenIdentifier:
		return operand{kind: operandName, raw: tok.raw}, nil
	default:
		return operand{}, fmt.Errorf("expr: expected operand, got %q", tok.raw)
	}
}

func lookup(ctx visibility.Context, key string) (any, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false
	}
	if strings.HasPrefix(strings.ToLower(key), "extras.") {
		return lookupMap(ctx.Extras, key[len("extras."):])
	}
	return lookupMap(ctx.Values, key)
}

func lookupMap(src map[string]any, path string) (any, bool) {
	if len(src) == 0 || path == "" {
		return nil, false
	}
	if v, ok := src[path]; ok {
		return v, true
	}
	return values.Get(src, path)
}

func isBool(value any) bool {
	_, ok := value.(bool)
	return ok
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return strings.TrimSpace(v) != ""
	}
	if n, ok := coerceNumber(value); ok {
		return n != 0
	}
	return !values.IsEmpty(value)
}

func coerceBool(value any) (bool, bool) {
	switch v := value.(type) {
	case nil:
		return false, false
	case bool:
		return v, true
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed, true
		}
		return strings.TrimSpace(v) != "", true
	default:
		return truthy(value), true
	}
}

func coerceNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func coerceTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

func coerceString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(value)
	}
}
