package expr

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-schoolwizard/pkg/visibility"
)

// Evaluator compiles and evaluates rule expressions.
//
// Grammar:
//
//	rule    = or
//	or      = and { "||" and }
//	and     = unary { "&&" unary }
//	unary   = "!" unary | primary
//	primary = "(" or ")" | ident [ ("==" | "!=") literal | "in" ident ]
//	          | literal "in" ident
//
// Identifiers are looked up in Env.Values (dotted paths allowed) or, with the
// `extras.` prefix, in Env.Extras. A bare identifier is tested for
// truthiness. Compiled rules are cached per rule string.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]node
}

// New returns an Evaluator with an empty compile cache.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]node)}
}

var _ visibility.Evaluator = (*Evaluator)(nil)

// Eval evaluates rule against env. Empty rules are true.
func (e *Evaluator) Eval(field, rule string, env visibility.Env) (bool, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return true, nil
	}
	compiled, err := e.compile(rule)
	if err != nil {
		return false, fmt.Errorf("visibility/expr: field %s: %w", field, err)
	}
	return compiled.eval(env)
}

// Compile parses rule without evaluating it, reporting syntax errors early.
func (e *Evaluator) Compile(rule string) error {
	_, err := e.compile(strings.TrimSpace(rule))
	return err
}

func (e *Evaluator) compile(rule string) (node, error) {
	e.mu.RLock()
	cached, ok := e.cache[rule]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	p := &parser{lex: lexer{src: rule}}
	p.advance()
	compiled, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q", p.tok.text)
	}

	e.mu.Lock()
	if e.cache == nil {
		e.cache = make(map[string]node)
	}
	e.cache[rule] = compiled
	e.mu.Unlock()
	return compiled, nil
}

type node interface {
	eval(env visibility.Env) (bool, error)
}

type orNode struct{ left, right node }

func (n orNode) eval(env visibility.Env) (bool, error) {
	ok, err := n.left.eval(env)
	if err != nil || ok {
		return ok, err
	}
	return n.right.eval(env)
}

type andNode struct{ left, right node }

func (n andNode) eval(env visibility.Env) (bool, error) {
	ok, err := n.left.eval(env)
	if err != nil || !ok {
		return false, err
	}
	return n.right.eval(env)
}

type notNode struct{ inner node }

func (n notNode) eval(env visibility.Env) (bool, error) {
	ok, err := n.inner.eval(env)
	return !ok, err
}

type truthNode struct{ ident string }

func (n truthNode) eval(env visibility.Env) (bool, error) {
	value, _ := lookup(env, n.ident)
	return truthy(value), nil
}

type compareNode struct {
	ident  string
	negate bool
	lit    token
}

func (n compareNode) eval(env visibility.Env) (bool, error) {
	value, _ := lookup(env, n.ident)
	var equal bool
	switch n.lit.kind {
	case tokNull:
		equal = isEmpty(value)
	case tokBool:
		equal = truthy(value) == (n.lit.text == "true")
	case tokNumber:
		want, err := strconv.ParseFloat(n.lit.text, 64)
		if err != nil {
			return false, fmt.Errorf("invalid number %q", n.lit.text)
		}
		got, ok := number(value)
		equal = ok && got == want
	default:
		equal = stringify(value) == n.lit.text
	}
	if n.negate {
		return !equal, nil
	}
	return equal, nil
}

// memberNode tests whether needle (a literal or identifier value) appears in
// the collection referenced by ident.
type memberNode struct {
	needle      token
	needleIdent bool
	ident       string
}

func (n memberNode) eval(env visibility.Env) (bool, error) {
	needle := n.needle.text
	if n.needleIdent {
		value, _ := lookup(env, n.needle.text)
		needle = stringify(value)
	}
	haystack, _ := lookup(env, n.ident)
	switch typed := haystack.(type) {
	case []string:
		for _, item := range typed {
			if item == needle {
				return true, nil
			}
		}
	case []any:
		for _, item := range typed {
			if stringify(item) == needle {
				return true, nil
			}
		}
	case map[string]any:
		_, ok := typed[needle]
		return ok, nil
	case map[string]bool:
		return typed[needle], nil
	case string:
		for _, item := range strings.Fields(typed) {
			if item == needle {
				return true, nil
			}
		}
	}
	return false, nil
}

type parser struct {
	lex lexer
	tok token
}

func (p *parser) advance() {
	p.tok = p.lex.next()
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokAnd {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.tok.kind == tokNot {
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	switch p.tok.kind {
	case tokError:
		return nil, fmt.Errorf("%s", p.tok.text)
	case tokLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, fmt.Errorf("missing closing ')'")
		}
		p.advance()
		return inner, nil
	case tokString, tokNumber:
		lit := p.tok
		p.advance()
		if p.tok.kind != tokIn {
			return nil, fmt.Errorf("literal %q must be followed by 'in'", lit.text)
		}
		p.advance()
		if p.tok.kind != tokIdent {
			return nil, fmt.Errorf("expected identifier after 'in'")
		}
		ident := p.tok.text
		p.advance()
		return memberNode{needle: lit, ident: ident}, nil
	case tokIdent:
		ident := p.tok.text
		p.advance()
		switch p.tok.kind {
		case tokEq, tokNeq:
			negate := p.tok.kind == tokNeq
			p.advance()
			lit := p.tok
			switch lit.kind {
			case tokString, tokNumber, tokBool, tokNull:
			case tokIdent:
				// bare words compare as strings
				lit.kind = tokString
			default:
				return nil, fmt.Errorf("expected literal after %q", ident)
			}
			p.advance()
			return compareNode{ident: ident, negate: negate, lit: lit}, nil
		case tokIn:
			p.advance()
			if p.tok.kind != tokIdent {
				return nil, fmt.Errorf("expected identifier after 'in'")
			}
			haystack := p.tok.text
			p.advance()
			return memberNode{needle: token{kind: tokIdent, text: ident}, needleIdent: true, ident: haystack}, nil
		}
		return truthNode{ident: ident}, nil
	case tokEOF:
		return nil, fmt.Errorf("empty expression")
	default:
		return nil, fmt.Errorf("unexpected %q", p.tok.text)
	}
}

func lookup(env visibility.Env, ident string) (any, bool) {
	if rest, ok := strings.CutPrefix(ident, "extras."); ok {
		return walk(env.Extras, rest)
	}
	return walk(env.Values, ident)
}

func walk(root map[string]any, path string) (any, bool) {
	if len(root) == 0 || path == "" {
		return nil, false
	}
	if value, ok := root[path]; ok {
		return value, true
	}
	var current any = root
	for _, part := range strings.Split(path, ".") {
		switch typed := current.(type) {
		case map[string]any:
			next, ok := typed[part]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]string:
			next, ok := typed[part]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]bool:
			next, ok := typed[part]
			if !ok {
				return nil, false
			}
			current = next
		default:
			return nil, false
		}
	}
	return current, true
}

func isEmpty(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case []any:
		return len(typed) == 0
	case []string:
		return len(typed) == 0
	default:
		return false
	}
}

func truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(typed)); err == nil {
			return parsed
		}
		return strings.TrimSpace(typed) != ""
	case int:
		return typed != 0
	case int64:
		return typed != 0
	case float64:
		return typed != 0
	case []any:
		return len(typed) > 0
	case []string:
		return len(typed) > 0
	case map[string]any:
		return len(typed) > 0
	default:
		return true
	}
}

func number(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case float64:
		return typed, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}
