package expr

import (
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokError
	tokIdent
	tokString
	tokNumber
	tokBool
	tokNull
	tokEq
	tokNeq
	tokAnd
	tokOr
	tokNot
	tokIn
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) next() token {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF}
	}

	ch := l.src[l.pos]
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}

	switch {
	case two == "==":
		l.pos += 2
		return token{kind: tokEq, text: two}
	case two == "!=":
		l.pos += 2
		return token{kind: tokNeq, text: two}
	case two == "&&":
		l.pos += 2
		return token{kind: tokAnd, text: two}
	case two == "||":
		l.pos += 2
		return token{kind: tokOr, text: two}
	case ch == '!':
		l.pos++
		return token{kind: tokNot, text: "!"}
	case ch == '(':
		l.pos++
		return token{kind: tokLParen, text: "("}
	case ch == ')':
		l.pos++
		return token{kind: tokRParen, text: ")"}
	case ch == '"' || ch == '\'':
		return l.quoted(ch)
	case ch == '=' || ch == '&' || ch == '|':
		l.pos++
		return token{kind: tokError, text: "unexpected '" + string(ch) + "'"}
	}

	start := l.pos
	for l.pos < len(l.src) && !isDelimiter(l.src[l.pos]) {
		l.pos++
	}
	word := l.src[start:l.pos]
	switch strings.ToLower(word) {
	case "true", "false":
		return token{kind: tokBool, text: strings.ToLower(word)}
	case "null", "nil":
		return token{kind: tokNull, text: "null"}
	case "in":
		return token{kind: tokIn, text: "in"}
	}
	if _, err := strconv.ParseFloat(word, 64); err == nil {
		return token{kind: tokNumber, text: word}
	}
	return token{kind: tokIdent, text: word}
}

func (l *lexer) quoted(quote byte) token {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '\\':
			l.pos += 2
			continue
		case quote:
			l.pos++
			raw := l.src[start:l.pos]
			if quote == '\'' {
				inner := strings.ReplaceAll(raw[1:len(raw)-1], `\'`, `'`)
				raw = `"` + strings.ReplaceAll(inner, `"`, `\"`) + `"`
			}
			value, err := strconv.Unquote(raw)
			if err != nil {
				return token{kind: tokError, text: "invalid string literal " + raw}
			}
			return token{kind: tokString, text: value}
		}
		l.pos++
	}
	return token{kind: tokError, text: "unterminated string literal"}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDelimiter(ch byte) bool {
	return isSpace(ch) || strings.IndexByte("()!=&|\"'", ch) >= 0
}
