// Package expr evaluates boolean condition expressions.
//
// Grammar, after [Normalize] has replaced word operators with symbols:
//
//	expression := term ( ('&' | '|' | '^') term )*
//	term       := '!' term | '(' expression ')' | identifier
//	identifier := [A-Za-z0-9_]+
//
// Binary operators share one precedence level and associate to the left, so
// "a | b & c" is "(a | b) & c". Both operands of every binary operator are
// always resolved; there is no short-circuiting. A missing closing
// parenthesis is tolerated.
package expr

import (
	"fmt"
	"unicode/utf8"
)

// Resolver answers whether the named identifier is true.
type Resolver interface {
	Resolve(name string) (bool, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(name string) (bool, error)

// Resolve calls f(name).
func (f ResolverFunc) Resolve(name string) (bool, error) {
	return f(name)
}

// Evaluate normalizes input and evaluates it, resolving each identifier
// through r in left-to-right order. It returns a *ParseError for malformed
// input; errors from r are returned unchanged.
func Evaluate(input string, r Resolver) (bool, error) {
	p := newParser(Normalize(input), r)
	return p.parse()
}

const eof = -1

// parser is a single-pass recursive-descent evaluator over the normalized
// expression. ch is the byte at pos, or eof.
type parser struct {
	input    string
	pos      int
	ch       int
	resolver Resolver
}

func newParser(input string, r Resolver) *parser {
	p := &parser{input: input, pos: -1, resolver: r}
	p.advance()
	return p
}

func (p *parser) parse() (bool, error) {
	out, err := p.parseExpression()
	if err != nil {
		return false, err
	}
	if p.pos < len(p.input) {
		return false, p.errorf("extra characters %q", p.input[p.pos:])
	}
	return out, nil
}

func (p *parser) advance() {
	p.pos++
	if p.pos < len(p.input) {
		p.ch = int(p.input[p.pos])
	} else {
		p.ch = eof
	}
}

func (p *parser) skipSpaces() {
	for p.ch == ' ' {
		p.advance()
	}
}

// consume skips spaces and, if the next byte is c, advances past it and any
// following spaces.
func (p *parser) consume(c byte) bool {
	p.skipSpaces()
	if p.ch == int(c) {
		p.advance()
		p.skipSpaces()
		return true
	}
	return false
}

func (p *parser) isIdentChar() bool {
	return p.ch != eof && isIdentByte(byte(p.ch))
}

func (p *parser) parseExpression() (bool, error) {
	out, err := p.parseTerm()
	if err != nil {
		return false, err
	}
	for {
		var op byte
		switch {
		case p.consume('&'):
			op = '&'
		case p.consume('|'):
			op = '|'
		case p.consume('^'):
			op = '^'
		default:
			return out, nil
		}
		rhs, err := p.parseTerm()
		if err != nil {
			return false, err
		}
		switch op {
		case '&':
			out = out && rhs
		case '|':
			out = out || rhs
		case '^':
			out = out != rhs
		}
	}
}

func (p *parser) parseTerm() (bool, error) {
	if p.consume('!') {
		v, err := p.parseTerm()
		if err != nil {
			return false, err
		}
		return !v, nil
	}

	if p.consume('(') {
		out, err := p.parseExpression()
		if err != nil {
			return false, err
		}
		p.consume(')')
		return out, nil
	}

	if p.isIdentChar() {
		start := p.pos
		for p.isIdentChar() {
			p.advance()
		}
		return p.resolver.Resolve(p.input[start:p.pos])
	}

	if p.ch == eof {
		return false, p.errorf("unexpected end of expression")
	}
	r, _ := utf8.DecodeRuneInString(p.input[p.pos:])
	return false, p.errorf("unexpected character %q", r)
}

func (p *parser) errorf(format string, args ...any) *ParseError {
	return &ParseError{Expr: p.input, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}
