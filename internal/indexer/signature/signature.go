// Package signature parses field descriptors, method descriptors and generic
// signatures, reporting every concrete class type they name.
package signature

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

// Error reports where parsing of one string stopped.
type Error struct {
	Signature string
	Pos       int
	Msg       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("signature %q at %d: %s", e.Signature, e.Pos, e.Msg)
}

func (e *Error) Unwrap() error {
	return apperrors.ErrMalformedSignature
}

// Parse accepts a class signature, a method signature or descriptor, or a
// field signature or descriptor, and calls visit for each class type it
// names. Inner class chains report the outer type and each composed binary
// name (A.B yields A and A$B). visit is only called if the whole string
// parses.
func Parse(s string, visit func(name string)) error {
	p := &parser{s: s}
	p.signature()
	return p.commit(visit)
}

// ParseType accepts exactly one type signature, such as an array class name
// from the constant pool.
func ParseType(s string, visit func(name string)) error {
	p := &parser{s: s}
	p.typ()
	if p.err == nil && p.pos != len(s) {
		p.fail("trailing characters after type")
	}
	return p.commit(visit)
}

type parser struct {
	s     string
	pos   int
	names []string
	err   error
}

func (p *parser) commit(visit func(string)) error {
	if p.err != nil {
		return p.err
	}
	for _, n := range p.names {
		visit(n)
	}
	return nil
}

func (p *parser) fail(msg string) {
	if p.err == nil {
		p.err = &Error{Signature: p.s, Pos: p.pos, Msg: msg}
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) signature() {
	if p.s == "" {
		p.fail("empty signature")
		return
	}
	if p.peek() == '<' {
		p.formalTypeParameters()
	}
	if p.err == nil && p.peek() == '(' {
		p.pos++
		for p.err == nil && p.peek() != ')' {
			if p.peek() == 0 {
				p.fail("unterminated parameter list")
				return
			}
			p.typ()
		}
		p.pos++
		p.typ()
		for p.err == nil && p.peek() == '^' {
			p.pos++
			p.typ()
		}
		if p.err == nil && p.pos != len(p.s) {
			p.fail("trailing characters after method signature")
		}
		return
	}
	for p.err == nil && p.pos < len(p.s) {
		p.typ()
	}
}

// formalTypeParameters reads <T:bound:ibound...U::ibound> and visits every
// bound.
func (p *parser) formalTypeParameters() {
	p.pos++
	for p.err == nil && p.peek() != '>' {
		start := p.pos
		for p.pos < len(p.s) && p.s[p.pos] != ':' {
			p.pos++
		}
		if p.pos == start || p.pos >= len(p.s) {
			p.fail("malformed formal type parameter")
			return
		}
		p.pos++
		switch p.peek() {
		case 'L', '[', 'T':
			p.typ()
		}
		for p.err == nil && p.peek() == ':' {
			p.pos++
			p.typ()
		}
	}
	p.pos++
}

func (p *parser) typ() {
	for p.peek() == '[' {
		p.pos++
	}
	switch c := p.peek(); c {
	case 'Z', 'C', 'B', 'S', 'I', 'F', 'J', 'D', 'V':
		p.pos++
	case 'T':
		start := p.pos
		for p.pos < len(p.s) && p.s[p.pos] != ';' {
			p.pos++
		}
		if p.pos-start < 2 || p.pos >= len(p.s) {
			p.pos = start
			p.fail("malformed type variable")
			return
		}
		p.pos++
	case 'L':
		p.classType()
	case 0:
		p.fail("unexpected end of signature")
	default:
		p.fail(fmt.Sprintf("unexpected %q", c))
	}
}

func (p *parser) classType() {
	p.pos++
	name := p.identifier()
	if name == "" {
		p.fail("empty class name")
		return
	}
	p.names = append(p.names, name)
	for p.err == nil {
		switch p.peek() {
		case '<':
			p.typeArguments()
		case '.':
			p.pos++
			inner := p.identifier()
			if inner == "" {
				p.fail("empty inner class name")
				return
			}
			name += "$" + inner
			p.names = append(p.names, name)
		case ';':
			p.pos++
			return
		default:
			p.fail("unterminated class type")
		}
	}
}

func (p *parser) identifier() string {
	start := p.pos
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case '<', '.', ';', '>', ':':
			return p.s[start:p.pos]
		}
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *parser) typeArguments() {
	p.pos++
	for p.err == nil && p.peek() != '>' {
		switch p.peek() {
		case 0:
			p.fail("unterminated type arguments")
		case '*':
			p.pos++
		case '+', '-':
			p.pos++
			p.typ()
		default:
			p.typ()
		}
	}
	p.pos++
}
