package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

// Attribute names the structural parse decodes. Everything else, including
// Code and the debug tables, is skipped by length.
const (
	AttrSignature                  = "Signature"
	AttrExceptions                 = "Exceptions"
	AttrVisibleAnnotations         = "RuntimeVisibleAnnotations"
	AttrInvisibleAnnotations       = "RuntimeInvisibleAnnotations"
	AttrVisibleTypeAnnotations     = "RuntimeVisibleTypeAnnotations"
	AttrInvisibleTypeAnnotations   = "RuntimeInvisibleTypeAnnotations"
	AttrVisibleParameterAnnotation = "RuntimeVisibleParameterAnnotations"
	AttrInvisibleParameterAnnots   = "RuntimeInvisibleParameterAnnotations"
)

// AttributeError describes an attribute whose body was skipped.
type AttributeError struct {
	Owner string
	Name  string
	Err   error
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("attribute %s on %s: %v", e.Name, e.Owner, e.Err)
}

func (e *AttributeError) Unwrap() []error {
	return []error{apperrors.ErrMalformedEntry, e.Err}
}

// Parse reads the declared structure that follows the constant pool. A failure
// to frame the header or the member tables wraps ErrUnreadableModule. A member
// or interface name whose pool entry does not decode, and a damaged attribute
// body, are recorded in Module.Skipped and parsing continues.
func Parse(r *Reader) (*Module, error) {
	m := &Module{Major: r.major, Minor: r.minor}
	c := &cursor{r: r, off: r.header, end: len(r.b)}
	c.skipEntry = func(err error) { m.Skipped = append(m.Skipped, err) }

	m.Access = uint16(c.u2())
	m.Name = c.class()
	if i := c.u2(); i != 0 {
		m.SuperName = c.resolveClass(i)
	}
	for n := c.u2(); n > 0 && c.err == nil; n-- {
		if name := c.class(); name != "" {
			m.Interfaces = append(m.Interfaces, name)
		}
	}
	if c.err != nil {
		return nil, unreadable("module header: %v", c.err)
	}
	if m.Name == "" {
		return nil, unreadable("module has an empty name")
	}

	for n, i := c.u2(), 0; i < n && c.err == nil; i++ {
		f := Field{Access: uint16(c.u2()), Name: c.utf8(), Descriptor: c.utf8()}
		owner := m.Name + "." + f.Name
		c.attributes(m, owner, func(name string, body *cursor) {
			switch name {
			case AttrSignature:
				if s := body.utf8(); body.err == nil {
					f.Signature = s
				}
			case AttrVisibleAnnotations, AttrInvisibleAnnotations:
				if as := body.annotations(); body.err == nil {
					f.Annotations = append(f.Annotations, as...)
				}
			case AttrVisibleTypeAnnotations, AttrInvisibleTypeAnnotations:
				if as := body.typeAnnotations(); body.err == nil {
					f.TypeAnnotations = append(f.TypeAnnotations, as...)
				}
			}
		})
		if c.err != nil {
			return nil, unreadable("field %d: %v", i, c.err)
		}
		m.Fields = append(m.Fields, f)
	}
	if c.err != nil {
		return nil, unreadable("field table: %v", c.err)
	}

	for n, i := c.u2(), 0; i < n && c.err == nil; i++ {
		mt := Method{Access: uint16(c.u2()), Name: c.utf8(), Descriptor: c.utf8()}
		owner := m.Name + "." + mt.Name + mt.Descriptor
		c.attributes(m, owner, func(name string, body *cursor) {
			switch name {
			case AttrSignature:
				if s := body.utf8(); body.err == nil {
					mt.Signature = s
				}
			case AttrExceptions:
				var exs []string
				for k := body.u2(); k > 0 && body.err == nil; k-- {
					exs = append(exs, body.class())
				}
				if body.err == nil {
					mt.Exceptions = append(mt.Exceptions, exs...)
				}
			case AttrVisibleAnnotations, AttrInvisibleAnnotations:
				if as := body.annotations(); body.err == nil {
					mt.Annotations = append(mt.Annotations, as...)
				}
			case AttrVisibleTypeAnnotations, AttrInvisibleTypeAnnotations:
				if as := body.typeAnnotations(); body.err == nil {
					mt.TypeAnnotations = append(mt.TypeAnnotations, as...)
				}
			case AttrVisibleParameterAnnotation, AttrInvisibleParameterAnnots:
				var params [][]Annotation
				for k := body.u1(); k > 0 && body.err == nil; k-- {
					params = append(params, body.annotations())
				}
				if body.err == nil {
					mt.ParameterAnnotations = append(mt.ParameterAnnotations, params...)
				}
			}
		})
		if c.err != nil {
			return nil, unreadable("method %d: %v", i, c.err)
		}
		m.Methods = append(m.Methods, mt)
	}
	if c.err != nil {
		return nil, unreadable("method table: %v", c.err)
	}

	c.attributes(m, m.Name, func(name string, body *cursor) {
		switch name {
		case AttrSignature:
			if s := body.utf8(); body.err == nil {
				m.Signature = s
			}
		case AttrVisibleAnnotations, AttrInvisibleAnnotations:
			if as := body.annotations(); body.err == nil {
				m.Annotations = append(m.Annotations, as...)
			}
		case AttrVisibleTypeAnnotations, AttrInvisibleTypeAnnotations:
			if as := body.typeAnnotations(); body.err == nil {
				m.TypeAnnotations = append(m.TypeAnnotations, as...)
			}
		}
	})
	if c.err != nil {
		return nil, unreadable("module attributes: %v", c.err)
	}
	return m, nil
}

// cursor reads forward over r.b[off:end]. The first failure sticks: later
// reads return zero values and leave err unchanged. When skipEntry is set, a
// pool index that was read but does not resolve is handed to it instead and
// the read yields "".
type cursor struct {
	r         *Reader
	off       int
	end       int
	err       error
	skipEntry func(error)
}

func (c *cursor) fail(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf(format, args...)
	}
}

func (c *cursor) need(n int) bool {
	if c.err != nil {
		return false
	}
	if n < 0 || c.off+n > c.end {
		c.fail("read of %d bytes at offset %d overruns %d", n, c.off, c.end)
		return false
	}
	return true
}

func (c *cursor) u1() int {
	if !c.need(1) {
		return 0
	}
	v := c.r.b[c.off]
	c.off++
	return int(v)
}

func (c *cursor) u2() int {
	if !c.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(c.r.b[c.off:])
	c.off += 2
	return int(v)
}

func (c *cursor) u4() int {
	if !c.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(c.r.b[c.off:])
	c.off += 4
	return int(v)
}

func (c *cursor) skip(n int) {
	if c.need(n) {
		c.off += n
	}
}

func (c *cursor) utf8() string {
	i := c.u2()
	if c.err != nil {
		return ""
	}
	s, err := c.r.UTF8(i)
	if err != nil {
		c.entryFailed(i, err)
	}
	return s
}

func (c *cursor) class() string {
	i := c.u2()
	if c.err != nil {
		return ""
	}
	return c.resolveClass(i)
}

func (c *cursor) resolveClass(i int) string {
	if c.err != nil {
		return ""
	}
	s, err := c.r.ClassName(i)
	if err != nil {
		c.entryFailed(i, err)
	}
	return s
}

func (c *cursor) entryFailed(i int, err error) {
	var ee *EntryError
	if !errors.As(err, &ee) {
		err = &EntryError{Index: i, Err: err}
	}
	if c.skipEntry != nil {
		c.skipEntry(err)
		return
	}
	c.err = err
}

// attributes walks an attribute table, handing each body to decode through a
// cursor bounded by the attribute length. Bodies that fail to decode are
// recorded on m and do not affect c.
func (c *cursor) attributes(m *Module, owner string, decode func(name string, body *cursor)) {
	for n := c.u2(); n > 0 && c.err == nil; n-- {
		nameIndex := c.u2()
		length := c.u4()
		start := c.off
		c.skip(length)
		if c.err != nil {
			return
		}
		name, err := c.r.UTF8(nameIndex)
		if err != nil {
			m.Skipped = append(m.Skipped, &AttributeError{Owner: owner, Name: fmt.Sprintf("#%d", nameIndex), Err: err})
			continue
		}
		body := &cursor{r: c.r, off: start, end: start + length}
		decode(name, body)
		if body.err != nil {
			m.Skipped = append(m.Skipped, &AttributeError{Owner: owner, Name: name, Err: body.err})
		}
	}
}

func (c *cursor) annotations() []Annotation {
	n := c.u2()
	out := make([]Annotation, 0, c.capacity(n, 4))
	for ; n > 0 && c.err == nil; n-- {
		var a Annotation
		c.annotation(&a)
		out = append(out, a)
	}
	return out
}

func (c *cursor) typeAnnotations() []Annotation {
	n := c.u2()
	out := make([]Annotation, 0, c.capacity(n, 6))
	for ; n > 0 && c.err == nil; n-- {
		switch t := c.u1(); {
		case t == 0x00, t == 0x01, t == 0x16:
			c.skip(1)
		case t == 0x10, t == 0x11, t == 0x12, t == 0x17, t >= 0x42 && t <= 0x46:
			c.skip(2)
		case t >= 0x13 && t <= 0x15:
		case t == 0x40, t == 0x41:
			c.skip(6 * c.u2())
		case t >= 0x47 && t <= 0x4B:
			c.skip(3)
		default:
			c.fail("unknown type annotation target %#x", t)
		}
		c.skip(2 * c.u1())
		var a Annotation
		c.annotation(&a)
		out = append(out, a)
	}
	return out
}

// capacity bounds a preallocation by what the remaining bytes could hold, so
// a forged count cannot reserve more than the body can describe.
func (c *cursor) capacity(n, minSize int) int {
	if most := (c.end - c.off) / minSize; n > most {
		return most
	}
	return n
}

type elementFrame struct {
	ann       *Annotation
	arr       *Element
	remaining int
}

// annotation reads one annotation with an explicit stack instead of
// recursion, so nesting depth is bounded by the input size alone. Element
// slices are sized up front by capacity, which keeps the pointers held by
// the stack valid while siblings are appended.
func (c *cursor) annotation(a *Annotation) {
	a.Descriptor = c.utf8()
	n := c.u2()
	a.Elements = make([]Element, 0, c.capacity(n, 5))
	stack := []elementFrame{{ann: a, remaining: n}}
	for len(stack) > 0 && c.err == nil {
		top := &stack[len(stack)-1]
		if top.remaining == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		top.remaining--

		var e *Element
		if top.ann != nil {
			name := c.utf8()
			if c.err != nil || len(top.ann.Elements) == cap(top.ann.Elements) {
				c.fail("annotation %s: element overruns body", top.ann.Descriptor)
				return
			}
			top.ann.Elements = append(top.ann.Elements, Element{Name: name})
			e = &top.ann.Elements[len(top.ann.Elements)-1]
		} else {
			if len(top.arr.Values) == cap(top.arr.Values) {
				c.fail("array element overruns body")
				return
			}
			top.arr.Values = append(top.arr.Values, Element{})
			e = &top.arr.Values[len(top.arr.Values)-1]
		}

		e.Kind = ElementKind(c.u1())
		switch e.Kind {
		case ElementByte, ElementChar, ElementDouble, ElementFloat, ElementInt,
			ElementLong, ElementShort, ElementBoolean, ElementString:
			c.skip(2)
		case ElementEnum:
			e.Descriptor = c.utf8()
			e.EnumConst = c.utf8()
		case ElementClass:
			e.Descriptor = c.utf8()
		case ElementAnnotation:
			nested := &Annotation{Descriptor: c.utf8()}
			k := c.u2()
			nested.Elements = make([]Element, 0, c.capacity(k, 5))
			e.Nested = nested
			stack = append(stack, elementFrame{ann: nested, remaining: k})
		case ElementArray:
			k := c.u2()
			e.Values = make([]Element, 0, c.capacity(k, 3))
			stack = append(stack, elementFrame{arr: e, remaining: k})
		default:
			c.fail("unknown element value tag %q", byte(e.Kind))
		}
	}
}
