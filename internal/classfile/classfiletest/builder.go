// Package classfiletest assembles class-module bytes for tests. Constant-pool
// entries are interned as they are first referenced, and Raw lets a test plant
// entries that a compiler would never emit.
package classfiletest

import (
	"encoding/binary"
	"fmt"
	"math"
)

type Builder struct {
	Major, Minor uint16
	Access       uint16

	pool     []byte
	next     int
	interned map[string]int

	this, super int
	interfaces  []int
	fields      [][]byte
	methods     [][]byte
	attrs       [][]byte
}

// New starts a module named name. An empty super leaves super_class at 0.
func New(name, super string, interfaces ...string) *Builder {
	b := &Builder{
		Major:    52,
		Access:   0x0021,
		next:     1,
		interned: make(map[string]int),
	}
	b.this = b.Class(name)
	if super != "" {
		b.super = b.Class(super)
	}
	for _, i := range interfaces {
		b.interfaces = append(b.interfaces, b.Class(i))
	}
	return b
}

func (b *Builder) intern(key string, slots int, entry func() []byte) int {
	if i, ok := b.interned[key]; ok {
		return i
	}
	data := entry()
	i := b.next
	b.pool = append(b.pool, data...)
	b.next += slots
	b.interned[key] = i
	return i
}

func (b *Builder) Utf8(s string) int {
	return b.intern("utf8:"+s, 1, func() []byte {
		enc := encodeModifiedUTF8(s)
		return append([]byte{1, byte(len(enc) >> 8), byte(len(enc))}, enc...)
	})
}

func (b *Builder) Class(name string) int {
	n := b.Utf8(name)
	return b.intern("class:"+name, 1, func() []byte { return []byte{7, byte(n >> 8), byte(n)} })
}

func (b *Builder) String(s string) int {
	n := b.Utf8(s)
	return b.intern("string:"+s, 1, func() []byte { return []byte{8, byte(n >> 8), byte(n)} })
}

func (b *Builder) NameAndType(name, desc string) int {
	n, d := b.Utf8(name), b.Utf8(desc)
	return b.intern("nat:"+name+":"+desc, 1, func() []byte {
		return []byte{12, byte(n >> 8), byte(n), byte(d >> 8), byte(d)}
	})
}

func (b *Builder) ref(tag byte, owner, name, desc string) int {
	c, nt := b.Class(owner), b.NameAndType(name, desc)
	return b.intern(fmt.Sprintf("ref%d:%s.%s:%s", tag, owner, name, desc), 1, func() []byte {
		return []byte{tag, byte(c >> 8), byte(c), byte(nt >> 8), byte(nt)}
	})
}

func (b *Builder) Fieldref(owner, name, desc string) int  { return b.ref(9, owner, name, desc) }
func (b *Builder) Methodref(owner, name, desc string) int { return b.ref(10, owner, name, desc) }

func (b *Builder) InterfaceMethodref(owner, name, desc string) int {
	return b.ref(11, owner, name, desc)
}

func (b *Builder) Integer(v int32) int {
	return b.intern(fmt.Sprintf("int:%d", v), 1, func() []byte {
		return binary.BigEndian.AppendUint32([]byte{3}, uint32(v))
	})
}

// Long occupies two pool slots; the second is left unused.
func (b *Builder) Long(v int64) int {
	return b.intern(fmt.Sprintf("long:%d", v), 2, func() []byte {
		return binary.BigEndian.AppendUint64([]byte{5}, uint64(v))
	})
}

func (b *Builder) Double(v float64) int {
	return b.intern(fmt.Sprintf("double:%v", v), 2, func() []byte {
		return binary.BigEndian.AppendUint64([]byte{6}, math.Float64bits(v))
	})
}

// Raw appends an un-interned entry with the given tag and payload.
func (b *Builder) Raw(tag byte, payload ...byte) int {
	i := b.next
	b.pool = append(b.pool, tag)
	b.pool = append(b.pool, payload...)
	b.next++
	return i
}

// U2 encodes a pool index for Raw payloads.
func U2(i int) []byte { return []byte{byte(i >> 8), byte(i)} }

// Attribute produces an attribute name and body against b's pool.
type Attribute func(b *Builder) (string, []byte)

func (b *Builder) Field(access uint16, name, desc string, attrs ...Attribute) *Builder {
	b.fields = append(b.fields, b.member(access, name, desc, attrs))
	return b
}

func (b *Builder) Method(access uint16, name, desc string, attrs ...Attribute) *Builder {
	b.methods = append(b.methods, b.member(access, name, desc, attrs))
	return b
}

// Attribute adds module-level attributes.
func (b *Builder) Attribute(attrs ...Attribute) *Builder {
	for _, a := range attrs {
		b.attrs = append(b.attrs, b.attribute(a))
	}
	return b
}

// FieldAt adds a field whose name and descriptor are the given pool indexes,
// typically entries planted with Raw.
func (b *Builder) FieldAt(access uint16, name, desc int, attrs ...Attribute) *Builder {
	b.fields = append(b.fields, b.memberAt(access, name, desc, attrs))
	return b
}

// InterfaceAt declares pool entry i as an interface.
func (b *Builder) InterfaceAt(i int) *Builder {
	b.interfaces = append(b.interfaces, i)
	return b
}

func (b *Builder) member(access uint16, name, desc string, attrs []Attribute) []byte {
	return b.memberAt(access, b.Utf8(name), b.Utf8(desc), attrs)
}

func (b *Builder) memberAt(access uint16, name, desc int, attrs []Attribute) []byte {
	out := binary.BigEndian.AppendUint16(nil, access)
	out = binary.BigEndian.AppendUint16(out, uint16(name))
	out = binary.BigEndian.AppendUint16(out, uint16(desc))
	out = binary.BigEndian.AppendUint16(out, uint16(len(attrs)))
	for _, a := range attrs {
		out = append(out, b.attribute(a)...)
	}
	return out
}

func (b *Builder) attribute(a Attribute) []byte {
	name, body := a(b)
	out := binary.BigEndian.AppendUint16(nil, uint16(b.Utf8(name)))
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

// Bytes serializes the module.
func (b *Builder) Bytes() []byte {
	out := binary.BigEndian.AppendUint32(nil, 0xCAFEBABE)
	out = binary.BigEndian.AppendUint16(out, b.Minor)
	out = binary.BigEndian.AppendUint16(out, b.Major)
	out = binary.BigEndian.AppendUint16(out, uint16(b.next))
	out = append(out, b.pool...)
	out = binary.BigEndian.AppendUint16(out, b.Access)
	out = binary.BigEndian.AppendUint16(out, uint16(b.this))
	out = binary.BigEndian.AppendUint16(out, uint16(b.super))
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.interfaces)))
	for _, i := range b.interfaces {
		out = binary.BigEndian.AppendUint16(out, uint16(i))
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.fields)))
	for _, f := range b.fields {
		out = append(out, f...)
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.methods)))
	for _, m := range b.methods {
		out = append(out, m...)
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.attrs)))
	for _, a := range b.attrs {
		out = append(out, a...)
	}
	return out
}

func Signature(sig string) Attribute {
	return func(b *Builder) (string, []byte) {
		return "Signature", U2(b.Utf8(sig))
	}
}

func Exceptions(names ...string) Attribute {
	return func(b *Builder) (string, []byte) {
		out := U2(len(names))
		for _, n := range names {
			out = append(out, U2(b.Class(n))...)
		}
		return "Exceptions", out
	}
}

// Code emits an opaque Code attribute; readers are expected to skip it.
func Code(body []byte) Attribute {
	return RawAttribute("Code", body)
}

func RawAttribute(name string, body []byte) Attribute {
	return func(*Builder) (string, []byte) { return name, body }
}

// Annotation describes one annotation instance.
type Annotation struct {
	Desc     string
	Elements []Element
}

type Element struct {
	Name  string
	Value Value
}

// Value encodes an element_value.
type Value func(b *Builder) []byte

func Int(v int32) Value {
	return func(b *Builder) []byte { return append([]byte{'I'}, U2(b.Integer(v))...) }
}

func Str(s string) Value {
	return func(b *Builder) []byte { return append([]byte{'s'}, U2(b.Utf8(s))...) }
}

func Enum(desc, constant string) Value {
	return func(b *Builder) []byte {
		out := append([]byte{'e'}, U2(b.Utf8(desc))...)
		return append(out, U2(b.Utf8(constant))...)
	}
}

func ClassValue(desc string) Value {
	return func(b *Builder) []byte { return append([]byte{'c'}, U2(b.Utf8(desc))...) }
}

func Nested(a Annotation) Value {
	return func(b *Builder) []byte { return append([]byte{'@'}, b.annotation(a)...) }
}

func Array(vs ...Value) Value {
	return func(b *Builder) []byte {
		out := append([]byte{'['}, U2(len(vs))...)
		for _, v := range vs {
			out = append(out, v(b)...)
		}
		return out
	}
}

func (b *Builder) annotation(a Annotation) []byte {
	out := U2(b.Utf8(a.Desc))
	out = append(out, U2(len(a.Elements))...)
	for _, e := range a.Elements {
		out = append(out, U2(b.Utf8(e.Name))...)
		out = append(out, e.Value(b)...)
	}
	return out
}

func Annotations(visible bool, anns ...Annotation) Attribute {
	name := "RuntimeInvisibleAnnotations"
	if visible {
		name = "RuntimeVisibleAnnotations"
	}
	return func(b *Builder) (string, []byte) {
		out := U2(len(anns))
		for _, a := range anns {
			out = append(out, b.annotation(a)...)
		}
		return name, out
	}
}

// TypeAnnotations emits type annotations with the given target_type and an
// empty type_path. target_info is zero-filled to the width the target needs.
func TypeAnnotations(target byte, anns ...Annotation) Attribute {
	var info []byte
	switch {
	case target == 0x00, target == 0x01, target == 0x16:
		info = []byte{0}
	case target == 0x10, target == 0x11, target == 0x12, target == 0x17:
		info = []byte{0, 0}
	}
	var ts []TypeAnnotation
	for _, a := range anns {
		ts = append(ts, TypeAnnotation{Target: target, Info: info, Annotation: a})
	}
	return TypeAnnotationsAt(ts...)
}

// TypeAnnotation is one type annotation with a raw target_type, target_info
// and type_path. Each Path element is a (type_path_kind,
// type_argument_index) pair.
type TypeAnnotation struct {
	Target     byte
	Info       []byte
	Path       [][2]byte
	Annotation Annotation
}

func TypeAnnotationsAt(anns ...TypeAnnotation) Attribute {
	return func(b *Builder) (string, []byte) {
		out := U2(len(anns))
		for _, t := range anns {
			out = append(out, t.Target)
			out = append(out, t.Info...)
			out = append(out, byte(len(t.Path)))
			for _, p := range t.Path {
				out = append(out, p[0], p[1])
			}
			out = append(out, b.annotation(t.Annotation)...)
		}
		return "RuntimeVisibleTypeAnnotations", out
	}
}

func ParameterAnnotations(params ...[]Annotation) Attribute {
	return func(b *Builder) (string, []byte) {
		out := []byte{byte(len(params))}
		for _, p := range params {
			out = append(out, U2(len(p))...)
			for _, a := range p {
				out = append(out, b.annotation(a)...)
			}
		}
		return "RuntimeVisibleParameterAnnotations", out
	}
}

func encodeModifiedUTF8(s string) []byte {
	var out []byte
	for _, r := range s {
		if r >= 0x10000 {
			r -= 0x10000
			for _, u := range []rune{0xD800 + (r >> 10), 0xDC00 + (r & 0x3FF)} {
				out = append(out, byte(0xE0|u>>12), byte(0x80|(u>>6)&0x3F), byte(0x80|u&0x3F))
			}
			continue
		}
		switch {
		case r != 0 && r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, byte(0xC0|r>>6), byte(0x80|r&0x3F))
		default:
			out = append(out, byte(0xE0|r>>12), byte(0x80|(r>>6)&0x3F), byte(0x80|r&0x3F))
		}
	}
	return out
}
