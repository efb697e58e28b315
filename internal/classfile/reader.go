// Package classfile reads compiled class modules: the fixed header, the
// constant pool as a table of tagged entries, and the declared structure
// (fields, methods, annotations) as an explicit in-memory tree. Method bodies
// and debug attributes are never decoded.
package classfile

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

const Magic uint32 = 0xCAFEBABE

// Constant-pool tags.
const (
	TagUtf8               byte = 1
	TagInteger            byte = 3
	TagFloat              byte = 4
	TagLong               byte = 5
	TagDouble             byte = 6
	TagClass              byte = 7
	TagString             byte = 8
	TagFieldref           byte = 9
	TagMethodref          byte = 10
	TagInterfaceMethodref byte = 11
	TagNameAndType        byte = 12
	TagMethodHandle       byte = 15
	TagMethodType         byte = 16
	TagDynamic            byte = 17
	TagInvokeDynamic      byte = 18
	TagModule             byte = 19
	TagPackage            byte = 20
)

// KnownTag reports whether tag is an assigned constant-pool tag.
func KnownTag(tag byte) bool {
	switch tag {
	case TagUtf8, TagInteger, TagFloat, TagLong, TagDouble, TagClass, TagString,
		TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType,
		TagMethodHandle, TagMethodType, TagDynamic, TagInvokeDynamic, TagModule, TagPackage:
		return true
	}
	return false
}

// EntryError describes one constant-pool entry that could not be decoded.
type EntryError struct {
	Index int
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("constant pool entry %d: %v", e.Index, e.Err)
}

func (e *EntryError) Unwrap() []error {
	return []error{apperrors.ErrMalformedEntry, e.Err}
}

// Reader gives random access to one module's bytes. Construction validates the
// header and frames every constant-pool entry; individual entries are decoded
// lazily. A Reader is not safe for concurrent use.
type Reader struct {
	b       []byte
	items   []int
	header  int
	major   uint16
	minor   uint16
	strings map[int]string
}

// NewReader frames the constant pool of b. Errors wrap ErrUnreadableModule and
// only report input that cannot be framed: a bad header or a pool that runs
// past the end. An unassigned tag is framed as a three-byte entry and left
// for whoever decodes that entry to reject.
func NewReader(b []byte) (*Reader, error) {
	if len(b) < 10 {
		return nil, unreadable("%d bytes is shorter than the module header", len(b))
	}
	if m := binary.BigEndian.Uint32(b); m != Magic {
		return nil, unreadable("bad magic %#x", m)
	}
	r := &Reader{
		b:       b,
		minor:   binary.BigEndian.Uint16(b[4:]),
		major:   binary.BigEndian.Uint16(b[6:]),
		strings: make(map[int]string),
	}
	n := int(binary.BigEndian.Uint16(b[8:]))
	if n == 0 {
		return nil, unreadable("constant pool count is zero")
	}
	r.items = make([]int, n)
	off := 10
	for i := 1; i < n; i++ {
		if off >= len(b) {
			return nil, unreadable("constant pool truncated at entry %d", i)
		}
		r.items[i] = off + 1
		var size int
		switch b[off] {
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagInteger, TagFloat,
			TagNameAndType, TagDynamic, TagInvokeDynamic:
			size = 5
		case TagLong, TagDouble:
			size = 9
			i++
		case TagUtf8:
			if off+3 > len(b) {
				return nil, unreadable("constant pool truncated at entry %d", i)
			}
			size = 3 + int(binary.BigEndian.Uint16(b[off+1:]))
		case TagMethodHandle:
			size = 4
		default:
			size = 3
		}
		off += size
		if off > len(b) {
			return nil, unreadable("constant pool truncated at entry %d", i)
		}
	}
	r.header = off
	return r, nil
}

func unreadable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrUnreadableModule, fmt.Sprintf(format, args...))
}

// ItemCount is the constant pool count; valid indexes are 1..ItemCount()-1.
func (r *Reader) ItemCount() int { return len(r.items) }

// Header is the offset of the access flags following the constant pool.
func (r *Reader) Header() int { return r.header }

// Item returns the data offset of entry i. The tag byte sits at offset-1.
// Unused slots (index 0, the second half of a Long or Double) return 0.
func (r *Reader) Item(i int) (int, error) {
	if i < 0 || i >= len(r.items) {
		return 0, &EntryError{Index: i, Err: fmt.Errorf("index out of range [1, %d)", len(r.items))}
	}
	return r.items[i], nil
}

// Tag returns the tag of entry i, failing for unused slots.
func (r *Reader) Tag(i int) (byte, error) {
	off, err := r.Item(i)
	if err != nil {
		return 0, err
	}
	if off == 0 {
		return 0, &EntryError{Index: i, Err: fmt.Errorf("unused slot")}
	}
	return r.b[off-1], nil
}

// ReadByte returns the byte at off.
func (r *Reader) ReadByte(off int) (byte, error) {
	if off < 0 || off >= len(r.b) {
		return 0, fmt.Errorf("%w: offset %d out of range", apperrors.ErrMalformedEntry, off)
	}
	return r.b[off], nil
}

// ReadUnsignedShort returns the big-endian u2 at off.
func (r *Reader) ReadUnsignedShort(off int) (int, error) {
	if off < 0 || off+2 > len(r.b) {
		return 0, fmt.Errorf("%w: offset %d out of range", apperrors.ErrMalformedEntry, off)
	}
	return int(binary.BigEndian.Uint16(r.b[off:])), nil
}

// ReadUTF8 reads the u2 pool index stored at off and decodes the Utf8 entry
// it points at.
func (r *Reader) ReadUTF8(off int) (string, error) {
	i, err := r.ReadUnsignedShort(off)
	if err != nil {
		return "", err
	}
	return r.UTF8(i)
}

// UTF8 decodes Utf8 entry i.
func (r *Reader) UTF8(i int) (string, error) {
	if s, ok := r.strings[i]; ok {
		return s, nil
	}
	tag, err := r.Tag(i)
	if err != nil {
		return "", err
	}
	if tag != TagUtf8 {
		return "", &EntryError{Index: i, Err: fmt.Errorf("tag %d is not Utf8", tag)}
	}
	start := r.items[i]
	l := int(binary.BigEndian.Uint16(r.b[start:]))
	s, err := decodeModifiedUTF8(r.b[start+2 : start+2+l])
	if err != nil {
		return "", &EntryError{Index: i, Err: err}
	}
	r.strings[i] = s
	return s, nil
}

// ClassName resolves a Class entry to its internal name.
func (r *Reader) ClassName(i int) (string, error) {
	tag, err := r.Tag(i)
	if err != nil {
		return "", err
	}
	if tag != TagClass {
		return "", &EntryError{Index: i, Err: fmt.Errorf("tag %d is not Class", tag)}
	}
	return r.ReadUTF8(r.items[i])
}

// decodeModifiedUTF8 decodes the JVM's modified UTF-8: NUL is encoded in two
// bytes and supplementary characters arrive as surrogate pairs.
func decodeModifiedUTF8(b []byte) (string, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c&0x80 == 0:
			if c == 0 {
				return "", fmt.Errorf("raw NUL byte at %d", i)
			}
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("truncated two-byte sequence at %d", i)
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("truncated three-byte sequence at %d", i)
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("invalid lead byte %#x at %d", c, i)
		}
	}
	return string(utf16.Decode(units)), nil
}
