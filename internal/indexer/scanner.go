package indexer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/classfile"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/signature"
	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

// scanConstantPool records the references held directly in the constant pool:
// class names, string literals, and the names of referenced fields, methods
// and constructors. The module's own this_class entry is not a reference.
// Each entry that fails to decode is skipped and returned; the scan always
// covers the whole pool.
func scanConstantPool(r *classfile.Reader, s *Symbols) []error {
	var skipped []error
	self, _ := r.ReadUnsignedShort(r.Header() + 2)
	for i := r.ItemCount() - 1; i > 0; i-- {
		off, err := r.Item(i)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		if off == 0 || i == self {
			continue
		}
		if err := scanEntry(r, s, i, off); err != nil {
			skipped = append(skipped, err)
		}
	}
	return skipped
}

func scanEntry(r *classfile.Reader, s *Symbols, i, off int) error {
	tag, err := r.ReadByte(off - 1)
	if err != nil {
		return entryError(i, err)
	}
	switch tag {
	case classfile.TagClass:
		name, err := r.ReadUTF8(off)
		if err != nil {
			return entryError(i, err)
		}
		if strings.HasPrefix(name, "[") {
			return signature.ParseType(name, s.TypeReferences.Add)
		}
		s.TypeReferences.Add(name)
	case classfile.TagString:
		str, err := r.ReadUTF8(off)
		if err != nil {
			return entryError(i, err)
		}
		s.Strings.Add(str)
	case classfile.TagFieldref:
		name, err := memberName(r, off)
		if err != nil {
			return entryError(i, err)
		}
		s.FieldReferences.Add(name)
	case classfile.TagMethodref, classfile.TagInterfaceMethodref:
		name, err := memberName(r, off)
		if err != nil {
			return entryError(i, err)
		}
		if name != constructorName {
			s.MethodReferences.Add(name)
			return nil
		}
		owner, err := r.ReadUnsignedShort(off)
		if err != nil {
			return entryError(i, err)
		}
		ownerName, err := r.ClassName(owner)
		if err != nil {
			return entryError(i, err)
		}
		s.ConstructorReferences.Add(ownerName)
	default:
		if !classfile.KnownTag(tag) {
			return &classfile.EntryError{Index: i, Err: fmt.Errorf("unknown constant tag %d", tag)}
		}
	}
	return nil
}

// memberName resolves the NameAndType linked from a field or method
// reference at off and returns its name.
func memberName(r *classfile.Reader, off int) (string, error) {
	nt, err := r.ReadUnsignedShort(off + 2)
	if err != nil {
		return "", err
	}
	tag, err := r.Tag(nt)
	if err != nil {
		return "", err
	}
	if tag != classfile.TagNameAndType {
		return "", fmt.Errorf("%w: entry %d is not a NameAndType", apperrors.ErrMalformedEntry, nt)
	}
	ntOff, _ := r.Item(nt)
	return r.ReadUTF8(ntOff)
}

func entryError(i int, err error) error {
	var ee *classfile.EntryError
	if errors.As(err, &ee) {
		return err
	}
	return &classfile.EntryError{Index: i, Err: err}
}
