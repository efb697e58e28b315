package indexer

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

// Index names. Every index maps a symbol to artifact handles except
// SubTypeNames, which maps a supertype name to the names of its direct
// subtypes.
const (
	TypeDeclarations        = "typeDeclarations"
	ConstructorDeclarations = "constructorDeclarations"
	MethodDeclarations      = "methodDeclarations"
	FieldDeclarations       = "fieldDeclarations"
	TypeReferences          = "typeReferences"
	ConstructorReferences   = "constructorReferences"
	MethodReferences        = "methodReferences"
	FieldReferences         = "fieldReferences"
	Strings                 = "strings"
	SubTypeNames            = "subTypeNames"
)

// IndexNames lists every index the writer appends to.
var IndexNames = []string{
	TypeDeclarations,
	ConstructorDeclarations,
	MethodDeclarations,
	FieldDeclarations,
	TypeReferences,
	ConstructorReferences,
	MethodReferences,
	FieldReferences,
	Strings,
	SubTypeNames,
}

type pendingAdd struct {
	index string
	c     index.Collection
	value string
}

// writeSymbols appends artifact under every collected symbol and the module
// name under every supertype. Every collection is resolved before the first
// append, so a missing index or collection fails with ErrIndexInconsistent
// and leaves indexes untouched. It returns the number of appends per index.
func writeSymbols(indexes index.Indexes, s *Symbols, artifact string) (map[string]int, error) {
	var adds []pendingAdd
	resolve := func(name string, set Set, value string) error {
		if len(set) == 0 {
			return nil
		}
		idx := indexes.Index(name)
		if idx == nil {
			return fmt.Errorf("%w: no index %q", apperrors.ErrIndexInconsistent, name)
		}
		for symbol := range set {
			c := idx.Get(symbol)
			if c == nil {
				return fmt.Errorf("%w: index %q has no collection for %q", apperrors.ErrIndexInconsistent, name, symbol)
			}
			adds = append(adds, pendingAdd{index: name, c: c, value: value})
		}
		return nil
	}

	for _, b := range s.byIndex() {
		if err := resolve(b.name, b.set, artifact); err != nil {
			return nil, err
		}
	}
	if err := resolve(SubTypeNames, s.SuperTypes, s.ModuleName); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, a := range adds {
		a.c.Add(a.value)
		counts[a.index]++
	}
	return counts, nil
}
