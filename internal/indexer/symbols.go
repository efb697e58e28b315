package indexer

import "sync"

// Set is a string set.
type Set map[string]struct{}

func (s Set) Add(v string) {
	if v != "" {
		s[v] = struct{}{}
	}
}

// Symbols is the working state of one indexing pass. A Symbols value is owned
// by exactly one pass at a time; Reset must not race with any other use.
type Symbols struct {
	TypeDeclarations        Set
	ConstructorDeclarations Set
	MethodDeclarations      Set
	FieldDeclarations       Set
	TypeReferences          Set
	ConstructorReferences   Set
	MethodReferences        Set
	FieldReferences         Set
	Strings                 Set
	SuperTypes              Set

	// Pending holds descriptor and signature strings awaiting the signature
	// parser.
	Pending Set

	// ModuleName is the internal name of the module being indexed.
	ModuleName string
}

func NewSymbols() *Symbols {
	return &Symbols{
		TypeDeclarations:        make(Set),
		ConstructorDeclarations: make(Set),
		MethodDeclarations:      make(Set),
		FieldDeclarations:       make(Set),
		TypeReferences:          make(Set),
		ConstructorReferences:   make(Set),
		MethodReferences:        make(Set),
		FieldReferences:         make(Set),
		Strings:                 make(Set),
		SuperTypes:              make(Set),
		Pending:                 make(Set),
	}
}

// Reset clears every set, keeping the allocated maps.
func (s *Symbols) Reset() {
	clear(s.TypeDeclarations)
	clear(s.ConstructorDeclarations)
	clear(s.MethodDeclarations)
	clear(s.FieldDeclarations)
	clear(s.TypeReferences)
	clear(s.ConstructorReferences)
	clear(s.MethodReferences)
	clear(s.FieldReferences)
	clear(s.Strings)
	clear(s.SuperTypes)
	clear(s.Pending)
	s.ModuleName = ""
}

// byIndex pairs each artifact-valued set with the index it is written to.
func (s *Symbols) byIndex() []struct {
	name string
	set  Set
} {
	return []struct {
		name string
		set  Set
	}{
		{TypeDeclarations, s.TypeDeclarations},
		{ConstructorDeclarations, s.ConstructorDeclarations},
		{MethodDeclarations, s.MethodDeclarations},
		{FieldDeclarations, s.FieldDeclarations},
		{TypeReferences, s.TypeReferences},
		{ConstructorReferences, s.ConstructorReferences},
		{MethodReferences, s.MethodReferences},
		{FieldReferences, s.FieldReferences},
		{Strings, s.Strings},
	}
}

var symbolsPool = sync.Pool{
	New: func() any { return NewSymbols() },
}

func acquireSymbols() *Symbols {
	return symbolsPool.Get().(*Symbols)
}

func releaseSymbols(s *Symbols) {
	s.Reset()
	symbolsPool.Put(s)
}
