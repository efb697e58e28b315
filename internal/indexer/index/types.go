package index

// Collection is the append-only set of values recorded under one symbol.
// Implementations must accept concurrent Add calls.
type Collection interface {
	Add(value string)
}

// Index maps symbols to collections. Get returns nil when the index cannot
// supply a collection for symbol.
type Index interface {
	Get(symbol string) Collection
}

// Indexes resolves named indexes. Index returns nil for an unknown name.
type Indexes interface {
	Index(name string) Index
}

// Entry is one symbol of one named index with the values recorded under it,
// sorted.
type Entry struct {
	Index  string
	Symbol string
	Values []string
}
