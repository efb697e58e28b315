package index

import (
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryIndex holds a fixed set of named indexes in memory. Collections are
// created on first Get and only ever grow until Reset.
type MemoryIndex struct {
	names   []string
	indexes map[string]*namedIndex
	size    atomic.Int64
	values  atomic.Int64
}

type namedIndex struct {
	name  string
	owner *MemoryIndex
	mu    sync.RWMutex
	keys  map[string]*set
}

type set struct {
	owner  *MemoryIndex
	mu     sync.Mutex
	values map[string]struct{}
}

// NewMemoryIndex declares the named indexes this store serves. Index returns
// nil for any other name.
func NewMemoryIndex(names ...string) *MemoryIndex {
	m := &MemoryIndex{
		names:   append([]string(nil), names...),
		indexes: make(map[string]*namedIndex, len(names)),
	}
	sort.Strings(m.names)
	for _, name := range m.names {
		m.indexes[name] = &namedIndex{name: name, owner: m, keys: make(map[string]*set)}
	}
	return m
}

// Index implements Indexes.
func (m *MemoryIndex) Index(name string) Index {
	n, ok := m.indexes[name]
	if !ok {
		return nil
	}
	return n
}

// Names returns the declared index names, sorted.
func (m *MemoryIndex) Names() []string {
	return append([]string(nil), m.names...)
}

func (n *namedIndex) Get(symbol string) Collection {
	n.mu.RLock()
	s, ok := n.keys[symbol]
	n.mu.RUnlock()
	if ok {
		return s
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if s, ok = n.keys[symbol]; !ok {
		s = &set{owner: n.owner, values: make(map[string]struct{})}
		n.keys[symbol] = s
		n.owner.size.Add(int64(len(n.name) + len(symbol) + 48))
	}
	return s
}

func (s *set) Add(value string) {
	s.mu.Lock()
	_, exists := s.values[value]
	if !exists {
		s.values[value] = struct{}{}
	}
	s.mu.Unlock()
	if !exists {
		s.owner.size.Add(int64(len(value) + 16))
		s.owner.values.Add(1)
	}
}

func (s *set) sorted() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.values))
	for v := range s.values {
		out = append(out, v)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// Lookup returns the sorted values recorded under symbol in the named index.
func (m *MemoryIndex) Lookup(name, symbol string) []string {
	n, ok := m.indexes[name]
	if !ok {
		return nil
	}
	n.mu.RLock()
	s, ok := n.keys[symbol]
	n.mu.RUnlock()
	if !ok {
		return nil
	}
	return s.sorted()
}

// Snapshot returns every non-empty collection ordered by index name, then
// symbol.
func (m *MemoryIndex) Snapshot() []Entry {
	var entries []Entry
	for _, name := range m.names {
		n := m.indexes[name]
		n.mu.RLock()
		start := len(entries)
		for symbol, s := range n.keys {
			values := s.sorted()
			if len(values) == 0 {
				continue
			}
			entries = append(entries, Entry{Index: name, Symbol: symbol, Values: values})
		}
		n.mu.RUnlock()
		part := entries[start:]
		sort.Slice(part, func(i, j int) bool { return part[i].Symbol < part[j].Symbol })
	}
	return entries
}

// Size is an estimate of the bytes held, used to decide when to flush.
func (m *MemoryIndex) Size() int64 {
	return m.size.Load()
}

// ValueCount is the number of distinct (index, symbol, value) triples held.
func (m *MemoryIndex) ValueCount() int64 {
	return m.values.Load()
}

// Reset drops every collection. Collections handed out before Reset keep
// working but are no longer reachable from the index.
func (m *MemoryIndex) Reset() {
	for _, n := range m.indexes {
		n.mu.Lock()
		n.keys = make(map[string]*set)
		n.mu.Unlock()
	}
	m.size.Store(0)
	m.values.Store(0)
}
