package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/classfile"
	ct "github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/classfile/classfiletest"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/container"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

type bytesEntry struct {
	path   string
	data   []byte
	closed bool
}

func (e *bytesEntry) Container() string { return "test.jar" }
func (e *bytesEntry) Path() string      { return e.path }
func (e *bytesEntry) Artifact() string  { return container.Artifact("test.jar", e.path) }
func (e *bytesEntry) Size() int64       { return int64(len(e.data)) }

func (e *bytesEntry) Open() (io.ReadCloser, error) {
	return &closeTracker{Reader: bytes.NewReader(e.data), entry: e}, nil
}

type closeTracker struct {
	io.Reader
	entry *bytesEntry
}

func (c *closeTracker) Close() error {
	c.entry.closed = true
	return nil
}

func newIndexes() *index.MemoryIndex {
	return index.NewMemoryIndex(IndexNames...)
}

// widget builds a module exercising every declaration and reference kind.
func widget() *ct.Builder {
	b := ct.New("com/acme/Widget", "com/acme/Base", "java/lang/Runnable")
	b.Field(0x0002, "items", "Ljava/util/List;",
		ct.Signature("[[Ljava/util/List<+Ljava/lang/Comparable<-Ljava/lang/Integer;>;>;"))
	b.Field(0x0002, "count", "Ljava/util/concurrent/atomic/AtomicInteger;")
	b.Method(0x0001, "<init>", "()V")
	b.Method(0x0008, "<clinit>", "()V")
	b.Method(0x0001, "run", "()V",
		ct.Exceptions("java/io/IOException"),
		ct.Annotations(true, ct.Annotation{
			Desc: "Lcom/acme/Traced;",
			Elements: []ct.Element{
				{Name: "level", Value: ct.Enum("Lcom/acme/Level;", "HIGH")},
				{Name: "tags", Value: ct.Array(ct.Nested(ct.Annotation{Desc: "Lcom/acme/Tag;"}))},
				{Name: "type", Value: ct.ClassValue("Lcom/acme/Target;")},
			},
		}),
		ct.ParameterAnnotations([]ct.Annotation{{Desc: "Lcom/acme/NotNull;"}}),
	)
	b.Methodref("com/acme/Helper", "<init>", "()V")
	b.Methodref("java/io/PrintStream", "println", "(Ljava/lang/String;)V")
	b.InterfaceMethodref("java/util/List", "size", "()I")
	b.Fieldref("java/lang/System", "out", "Ljava/io/PrintStream;")
	b.String("hello")
	b.Class("[Lcom/acme/Element;")
	return b
}

func indexBytes(t *testing.T, idx index.Indexes, artifact string, b []byte) Report {
	t.Helper()
	report, err := NewClassFileIndexer(nil, 0, nil).IndexBytes(context.Background(), artifact, b, idx)
	require.NoError(t, err)
	return report
}

func TestIndexRecordsDeclarationsAndReferences(t *testing.T) {
	idx := newIndexes()
	report := indexBytes(t, idx, "w", widget().Bytes())
	assert.Equal(t, "com/acme/Widget", report.Module)
	assert.Empty(t, report.Skipped)

	has := func(index, symbol string) bool { return len(idx.Lookup(index, symbol)) > 0 }

	assert.Equal(t, []string{"w"}, idx.Lookup(TypeDeclarations, "com/acme/Widget"))
	assert.Equal(t, []string{"w"}, idx.Lookup(ConstructorDeclarations, "com/acme/Widget"))
	assert.False(t, has(ConstructorDeclarations, "<init>"))
	assert.True(t, has(MethodDeclarations, "run"))
	assert.False(t, has(MethodDeclarations, "<clinit>"))
	assert.False(t, has(MethodDeclarations, "<init>"))
	assert.True(t, has(FieldDeclarations, "items"))
	assert.True(t, has(FieldDeclarations, "count"))

	for _, ref := range []string{
		"java/util/List", "java/lang/Comparable", "java/lang/Integer",
		"java/util/concurrent/atomic/AtomicInteger",
		"java/io/IOException",
		"com/acme/Traced", "com/acme/Level", "com/acme/Tag", "com/acme/Target", "com/acme/NotNull",
		"com/acme/Element", "com/acme/Helper", "java/io/PrintStream", "java/lang/System",
		"com/acme/Base", "java/lang/Runnable",
	} {
		assert.True(t, has(TypeReferences, ref), ref)
	}
	assert.False(t, has(TypeReferences, "com/acme/Widget"))
	assert.False(t, has(TypeReferences, "[Lcom/acme/Element;"))

	assert.True(t, has(ConstructorReferences, "com/acme/Helper"))
	assert.False(t, has(ConstructorReferences, "<init>"))
	assert.False(t, has(MethodReferences, "<init>"))
	assert.True(t, has(MethodReferences, "println"))
	assert.True(t, has(MethodReferences, "size"))
	assert.True(t, has(FieldReferences, "out"))
	assert.True(t, has(Strings, "hello"))

	assert.Equal(t, []string{"com/acme/Widget"}, idx.Lookup(SubTypeNames, "com/acme/Base"))
	assert.Equal(t, []string{"com/acme/Widget"}, idx.Lookup(SubTypeNames, "java/lang/Runnable"))
}

func TestIndexIsDeterministic(t *testing.T) {
	b := widget().Bytes()
	first, second := newIndexes(), newIndexes()
	indexBytes(t, first, "w", b)
	indexBytes(t, second, "w", b)
	indexBytes(t, second, "w", b)
	assert.Equal(t, first.Snapshot(), second.Snapshot())
}

func TestSelfReferenceIsRecorded(t *testing.T) {
	b := ct.New("com/acme/Node", "java/lang/Object")
	b.Field(0, "next", "Lcom/acme/Node;")
	idx := newIndexes()
	indexBytes(t, idx, "n", b.Bytes())
	assert.Equal(t, []string{"n"}, idx.Lookup(TypeReferences, "com/acme/Node"))
	assert.Equal(t, []string{"n"}, idx.Lookup(TypeDeclarations, "com/acme/Node"))
}

func TestSubtypeRelation(t *testing.T) {
	iface := ct.New("com/acme/Shape", "java/lang/Object")
	iface.Access = 0x0601
	sub := ct.New("com/acme/Circle", "java/lang/Object", "com/acme/Shape")

	idx := newIndexes()
	indexBytes(t, idx, "shape", iface.Bytes())
	indexBytes(t, idx, "circle", sub.Bytes())

	assert.Equal(t, []string{"com/acme/Circle"}, idx.Lookup(SubTypeNames, "com/acme/Shape"))
	assert.Equal(t, []string{"com/acme/Circle", "com/acme/Shape"}, idx.Lookup(SubTypeNames, "java/lang/Object"))
}

func TestRootModuleHasNoSupertype(t *testing.T) {
	idx := newIndexes()
	indexBytes(t, idx, "o", ct.New("java/lang/Object", "").Bytes())
	for _, e := range idx.Snapshot() {
		assert.NotEqual(t, SubTypeNames, e.Index)
	}
}

func TestBadPoolEntriesAreSkipped(t *testing.T) {
	b := widget()
	b.Raw(classfile.TagFieldref, append(ct.U2(1), ct.U2(0x7FFF)...)...)
	b.Raw(classfile.TagMethodref, append(ct.U2(1), ct.U2(0)...)...)
	b.Raw(classfile.TagString, ct.U2(b.Class("not/Utf8"))...)
	b.Raw(classfile.TagClass, ct.U2(b.Utf8("[Lbroken"))...)

	idx := newIndexes()
	report := indexBytes(t, idx, "w", b.Bytes())

	require.Len(t, report.Skipped, 4)
	counts := report.SkipCounts()
	assert.Equal(t, 3, counts[SkipConstant])
	assert.Equal(t, 1, counts[SkipSignature])
	for _, err := range report.Skipped {
		assert.True(t, errors.Is(err, apperrors.ErrMalformedEntry) || errors.Is(err, apperrors.ErrMalformedSignature), err)
	}

	assert.NotEmpty(t, idx.Lookup(FieldReferences, "out"))
	assert.NotEmpty(t, idx.Lookup(MethodReferences, "println"))
	assert.NotEmpty(t, idx.Lookup(Strings, "hello"))
	assert.NotEmpty(t, idx.Lookup(TypeReferences, "com/acme/Element"))
}

func TestUnknownPoolTagIsSkipped(t *testing.T) {
	b := ct.New("com/acme/Widget", "java/lang/Object")
	b.String("hello")
	unknown := b.Raw(2, 0, 0)
	b.Fieldref("java/lang/System", "out", "Ljava/io/PrintStream;")

	idx := newIndexes()
	report := indexBytes(t, idx, "w", b.Bytes())

	require.Len(t, report.Skipped, 1)
	var entryErr *classfile.EntryError
	require.True(t, errors.As(report.Skipped[0], &entryErr))
	assert.Equal(t, unknown, entryErr.Index)
	assert.Equal(t, 1, report.SkipCounts()[SkipConstant])
	assert.Equal(t, []string{"w"}, idx.Lookup(Strings, "hello"))
	assert.Equal(t, []string{"w"}, idx.Lookup(FieldReferences, "out"))
	assert.Equal(t, []string{"w"}, idx.Lookup(TypeDeclarations, "com/acme/Widget"))
}

func TestUndecodableMemberNameIsSkipped(t *testing.T) {
	b := ct.New("com/acme/Widget", "java/lang/Object")
	b.String("hello")
	bad := b.Raw(classfile.TagUtf8, 0, 4, 0xF0, 0x9F, 0x98, 0x80)
	b.FieldAt(0x0002, bad, b.Utf8("Lcom/acme/Kept;"))
	b.Field(0x0002, "size", "I")

	idx := newIndexes()
	report := indexBytes(t, idx, "w", b.Bytes())

	require.Len(t, report.Skipped, 1)
	assert.ErrorIs(t, report.Skipped[0], apperrors.ErrMalformedEntry)
	assert.Equal(t, []string{"w"}, idx.Lookup(TypeDeclarations, "com/acme/Widget"))
	assert.Equal(t, []string{"w"}, idx.Lookup(Strings, "hello"))
	assert.Equal(t, []string{"w"}, idx.Lookup(TypeReferences, "com/acme/Kept"))
	assert.Equal(t, []string{"w"}, idx.Lookup(FieldDeclarations, "size"))
}

func TestMalformedSignatureIsSkipped(t *testing.T) {
	b := ct.New("com/acme/A", "java/lang/Object")
	b.Field(0, "bad", "Ljava/lang/Object;", ct.Signature("Ljava/util/List<Lcom/acme/Lost;"))
	b.Field(0, "good", "Lcom/acme/Kept;")

	idx := newIndexes()
	report := indexBytes(t, idx, "a", b.Bytes())
	require.Len(t, report.Skipped, 1)
	assert.ErrorIs(t, report.Skipped[0], apperrors.ErrMalformedSignature)
	assert.Empty(t, idx.Lookup(TypeReferences, "com/acme/Lost"))
	assert.NotEmpty(t, idx.Lookup(TypeReferences, "com/acme/Kept"))
}

func TestUnreadableModuleWritesNothing(t *testing.T) {
	valid := widget().Bytes()
	for name, b := range map[string][]byte{
		"empty":     nil,
		"header":    valid[:8],
		"truncated": valid[:len(valid)-3],
	} {
		t.Run(name, func(t *testing.T) {
			idx := newIndexes()
			_, err := NewClassFileIndexer(nil, 0, nil).IndexBytes(context.Background(), "x", b, idx)
			assert.ErrorIs(t, err, apperrors.ErrUnreadableModule)
			assert.Empty(t, idx.Snapshot())
		})
	}
}

func TestCancelledPassWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	idx := newIndexes()
	_, err := NewClassFileIndexer(nil, 0, nil).IndexBytes(ctx, "w", widget().Bytes(), idx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, idx.Snapshot())
}

type partialIndexes struct {
	*index.MemoryIndex
	missing string
}

func (p partialIndexes) Index(name string) index.Index {
	if name == p.missing {
		return nil
	}
	return p.MemoryIndex.Index(name)
}

func TestMissingIndexWritesNothing(t *testing.T) {
	mem := newIndexes()
	_, err := NewClassFileIndexer(nil, 0, nil).IndexBytes(context.Background(), "w", widget().Bytes(),
		partialIndexes{MemoryIndex: mem, missing: SubTypeNames})
	assert.ErrorIs(t, err, apperrors.ErrIndexInconsistent)
	assert.Empty(t, mem.Snapshot())
}

func TestIndexEntryClosesAndLimitsSize(t *testing.T) {
	data := widget().Bytes()

	e := &bytesEntry{path: "com/acme/Widget.class", data: data}
	idx := newIndexes()
	report, err := NewClassFileIndexer(nil, int64(len(data)), nil).Index(context.Background(), e, idx)
	require.NoError(t, err)
	assert.True(t, e.closed)
	assert.Equal(t, "test.jar!/com/acme/Widget.class", report.Artifact)
	assert.Equal(t, []string{report.Artifact}, idx.Lookup(TypeDeclarations, "com/acme/Widget"))
	assert.Positive(t, report.Written[TypeReferences])

	e = &bytesEntry{path: "com/acme/Widget.class", data: data}
	idx = newIndexes()
	_, err = NewClassFileIndexer(nil, int64(len(data)-1), nil).Index(context.Background(), e, idx)
	assert.ErrorIs(t, err, apperrors.ErrUnreadableModule)
	assert.True(t, e.closed)
	assert.Empty(t, idx.Snapshot())
}

func TestConcurrentPassesShareIndexes(t *testing.T) {
	idx := newIndexes()
	p := NewClassFileIndexer(nil, 0, nil)
	const modules = 32
	var wg sync.WaitGroup
	errs := make(chan error, modules)
	for i := 0; i < modules; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := ct.New(fmt.Sprintf("com/acme/Impl%d", i), "com/acme/Base")
			b.Field(0, "shared", "Ljava/lang/String;")
			_, err := p.IndexBytes(context.Background(), fmt.Sprintf("m%d", i), b.Bytes(), idx)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, idx.Lookup(SubTypeNames, "com/acme/Base"), modules)
	assert.Len(t, idx.Lookup(FieldDeclarations, "shared"), modules)
	assert.Len(t, idx.Lookup(TypeReferences, "java/lang/String"), modules)
}

func TestSelectors(t *testing.T) {
	p := NewClassFileIndexer([]string{"*:file:*.jmod"}, 0, nil)
	assert.Equal(t, []string{"*:file:*.jmod", ClassSelector}, p.Selectors())
	assert.Equal(t, []string{ClassSelector}, NewClassFileIndexer(nil, 0, nil).Selectors())
}

func TestSymbolsResetDoesNotLeak(t *testing.T) {
	s := NewSymbols()
	visitModule(&classfile.Module{Name: "a/A", SuperName: "a/Base"}, s)
	s.Reset()
	for _, b := range s.byIndex() {
		assert.Empty(t, b.set, b.name)
	}
	assert.Empty(t, s.SuperTypes)
	assert.Empty(t, s.Pending)
	assert.Empty(t, s.ModuleName)
}
