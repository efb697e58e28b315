package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ct "github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/classfile/classfiletest"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/container"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

func testEngineConfig(t *testing.T) config.IndexerConfig {
	t.Helper()
	return config.IndexerConfig{
		DataDir:        t.TempDir(),
		SegmentMaxSize: 1 << 30,
		Workers:        4,
		MaxModuleSize:  1 << 20,
	}
}

func writeClasses(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for name, b := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, b, 0644))
	}
}

func classesDir(t *testing.T) container.Container {
	t.Helper()
	root := filepath.Join(t.TempDir(), "classes")
	writeClasses(t, root, map[string][]byte{
		"com/acme/Widget.class": widget().Bytes(),
		"com/acme/Base.class":   ct.New("com/acme/Base", "java/lang/Object").Bytes(),
		"com/acme/Broken.class": []byte{0xCA, 0xFE},
		"README.txt":            []byte("not a module"),
	})
	return container.OpenDirectory(root)
}

func TestIndexContainer(t *testing.T) {
	e, err := NewEngine(testEngineConfig(t), nil)
	require.NoError(t, err)
	defer e.Close()

	result, err := e.IndexContainer(context.Background(), classesDir(t))
	require.NoError(t, err)
	assert.Equal(t, "classes", result.Container)
	assert.Equal(t, 2, result.Indexed)
	assert.Equal(t, 1, result.Abandoned)
	assert.Equal(t, 1, result.Ignored)

	sources, err := e.Lookup(SubTypeNames, "com/acme/Base")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"com/acme/Widget"}}, sources)

	sources, err = e.Lookup(TypeDeclarations, "com/acme/Base")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"classes!/com/acme/Base.class"}}, sources)
}

func TestLookupUnknownIndex(t *testing.T) {
	e, err := NewEngine(testEngineConfig(t), nil)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Lookup("packageDeclarations", "com/acme")
	assert.ErrorIs(t, err, apperrors.ErrUnknownIndex)
}

func TestFlushMovesSymbolsToSegment(t *testing.T) {
	cfg := testEngineConfig(t)
	e, err := NewEngine(cfg, nil)
	require.NoError(t, err)

	_, err = e.IndexContainer(context.Background(), classesDir(t))
	require.NoError(t, err)
	before := e.Stats()
	assert.Positive(t, before.MemoryValues)
	assert.Zero(t, before.Segments)

	require.NoError(t, e.Flush())
	after := e.Stats()
	assert.Zero(t, after.MemoryValues)
	assert.Equal(t, 1, after.Segments)

	sources, err := e.Lookup(MethodDeclarations, "run")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"classes!/com/acme/Widget.class"}}, sources)

	// an empty memory index does not produce a segment
	require.NoError(t, e.Flush())
	assert.Equal(t, 1, e.Stats().Segments)
	require.NoError(t, e.Close())

	reopened, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Stats().Segments)
	sources, err = reopened.Lookup(Strings, "hello")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"classes!/com/acme/Widget.class"}}, sources)
}

func TestIndexEntryFlushesAtMaxSize(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.SegmentMaxSize = 1
	e, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.IndexEntry(context.Background(), &bytesEntry{path: "com/acme/Widget.class", data: widget().Bytes()})
	require.NoError(t, err)
	assert.Equal(t, 1, e.Stats().Segments)
	assert.Zero(t, e.Stats().MemoryValues)
}

func TestIndexEntrySurvivesFailedFlush(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.SegmentMaxSize = 1
	e, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	defer e.Close()

	// a regular file where the data directory should be makes every segment
	// write fail
	require.NoError(t, os.RemoveAll(cfg.DataDir))
	require.NoError(t, os.WriteFile(cfg.DataDir, nil, 0644))

	report, err := e.IndexEntry(context.Background(), &bytesEntry{path: "com/acme/Widget.class", data: widget().Bytes()})
	require.NoError(t, err)
	assert.Equal(t, "com/acme/Widget", report.Module)
	assert.Zero(t, e.Stats().Segments)
	assert.Positive(t, e.Stats().MemoryValues)

	sources, err := e.Lookup(FieldDeclarations, "items")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"test.jar!/com/acme/Widget.class"}}, sources)
}

func TestIndexContainerCountsModuleIndexedWhenFlushFails(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.SegmentMaxSize = 1
	cfg.Workers = 1
	e, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, os.RemoveAll(cfg.DataDir))
	require.NoError(t, os.WriteFile(cfg.DataDir, nil, 0644))

	result, err := e.IndexContainer(context.Background(), classesDir(t))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Indexed)
	assert.Equal(t, 1, result.Abandoned)
}

func TestReloadSegmentsPicksUpNewFiles(t *testing.T) {
	cfg := testEngineConfig(t)
	writer, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	reader, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	defer reader.Close()

	_, err = writer.IndexEntry(context.Background(), &bytesEntry{path: "com/acme/Widget.class", data: widget().Bytes()})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	sources, err := reader.Lookup(FieldDeclarations, "items")
	require.NoError(t, err)
	assert.Empty(t, sources)

	added, err := reader.ReloadSegments()
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	added, err = reader.ReloadSegments()
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Equal(t, 1, reader.Stats().Segments)
	sources, err = reader.Lookup(FieldDeclarations, "items")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"test.jar!/com/acme/Widget.class"}}, sources)
}

func TestIndexContainerCancelled(t *testing.T) {
	e, err := NewEngine(testEngineConfig(t), nil)
	require.NoError(t, err)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.IndexContainer(ctx, classesDir(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, e.Stats().MemoryValues)
}

func TestFlushLoopFlushesOnStop(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.FlushInterval = time.Hour
	e, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.IndexEntry(context.Background(), &bytesEntry{path: "com/acme/Widget.class", data: widget().Bytes()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	e.StartFlushLoop(ctx)
	cancel()
	assert.Eventually(t, func() bool { return e.Stats().Segments == 1 }, 5*time.Second, 10*time.Millisecond)
}
