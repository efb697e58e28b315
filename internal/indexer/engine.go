package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/container"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/metrics"
)

// Engine owns the shared indexes: an in-memory index that every pass appends
// to, and the immutable segments it is periodically flushed into.
type Engine struct {
	provider *ClassFileIndexer
	matcher  *container.Matcher

	// memMu is held shared by every pass for the duration of its write and
	// exclusively by Flush while it swaps the memory index out.
	memMu    sync.RWMutex
	memIndex *index.MemoryIndex
	flushing *index.MemoryIndex
	flushMu  sync.Mutex

	writer   *segment.Writer
	readers  []*segment.Reader
	readerMu sync.RWMutex

	cfg     config.IndexerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// BatchResult summarises one IndexContainer call.
type BatchResult struct {
	Container string         `json:"container"`
	Indexed   int            `json:"indexed"`
	Abandoned int            `json:"abandoned"`
	Ignored   int            `json:"ignored"`
	Skipped   map[string]int `json:"skipped"`
	Duration  time.Duration  `json:"duration"`
}

// Stats describes the engine's current storage.
type Stats struct {
	Segments     int   `json:"segments"`
	MemoryBytes  int64 `json:"memory_bytes"`
	MemoryValues int64 `json:"memory_values"`
}

// NewEngine opens the data directory and every segment already in it. m may
// be nil.
func NewEngine(cfg config.IndexerConfig, m *metrics.Metrics) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	provider := NewClassFileIndexer(cfg.Selectors, cfg.MaxModuleSize, m)
	matcher, err := container.CompileSelectors(provider.Selectors())
	if err != nil {
		return nil, fmt.Errorf("compiling selectors: %w", err)
	}
	e := &Engine{
		provider: provider,
		matcher:  matcher,
		memIndex: index.NewMemoryIndex(IndexNames...),
		writer:   segment.NewWriter(cfg.DataDir),
		cfg:      cfg,
		metrics:  m,
		logger:   slog.Default().With("component", "indexer"),
	}
	if _, err := e.ReloadSegments(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return e, nil
}

// Selected reports whether entry is claimed by the engine's selectors.
func (e *Engine) Selected(entry container.Entry) bool {
	_, ok := e.matcher.Match(entry)
	return ok
}

// IndexEntry runs one pass over entry into the memory index and flushes when
// the memory index has grown past the segment size. A failed flush leaves the
// symbols in memory for the next attempt and does not fail the pass.
func (e *Engine) IndexEntry(ctx context.Context, entry container.Entry) (Report, error) {
	e.memMu.RLock()
	report, err := e.provider.Index(ctx, entry, e.memIndex)
	size := e.memIndex.Size()
	e.memMu.RUnlock()
	if err != nil {
		return report, err
	}
	if e.cfg.SegmentMaxSize > 0 && size >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory index reached max size, flushing to disk",
			"size", size,
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			e.logger.Error("size-triggered flush failed, symbols kept in memory",
				"artifact", report.Artifact,
				"error", err,
			)
		}
	}
	return report, nil
}

// IndexContainer indexes every selected entry of c with up to cfg.Workers
// concurrent passes. Abandoned modules are counted, not returned as errors.
func (e *Engine) IndexContainer(ctx context.Context, c container.Container) (BatchResult, error) {
	start := time.Now()
	result := BatchResult{Container: c.Name(), Skipped: make(map[string]int)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	walkErr := c.Walk(gctx, func(entry container.Entry) error {
		if !e.Selected(entry) {
			mu.Lock()
			result.Ignored++
			mu.Unlock()
			return nil
		}
		g.Go(func() error {
			report, err := e.IndexEntry(gctx, entry)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				result.Abandoned++
				return nil
			}
			result.Indexed++
			for kind, n := range report.SkipCounts() {
				result.Skipped[kind] += n
			}
			return nil
		})
		return nil
	})
	err := g.Wait()
	if walkErr != nil && err == nil {
		err = walkErr
	}
	result.Duration = time.Since(start)

	e.logger.Info("container indexed",
		"container", result.Container,
		"indexed", result.Indexed,
		"abandoned", result.Abandoned,
		"ignored", result.Ignored,
		"skipped", result.Skipped,
		"duration", result.Duration,
	)
	if err != nil {
		return result, fmt.Errorf("indexing container %s: %w", c.Name(), err)
	}
	return result, nil
}

// Flush writes the memory index to a new segment. Passes that start while a
// flush is running write to a fresh memory index; lookups see the flushing
// index until its segment is open.
func (e *Engine) Flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.memMu.Lock()
	old := e.memIndex
	if old.ValueCount() == 0 {
		e.memMu.Unlock()
		return nil
	}
	e.memIndex = index.NewMemoryIndex(IndexNames...)
	e.flushing = old
	e.memMu.Unlock()

	segmentName, err := e.writeSegment(old)
	if err != nil {
		e.restore(old)
		e.metrics.ObserveFlush("error", e.segmentCount())
		return err
	}

	reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, segmentName))
	if err != nil {
		e.restore(old)
		e.metrics.ObserveFlush("error", e.segmentCount())
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	active := len(e.readers)
	e.readerMu.Unlock()

	e.memMu.Lock()
	e.flushing = nil
	e.memMu.Unlock()

	e.metrics.ObserveFlush("ok", active)
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"keys", reader.Keys(),
		"values", reader.ValueCount(),
		"active_segments", active,
	)
	return nil
}

func (e *Engine) writeSegment(m *index.MemoryIndex) (string, error) {
	name, err := e.writer.Write(m.Snapshot())
	if err != nil {
		return "", fmt.Errorf("writing segment: %w", err)
	}
	return name, nil
}

// restore merges a memory index whose flush failed back into the live one.
func (e *Engine) restore(old *index.MemoryIndex) {
	e.memMu.Lock()
	defer e.memMu.Unlock()
	for _, entry := range old.Snapshot() {
		c := e.memIndex.Index(entry.Index).Get(entry.Symbol)
		for _, v := range entry.Values {
			c.Add(v)
		}
	}
	e.flushing = nil
}

// Lookup returns the values recorded under symbol in the named index, one
// sorted list per source (memory, flushing memory, then each segment).
func (e *Engine) Lookup(name, symbol string) ([][]string, error) {
	if !slices.Contains(IndexNames, name) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownIndex, name)
	}
	var sources [][]string
	e.memMu.RLock()
	if v := e.memIndex.Lookup(name, symbol); len(v) > 0 {
		sources = append(sources, v)
	}
	if e.flushing != nil {
		if v := e.flushing.Lookup(name, symbol); len(v) > 0 {
			sources = append(sources, v)
		}
	}
	e.memMu.RUnlock()

	e.readerMu.RLock()
	readers := make([]*segment.Reader, len(e.readers))
	copy(readers, e.readers)
	e.readerMu.RUnlock()

	for _, reader := range readers {
		v, err := reader.Lookup(name, symbol)
		if err != nil {
			e.logger.Error("segment lookup failed",
				"segment", reader.Name(),
				"error", err,
			)
			continue
		}
		if len(v) > 0 {
			sources = append(sources, v)
		}
	}
	return sources, nil
}

func (e *Engine) Stats() Stats {
	e.memMu.RLock()
	s := Stats{MemoryBytes: e.memIndex.Size(), MemoryValues: e.memIndex.ValueCount()}
	e.memMu.RUnlock()
	s.Segments = e.segmentCount()
	return s
}

func (e *Engine) segmentCount() int {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return len(e.readers)
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.Flush(); err != nil {
					e.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
}

// ReloadSegments opens every segment in the data directory that is not open
// yet, such as those flushed by an indexer process sharing the directory. It
// returns the number of segments added.
func (e *Engine) ReloadSegments() (int, error) {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.Extension) {
			segFiles = append(segFiles, entry.Name())
		}
	}
	sort.Strings(segFiles)

	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	loaded := make(map[string]bool, len(e.readers))
	for _, r := range e.readers {
		loaded[r.Name()] = true
	}
	added := 0
	for _, name := range segFiles {
		if loaded[name] {
			continue
		}
		reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.readers = append(e.readers, reader)
		added++
		e.logger.Debug("loaded segment",
			"segment", name,
			"keys", reader.Keys(),
			"values", reader.ValueCount(),
		)
	}
	if added > 0 {
		e.metrics.SetActiveSegments(len(e.readers))
		e.logger.Info("segments loaded", "added", added, "active_segments", len(e.readers))
	}
	return added, nil
}

func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
	return nil
}
