package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/classfile"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/container"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/signature"
	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/metrics"
)

// ClassSelector claims every class module in any container.
const ClassSelector = "*:file:*.class"

// Skip kinds reported in metrics.
const (
	SkipConstant  = "constant"
	SkipAttribute = "attribute"
	SkipSignature = "signature"
)

// Report describes one completed or abandoned pass.
type Report struct {
	Artifact string
	Module   string
	// Skipped holds every recovered decode failure: constant-pool entries,
	// attribute bodies and signature strings that were stepped over.
	Skipped  []error
	Written  map[string]int
	Duration time.Duration
}

// SkipCounts groups Skipped by kind.
func (r Report) SkipCounts() map[string]int {
	counts := make(map[string]int)
	for _, err := range r.Skipped {
		var attrErr *classfile.AttributeError
		var sigErr *signature.Error
		switch {
		case errors.As(err, &attrErr):
			counts[SkipAttribute]++
		case errors.As(err, &sigErr):
			counts[SkipSignature]++
		default:
			counts[SkipConstant]++
		}
	}
	return counts
}

// ClassFileIndexer extracts declared and referenced symbols from class modules.
// It keeps no state between passes and may be used concurrently.
type ClassFileIndexer struct {
	selectors     []string
	maxModuleSize int64
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewClassFileIndexer builds an indexer claiming selectors plus ClassSelector.
// maxModuleSize <= 0 disables the size limit. m may be nil.
func NewClassFileIndexer(selectors []string, maxModuleSize int64, m *metrics.Metrics) *ClassFileIndexer {
	return &ClassFileIndexer{
		selectors:     append(append([]string(nil), selectors...), ClassSelector),
		maxModuleSize: maxModuleSize,
		metrics:       m,
		logger:        logger.WithComponent("classfile-indexer"),
	}
}

// Selectors returns the externally configured selectors followed by
// ClassSelector.
func (p *ClassFileIndexer) Selectors() []string {
	return append([]string(nil), p.selectors...)
}

// Index reads one entry and indexes it. The entry is closed on every path.
func (p *ClassFileIndexer) Index(ctx context.Context, entry container.Entry, indexes index.Indexes) (Report, error) {
	b, err := p.read(entry)
	if err != nil {
		p.abandon(ctx, entry.Artifact(), 0, err)
		return Report{Artifact: entry.Artifact()}, err
	}
	return p.IndexBytes(ctx, entry.Artifact(), b, indexes)
}

func (p *ClassFileIndexer) read(entry container.Entry) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", apperrors.ErrUnreadableModule, entry.Artifact(), err)
	}
	defer rc.Close()
	var r io.Reader = rc
	if p.maxModuleSize > 0 {
		r = io.LimitReader(rc, p.maxModuleSize+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", apperrors.ErrUnreadableModule, entry.Artifact(), err)
	}
	if p.maxModuleSize > 0 && int64(len(b)) > p.maxModuleSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", apperrors.ErrUnreadableModule, entry.Artifact(), p.maxModuleSize)
	}
	return b, nil
}

// IndexBytes runs one pass over module bytes b owned by artifact. On error
// indexes are left untouched: either the module is unreadable, the context
// was done before the write step, or the storage failed to supply a
// collection.
func (p *ClassFileIndexer) IndexBytes(ctx context.Context, artifact string, b []byte, indexes index.Indexes) (Report, error) {
	start := time.Now()
	report := Report{Artifact: artifact}

	r, err := classfile.NewReader(b)
	if err != nil {
		p.abandon(ctx, artifact, time.Since(start), err)
		return report, err
	}
	m, err := classfile.Parse(r)
	if err != nil {
		p.abandon(ctx, artifact, time.Since(start), err)
		return report, err
	}
	report.Module = m.Name

	s := acquireSymbols()
	defer releaseSymbols(s)

	visitModule(m, s)
	report.Skipped = append(report.Skipped, m.Skipped...)
	report.Skipped = append(report.Skipped, scanConstantPool(r, s)...)
	for pending := range s.Pending {
		if err := signature.Parse(pending, s.TypeReferences.Add); err != nil {
			report.Skipped = append(report.Skipped, err)
		}
	}

	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("indexing %s abandoned: %w", artifact, err)
		p.abandon(ctx, artifact, time.Since(start), err)
		return report, err
	}
	report.Written, err = writeSymbols(indexes, s, artifact)
	if err != nil {
		p.abandon(ctx, artifact, time.Since(start), err)
		return report, err
	}
	report.Duration = time.Since(start)

	skips := report.SkipCounts()
	p.metrics.ObserveModule("indexed", report.Duration, skips, report.Written)
	log := p.log(ctx)
	if len(report.Skipped) > 0 {
		log.Debug("module indexed with skipped entries",
			"artifact", artifact,
			"module", m.Name,
			"skipped", skips,
			"first_skip", report.Skipped[0],
		)
	} else {
		log.Debug("module indexed", "artifact", artifact, "module", m.Name)
	}
	return report, nil
}

func (p *ClassFileIndexer) abandon(ctx context.Context, artifact string, d time.Duration, err error) {
	p.metrics.ObserveModule("abandoned", d, nil, nil)
	p.log(ctx).Warn("module abandoned",
		"artifact", artifact,
		"error", err,
	)
}

func (p *ClassFileIndexer) log(ctx context.Context) *slog.Logger {
	if id := logger.RequestID(ctx); id != "" {
		return p.logger.With("request_id", id)
	}
	return p.logger
}
