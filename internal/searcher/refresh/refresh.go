// Package refresh keeps a read-only lookup engine in step with the segments
// the indexer flushes into the shared data directory.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/status"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/logger"
)

// Reloader opens segments that appeared since the last call and returns how
// many it added. *indexer.Engine satisfies it.
type Reloader interface {
	ReloadSegments() (int, error)
}

// Invalidator drops cached lookups. *cache.QueryCache satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Refresher struct {
	engine Reloader
	cache  Invalidator
	mu     sync.Mutex
	logger *slog.Logger
}

// New builds a Refresher. queryCache may be nil when caching is disabled.
func New(engine Reloader, queryCache Invalidator) *Refresher {
	return &Refresher{
		engine: engine,
		cache:  queryCache,
		logger: slog.Default().With("component", "segment-refresher"),
	}
}

// Refresh reloads segments and, when any were added, drops cached lookups so
// that no stale result outlives new symbols.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	added, err := r.engine.ReloadSegments()
	if err != nil {
		return added, fmt.Errorf("reloading segments: %w", err)
	}
	if added == 0 {
		return 0, nil
	}
	r.logger.Info("segments reloaded", "added", added)
	if r.cache != nil {
		if err := r.cache.Invalidate(ctx); err != nil {
			return added, err
		}
	}
	return added, nil
}

// Run refreshes every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil {
				r.logger.Error("segment refresh failed", "error", err)
			}
		}
	}
}

// HandleIndexComplete is a kafka.MessageHandler for the index-complete topic.
// Abandoned modules add nothing to the index and are ignored.
func (r *Refresher) HandleIndexComplete(ctx context.Context, key []byte, value []byte) error {
	event, err := kafka.DecodeJSON[consumer.IndexCompleteEvent](value)
	if err != nil {
		return err
	}
	if event.Status != status.StatusIndexed {
		return nil
	}
	added, err := r.Refresh(ctx)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("index-complete event handled",
		"artifact", event.Artifact,
		"segments_added", added,
	)
	return nil
}
