// Package consumer turns module events from Kafka into indexing passes on
// the engine, records each outcome in the artifact status store and
// announces it on the index-complete topic.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/container"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/status"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/resilience"
)

const statusWriteTimeout = 3 * time.Second

// EntryIndexer indexes one entry. *indexer.Engine satisfies it.
type EntryIndexer interface {
	IndexEntry(ctx context.Context, entry container.Entry) (indexer.Report, error)
}

// StatusRecorder persists artifact outcomes. *status.Store satisfies it.
type StatusRecorder interface {
	Record(ctx context.Context, rec status.Record) error
}

// Publisher announces outcomes. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// Handler processes module events. store and publisher may be nil.
type Handler struct {
	engine    EntryIndexer
	root      string
	store     StatusRecorder
	breaker   *resilience.CircuitBreaker
	publisher Publisher
}

func NewHandler(engine EntryIndexer, containerRoot string, store StatusRecorder, publisher Publisher, m *metrics.Metrics) *Handler {
	return &Handler{
		engine:    engine,
		root:      containerRoot,
		store:     store,
		publisher: publisher,
		breaker: resilience.NewCircuitBreaker("artifact-store", resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, s resilience.State) { m.SetBreakerState(name, int(s)) },
		}),
	}
}

// Handle is a kafka.MessageHandler. Malformed events and entries that cannot
// be found are permanent failures; an unreadable module is a handled outcome
// and is recorded as abandoned.
func (h *Handler) Handle(ctx context.Context, key []byte, value []byte) error {
	log := logger.FromContext(ctx).With("component", "index-consumer")
	event, err := kafka.DecodeJSON[ingestion.ModuleEvent](value)
	if err != nil {
		log.Error("failed to decode module event", "error", err, "key", string(key))
		return err
	}
	if event.Container == "" || event.Entry == "" {
		return kafka.Permanent(fmt.Errorf("%w: module event %q needs container and entry", apperrors.ErrInvalidInput, event.ArtifactID))
	}

	c, err := container.Resolve(h.root, event.Container)
	if err != nil {
		return kafka.Permanent(fmt.Errorf("resolving container for %s: %w", event.ArtifactID, err))
	}
	defer c.Close()
	entry, err := c.Entry(event.Entry)
	if err != nil {
		return kafka.Permanent(fmt.Errorf("finding entry for %s: %w", event.ArtifactID, err))
	}

	log.Debug("processing module event",
		"artifact_id", event.ArtifactID,
		"artifact", entry.Artifact(),
	)
	report, err := h.engine.IndexEntry(ctx, entry)
	switch {
	case err == nil:
		h.complete(ctx, event, report, status.StatusIndexed, "")
		log.Info("module indexed",
			"artifact_id", event.ArtifactID,
			"module", report.Module,
			"skipped", len(report.Skipped),
		)
		return nil
	case errors.Is(err, apperrors.ErrUnreadableModule):
		h.complete(ctx, event, report, status.StatusAbandoned, err.Error())
		return nil
	default:
		return fmt.Errorf("indexing %s: %w", entry.Artifact(), err)
	}
}

// complete records and announces one outcome. Failures are logged only; the
// index already holds the module's symbols.
func (h *Handler) complete(ctx context.Context, event ingestion.ModuleEvent, report indexer.Report, outcome, errMsg string) {
	log := logger.FromContext(ctx).With("component", "index-consumer")
	skipped := report.SkipCounts()
	if h.store != nil {
		err := h.breaker.Execute(func() error {
			return resilience.WithTimeout(ctx, statusWriteTimeout, "record artifact status", func(ctx context.Context) error {
				return h.store.Record(ctx, status.Record{
					Artifact:   report.Artifact,
					ArtifactID: event.ArtifactID,
					Module:     report.Module,
					Status:     outcome,
					Skipped:    skipped,
					Error:      errMsg,
				})
			})
		})
		if err != nil {
			log.Error("failed to record artifact status",
				"artifact", report.Artifact,
				"status", outcome,
				"error", err,
			)
		}
	}
	if h.publisher == nil {
		return
	}
	err := h.publisher.Publish(ctx, kafka.Event{
		Key: report.Artifact,
		Value: IndexCompleteEvent{
			ArtifactID: event.ArtifactID,
			BatchID:    event.BatchID,
			Artifact:   report.Artifact,
			Module:     report.Module,
			Status:     outcome,
			Skipped:    skipped,
			Written:    report.Written,
			Error:      errMsg,
			IndexedAt:  time.Now().UTC(),
		},
	})
	if err != nil {
		log.Error("failed to publish index-complete event",
			"artifact", report.Artifact,
			"error", err,
		)
	}
}
