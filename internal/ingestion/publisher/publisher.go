// Package publisher turns an ingestion request into one module event per
// selected container entry and hands the events to Kafka in batches.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/container"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/kafka"
)

const defaultBatchSize = 500

// Selector reports whether the indexer claims an entry. *indexer.Engine
// satisfies it.
type Selector interface {
	Selected(entry container.Entry) bool
}

// BatchPublisher is satisfied by *kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Publisher struct {
	root      string
	selector  Selector
	producer  BatchPublisher
	batchSize int
	logger    *slog.Logger
}

func New(containerRoot string, selector Selector, producer BatchPublisher) *Publisher {
	return &Publisher{
		root:      containerRoot,
		selector:  selector,
		producer:  producer,
		batchSize: defaultBatchSize,
		logger:    slog.Default().With("component", "publisher"),
	}
}

// Ingest queues the requested entries of req.Container, or every selected
// entry when req.Entries is empty. Named entries are queued even if no
// selector claims them; the indexer decides.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	c, err := container.Resolve(p.root, req.Container)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: container %s", apperrors.ErrEntryNotFound, req.Container)
		}
		return nil, err
	}
	defer c.Close()

	resp := &ingestion.IngestResponse{
		BatchID:   uuid.NewString(),
		Container: c.Name(),
		Status:    "QUEUED",
	}
	batch := make([]kafka.Event, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.producer.PublishBatch(ctx, batch); err != nil {
			return fmt.Errorf("publishing module events for %s: %w", c.Name(), err)
		}
		resp.Published += len(batch)
		batch = batch[:0]
		return nil
	}
	add := func(e container.Entry) error {
		batch = append(batch, kafka.Event{
			Key: e.Artifact(),
			Value: ingestion.ModuleEvent{
				ArtifactID: uuid.NewString(),
				BatchID:    resp.BatchID,
				Container:  c.Name(),
				Entry:      e.Path(),
			},
		})
		if len(batch) >= p.batchSize {
			return flush()
		}
		return nil
	}

	if len(req.Entries) > 0 {
		for _, path := range req.Entries {
			e, err := c.Entry(path)
			if err != nil {
				return nil, err
			}
			if err := add(e); err != nil {
				return nil, err
			}
		}
	} else {
		err := c.Walk(ctx, func(e container.Entry) error {
			if !p.selector.Selected(e) {
				return nil
			}
			return add(e)
		})
		if err != nil {
			p.logger.Error("container walk stopped",
				"container", c.Name(),
				"published", resp.Published,
				"error", err,
			)
			return nil, err
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	p.logger.Info("container queued",
		"container", c.Name(),
		"batch_id", resp.BatchID,
		"published", resp.Published,
	)
	return resp, nil
}
