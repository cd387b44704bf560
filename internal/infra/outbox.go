package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/whodunit/platform/internal/repository"
)

// OutboxRelay polls the event_outbox table and publishes change-event
// envelopes to the change feed topic. Publishing is at-least-once: a crash
// between publish and mark-published replays the event, which the consumers'
// idempotent folds absorb.
type OutboxRelay struct {
	pool     *pgxpool.Pool
	outbox   repository.OutboxRepository
	producer *KafkaProducer
	topic    string
	logger   *slog.Logger

	interval  time.Duration
	batchSize int
}

// NewOutboxRelay creates a relay with the given poll interval and batch size.
func NewOutboxRelay(pool *pgxpool.Pool, outbox repository.OutboxRepository, producer *KafkaProducer, topic string, interval time.Duration, batchSize int, logger *slog.Logger) *OutboxRelay {
	return &OutboxRelay{
		pool:      pool,
		outbox:    outbox,
		producer:  producer,
		topic:     topic,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (r *OutboxRelay) Start(ctx context.Context) {
	r.logger.Info("outbox relay started", "topic", r.topic, "interval", r.interval, "batch_size", r.batchSize)

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("outbox relay stopped")
				return
			case <-ticker.C:
				if err := r.poll(ctx); err != nil {
					r.logger.Error("outbox poll error", "error", err)
				}
			}
		}
	}()
}

func (r *OutboxRelay) poll(ctx context.Context) error {
	rows, err := r.outbox.FetchUnpublished(ctx, r.pool, r.batchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	published := make([]int64, 0, len(rows))
	for _, row := range rows {
		value, err := json.Marshal(row.Draft.Payload)
		if err != nil {
			r.logger.Error("marshal change event", "event_id", row.Draft.EventID, "error", err)
			continue
		}
		if err := r.producer.Publish(ctx, r.topic, []byte(row.Draft.PartitionKey), value); err != nil {
			r.logger.Error("kafka publish failed", "event_id", row.Draft.EventID, "error", err)
			// Stop the batch here so mark-published never skips past a
			// failed event; ordering within the partition key must hold.
			break
		}
		published = append(published, row.SeqID)
	}

	if len(published) == 0 {
		return nil
	}
	if err := r.outbox.MarkPublished(ctx, r.pool, published); err != nil {
		return err
	}

	r.logger.Debug("outbox poll complete", "published", len(published))
	return nil
}
