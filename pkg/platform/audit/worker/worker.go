// Package worker drains the transactional outbox into Kafka.
package worker

import (
	"context"
	"log/slog"
	"time"

	auditpg "sigil/pkg/platform/audit/store/postgres"
)

// Producer is the slice of the Kafka producer the worker needs.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Worker polls the outbox and publishes entries in insertion order.
// Publish-then-delete gives at-least-once delivery; the materializer
// dedupes on event id.
type Worker struct {
	store    *auditpg.Store
	producer Producer
	logger   *slog.Logger

	interval  time.Duration
	batchSize int
}

// Option configures a Worker.
type Option func(*Worker)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) { w.interval = d }
}

// WithBatchSize overrides the per-poll batch size.
func WithBatchSize(n int) Option {
	return func(w *Worker) { w.batchSize = n }
}

func New(store *auditpg.Store, producer Producer, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		store:     store,
		producer:  producer,
		logger:    logger,
		interval:  time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until the context is cancelled. Errors are logged and the
// entry retried on the next tick rather than aborting the loop.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.publishBatch(ctx)
		}
	}
}

func (w *Worker) publishBatch(ctx context.Context) {
	entries, err := w.store.NextBatch(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to read outbox batch", "error", err)
		return
	}
	for _, entry := range entries {
		if err := w.publishEntry(ctx, entry); err != nil {
			w.logger.Error("failed to publish outbox entry",
				"entry_id", entry.ID, "topic", entry.Topic, "error", err)
			// Preserve ordering within the topic by stopping the batch.
			return
		}
	}
}

func (w *Worker) publishEntry(ctx context.Context, entry auditpg.OutboxEntry) error {
	key := []byte(entry.ID.String())
	if err := w.producer.Publish(ctx, entry.Topic, key, entry.Payload); err != nil {
		return err
	}
	return w.store.MarkPublished(ctx, entry.ID)
}
