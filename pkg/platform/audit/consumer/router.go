// Package consumer routes Kafka event records to per-topic handlers and
// materializes them into the queryable ledger_events table.
package consumer

import (
	"context"
	"log/slog"

	"sigil/internal/platform/kafka/consumer"
)

// TopicHandler processes records from one topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router dispatches records by topic. Records for unregistered topics are
// logged and skipped so a new topic never wedges the group.
type Router struct {
	handlers map[string]TopicHandler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{handlers: make(map[string]TopicHandler), logger: logger}
}

// Register binds a handler to a topic, replacing any previous binding.
func (r *Router) Register(topic string, handler TopicHandler) {
	r.handlers[topic] = handler
}

// Handle implements consumer.Handler.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		r.logger.Warn("no handler for topic, skipping record", "topic", msg.Topic)
		return nil
	}
	return handler.Handle(ctx, msg)
}
