// Package producer wraps the franz-go client for outbox publishing.
package producer

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer publishes event payloads to Kafka topics.
type Producer struct {
	client *kgo.Client
}

// New connects to the brokers and ensures the given topics exist.
func New(brokers []string, topics ...string) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if len(topics) > 0 {
		admin := kadm.NewClient(client)
		// Already-exists responses are fine; any other per-topic error is not.
		resp, err := admin.CreateTopics(context.Background(), 1, 1, nil, topics...)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("create topics: %w", err)
		}
		for _, r := range resp {
			if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
				client.Close()
				return nil, fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
			}
		}
	}
	return &Producer{client: client}, nil
}

// Publish sends one record and waits for the broker acknowledgment, since
// outbox rows are only deleted after a confirmed publish.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
