package notify

import (
	"context"
	"encoding/json"
	"fmt"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
)

// Kafka publishes events to a topic. The event key is used as the message
// key for partitioning and ordering.
type Kafka struct {
	client   *wbfkafka.Producer
	strategy retry.Strategy
}

// NewKafka creates a Kafka sink producing to the given topic.
func NewKafka(brokers []string, topic string, strategy retry.Strategy) *Kafka {
	return &Kafka{
		client:   wbfkafka.NewProducer(brokers, topic),
		strategy: strategy,
	}
}

// Send serializes the event to JSON and produces it with retries.
func (k *Kafka) Send(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := k.client.SendWithRetry(ctx, k.strategy, []byte(ev.Key), data); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}

	return nil
}

// Close closes the underlying producer.
func (k *Kafka) Close() error {
	return k.client.Close()
}
