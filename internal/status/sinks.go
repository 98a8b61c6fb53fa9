package status

import (
	"context"
	"log"
	"time"

	"github.com/example/receiptflow/internal/infrastructure/kafka"
)

// MultiSink forwards each event to every sink in order.
type MultiSink []Sink

func (m MultiSink) Update(e Event) {
	for _, s := range m {
		s.Update(e)
	}
}

// KafkaSink publishes status events to the status topic so external
// observers (cmd/watch, dashboards) can follow a run live. Publish failures
// are logged and dropped; status reporting must never stall the scheduler.
type KafkaSink struct {
	producer *kafka.Producer
	key      string
	timeout  time.Duration
}

// NewKafkaSink creates a sink publishing under the given key (usually the
// run id).
func NewKafkaSink(producer *kafka.Producer, key string) *KafkaSink {
	return &KafkaSink{producer: producer, key: key, timeout: 5 * time.Second}
}

func (k *KafkaSink) Update(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	if err := k.producer.Publish(ctx, k.key, e); err != nil {
		log.Printf("[status] publish event: %v", err)
	}
}
