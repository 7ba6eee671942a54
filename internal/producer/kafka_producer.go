package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tabwatch/tabwatch/internal/config"
)

// KafkaProducer publishes tracking events onto the event channel.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(cfg config.KafkaConfig) (*KafkaProducer, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: time.Millisecond * 100,
		Async:        true,
	}

	return &KafkaProducer{writer: writer}, nil
}

// ProduceEvent publishes one event keyed by its domain so that events from
// the same site stay in partition order.
func (p *KafkaProducer) ProduceEvent(ctx context.Context, key string, event map[string]interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	})
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
