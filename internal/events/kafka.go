package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type envelope struct {
	EventID string    `json:"event_id"`
	Type    string    `json:"type"`
	Data    any       `json:"data"`
	TS      time.Time `json:"ts"`
}

// KafkaPublisher mirrors every event onto a Kafka topic, keyed by event
// type so consumers see per-type ordering.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
		},
		log: log,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) {
	payload, err := json.Marshal(envelope{
		EventID: uuid.New().String(),
		Type:    evt.Type,
		Data:    evt.Data,
		TS:      evt.TS,
	})
	if err != nil {
		p.log.Error("kafka: marshal event", zap.String("type", evt.Type), zap.Error(err))
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Type),
		Value: payload,
	}); err != nil {
		p.log.Error("kafka: write event", zap.String("type", evt.Type), zap.Error(err))
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
