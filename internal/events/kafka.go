package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka публикует события в один топик; subject используется как ключ
// сообщения, поэтому события одного пользователя попадают в одну партицию.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka создаёт асинхронного продюсера. Ошибки доставки логируются
// в Completion-колбэке.
func NewKafka(brokers []string, topic string, log *slog.Logger) *Kafka {
	if log == nil {
		log = slog.Default()
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("kafka_publish_failed",
					slog.String("topic", topic),
					slog.Int("messages", len(messages)),
					slog.String("err", err.Error()),
				)
			}
		},
	}

	return &Kafka{writer: w}
}

// Publish ставит сообщение в очередь продюсера.
func (k *Kafka) Publish(ctx context.Context, subject string, payload []byte) error {
	const op = "events.Kafka.Publish"

	if err := k.writer.WriteMessages(ctx, message(subject, payload, time.Now().UTC())); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Close сбрасывает буфер и закрывает продюсера.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

func message(subject string, payload []byte, now time.Time) kafka.Message {
	return kafka.Message{
		Key:   []byte(subject),
		Value: payload,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "subject", Value: []byte(subject)},
		},
	}
}
