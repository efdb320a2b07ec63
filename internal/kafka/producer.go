package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"cinebook/internal/logger"
	"cinebook/internal/models"
)

// Producer streams booking lifecycle events, keyed by booking ID so every
// event for one booking lands on the same partition in order.
type Producer struct {
	Writer *kafka.Writer
	Topic  string
	Log    *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer, Topic: topic, Log: log}
}

func (p *Producer) PublishBookingEvent(event models.BookingEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.BookingID),
			Value: msgBytes,
		},
	)
	if err != nil {
		return fmt.Errorf("write %s event for booking %s: %w", event.Type, event.BookingID, err)
	}

	p.Log.LogKafka("PUBLISH", p.Topic, fmt.Sprintf("%s booking=%s status=%s", event.Type, event.BookingID, event.Status))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
