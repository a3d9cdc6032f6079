package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards events to a topic keyed by request ID so every event of
// one request lands on the same partition.
type KafkaSink struct {
	writer MessageWriter
	topic  string
}

// NewKafkaSink returns a no-op sink when brokers or topic are missing.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	if len(brokers) == 0 || topic == "" {
		return &KafkaSink{}
	}
	return &KafkaSink{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// NewKafkaSinkWithWriter is used by tests.
func NewKafkaSinkWithWriter(writer MessageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: writer, topic: topic}
}

// Enabled reports whether events are actually shipped.
func (s *KafkaSink) Enabled() bool {
	return s != nil && s.writer != nil
}

// Handle is an EventHandler.
func (s *KafkaSink) Handle(ctx context.Context, event Event) error {
	if !s.Enabled() {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(event.RequestID, 10)),
		Value: body,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.writer.Close()
}
