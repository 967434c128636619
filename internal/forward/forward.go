// Package forward republishes selected upstream messages to Kafka for
// downstream consumers.
package forward

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ibs-source/iot-router/internal/config"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/ibs-source/iot-router/internal/message"
	"github.com/ibs-source/iot-router/internal/topic"
	"github.com/segmentio/kafka-go"
)

// Group is the bus consumer group of the forwarder.
const Group = "forward"

// Header names set on every record.
const (
	HeaderKind  = "iot-kind"
	HeaderTopic = "iot-topic"
)

// Kinds are the templates whose messages are forwarded.
var Kinds = []topic.Kind{
	topic.EventUpstreamReport,
	topic.ServiceUpstreamInvokeResponse,
}

// MessageWriter is the part of kafka.Writer the forwarder uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Forwarder writes device messages to one Kafka topic keyed by device id.
type Forwarder struct {
	w   MessageWriter
	log *log.Logger
}

// New returns nil when no brokers are configured. An empty topic falls back
// to message.BusTopic.
func New(cfg *config.KafkaConfig, logger *log.Logger) *Forwarder {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	kafkaTopic := cfg.Topic
	if kafkaTopic == "" {
		kafkaTopic = message.BusTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  kafkaTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
	logger.Info("Forwarding %d message kinds to kafka topic %s", len(Kinds), kafkaTopic)
	return NewWithWriter(w, logger)
}

// NewWithWriter wraps an existing writer.
func NewWithWriter(w MessageWriter, logger *log.Logger) *Forwarder {
	return &Forwarder{w: w, log: logger}
}

// Handle is a bus handler.
func (f *Forwarder) Handle(ctx context.Context, msg message.DeviceMessage, tpl *topic.Template) error {
	value, err := message.Encode(msg)
	if err != nil {
		return err
	}
	record := kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.DeviceID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderKind, Value: []byte(tpl.Kind)},
			{Key: HeaderTopic, Value: []byte(msg.Topic)},
		},
	}
	if err := f.w.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("failed to forward message %s: %w", msg.ID, err)
	}
	return nil
}

// Close flushes pending writes.
func (f *Forwarder) Close() error {
	return f.w.Close()
}
