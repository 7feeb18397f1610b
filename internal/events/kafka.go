package events

import (
	"context"
	"fmt"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	jsonx "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/shared/json"

	"github.com/segmentio/kafka-go"
)

const defaultWriteTimeout = 10 * time.Second

// KafkaConfig locates the event topic.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// messageWriter is the part of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON keyed by customer id, so events of
// one customer stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger logging.Logger
}

// NewKafkaPublisher builds a publisher over a kafka.Writer.
func NewKafkaPublisher(cfg KafkaConfig, logger logging.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher: topic is required")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           timeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(writer, cfg.Topic, logger), nil
}

func newKafkaPublisher(writer messageWriter, topic string, logger logging.Logger) *KafkaPublisher {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("KafkaPublisher")
	}
	return &KafkaPublisher{writer: writer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := jsonx.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.CustomerID),
		Value: data,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Type, p.topic, err)
	}
	p.logger.Debug("published %s for ticket %s", ev.Type, ev.TicketID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
