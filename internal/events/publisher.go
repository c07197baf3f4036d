package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"

	"github.com/akylbek/payment-system/mobile-money-service/internal/interfaces"
	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes status changes to a single topic keyed by payment id,
// so every change for one payment lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, event models.PaymentStatusChangedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.PaymentID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("mobile_money.payment.status_changed")},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NatsPublisher pushes status changes on <prefix>.<payment_id>.status so
// clients can subscribe to a single payment.
type NatsPublisher struct {
	conn   natsConn
	prefix string
}

func NewNatsPublisher(url, prefix string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("mobile-money-service"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NatsPublisher{conn: nc, prefix: prefix}, nil
}

func (p *NatsPublisher) Subject(paymentID string) string {
	return fmt.Sprintf("%s.%s.status", p.prefix, paymentID)
}

func (p *NatsPublisher) PublishStatusChanged(ctx context.Context, event models.PaymentStatusChangedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	return p.conn.Publish(p.Subject(event.PaymentID), data)
}

func (p *NatsPublisher) Close() error {
	return p.conn.Drain()
}

// MultiPublisher fans an event out to every publisher and joins their errors.
type MultiPublisher struct {
	publishers []interfaces.EventPublisher
}

func NewMultiPublisher(publishers ...interfaces.EventPublisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

func (m *MultiPublisher) PublishStatusChanged(ctx context.Context, event models.PaymentStatusChangedEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.PublishStatusChanged(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) PublishStatusChanged(context.Context, models.PaymentStatusChangedEvent) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
