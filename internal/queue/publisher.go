package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventPublisher sends booking events to downstream consumers.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) error
	PublishBookingCancelled(ctx context.Context, ev BookingCancelledEvent) error
}

// NopPublisher drops every event.  Used when messaging is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishBookingConfirmed(context.Context, BookingConfirmedEvent) error { return nil }
func (NopPublisher) PublishBookingCancelled(context.Context, BookingCancelledEvent) error { return nil }

// AMQPPublisher publishes persistent JSON messages to durable queues.  Each
// publish opens its own connection.  It blocks for up to the dial timeout
// when the broker is down; wrap it in an AsyncPublisher on request paths.
type AMQPPublisher struct {
	url         string
	dialTimeout time.Duration
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url string) *AMQPPublisher {
	return &AMQPPublisher{url: url, dialTimeout: 2 * time.Second}
}

// PublishBookingConfirmed publishes ev to booking.confirmed.
func (p *AMQPPublisher) PublishBookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) error {
	return p.publish(ctx, QueueBookingConfirmed, ev)
}

// PublishBookingCancelled publishes ev to booking.cancelled.
func (p *AMQPPublisher) PublishBookingCancelled(ctx context.Context, ev BookingCancelledEvent) error {
	return p.publish(ctx, QueueBookingCancelled, ev)
}

func (p *AMQPPublisher) publish(ctx context.Context, queueName string, ev interface{}) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", queueName, err)
	}

	conn, err := dial(p.url, p.dialTimeout)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", queueName, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", queueName, err)
	}
	return nil
}
