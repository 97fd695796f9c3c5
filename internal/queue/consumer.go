package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// BookingLog appends one line per booking event to a file.
type BookingLog struct {
	Path string
}

// StartBookingConsumer consumes booking.confirmed and booking.cancelled and
// appends each event to logPath.  It reconnects with exponential backoff
// and returns nil once ctx is cancelled.  Malformed messages are rejected
// without requeue so they cannot loop.
func StartBookingConsumer(ctx context.Context, url, logPath string, logger logrus.FieldLogger) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	sink := BookingLog{Path: logPath}
	backoff := time.Second
	for {
		conn, err := dial(url, 5*time.Second)
		if err != nil {
			logger.WithError(err).Warnf("booking-consumer: dial failed; retrying in %s", backoff)
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, sink, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		logger.WithError(err).Warn("booking-consumer: consume loop ended; reconnecting")
		if !sleepCtx(ctx, 2*time.Second) {
			return nil
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, sink BookingLog, logger logrus.FieldLogger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.WithError(err).Warn("booking-consumer: set QoS failed")
	}

	confirmed, err := declareAndConsume(ch, QueueBookingConfirmed)
	if err != nil {
		return err
	}
	cancelled, err := declareAndConsume(ch, QueueBookingCancelled)
	if err != nil {
		return err
	}

	for {
		var (
			d  amqp.Delivery
			ok bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok = <-confirmed:
		case d, ok = <-cancelled:
		}
		if !ok {
			return errors.New("deliveries channel closed")
		}
		if err := sink.Handle(d.RoutingKey, d.Body); err != nil {
			logger.WithError(err).WithField("queue", d.RoutingKey).Error("booking-consumer: handle message failed")
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
}

func declareAndConsume(ch *amqp.Channel, queueName string) (<-chan amqp.Delivery, error) {
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("queue declare %s: %w", queueName, err)
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue consume %s: %w", queueName, err)
	}
	return msgs, nil
}

// Handle decodes body according to the queue it came from and appends the
// formatted line to the log file.
func (l BookingLog) Handle(queueName string, body []byte) error {
	var line string
	switch queueName {
	case QueueBookingConfirmed:
		var ev BookingConfirmedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		line = FormatConfirmed(ev)
	case QueueBookingCancelled:
		var ev BookingCancelledEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		line = FormatCancelled(ev)
	default:
		return fmt.Errorf("unexpected queue %q", queueName)
	}
	return l.append(line)
}

func (l BookingLog) append(line string) error {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatConfirmed renders a confirmed event as one log line.
func FormatConfirmed(ev BookingConfirmedEvent) string {
	seats := "[" + strings.Join(ev.SeatLabels, ",") + "]"
	return fmt.Sprintf("[%s] Booking confirmed | event_id=%s | bookings=%d | customer=%q | email=%s | new_code=%t | seats=%s\n",
		ev.ConfirmedAt, ev.Header.ID, len(ev.BookingIDs), ev.CustomerName, ev.Email, ev.CodeIsNew, seats)
}

// FormatCancelled renders a cancelled event as one log line.
func FormatCancelled(ev BookingCancelledEvent) string {
	return fmt.Sprintf("[%s] Booking cancelled | event_id=%s | booking_id=%d | seat_id=%d | email=%s\n",
		ev.CancelledAt, ev.Header.ID, ev.BookingID, ev.SeatID, ev.Email)
}

// dial connects to the broker, giving up on the TCP dial after timeout.
func dial(url string, timeout time.Duration) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
