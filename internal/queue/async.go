package queue

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrPublishQueueFull is returned when the background queue has no room left.
var ErrPublishQueueFull = errors.New("publish queue full")

type publishJob struct {
	queue string
	send  func(ctx context.Context) error
}

// AsyncPublisher hands events to a background worker so callers never wait
// on the broker.  Delivery failures are logged by the worker.
type AsyncPublisher struct {
	next         EventPublisher
	jobs         chan publishJob
	sendTimeout  time.Duration
	drainTimeout time.Duration
	logger       logrus.FieldLogger
}

// NewAsyncPublisher wraps next with a queue of the given size.  Run must be
// started for anything to be delivered.
func NewAsyncPublisher(next EventPublisher, size int, logger logrus.FieldLogger) *AsyncPublisher {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AsyncPublisher{
		next:         next,
		jobs:         make(chan publishJob, size),
		sendTimeout:  5 * time.Second,
		drainTimeout: 5 * time.Second,
		logger:       logger,
	}
}

// PublishBookingConfirmed queues ev for booking.confirmed.
func (p *AsyncPublisher) PublishBookingConfirmed(_ context.Context, ev BookingConfirmedEvent) error {
	return p.enqueue(QueueBookingConfirmed, func(ctx context.Context) error {
		return p.next.PublishBookingConfirmed(ctx, ev)
	})
}

// PublishBookingCancelled queues ev for booking.cancelled.
func (p *AsyncPublisher) PublishBookingCancelled(_ context.Context, ev BookingCancelledEvent) error {
	return p.enqueue(QueueBookingCancelled, func(ctx context.Context) error {
		return p.next.PublishBookingCancelled(ctx, ev)
	})
}

func (p *AsyncPublisher) enqueue(queue string, send func(context.Context) error) error {
	select {
	case p.jobs <- publishJob{queue: queue, send: send}:
		return nil
	default:
		return ErrPublishQueueFull
	}
}

// Run delivers queued events until ctx is done, then flushes what is left
// within the drain timeout.
func (p *AsyncPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return nil
		case j := <-p.jobs:
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.sendTimeout)
			p.deliver(sendCtx, j)
			cancel()
		}
	}
}

func (p *AsyncPublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), p.drainTimeout)
	defer cancel()
	for {
		select {
		case j := <-p.jobs:
			if ctx.Err() != nil {
				p.logger.WithField("queue", j.queue).Warn("rabbitmq: event dropped on shutdown")
				continue
			}
			p.deliver(ctx, j)
		default:
			return
		}
	}
}

func (p *AsyncPublisher) deliver(ctx context.Context, j publishJob) {
	if err := j.send(ctx); err != nil {
		p.logger.WithError(err).WithField("queue", j.queue).Warn("rabbitmq: publish failed")
	}
}
