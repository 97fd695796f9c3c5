package service

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-seat-reservation/internal/queue"
)

// DefaultHoldDuration is how long a hold lasts unless overridden.
const DefaultHoldDuration = 5 * time.Minute

type options struct {
	holdDuration    time.Duration
	logger          logrus.FieldLogger
	publisher       queue.EventPublisher
	codeGenerator   func() (string, error)
	maxCodeAttempts int
}

func defaultOptions() options {
	return options{
		holdDuration:    DefaultHoldDuration,
		logger:          logrus.StandardLogger(),
		publisher:       queue.NopPublisher{},
		codeGenerator:   randomCode,
		maxCodeAttempts: 10,
	}
}

// Option customizes a service.
type Option func(*options)

// WithHoldDuration overrides the lifetime of a hold.
func WithHoldDuration(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.holdDuration = d
		}
	}
}

// WithLogger sets the logger used for background and best-effort failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPublisher sets where booking events are sent after commit.
func WithPublisher(p queue.EventPublisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithCodeGenerator replaces the random retrieval code source.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(o *options) {
		if gen != nil {
			o.codeGenerator = gen
		}
	}
}

// WithMaxCodeAttempts sets how many codes are tried before giving up.
func WithMaxCodeAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxCodeAttempts = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
