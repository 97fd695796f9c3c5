// Package queue defines the booking events exchanged over RabbitMQ, the
// publisher used by the booking engine and the consumer that writes them
// to the booking log.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Queue names.  Routing keys equal queue names on the default exchange.
const (
	QueueBookingConfirmed = "booking.confirmed"
	QueueBookingCancelled = "booking.cancelled"
)

// EventHeader identifies one published event.
type EventHeader struct {
	ID          string `json:"id"`
	PublishedAt string `json:"published_at"`
}

// NewEventHeader returns a header with a fresh id stamped at now.
func NewEventHeader(now time.Time) EventHeader {
	return EventHeader{ID: uuid.NewString(), PublishedAt: now.UTC().Format(time.RFC3339)}
}

// BookingConfirmedEvent is published once a checkout commits.  It carries
// enough for consumers to log or notify without querying the database.
type BookingConfirmedEvent struct {
	Header        EventHeader `json:"header"`
	BookingIDs    []uint64    `json:"booking_ids"`
	SeatLabels    []string    `json:"seats"`
	CustomerName  string      `json:"customer_name"`
	CompanionName string      `json:"companion_name,omitempty"`
	Email         string      `json:"email"`
	CodeIsNew     bool        `json:"code_is_new"`
	ConfirmedAt   string      `json:"confirmed_at"`
}

// BookingCancelledEvent is published when a booking is cancelled.
type BookingCancelledEvent struct {
	Header      EventHeader `json:"header"`
	BookingID   uint64      `json:"booking_id"`
	SeatID      uint64      `json:"seat_id"`
	Email       string      `json:"email"`
	CancelledAt string      `json:"cancelled_at"`
}
