package model

import "time"

// BookingStatus is the lifecycle state of a booking.  Bookings are never
// deleted; cancellation flips the status.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is a durable reservation of one seat for a named customer.
//
// Fields:
//
//	ID            – primary key identifier.
//	SeatID        – booked seat (no foreign key; survives layout regeneration).
//	CustomerName  – name of the person booking.
//	CompanionName – optional name of the person attending with them.
//	Email         – lower-cased contact email.
//	Status        – confirmed or cancelled.
//	CreatedAt     – when the booking was confirmed.
type Booking struct {
	ID            uint64        `json:"id"`                      // bookings.id
	SeatID        uint64        `json:"seatId"`                  // bookings.seat_id
	CustomerName  string        `json:"customerName"`            // bookings.customer_name
	CompanionName *string       `json:"companionName,omitempty"` // bookings.companion_name (nullable)
	Email         string        `json:"email"`                   // bookings.email
	Status        BookingStatus `json:"status"`                  // bookings.status
	CreatedAt     time.Time     `json:"createdAt"`               // bookings.created_at
}

// RetrievalCode links a customer email to the 6-digit code used to look up
// bookings without an account.
type RetrievalCode struct {
	Email     string    `json:"email"`     // retrieval_codes.email
	Code      string    `json:"code"`      // retrieval_codes.code
	CreatedAt time.Time `json:"createdAt"` // retrieval_codes.created_at
}
