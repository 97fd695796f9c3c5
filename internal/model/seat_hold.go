package model

import "time"

// SeatHold represents a temporary hold on a seat during checkout.  There is
// at most one hold row per seat.  A hold whose ExpiresAt is not after the
// current time is treated as absent everywhere, even before it is purged.
//
// Fields:
//
//	SeatID    – seat being held (primary key).
//	SessionID – opaque client session that owns the hold.
//	ExpiresAt – when the hold lapses.
type SeatHold struct {
	SeatID    uint64    `json:"seatId"`    // seat_holds.seat_id
	SessionID string    `json:"sessionId"` // seat_holds.session_id
	ExpiresAt time.Time `json:"expiresAt"` // seat_holds.expires_at
}

// ActiveAt reports whether the hold is still in force at now.
func (h SeatHold) ActiveAt(now time.Time) bool {
	return h.ExpiresAt.After(now)
}
