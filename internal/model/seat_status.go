package model

import "time"

// SeatStatus is the availability of a seat as seen by one session.
type SeatStatus string

const (
	SeatAvailable   SeatStatus = "available"
	SeatBooked      SeatStatus = "booked"
	SeatHeldByOther SeatStatus = "held_by_other"
	SeatHeldByMe    SeatStatus = "held_by_me"
	SeatUnavailable SeatStatus = "unavailable"
)

// DeriveSeatStatus computes the status of seat for sessionID at now.  The
// order of the checks is significant: unavailable, booked, held by another
// session, held by the caller, available.  hold may be nil; an expired hold
// counts as no hold.  An empty sessionID never owns a hold.
func DeriveSeatStatus(seat Seat, booked bool, hold *SeatHold, sessionID string, now time.Time) SeatStatus {
	if !seat.Bookable() {
		return SeatUnavailable
	}
	if booked {
		return SeatBooked
	}
	if hold != nil && hold.ActiveAt(now) {
		if sessionID != "" && hold.SessionID == sessionID {
			return SeatHeldByMe
		}
		return SeatHeldByOther
	}
	return SeatAvailable
}
