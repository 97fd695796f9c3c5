package model

import (
	"strconv"
	"strings"
)

// Seat describes one bookable seat of the event layout.  Seats are
// uniquely identified by their row label and seat number.  Whether a
// seat is booked or held is never stored on the seat itself; it is
// derived from bookings and holds on every read (see DeriveSeatStatus).
//
// Fields:
//
//	ID            – primary key identifier.
//	Row           – row label (A, B, ... Z, AA, AB ...).
//	Number        – 1-based seat number within the row.
//	Enabled       – whether the seat can be booked at all.
//	StaffReserved – withheld by the organisers.
type Seat struct {
	ID            uint64 `json:"id"`            // seats.id
	Row           string `json:"row"`           // seats.row_label
	Number        uint32 `json:"number"`        // seats.seat_number
	Enabled       bool   `json:"enabled"`       // seats.enabled
	StaffReserved bool   `json:"staffReserved"` // seats.staff_reserved
}

// Label returns the human readable seat name, e.g. "A5".
func (s Seat) Label() string {
	return s.Row + strconv.FormatUint(uint64(s.Number), 10)
}

// Bookable reports whether administrative flags allow the seat to be held
// or booked.
func (s Seat) Bookable() bool {
	return s.Enabled && !s.StaffReserved
}

// IndexToRowLabel converts a zero-based index to an alphabetical row label
// like A, B, AA.
func IndexToRowLabel(i int) string {
	if i < 0 {
		return ""
	}
	res := []rune{}
	for {
		res = append(res, rune('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}

// RowLabelToIndex converts a row label like A or AA into its zero-based index.
func RowLabelToIndex(label string) (int, bool) {
	s := NormalizeRowLabel(label)
	if s == "" || s != strings.ToUpper(strings.TrimSpace(label)) {
		return -1, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*26 + int(s[i]-'A'+1)
	}
	return n - 1, true
}

// NormalizeRowLabel strips everything but ASCII letters and upper-cases the rest.
func NormalizeRowLabel(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 32)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LessSeat orders seats by row (shorter labels first so Z sorts before AA)
// and then by number.
func LessSeat(a, b Seat) bool {
	if len(a.Row) != len(b.Row) {
		return len(a.Row) < len(b.Row)
	}
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Number < b.Number
}
