package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

// Layout bounds for regeneration.
const (
	MinLayoutSize = 1
	MaxLayoutSize = 50
)

// SeatView is a seat together with the status derived for one session.
// Booker fields are set only for booked seats.
type SeatView struct {
	model.Seat
	Label         string           `json:"label"`
	Status        model.SeatStatus `json:"status"`
	BookerName    *string          `json:"bookerName,omitempty"`
	CompanionName *string          `json:"companionName,omitempty"`
	BookerEmail   *string          `json:"bookerEmail,omitempty"`
}

// RowSummary lists the rows of the layout and the rows that contain at
// least one staff-reserved seat.
type RowSummary struct {
	Rows         []string `json:"rows"`
	ReservedRows []string `json:"reservedRows"`
}

// SeatUpdate carries the administrative flags to change on one seat.  Nil
// fields are left alone.
type SeatUpdate struct {
	StaffReserved *bool
	Enabled       *bool
}

// SeatRegistry owns the seat layout and its administrative flags.
type SeatRegistry struct {
	repos  Repositories
	holds  *HoldManager
	clock  clock.Clock
	logger logrus.FieldLogger
}

// NewSeatRegistry returns a SeatRegistry.  holds is used for the lazy purge
// that precedes every read.
func NewSeatRegistry(repos Repositories, holds *HoldManager, clk clock.Clock, opts ...Option) *SeatRegistry {
	o := buildOptions(opts)
	return &SeatRegistry{repos: repos, holds: holds, clock: clk, logger: o.logger}
}

// ListSeats returns every seat in row then number order with its status as
// seen by sessionID.  Status is derived from current rows on each call.
// Holds are read before bookings, so a checkout committing in between shows
// the seat as booked rather than free.
func (r *SeatRegistry) ListSeats(ctx context.Context, sessionID string) ([]SeatView, error) {
	r.holds.purgeLazy(ctx)
	now := r.clock.Now()

	seats, err := r.repos.Seats.List(ctx)
	if err != nil {
		return nil, storageError("list seats", err)
	}
	holds, err := r.repos.Holds.ListActive(ctx, now)
	if err != nil {
		return nil, storageError("list holds", err)
	}
	bookings, err := r.repos.Bookings.ListConfirmed(ctx)
	if err != nil {
		return nil, storageError("list bookings", err)
	}
	return BuildSeatViews(seats, bookings, holds, sessionID, now), nil
}

// AdminSeats is ListSeats without a session.
func (r *SeatRegistry) AdminSeats(ctx context.Context) ([]SeatView, error) {
	return r.ListSeats(ctx, "")
}

// BuildSeatViews derives the status of each seat.  The output keeps the
// order of seats.
func BuildSeatViews(seats []model.Seat, confirmed []model.Booking, holds []model.SeatHold, sessionID string, now time.Time) []SeatView {
	bookingBySeat := make(map[uint64]model.Booking, len(confirmed))
	for _, b := range confirmed {
		if b.Status == model.BookingConfirmed {
			bookingBySeat[b.SeatID] = b
		}
	}
	holdBySeat := lo.SliceToMap(holds, func(h model.SeatHold) (uint64, model.SeatHold) { return h.SeatID, h })

	out := make([]SeatView, 0, len(seats))
	for _, s := range seats {
		b, booked := bookingBySeat[s.ID]
		var hold *model.SeatHold
		if h, ok := holdBySeat[s.ID]; ok {
			hold = &h
		}
		v := SeatView{
			Seat:   s,
			Label:  s.Label(),
			Status: model.DeriveSeatStatus(s, booked, hold, sessionID, now),
		}
		if v.Status == model.SeatBooked {
			name, email := b.CustomerName, b.Email
			v.BookerName = &name
			v.BookerEmail = &email
			v.CompanionName = b.CompanionName
		}
		out = append(out, v)
	}
	return out
}

// GenerateLayout builds rowCount × seatsPerRow enabled seats with row labels
// A, B, C ... and 1-based numbers.
func GenerateLayout(rowCount, seatsPerRow int) []model.Seat {
	seats := make([]model.Seat, 0, rowCount*seatsPerRow)
	for row := 0; row < rowCount; row++ {
		label := model.IndexToRowLabel(row)
		for n := 1; n <= seatsPerRow; n++ {
			seats = append(seats, model.Seat{Row: label, Number: uint32(n), Enabled: true})
		}
	}
	return seats
}

func validateLayout(rowCount, seatsPerRow int) error {
	if rowCount < MinLayoutSize || rowCount > MaxLayoutSize {
		return validationError(CodeInvalidInput, "row count must be between %d and %d", MinLayoutSize, MaxLayoutSize)
	}
	if seatsPerRow < MinLayoutSize || seatsPerRow > MaxLayoutSize {
		return validationError(CodeInvalidInput, "seats per row must be between %d and %d", MinLayoutSize, MaxLayoutSize)
	}
	return nil
}

// Regenerate replaces the whole layout with rowCount × seatsPerRow seats and
// drops every hold.  It refuses while any confirmed booking exists.  All
// seat rows are locked before bookings are counted, so a checkout cannot
// slip in between the check and the delete.
func (r *SeatRegistry) Regenerate(ctx context.Context, rowCount, seatsPerRow int) (int, error) {
	if err := validateLayout(rowCount, seatsPerRow); err != nil {
		return 0, err
	}
	seats := GenerateLayout(rowCount, seatsPerRow)

	err := r.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := r.repos.Seats.LockAll(ctx); err != nil {
			return err
		}
		n, err := r.repos.Bookings.CountConfirmed(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return newError(ErrPrecondition, CodeBookingsExist,
				"cannot regenerate seats while %d confirmed bookings exist; cancel them first", n)
		}
		if _, err := r.repos.Holds.DeleteAll(ctx); err != nil {
			return err
		}
		if err := r.repos.Seats.DeleteAll(ctx); err != nil {
			return err
		}
		return r.repos.Seats.CreateBulk(ctx, seats)
	})
	if err != nil {
		return 0, storageError("regenerate seats", err)
	}
	r.logger.WithFields(logrus.Fields{"rows": rowCount, "seats_per_row": seatsPerRow}).Info("seat layout regenerated")
	return len(seats), nil
}

// RegenerateFromConfig regenerates the layout from the stored event
// configuration.
func (r *SeatRegistry) RegenerateFromConfig(ctx context.Context) (int, error) {
	cfg, err := r.repos.Events.Get(ctx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return 0, storageError("load event configuration", err)
	}
	if err != nil || cfg.RowCount == nil || cfg.SeatsPerRow == nil {
		return 0, newError(ErrPrecondition, CodeLayoutNotSet, "configure the row count and seats per row first")
	}
	return r.Regenerate(ctx, *cfg.RowCount, *cfg.SeatsPerRow)
}

// EnsureSeeded creates the default layout when there are no seats at all.
// It reports whether seats were created.
func (r *SeatRegistry) EnsureSeeded(ctx context.Context, rowCount, seatsPerRow int) (bool, error) {
	if err := validateLayout(rowCount, seatsPerRow); err != nil {
		return false, err
	}
	created := false
	err := r.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := r.repos.Seats.Count(ctx)
		if err != nil || n > 0 {
			return err
		}
		created = true
		return r.repos.Seats.CreateBulk(ctx, GenerateLayout(rowCount, seatsPerRow))
	})
	if err != nil {
		return false, storageError("seed seats", err)
	}
	return created, nil
}

// UpdateSeat changes the administrative flags of one seat.  It fails with a
// not found error for unknown seats and with a conflict while the seat has
// a confirmed booking.
func (r *SeatRegistry) UpdateSeat(ctx context.Context, seatID uint64, upd SeatUpdate) (model.Seat, error) {
	var seat model.Seat
	err := r.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		locked, err := r.repos.Seats.LockByIDs(ctx, []uint64{seatID})
		if err != nil {
			return err
		}
		s, ok := locked[seatID]
		if !ok {
			return notFoundError(CodeSeatNotFound, "seat %d not found", seatID)
		}
		booked, err := r.repos.Bookings.ConfirmedBySeatIDs(ctx, []uint64{seatID})
		if err != nil {
			return err
		}
		if _, ok := booked[seatID]; ok {
			return conflictError(CodeSeatHasBooking, "seat %s has a confirmed booking; cancel it first", s.Label())
		}
		if upd.StaffReserved != nil {
			if _, err := r.repos.Seats.SetStaffReserved(ctx, []uint64{seatID}, *upd.StaffReserved); err != nil {
				return err
			}
			s.StaffReserved = *upd.StaffReserved
		}
		if upd.Enabled != nil {
			if err := r.repos.Seats.SetEnabled(ctx, seatID, *upd.Enabled); err != nil {
				return err
			}
			s.Enabled = *upd.Enabled
		}
		seat = s
		return nil
	})
	if err != nil {
		return model.Seat{}, storageError("update seat", err)
	}
	return seat, nil
}

// SetSeatStaffReserved marks one seat as withheld by staff, or releases it.
func (r *SeatRegistry) SetSeatStaffReserved(ctx context.Context, seatID uint64, reserved bool) (model.Seat, error) {
	return r.UpdateSeat(ctx, seatID, SeatUpdate{StaffReserved: &reserved})
}

// SetSeatEnabled enables or disables one seat.
func (r *SeatRegistry) SetSeatEnabled(ctx context.Context, seatID uint64, enabled bool) (model.Seat, error) {
	return r.UpdateSeat(ctx, seatID, SeatUpdate{Enabled: &enabled})
}

// SetRowStaffReserved flags every seat of row.  Booked seats are flagged
// too; their bookings stay valid.  It returns the number of seats updated.
func (r *SeatRegistry) SetRowStaffReserved(ctx context.Context, row string, reserved bool) (string, int, error) {
	label := model.NormalizeRowLabel(row)
	if label == "" {
		return "", 0, validationError(CodeInvalidInput, "row label is required")
	}
	if _, ok := model.RowLabelToIndex(row); !ok {
		return "", 0, validationError(CodeInvalidInput, "row label %q must contain letters only", strings.TrimSpace(row))
	}
	var updated int
	err := r.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		seats, err := r.repos.Seats.LockRow(ctx, label)
		if err != nil {
			return err
		}
		if len(seats) == 0 {
			return notFoundError(CodeRowNotFound, "row %s not found", label)
		}
		ids := lo.Map(seats, func(s model.Seat, _ int) uint64 { return s.ID })
		if _, err := r.repos.Seats.SetStaffReserved(ctx, ids, reserved); err != nil {
			return err
		}
		updated = len(ids)
		return nil
	})
	if err != nil {
		return "", 0, storageError("update row", err)
	}
	return label, updated, nil
}

// ListRows summarizes the rows of the layout.
func (r *SeatRegistry) ListRows(ctx context.Context) (RowSummary, error) {
	seats, err := r.repos.Seats.List(ctx)
	if err != nil {
		return RowSummary{}, storageError("list seats", err)
	}
	sort.SliceStable(seats, func(i, j int) bool { return model.LessSeat(seats[i], seats[j]) })
	rows := lo.Uniq(lo.Map(seats, func(s model.Seat, _ int) string { return s.Row }))
	reserved := lo.Uniq(lo.FilterMap(seats, func(s model.Seat, _ int) (string, bool) { return s.Row, s.StaffReserved }))
	return RowSummary{Rows: rows, ReservedRows: reserved}, nil
}
