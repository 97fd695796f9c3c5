package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/metrics"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/queue"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

// Field limits, matching the column widths of the bookings table.
const (
	MaxNameLength  = 120
	MaxEmailLength = 254
)

const publishTimeout = 3 * time.Second

// ConfirmInput is a checkout request.
type ConfirmInput struct {
	SeatIDs       []uint64
	CustomerName  string
	CompanionName string
	Email         string
	SessionID     string
}

// BookingView is a booking together with the seat it reserves.  Row and
// Number are empty when the seat no longer exists.
type BookingView struct {
	model.Booking
	Row    string `json:"row"`
	Number uint32 `json:"number"`
	Label  string `json:"label"`
}

// ConfirmResult is the outcome of a successful checkout.
type ConfirmResult struct {
	Bookings      []BookingView `json:"bookings"`
	RetrievalCode string        `json:"retrievalCode"`
	CodeIsNew     bool          `json:"codeIsNew"`
}

// CustomerGroup aggregates the bookings of one customer in an export.
type CustomerGroup struct {
	CustomerName  string    `json:"customerName"`
	CompanionName string    `json:"companionName"`
	Email         string    `json:"email"`
	Count         int       `json:"count"`
	Seats         []string  `json:"seats"`
	FirstBooked   time.Time `json:"firstBooked"`
}

// Export is the admin view of every confirmed booking.
type Export struct {
	BySeat     []BookingView   `json:"bySeat"`
	ByCustomer []CustomerGroup `json:"byCustomer"`
}

// BookingEngine turns holds into confirmed bookings.
type BookingEngine struct {
	repos     Repositories
	holds     *HoldManager
	codes     *CodeIssuer
	clock     clock.Clock
	logger    logrus.FieldLogger
	publisher queue.EventPublisher
}

// NewBookingEngine returns a BookingEngine.
func NewBookingEngine(repos Repositories, holds *HoldManager, codes *CodeIssuer, clk clock.Clock, opts ...Option) *BookingEngine {
	o := buildOptions(opts)
	return &BookingEngine{
		repos:     repos,
		holds:     holds,
		codes:     codes,
		clock:     clk,
		logger:    o.logger,
		publisher: o.publisher,
	}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (in ConfirmInput) validate() (ConfirmInput, error) {
	out := ConfirmInput{
		SeatIDs:       uniqueSeatIDs(in.SeatIDs),
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CompanionName: strings.TrimSpace(in.CompanionName),
		Email:         NormalizeEmail(in.Email),
		SessionID:     strings.TrimSpace(in.SessionID),
	}
	switch {
	case len(out.SeatIDs) == 0:
		return out, validationError(CodeInvalidInput, "select at least one seat")
	case out.CustomerName == "":
		return out, validationError(CodeInvalidInput, "customer name is required")
	case out.Email == "":
		return out, validationError(CodeInvalidInput, "email is required")
	case utf8.RuneCountInString(out.CustomerName) > MaxNameLength:
		return out, validationError(CodeInvalidInput, "customer name is longer than %d characters", MaxNameLength)
	case utf8.RuneCountInString(out.CompanionName) > MaxNameLength:
		return out, validationError(CodeInvalidInput, "companion name is longer than %d characters", MaxNameLength)
	case len(out.Email) > MaxEmailLength || !strings.Contains(out.Email, "@"):
		return out, validationError(CodeInvalidInput, "email is not valid")
	case len(out.SessionID) > MaxSessionIDLength:
		return out, validationError(CodeInvalidInput, "session id is longer than %d characters", MaxSessionIDLength)
	}
	return out, nil
}

// Confirm books every requested seat or none of them.  Seat rows are locked
// before any state is read, so two checkouts racing for a seat are
// serialized and the loser sees the seat as already booked.
func (e *BookingEngine) Confirm(ctx context.Context, in ConfirmInput) (ConfirmResult, error) {
	in, err := in.validate()
	if err != nil {
		metrics.ConfirmRejected.WithLabelValues(CodeInvalidInput).Inc()
		return ConfirmResult{}, err
	}

	e.holds.purgeLazy(ctx)
	started := time.Now()
	now := e.clock.Now()

	var companion *string
	if in.CompanionName != "" {
		companion = &in.CompanionName
	}

	var res ConfirmResult
	err = e.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		res = ConfirmResult{}

		seats, err := e.repos.Seats.LockByIDs(ctx, in.SeatIDs)
		if err != nil {
			return err
		}
		booked, err := e.repos.Bookings.ConfirmedBySeatIDs(ctx, in.SeatIDs)
		if err != nil {
			return err
		}
		holds, err := e.repos.Holds.LockBySeatIDs(ctx, in.SeatIDs)
		if err != nil {
			return err
		}

		pending := make([]model.Booking, 0, len(in.SeatIDs))
		for _, id := range in.SeatIDs {
			seat, ok := seats[id]
			if !ok {
				return notFoundError(CodeSeatNotFound, "Seat %d not found", id)
			}
			if !seat.Bookable() {
				return conflictError(CodeSeatUnavailable, "Seat %s is not available", seat.Label())
			}
			if _, ok := booked[id]; ok {
				return conflictError(CodeSeatAlreadyBooked,
					"Seat %s is already booked, please refresh the seat map", seat.Label())
			}
			if h, ok := holds[id]; ok && h.ActiveAt(now) && (in.SessionID == "" || h.SessionID != in.SessionID) {
				return conflictError(CodeSeatHeld, "Seat %s is being held by another customer", seat.Label())
			}
			pending = append(pending, model.Booking{
				SeatID:        id,
				CustomerName:  in.CustomerName,
				CompanionName: companion,
				Email:         in.Email,
				Status:        model.BookingConfirmed,
				CreatedAt:     now,
			})
		}

		created, err := e.repos.Bookings.CreateMany(ctx, pending)
		if err != nil {
			return err
		}
		if _, err := e.repos.Holds.DeleteBySeatIDs(ctx, in.SeatIDs); err != nil {
			return err
		}
		code, isNew, err := e.codes.Resolve(ctx, in.Email)
		if err != nil {
			return err
		}
		res.Bookings = lo.Map(created, func(b model.Booking, _ int) BookingView { return bookingView(b, seats) })
		res.RetrievalCode = code
		res.CodeIsNew = isNew
		return nil
	})
	metrics.ConfirmDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		err = storageError("confirm booking", err)
		if se, ok := AsError(err); ok {
			metrics.ConfirmRejected.WithLabelValues(se.Code).Inc()
		}
		return ConfirmResult{}, err
	}

	metrics.BookingsConfirmed.Add(float64(len(res.Bookings)))
	e.publishConfirmed(ctx, res, in, now)
	return res, nil
}

func (e *BookingEngine) publishConfirmed(ctx context.Context, res ConfirmResult, in ConfirmInput, now time.Time) {
	ev := queue.BookingConfirmedEvent{
		Header:        queue.NewEventHeader(now),
		BookingIDs:    lo.Map(res.Bookings, func(b BookingView, _ int) uint64 { return b.ID }),
		SeatLabels:    lo.Map(res.Bookings, func(b BookingView, _ int) string { return b.Label }),
		CustomerName:  in.CustomerName,
		CompanionName: in.CompanionName,
		Email:         in.Email,
		CodeIsNew:     res.CodeIsNew,
		ConfirmedAt:   now.UTC().Format(time.RFC3339),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.publisher.PublishBookingConfirmed(pubCtx, ev); err != nil {
		e.logger.WithError(err).WithField("email", in.Email).Warn("publish booking.confirmed failed")
	}
}

// Cancel marks a booking cancelled.  Cancelling an already cancelled
// booking succeeds without doing anything.
func (e *BookingEngine) Cancel(ctx context.Context, bookingID uint64) error {
	e.holds.purgeLazy(ctx)
	var (
		cancelled model.Booking
		changed   bool
	)
	err := e.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		changed = false
		b, err := e.repos.Bookings.LockByID(ctx, bookingID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundError(CodeBookingNotFound, "booking %d not found", bookingID)
		}
		if err != nil {
			return err
		}
		if b.Status == model.BookingCancelled {
			return nil
		}
		if err := e.repos.Bookings.SetStatus(ctx, bookingID, model.BookingCancelled); err != nil {
			return err
		}
		cancelled, changed = b, true
		return nil
	})
	if err != nil {
		return storageError("cancel booking", err)
	}
	if !changed {
		return nil
	}

	metrics.BookingsCancelled.Inc()
	now := e.clock.Now()
	ev := queue.BookingCancelledEvent{
		Header:      queue.NewEventHeader(now),
		BookingID:   cancelled.ID,
		SeatID:      cancelled.SeatID,
		Email:       cancelled.Email,
		CancelledAt: now.UTC().Format(time.RFC3339),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.publisher.PublishBookingCancelled(pubCtx, ev); err != nil {
		e.logger.WithError(err).WithField("booking_id", bookingID).Warn("publish booking.cancelled failed")
	}
	return nil
}

// ListConfirmed returns every confirmed booking, newest first.
func (e *BookingEngine) ListConfirmed(ctx context.Context) ([]BookingView, error) {
	e.holds.purgeLazy(ctx)
	bookings, err := e.repos.Bookings.ListConfirmed(ctx)
	if err != nil {
		return nil, storageError("list bookings", err)
	}
	return e.withSeats(ctx, bookings)
}

// Retrieve returns the confirmed bookings of email, newest first, once code
// matches the email's retrieval code.
func (e *BookingEngine) Retrieve(ctx context.Context, email, code string) ([]BookingView, error) {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" {
		return nil, validationError(CodeInvalidInput, "email is required")
	}
	if !ValidCode(code) {
		return nil, validationError(CodeInvalidCode, "code must be exactly 6 digits")
	}
	e.holds.purgeLazy(ctx)

	rc, err := e.repos.Codes.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && rc.Code != code) {
		return nil, notFoundError(CodeRetrievalNotFound, "no bookings found for this email and code")
	}
	if err != nil {
		return nil, storageError("look up retrieval code", err)
	}
	bookings, err := e.repos.Bookings.ListConfirmedByEmail(ctx, email)
	if err != nil {
		return nil, storageError("list bookings", err)
	}
	return e.withSeats(ctx, bookings)
}

// Export groups every confirmed booking by seat and by customer.
func (e *BookingEngine) Export(ctx context.Context) (Export, error) {
	views, err := e.ListConfirmed(ctx)
	if err != nil {
		return Export{}, err
	}
	return BuildExport(views), nil
}

// BuildExport sorts views by seat and aggregates them per customer.  A
// group's companion is the first non-empty one in seat order.
// Customers are ordered by booking count, then name, then email.
func BuildExport(views []BookingView) Export {
	bySeat := append([]BookingView(nil), views...)
	sort.SliceStable(bySeat, func(i, j int) bool {
		return model.LessSeat(
			model.Seat{Row: bySeat[i].Row, Number: bySeat[i].Number},
			model.Seat{Row: bySeat[j].Row, Number: bySeat[j].Number},
		)
	})

	type key struct{ name, email string }
	groups := lo.GroupBy(bySeat, func(v BookingView) key { return key{v.CustomerName, v.Email} })
	byCustomer := make([]CustomerGroup, 0, len(groups))
	for k, members := range groups {
		first := lo.MinBy(members, func(a, b BookingView) bool { return a.CreatedAt.Before(b.CreatedAt) })
		companion, _ := lo.Find(members, func(v BookingView) bool { return v.CompanionName != nil && *v.CompanionName != "" })
		byCustomer = append(byCustomer, CustomerGroup{
			CustomerName:  k.name,
			CompanionName: lo.FromPtr(companion.CompanionName),
			Email:         k.email,
			Count:         len(members),
			Seats:         lo.Map(members, func(v BookingView, _ int) string { return v.Label }),
			FirstBooked:   first.CreatedAt,
		})
	}
	sort.Slice(byCustomer, func(i, j int) bool {
		a, b := byCustomer[i], byCustomer[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.CustomerName != b.CustomerName {
			return a.CustomerName < b.CustomerName
		}
		return a.Email < b.Email
	})
	return Export{BySeat: bySeat, ByCustomer: byCustomer}
}

func (e *BookingEngine) withSeats(ctx context.Context, bookings []model.Booking) ([]BookingView, error) {
	ids := lo.Uniq(lo.Map(bookings, func(b model.Booking, _ int) uint64 { return b.SeatID }))
	seats, err := e.repos.Seats.GetByIDs(ctx, ids)
	if err != nil {
		return nil, storageError("load seats", err)
	}
	return lo.Map(bookings, func(b model.Booking, _ int) BookingView { return bookingView(b, seats) }), nil
}

func bookingView(b model.Booking, seats map[uint64]model.Seat) BookingView {
	v := BookingView{Booking: b}
	if s, ok := seats[b.SeatID]; ok {
		v.Row, v.Number, v.Label = s.Row, s.Number, s.Label()
	}
	return v
}
