package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/service"
)

func TestBookingEngine_ConfirmCreatesBookings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 2, 3)

	_, err := f.holds.Place(ctx, f.ids(t, "A1", "A2"), "me")
	require.NoError(t, err)

	res, err := f.engine.Confirm(ctx, service.ConfirmInput{
		SeatIDs:       f.ids(t, "A1", "A2"),
		CustomerName:  "  Grace Hopper ",
		CompanionName: "Alan Turing",
		Email:         " Grace@Example.COM ",
		SessionID:     "me",
	})
	require.NoError(t, err)
	require.Len(t, res.Bookings, 2)
	assert.True(t, res.CodeIsNew)
	assert.True(t, service.ValidCode(res.RetrievalCode))

	for i, label := range []string{"A1", "A2"} {
		b := res.Bookings[i]
		assert.Equal(t, label, b.Label)
		assert.Equal(t, "A", b.Row)
		assert.Equal(t, "Grace Hopper", b.CustomerName)
		require.NotNil(t, b.CompanionName)
		assert.Equal(t, "Alan Turing", *b.CompanionName)
		assert.Equal(t, "grace@example.com", b.Email)
		assert.Equal(t, model.BookingConfirmed, b.Status)
		assert.Equal(t, baseTime, b.CreatedAt)
	}
	assert.Zero(t, f.store.HoldCount(), "holds on booked seats are removed")

	views, err := f.registry.ListSeats(ctx, "me")
	require.NoError(t, err)
	for _, v := range views {
		if v.Label == "A1" {
			assert.Equal(t, model.SeatBooked, v.Status)
			require.NotNil(t, v.BookerName)
			assert.Equal(t, "Grace Hopper", *v.BookerName)
			require.NotNil(t, v.BookerEmail)
			assert.Equal(t, "grace@example.com", *v.BookerEmail)
		}
	}

	require.Len(t, f.publisher.confirmed, 1)
	ev := f.publisher.confirmed[0]
	assert.Equal(t, []string{"A1", "A2"}, ev.SeatLabels)
	assert.NotEmpty(t, ev.Header.ID)
}

func TestBookingEngine_ConfirmIsAllOrNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 1, 3)
	f.confirm(t, "first@example.com", "A2")

	_, err := f.engine.Confirm(ctx, service.ConfirmInput{
		SeatIDs:      f.ids(t, "A1", "A2"),
		CustomerName: "Second",
		Email:        "second@example.com",
	})
	requireCode(t, err, service.ErrConflict, service.CodeSeatAlreadyBooked)
	assert.Contains(t, err.Error(), "A2")

	for _, b := range f.store.Bookings() {
		assert.NotEqual(t, f.id(t, "A1"), b.SeatID, "A1 must not be booked")
	}
	assert.Len(t, f.store.Bookings(), 1)
	assert.Equal(t, 1, f.store.CodeCount(), "no code issued for the failed checkout")
}

func TestBookingEngine_ConfirmRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name    string
		prepare func(t *testing.T, f *fixture)
		input   func(t *testing.T, f *fixture) service.ConfirmInput
		kind    error
		code    string
	}{
		{
			name: "missing name",
			input: func(t *testing.T, f *fixture) service.ConfirmInput {
				return service.ConfirmInput{SeatIDs: f.ids(t, "A1"), CustomerName: " ", Email: "a@b.c"}
			},
			kind: service.ErrValidation,
			code: service.CodeInvalidInput,
		},
		{
			name: "missing email",
			input: func(t *testing.T, f *fixture) service.ConfirmInput {
				return service.ConfirmInput{SeatIDs: f.ids(t, "A1"), CustomerName: "Ada"}
			},
			kind: service.ErrValidation,
			code: service.CodeInvalidInput,
		},
		{
			name: "no seats",
			input: func(t *testing.T, f *fixture) service.ConfirmInput {
				return service.ConfirmInput{CustomerName: "Ada", Email: "a@b.c"}
			},
			kind: service.ErrValidation,
			code: service.CodeInvalidInput,
		},
		{
			name: "unknown seat",
			input: func(t *testing.T, f *fixture) service.ConfirmInput {
				return service.ConfirmInput{SeatIDs: []uint64{f.id(t, "A1"), 4242}, CustomerName: "Ada", Email: "a@b.c"}
			},
			kind: service.ErrNotFound,
			code: service.CodeSeatNotFound,
		},
		{
			name: "staff reserved seat",
			prepare: func(t *testing.T, f *fixture) {
				_, err := f.registry.SetSeatStaffReserved(ctx, f.id(t, "A1"), true)
				require.NoError(t, err)
			},
			input: func(t *testing.T, f *fixture) service.ConfirmInput {
				return service.ConfirmInput{SeatIDs: f.ids(t, "A1"), CustomerName: "Ada", Email: "a@b.c"}
			},
			kind: service.ErrConflict,
			code: service.CodeSeatUnavailable,
		},
		{
			name: "disabled seat",
			prepare: func(t *testing.T, f *fixture) {
				_, err := f.registry.UpdateSeat(ctx, f.id(t, "A1"), service.SeatUpdate{Enabled: boolPtr(false)})
				require.NoError(t, err)
			},
			input: func(t *testing.T, f *fixture) service.ConfirmInput {
				return service.ConfirmInput{SeatIDs: f.ids(t, "A1"), CustomerName: "Ada", Email: "a@b.c"}
			},
			kind: service.ErrConflict,
			code: service.CodeSeatUnavailable,
		},
		{
			name: "held by another session",
			prepare: func(t *testing.T, f *fixture) {
				_, err := f.holds.Place(ctx, f.ids(t, "A1"), "other")
				require.NoError(t, err)
			},
			input: func(t *testing.T, f *fixture) service.ConfirmInput {
				return service.ConfirmInput{SeatIDs: f.ids(t, "A1"), CustomerName: "Ada", Email: "a@b.c", SessionID: "me"}
			},
			kind: service.ErrConflict,
			code: service.CodeSeatHeld,
		},
		{
			name: "held while confirming without a session",
			prepare: func(t *testing.T, f *fixture) {
				_, err := f.holds.Place(ctx, f.ids(t, "A1"), "other")
				require.NoError(t, err)
			},
			input: func(t *testing.T, f *fixture) service.ConfirmInput {
				return service.ConfirmInput{SeatIDs: f.ids(t, "A1"), CustomerName: "Ada", Email: "a@b.c"}
			},
			kind: service.ErrConflict,
			code: service.CodeSeatHeld,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1, 2)
			if tt.prepare != nil {
				tt.prepare(t, f)
			}
			holdsBefore := f.store.HoldCount()
			_, err := f.engine.Confirm(ctx, tt.input(t, f))
			requireCode(t, err, tt.kind, tt.code)
			assert.Empty(t, f.store.Bookings())
			assert.Zero(t, f.store.CodeCount())
			assert.Equal(t, holdsBefore, f.store.HoldCount(), "holds untouched on failure")
			assert.Empty(t, f.publisher.confirmed)
		})
	}
}

func TestBookingEngine_ConcurrentConfirmBooksOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 1, 1)
	seat := f.ids(t, "A1")

	const racers = 8
	var won, lost atomic.Int32
	var g errgroup.Group
	for i := 0; i < racers; i++ {
		i := i
		g.Go(func() error {
			_, err := f.engine.Confirm(ctx, service.ConfirmInput{
				SeatIDs:      seat,
				CustomerName: fmt.Sprintf("Racer %d", i),
				Email:        fmt.Sprintf("racer%d@example.com", i),
			})
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, service.ErrConflict):
				se, _ := service.AsError(err)
				if se.Code != service.CodeSeatAlreadyBooked {
					return fmt.Errorf("unexpected conflict code %s", se.Code)
				}
				lost.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, won.Load())
	assert.EqualValues(t, racers-1, lost.Load())
	assert.Len(t, f.store.Bookings(), 1)
}

func TestBookingEngine_ReusesRetrievalCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1, 3)

	first := f.confirm(t, "repeat@example.com", "A1")
	second := f.confirm(t, "REPEAT@example.com", "A2")
	assert.True(t, first.CodeIsNew)
	assert.False(t, second.CodeIsNew)
	assert.Equal(t, first.RetrievalCode, second.RetrievalCode)
	assert.Equal(t, 1, f.store.CodeCount())
}

func TestBookingEngine_CodeExhaustionRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fixed := func() (string, error) { return "123456", nil }
	f := newFixture(t, 1, 2, service.WithCodeGenerator(fixed))

	f.confirm(t, "first@example.com", "A1")
	_, err := f.engine.Confirm(ctx, service.ConfirmInput{
		SeatIDs:      f.ids(t, "A2"),
		CustomerName: "Second",
		Email:        "second@example.com",
	})
	requireCode(t, err, service.ErrResourceExhausted, service.CodeCodeSpaceExhausted)
	assert.Len(t, f.store.Bookings(), 1)
	assert.Equal(t, model.SeatAvailable, f.status(t, "A2", ""))
}

func TestBookingEngine_StorageFailureRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 1, 2)
	_, err := f.holds.Place(ctx, f.ids(t, "A1"), "me")
	require.NoError(t, err)

	cause := errors.New("disk full")
	f.store.FailOn("Codes.Insert", cause)
	_, err = f.engine.Confirm(ctx, service.ConfirmInput{
		SeatIDs:      f.ids(t, "A1", "A2"),
		CustomerName: "Ada",
		Email:        "ada@example.com",
		SessionID:    "me",
	})
	require.ErrorIs(t, err, service.ErrStorage)
	require.ErrorIs(t, err, cause)
	assert.Empty(t, f.store.Bookings())
	assert.Equal(t, 1, f.store.HoldCount(), "hold survives the rollback")
}

func TestBookingEngine_PublishFailureDoesNotFailConfirm(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1, 1)
	f.publisher.err = errors.New("broker down")

	res := f.confirm(t, "ada@example.com", "A1")
	assert.Len(t, res.Bookings, 1)
	assert.Len(t, f.publisher.confirmed, 1)
}

func TestBookingEngine_RetrieveRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 2, 2)

	res, err := f.engine.Confirm(ctx, service.ConfirmInput{
		SeatIDs:       f.ids(t, "B2"),
		CustomerName:  "Katherine Johnson",
		CompanionName: "Dorothy Vaughan",
		Email:         "kj@example.com",
	})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	f.confirm(t, "kj@example.com", "A1")
	f.confirm(t, "other@example.com", "A2")

	got, err := f.engine.Retrieve(ctx, "KJ@example.com ", res.RetrievalCode)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A1", got[0].Label, "newest first")
	assert.Equal(t, "B2", got[1].Label)
	assert.Equal(t, "B", got[1].Row)
	assert.EqualValues(t, 2, got[1].Number)
	assert.Equal(t, "Katherine Johnson", got[1].CustomerName)
	require.NotNil(t, got[1].CompanionName)
	assert.Equal(t, "Dorothy Vaughan", *got[1].CompanionName)
	assert.Equal(t, "kj@example.com", got[1].Email)
}

func TestBookingEngine_RetrieveErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 1, 1)
	res := f.confirm(t, "ada@example.com", "A1")

	wrong := "100000"
	if res.RetrievalCode == wrong {
		wrong = "100001"
	}

	tests := []struct {
		name  string
		email string
		code  string
		kind  error
		ecode string
	}{
		{"missing email", "", res.RetrievalCode, service.ErrValidation, service.CodeInvalidInput},
		{"short code", "ada@example.com", "12345", service.ErrValidation, service.CodeInvalidCode},
		{"letters in code", "ada@example.com", "12a456", service.ErrValidation, service.CodeInvalidCode},
		{"seven digits", "ada@example.com", "1234567", service.ErrValidation, service.CodeInvalidCode},
		{"unknown email", "nobody@example.com", res.RetrievalCode, service.ErrNotFound, service.CodeRetrievalNotFound},
		{"wrong code", "ada@example.com", wrong, service.ErrNotFound, service.CodeRetrievalNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Retrieve(ctx, tt.email, tt.code)
			requireCode(t, err, tt.kind, tt.ecode)
		})
	}
}

func TestBookingEngine_Cancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 1, 2)
	res := f.confirm(t, "ada@example.com", "A1")
	id := res.Bookings[0].ID

	require.NoError(t, f.engine.Cancel(ctx, id))
	assert.Equal(t, model.SeatAvailable, f.status(t, "A1", ""))
	list, err := f.engine.ListConfirmed(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	require.Len(t, f.publisher.cancelled, 1)
	assert.Equal(t, id, f.publisher.cancelled[0].BookingID)

	require.NoError(t, f.engine.Cancel(ctx, id), "cancelling twice is accepted")
	assert.Len(t, f.publisher.cancelled, 1)

	err = f.engine.Cancel(ctx, 9999)
	requireCode(t, err, service.ErrNotFound, service.CodeBookingNotFound)

	again := f.confirm(t, "bob@example.com", "A1")
	assert.NotEqual(t, id, again.Bookings[0].ID, "a new booking row is created for the freed seat")
}

func TestBookingEngine_ListConfirmedNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, 1, 3)
	f.confirm(t, "a@example.com", "A1")
	f.clock.Advance(time.Second)
	f.confirm(t, "b@example.com", "A3", "A2")

	list, err := f.engine.ListConfirmed(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"A2", "A3", "A1"}, []string{list[0].Label, list[1].Label, list[2].Label})
}

func TestBuildExport(t *testing.T) {
	t.Parallel()
	at := func(min int) time.Time { return baseTime.Add(time.Duration(min) * time.Minute) }
	view := func(id uint64, row string, n uint32, name, email string, created time.Time) service.BookingView {
		return service.BookingView{
			Booking: model.Booking{ID: id, CustomerName: name, Email: email, Status: model.BookingConfirmed, CreatedAt: created},
			Row:     row,
			Number:  n,
			Label:   fmt.Sprintf("%s%d", row, n),
		}
	}
	views := []service.BookingView{
		view(1, "B", 1, "Zoe", "zoe@example.com", at(3)),
		view(2, "A", 10, "Zoe", "zoe@example.com", at(1)),
		view(3, "AA", 1, "Adam", "adam@example.com", at(2)),
		view(4, "A", 2, "Bea", "bea@example.com", at(0)),
		view(5, "C", 4, "Adam", "adam@example.com", at(5)),
		view(6, "A", 1, "Adam", "adam2@example.com", at(4)),
	}
	eve := "Eve"
	views[2].CompanionName = &eve

	exp := service.BuildExport(views)

	labels := make([]string, 0, len(exp.BySeat))
	for _, v := range exp.BySeat {
		labels = append(labels, v.Label)
	}
	assert.Equal(t, []string{"A1", "A2", "A10", "B1", "C4", "AA1"}, labels)

	require.Len(t, exp.ByCustomer, 4)
	assert.Equal(t, service.CustomerGroup{
		CustomerName: "Adam", CompanionName: "Eve", Email: "adam@example.com", Count: 2, Seats: []string{"C4", "AA1"}, FirstBooked: at(2),
	}, exp.ByCustomer[0])
	assert.Equal(t, "Zoe", exp.ByCustomer[1].CustomerName)
	assert.Equal(t, []string{"A10", "B1"}, exp.ByCustomer[1].Seats)
	assert.Equal(t, at(1), exp.ByCustomer[1].FirstBooked)
	assert.Equal(t, "adam2@example.com", exp.ByCustomer[2].Email)
	assert.Equal(t, "Bea", exp.ByCustomer[3].CustomerName)
	assert.Empty(t, exp.ByCustomer[3].CompanionName)
}
