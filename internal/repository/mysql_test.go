package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
	"github.com/iliyamo/event-seat-reservation/internal/service"
	"github.com/iliyamo/event-seat-reservation/internal/testutil"
)

// These tests need a disposable MySQL database, e.g.
// TEST_MYSQL_DSN="root:secret@tcp(127.0.0.1:3306)/seats_test?parseTime=true".

var now = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

func seed(t *testing.T, db *sqlx.DB, rows, perRow int) []model.Seat {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewSeatRepo(db)
	require.NoError(t, repo.CreateBulk(ctx, service.GenerateLayout(rows, perRow)))
	seats, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, seats, rows*perRow)
	return seats
}

func TestSeatRepo(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := repository.NewSeatRepo(db)
	tx := repository.NewTxManager(db)

	seats := seed(t, db, 2, 3)
	labels := make([]string, 0, len(seats))
	for _, s := range seats {
		labels = append(labels, s.Label())
		assert.True(t, s.Enabled)
		assert.False(t, s.StaffReserved)
	}
	assert.Equal(t, []string{"A1", "A2", "A3", "B1", "B2", "B3"}, labels)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	byID, err := repo.GetByIDs(ctx, []uint64{seats[0].ID, seats[4].ID, 999999})
	require.NoError(t, err)
	assert.Len(t, byID, 2)
	assert.Equal(t, "B2", byID[seats[4].ID].Label())

	require.NoError(t, tx.WithTx(ctx, func(ctx context.Context) error {
		row, err := repo.LockRow(ctx, "B")
		if err != nil {
			return err
		}
		assert.Len(t, row, 3)
		ids := make([]uint64, 0, len(row))
		for _, s := range row {
			ids = append(ids, s.ID)
		}
		updated, err := repo.SetStaffReserved(ctx, ids, true)
		assert.Equal(t, int64(3), updated)
		return err
	}))
	require.NoError(t, repo.SetEnabled(ctx, seats[0].ID, false))

	got, err := repo.GetByIDs(ctx, []uint64{seats[0].ID, seats[3].ID})
	require.NoError(t, err)
	assert.False(t, got[seats[0].ID].Enabled)
	assert.True(t, got[seats[3].ID].StaffReserved)

	holds := repository.NewSeatHoldRepo(db)
	require.NoError(t, holds.Upsert(ctx, model.SeatHold{SeatID: seats[1].ID, SessionID: "s", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, repo.DeleteAll(ctx))
	n, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	active, err := holds.ListActive(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, active, "holds are removed with their seats")
}

func TestSeatHoldRepo(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := repository.NewSeatHoldRepo(db)
	seats := seed(t, db, 1, 3)
	a1, a2, a3 := seats[0].ID, seats[1].ID, seats[2].ID

	require.NoError(t, repo.Upsert(ctx, model.SeatHold{SeatID: a1, SessionID: "s1", ExpiresAt: now.Add(5 * time.Minute)}))
	require.NoError(t, repo.Upsert(ctx, model.SeatHold{SeatID: a2, SessionID: "s1", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, repo.Upsert(ctx, model.SeatHold{SeatID: a3, SessionID: "s2", ExpiresAt: now.Add(time.Minute)}))

	// replacing keeps one row per seat
	require.NoError(t, repo.Upsert(ctx, model.SeatHold{SeatID: a3, SessionID: "s3", ExpiresAt: now.Add(2 * time.Minute)}))
	locked, err := repo.LockBySeatIDs(ctx, []uint64{a1, a2, a3})
	require.NoError(t, err)
	require.Len(t, locked, 3)
	assert.Equal(t, "s3", locked[a3].SessionID)

	active, err := repo.ListActive(ctx, now)
	require.NoError(t, err)
	assert.Len(t, active, 2, "the expired hold is not active")

	// a shorter target never shortens, expired and foreign holds are skipped
	extended, err := repo.Extend(ctx, "s1", []uint64{a1, a2, a3}, now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.LessOrEqual(t, extended, int64(1))
	locked, err = repo.LockBySeatIDs(ctx, []uint64{a1})
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(5*time.Minute), locked[a1].ExpiresAt, time.Millisecond)

	extended, err = repo.Extend(ctx, "s1", []uint64{a1, a2}, now, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), extended)

	purged, err := repo.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	removed, err := repo.DeleteForSession(ctx, "s1", []uint64{a1, a3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed, "only the session's own hold goes")

	removed, err = repo.DeleteBySeatIDs(ctx, []uint64{a3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestBookingRepo(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := repository.NewBookingRepo(db)
	seats := seed(t, db, 1, 3)
	companion := "Grace"

	created, err := repo.CreateMany(ctx, []model.Booking{
		{SeatID: seats[0].ID, CustomerName: "Ada", CompanionName: &companion, Email: "ada@example.com", Status: model.BookingConfirmed, CreatedAt: now},
		{SeatID: seats[1].ID, CustomerName: "Ada", Email: "ada@example.com", Status: model.BookingConfirmed, CreatedAt: now.Add(time.Second)},
		{SeatID: seats[2].ID, CustomerName: "Bob", Email: "bob@example.com", Status: model.BookingConfirmed, CreatedAt: now.Add(2 * time.Second)},
	})
	require.NoError(t, err)
	require.Len(t, created, 3)
	for _, b := range created {
		assert.NotZero(t, b.ID)
	}

	confirmed, err := repo.ConfirmedBySeatIDs(ctx, []uint64{seats[0].ID, seats[2].ID})
	require.NoError(t, err)
	assert.Len(t, confirmed, 2)
	require.NotNil(t, confirmed[seats[0].ID].CompanionName)
	assert.Equal(t, "Grace", *confirmed[seats[0].ID].CompanionName)

	count, err := repo.CountConfirmed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, repo.SetStatus(ctx, created[2].ID, model.BookingCancelled))
	all, err := repo.ListConfirmed(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, created[1].ID, all[0].ID, "newest first")

	ada, err := repo.ListConfirmedByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Len(t, ada, 2)

	b, err := repo.LockByID(ctx, created[2].ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, b.Status)

	_, err = repo.LockByID(ctx, 999999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRetrievalCodeRepo(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := repository.NewRetrievalCodeRepo(db)

	_, err := repo.FindByEmail(ctx, "ada@example.com")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.Insert(ctx, model.RetrievalCode{Email: "ada@example.com", Code: "123456", CreatedAt: now}))
	rc, err := repo.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", rc.Code)

	err = repo.Insert(ctx, model.RetrievalCode{Email: "bob@example.com", Code: "123456", CreatedAt: now})
	assert.ErrorIs(t, err, repository.ErrDuplicateCode)
	err = repo.Insert(ctx, model.RetrievalCode{Email: "ada@example.com", Code: "654321", CreatedAt: now})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
}

func TestEventConfigRepo(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := repository.NewEventConfigRepo(db)

	_, err := repo.Get(ctx)
	require.ErrorIs(t, err, repository.ErrNotFound)

	rows, perRow := 5, 8
	at := time.Date(2025, 7, 1, 20, 30, 0, 0, time.UTC)
	want := model.EventConfig{
		VenueName:     "Teatro",
		VenueAddress:  "Via Roma 1",
		ShowName:      "Gala",
		EventDateTime: &at,
		RowCount:      &rows,
		SeatsPerRow:   &perRow,
		RowGroups:     []model.RowGroup{{Letters: "A-C", Name: "Stalls"}},
	}
	require.NoError(t, repo.Save(ctx, want))
	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.VenueName, got.VenueName)
	assert.Equal(t, want.RowGroups, got.RowGroups)
	require.NotNil(t, got.EventDateTime)
	assert.True(t, at.Equal(*got.EventDateTime))
	require.NotNil(t, got.RowCount)
	assert.Equal(t, 5, *got.RowCount)

	want.RowCount, want.EventDateTime = nil, nil
	require.NoError(t, repo.Save(ctx, want))
	got, err = repo.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got.RowCount)
	assert.Nil(t, got.EventDateTime)
}

func TestTxRollback(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	tx := repository.NewTxManager(db)
	codes := repository.NewRetrievalCodeRepo(db)

	boom := errors.New("boom")
	err := tx.WithTx(ctx, func(ctx context.Context) error {
		if err := codes.Insert(ctx, model.RetrievalCode{Email: "ada@example.com", Code: "111111", CreatedAt: now}); err != nil {
			return err
		}
		return tx.WithTx(ctx, func(ctx context.Context) error { return boom })
	})
	require.ErrorIs(t, err, boom)

	_, err = codes.FindByEmail(ctx, "ada@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound, "the nested failure rolls back the outer work")
}

func TestConcurrentConfirmOnMySQL(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	seats := seed(t, db, 1, 2)
	clk := clock.NewFixed(now)
	repos := service.MySQLRepositories(db)
	holds := service.NewHoldManager(repos, clk)
	engine := service.NewBookingEngine(repos, holds, service.NewCodeIssuer(repos.Codes, clk), clk)

	const racers = 8
	results := make([]error, racers)
	var g errgroup.Group
	for i := 0; i < racers; i++ {
		i := i
		g.Go(func() error {
			_, results[i] = engine.Confirm(ctx, service.ConfirmInput{
				SeatIDs:      []uint64{seats[1].ID, seats[0].ID},
				CustomerName: fmt.Sprintf("racer %d", i),
				Email:        fmt.Sprintf("racer%d@example.com", i),
			})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, service.ErrConflict)
	}
	assert.Equal(t, 1, wins)

	count, err := repository.NewBookingRepo(db).CountConfirmed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestConcurrentPlaceOnMySQL(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	seats := seed(t, db, 1, 1)
	clk := clock.NewFixed(now)
	holds := service.NewHoldManager(service.MySQLRepositories(db), clk)

	const racers = 8
	results := make([]service.PlaceResult, racers)
	var g errgroup.Group
	for i := 0; i < racers; i++ {
		i := i
		g.Go(func() error {
			var err error
			results[i], err = holds.Place(ctx, []uint64{seats[0].ID}, fmt.Sprintf("session-%d", i))
			return err
		})
	}
	require.NoError(t, g.Wait())

	winner, conflicts := "", 0
	for i, res := range results {
		switch {
		case len(res.Held) == 1:
			assert.Empty(t, winner, "only one session may hold the seat")
			winner = fmt.Sprintf("session-%d", i)
		case len(res.Conflicts) == 1:
			assert.Equal(t, seats[0].ID, res.Conflicts[0].SeatID)
			conflicts++
		}
	}
	require.NotEmpty(t, winner)
	assert.Equal(t, racers-1, conflicts)

	active, err := repository.NewSeatHoldRepo(db).ListActive(ctx, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, winner, active[0].SessionID)
}
