package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// bookingRecord is the row shape of the bookings table.
type bookingRecord struct {
	ID            uint64         `db:"id"`
	SeatID        uint64         `db:"seat_id"`
	CustomerName  string         `db:"customer_name"`
	CompanionName sql.NullString `db:"companion_name"`
	Email         string         `db:"email"`
	Status        string         `db:"status"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r bookingRecord) toModel() model.Booking {
	b := model.Booking{
		ID:           r.ID,
		SeatID:       r.SeatID,
		CustomerName: r.CustomerName,
		Email:        r.Email,
		Status:       model.BookingStatus(r.Status),
		CreatedAt:    r.CreatedAt.UTC(),
	}
	if r.CompanionName.Valid {
		name := r.CompanionName.String
		b.CompanionName = &name
	}
	return b
}

const bookingColumns = `id, seat_id, customer_name, companion_name, email, status, created_at`

// BookingRepo provides data access to the bookings table.  Rows are never
// deleted; cancellation is a status change.
type BookingRepo struct {
	db *sqlx.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sqlx.DB) *BookingRepo { return &BookingRepo{db: db} }

// CreateMany inserts the bookings one by one and returns them with their
// generated ids.
func (r *BookingRepo) CreateMany(ctx context.Context, bookings []model.Booking) ([]model.Booking, error) {
	const q = `INSERT INTO bookings (seat_id, customer_name, companion_name, email, status, created_at)
	           VALUES (?, ?, ?, ?, ?, ?)`
	ex := conn(ctx, r.db)
	out := make([]model.Booking, 0, len(bookings))
	for _, b := range bookings {
		var companion sql.NullString
		if b.CompanionName != nil {
			companion = sql.NullString{String: *b.CompanionName, Valid: true}
		}
		res, err := ex.ExecContext(ctx, q, b.SeatID, b.CustomerName, companion, b.Email, string(b.Status), b.CreatedAt.UTC())
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		b.ID = uint64(id)
		out = append(out, b)
	}
	return out, nil
}

// ConfirmedBySeatIDs returns the confirmed booking of each seat among ids
// that has one.
func (r *BookingRepo) ConfirmedBySeatIDs(ctx context.Context, ids []uint64) (map[uint64]model.Booking, error) {
	out := make(map[uint64]model.Booking, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := conn(ctx, r.db)
	query, args, err := inQuery(q, `SELECT `+bookingColumns+` FROM bookings WHERE status = ? AND seat_id IN (?)`,
		string(model.BookingConfirmed), ids)
	if err != nil {
		return nil, err
	}
	var recs []bookingRecord
	if err := sqlx.SelectContext(ctx, q, &recs, query, args...); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		out[rec.SeatID] = rec.toModel()
	}
	return out, nil
}

// ListConfirmed returns all confirmed bookings, newest first.
func (r *BookingRepo) ListConfirmed(ctx context.Context) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE status = ? ORDER BY created_at DESC, id DESC`
	return r.list(ctx, q, string(model.BookingConfirmed))
}

// ListConfirmedByEmail returns the confirmed bookings of one email, newest first.
func (r *BookingRepo) ListConfirmedByEmail(ctx context.Context, email string) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE status = ? AND email = ? ORDER BY created_at DESC, id DESC`
	return r.list(ctx, q, string(model.BookingConfirmed), email)
}

func (r *BookingRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Booking, error) {
	var recs []bookingRecord
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &recs, q, args...); err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

// CountConfirmed returns the number of confirmed bookings.
func (r *BookingRepo) CountConfirmed(ctx context.Context) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &n, `SELECT COUNT(*) FROM bookings WHERE status = ?`, string(model.BookingConfirmed))
	return n, err
}

// LockByID loads one booking and locks it for update.  Returns ErrNotFound
// when the id is unknown.
func (r *BookingRepo) LockByID(ctx context.Context, id uint64) (model.Booking, error) {
	var rec bookingRecord
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &rec, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Booking{}, ErrNotFound
		}
		return model.Booking{}, err
	}
	return rec.toModel(), nil
}

// SetStatus changes the status of one booking.
func (r *BookingRepo) SetStatus(ctx context.Context, id uint64, status model.BookingStatus) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE bookings SET status = ? WHERE id = ?`, string(status), id)
	return err
}
