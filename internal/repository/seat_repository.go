package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// seatRecord is the row shape of the seats table.
type seatRecord struct {
	ID            uint64 `db:"id"`
	RowLabel      string `db:"row_label"`
	SeatNumber    uint32 `db:"seat_number"`
	Enabled       bool   `db:"enabled"`
	StaffReserved bool   `db:"staff_reserved"`
}

func (r seatRecord) toModel() model.Seat {
	return model.Seat{
		ID:            r.ID,
		Row:           r.RowLabel,
		Number:        r.SeatNumber,
		Enabled:       r.Enabled,
		StaffReserved: r.StaffReserved,
	}
}

const seatColumns = `id, row_label, seat_number, enabled, staff_reserved`

// seatOrder sorts Z before AA.
const seatOrder = `ORDER BY CHAR_LENGTH(row_label), row_label, seat_number`

// SeatRepo provides data access to the seats table.
type SeatRepo struct {
	db *sqlx.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sqlx.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// List returns every seat ordered by row then number.
func (r *SeatRepo) List(ctx context.Context) ([]model.Seat, error) {
	var recs []seatRecord
	q := `SELECT ` + seatColumns + ` FROM seats ` + seatOrder
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &recs, q); err != nil {
		return nil, err
	}
	return toSeats(recs), nil
}

// Count returns the number of seats in the layout.
func (r *SeatRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &n, `SELECT COUNT(*) FROM seats`)
	return n, err
}

// GetByIDs returns the seats among ids keyed by id, without locking.
func (r *SeatRepo) GetByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Seat, error) {
	return r.byIDs(ctx, ids, "")
}

// LockByIDs returns the seats among ids keyed by id and holds an exclusive
// row lock on each until the surrounding transaction ends.  Rows are locked
// in ascending id order so competing lockers cannot deadlock each other.
func (r *SeatRepo) LockByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Seat, error) {
	return r.byIDs(ctx, ids, " ORDER BY id FOR UPDATE")
}

func (r *SeatRepo) byIDs(ctx context.Context, ids []uint64, suffix string) (map[uint64]model.Seat, error) {
	out := make(map[uint64]model.Seat, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := conn(ctx, r.db)
	query, args, err := inQuery(q, `SELECT `+seatColumns+` FROM seats WHERE id IN (?)`+suffix, ids)
	if err != nil {
		return nil, err
	}
	var recs []seatRecord
	if err := sqlx.SelectContext(ctx, q, &recs, query, args...); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		out[rec.ID] = rec.toModel()
	}
	return out, nil
}

// LockAll takes an exclusive lock on every seat row and returns how many
// there are.  Used before the layout is replaced.
func (r *SeatRepo) LockAll(ctx context.Context) (int, error) {
	var ids []uint64
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &ids, `SELECT id FROM seats ORDER BY id FOR UPDATE`); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// LockRow locks and returns the seats of one row.
func (r *SeatRepo) LockRow(ctx context.Context, row string) ([]model.Seat, error) {
	var recs []seatRecord
	q := `SELECT ` + seatColumns + ` FROM seats WHERE row_label = ? ORDER BY id FOR UPDATE`
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &recs, q, row); err != nil {
		return nil, err
	}
	return toSeats(recs), nil
}

// CreateBulk inserts seats in multi-row statements.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []model.Seat) error {
	const chunk = 500
	q := conn(ctx, r.db)
	for start := 0; start < len(seats); start += chunk {
		end := start + chunk
		if end > len(seats) {
			end = len(seats)
		}
		part := seats[start:end]
		var b strings.Builder
		b.WriteString(`INSERT INTO seats (row_label, seat_number, enabled, staff_reserved) VALUES `)
		args := make([]interface{}, 0, len(part)*4)
		for i, s := range part {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString("(?, ?, ?, ?)")
			args = append(args, s.Row, s.Number, s.Enabled, s.StaffReserved)
		}
		if _, err := q.ExecContext(ctx, b.String(), args...); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAll removes every seat.  Holds go with them through ON DELETE CASCADE.
func (r *SeatRepo) DeleteAll(ctx context.Context) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM seats`)
	return err
}

// SetStaffReserved sets the staff_reserved flag on the given seats and
// returns how many seats matched.
func (r *SeatRepo) SetStaffReserved(ctx context.Context, ids []uint64, reserved bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := conn(ctx, r.db)
	query, args, err := inQuery(q, `UPDATE seats SET staff_reserved = ? WHERE id IN (?)`, reserved, ids)
	if err != nil {
		return 0, err
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return 0, err
	}
	// RowsAffected only counts changed rows without clientFoundRows.
	return int64(len(ids)), nil
}

// SetEnabled sets the enabled flag of one seat.
func (r *SeatRepo) SetEnabled(ctx context.Context, id uint64, enabled bool) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE seats SET enabled = ? WHERE id = ?`, enabled, id)
	return err
}

func toSeats(recs []seatRecord) []model.Seat {
	out := make([]model.Seat, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out
}
