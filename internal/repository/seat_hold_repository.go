package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// seatHoldRecord is the row shape of the seat_holds table.
type seatHoldRecord struct {
	SeatID    uint64    `db:"seat_id"`
	SessionID string    `db:"session_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (r seatHoldRecord) toModel() model.SeatHold {
	return model.SeatHold{SeatID: r.SeatID, SessionID: r.SessionID, ExpiresAt: r.ExpiresAt.UTC()}
}

// SeatHoldRepo provides data access to the seat_holds table.  seat_id is
// the primary key so a seat can never carry two holds.  All timestamps are
// UTC and supplied by the caller's clock rather than UTC_TIMESTAMP(), so
// expiry follows the same notion of "now" as the services.
type SeatHoldRepo struct {
	db *sqlx.DB
}

// NewSeatHoldRepo returns a new SeatHoldRepo bound to the provided database.
func NewSeatHoldRepo(db *sqlx.DB) *SeatHoldRepo { return &SeatHoldRepo{db: db} }

// PurgeExpired deletes every hold whose expires_at is at or before now and
// returns how many were removed.
func (r *SeatHoldRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM seat_holds WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListActive returns all holds that are still in force at now.
func (r *SeatHoldRepo) ListActive(ctx context.Context, now time.Time) ([]model.SeatHold, error) {
	var recs []seatHoldRecord
	const q = `SELECT seat_id, session_id, expires_at FROM seat_holds WHERE expires_at > ?`
	if err := sqlx.SelectContext(ctx, conn(ctx, r.db), &recs, q, now.UTC()); err != nil {
		return nil, err
	}
	out := make([]model.SeatHold, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

// LockBySeatIDs returns the hold rows on ids, expired ones included, keyed
// by seat id and locked for update.  Callers lock the seat rows first.
func (r *SeatHoldRepo) LockBySeatIDs(ctx context.Context, ids []uint64) (map[uint64]model.SeatHold, error) {
	out := make(map[uint64]model.SeatHold, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := conn(ctx, r.db)
	query, args, err := inQuery(q, `SELECT seat_id, session_id, expires_at FROM seat_holds WHERE seat_id IN (?) ORDER BY seat_id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	var recs []seatHoldRecord
	if err := sqlx.SelectContext(ctx, q, &recs, query, args...); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		out[rec.SeatID] = rec.toModel()
	}
	return out, nil
}

// Upsert writes the hold for h.SeatID, replacing whatever row was there.
func (r *SeatHoldRepo) Upsert(ctx context.Context, h model.SeatHold) error {
	const q = `INSERT INTO seat_holds (seat_id, session_id, expires_at) VALUES (?, ?, ?)
	           ON DUPLICATE KEY UPDATE session_id = VALUES(session_id), expires_at = VALUES(expires_at)`
	_, err := conn(ctx, r.db).ExecContext(ctx, q, h.SeatID, h.SessionID, h.ExpiresAt.UTC())
	return err
}

// Extend pushes the expiry of the session's unexpired holds on ids out to
// until.  GREATEST keeps an expiry that is already later.
func (r *SeatHoldRepo) Extend(ctx context.Context, sessionID string, ids []uint64, now, until time.Time) (int64, error) {
	if len(ids) == 0 || sessionID == "" {
		return 0, nil
	}
	q := conn(ctx, r.db)
	query, args, err := inQuery(q,
		`UPDATE seat_holds SET expires_at = GREATEST(expires_at, ?)
		 WHERE session_id = ? AND seat_id IN (?) AND expires_at > ?`,
		until.UTC(), sessionID, ids, now.UTC())
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteForSession removes the session's holds on ids.
func (r *SeatHoldRepo) DeleteForSession(ctx context.Context, sessionID string, ids []uint64) (int64, error) {
	if len(ids) == 0 || sessionID == "" {
		return 0, nil
	}
	q := conn(ctx, r.db)
	query, args, err := inQuery(q, `DELETE FROM seat_holds WHERE session_id = ? AND seat_id IN (?)`, sessionID, ids)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteBySeatIDs removes the holds on ids regardless of owner.
func (r *SeatHoldRepo) DeleteBySeatIDs(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := conn(ctx, r.db)
	query, args, err := inQuery(q, `DELETE FROM seat_holds WHERE seat_id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAll removes every hold.
func (r *SeatHoldRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM seat_holds`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
