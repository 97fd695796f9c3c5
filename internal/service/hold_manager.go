package service

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/metrics"
	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// MaxSessionIDLength matches the width of seat_holds.session_id.
const MaxSessionIDLength = 64

// HoldConflict identifies a seat another session is holding.
type HoldConflict struct {
	SeatID uint64 `json:"seatId"`
	Label  string `json:"label"`
}

// PlaceResult partitions a place request.  Seats that were skipped because
// they are unavailable or booked appear in neither list.
type PlaceResult struct {
	Held      []uint64
	Conflicts []HoldConflict
	ExpiresAt time.Time
}

// HoldManager owns the lifecycle of seat holds.
type HoldManager struct {
	repos    Repositories
	clock    clock.Clock
	duration time.Duration
	logger   logrus.FieldLogger
}

// NewHoldManager returns a HoldManager.  Holds last DefaultHoldDuration
// unless WithHoldDuration says otherwise.
func NewHoldManager(repos Repositories, clk clock.Clock, opts ...Option) *HoldManager {
	o := buildOptions(opts)
	return &HoldManager{repos: repos, clock: clk, duration: o.holdDuration, logger: o.logger}
}

// PurgeExpired removes every hold whose expiry is not after now.
func (m *HoldManager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.repos.Holds.PurgeExpired(ctx, m.clock.Now())
	if err != nil {
		return 0, storageError("purge expired holds", err)
	}
	if n > 0 {
		metrics.HoldsPurged.Add(float64(n))
	}
	return n, nil
}

// purgeLazy runs before reads and writes.  Every read path already ignores
// expired holds, so a failed purge is only logged.
func (m *HoldManager) purgeLazy(ctx context.Context) {
	if _, err := m.PurgeExpired(ctx); err != nil {
		m.logger.WithError(err).Warn("lazy purge of expired holds failed")
	}
}

// Place holds seatIDs for sessionID.  Each seat is decided on its own:
// unavailable and booked seats are skipped, seats already held by the
// session are renewed, seats held by another session are reported as
// conflicts and every other seat gets a new hold.  The held subset is
// committed even when some seats conflict.
func (m *HoldManager) Place(ctx context.Context, seatIDs []uint64, sessionID string) (PlaceResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return PlaceResult{}, validationError(CodeSessionRequired, "session id is required")
	}
	if len(sessionID) > MaxSessionIDLength {
		return PlaceResult{}, validationError(CodeInvalidInput, "session id is longer than %d characters", MaxSessionIDLength)
	}
	ids := uniqueSeatIDs(seatIDs)
	if len(ids) == 0 {
		return PlaceResult{Held: []uint64{}, Conflicts: []HoldConflict{}}, nil
	}

	m.purgeLazy(ctx)
	now := m.clock.Now()
	expiresAt := now.Add(m.duration)

	var (
		res     PlaceResult
		renewed int
	)
	err := m.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		res = PlaceResult{Held: []uint64{}, Conflicts: []HoldConflict{}, ExpiresAt: expiresAt}
		renewed = 0

		seats, err := m.repos.Seats.LockByIDs(ctx, ids)
		if err != nil {
			return err
		}
		booked, err := m.repos.Bookings.ConfirmedBySeatIDs(ctx, ids)
		if err != nil {
			return err
		}
		holds, err := m.repos.Holds.LockBySeatIDs(ctx, ids)
		if err != nil {
			return err
		}

		for _, id := range ids {
			seat, ok := seats[id]
			if !ok || !seat.Bookable() {
				continue
			}
			if _, ok := booked[id]; ok {
				continue
			}
			until := expiresAt
			if h, ok := holds[id]; ok && h.ActiveAt(now) {
				if h.SessionID != sessionID {
					res.Conflicts = append(res.Conflicts, HoldConflict{SeatID: id, Label: seat.Label()})
					continue
				}
				if h.ExpiresAt.After(until) {
					until = h.ExpiresAt
				}
				renewed++
			}
			if err := m.repos.Holds.Upsert(ctx, model.SeatHold{SeatID: id, SessionID: sessionID, ExpiresAt: until}); err != nil {
				return err
			}
			res.Held = append(res.Held, id)
		}
		return nil
	})
	if err != nil {
		return PlaceResult{}, storageError("place holds", err)
	}

	metrics.HoldsPlaced.WithLabelValues("new").Add(float64(len(res.Held) - renewed))
	metrics.HoldsPlaced.WithLabelValues("renewed").Add(float64(renewed))
	metrics.HoldConflicts.Add(float64(len(res.Conflicts)))
	return res, nil
}

// Renew extends the session's unexpired holds among seatIDs to now plus the
// hold duration.  It never shortens a hold and silently ignores seats the
// session does not hold.  It returns how many holds were extended.
func (m *HoldManager) Renew(ctx context.Context, seatIDs []uint64, sessionID string) (int64, error) {
	sessionID = strings.TrimSpace(sessionID)
	ids := uniqueSeatIDs(seatIDs)
	if sessionID == "" || len(ids) == 0 {
		return 0, nil
	}
	m.purgeLazy(ctx)
	now := m.clock.Now()
	n, err := m.repos.Holds.Extend(ctx, sessionID, ids, now, now.Add(m.duration))
	if err != nil {
		return 0, storageError("renew holds", err)
	}
	return n, nil
}

// Release deletes the session's holds among seatIDs.  It returns how many
// holds were removed.
func (m *HoldManager) Release(ctx context.Context, seatIDs []uint64, sessionID string) (int64, error) {
	sessionID = strings.TrimSpace(sessionID)
	ids := uniqueSeatIDs(seatIDs)
	if sessionID == "" || len(ids) == 0 {
		return 0, nil
	}
	m.purgeLazy(ctx)
	n, err := m.repos.Holds.DeleteForSession(ctx, sessionID, ids)
	if err != nil {
		return 0, storageError("release holds", err)
	}
	return n, nil
}

// uniqueSeatIDs drops zero ids and duplicates, keeping request order.
func uniqueSeatIDs(ids []uint64) []uint64 {
	return lo.Uniq(lo.Filter(ids, func(id uint64, _ int) bool { return id != 0 }))
}
