// Package testutil provides an in-memory implementation of the storage
// interfaces and helpers for the MySQL integration tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
	"github.com/iliyamo/event-seat-reservation/internal/service"
)

type txKey struct{}

type memState struct {
	seats         map[uint64]model.Seat
	holds         map[uint64]model.SeatHold
	bookings      map[uint64]model.Booking
	codes         map[string]model.RetrievalCode
	event         *model.EventConfig
	nextSeatID    uint64
	nextBookingID uint64
}

func (s memState) clone() memState {
	out := s
	out.seats = make(map[uint64]model.Seat, len(s.seats))
	for k, v := range s.seats {
		out.seats[k] = v
	}
	out.holds = make(map[uint64]model.SeatHold, len(s.holds))
	for k, v := range s.holds {
		out.holds[k] = v
	}
	out.bookings = make(map[uint64]model.Booking, len(s.bookings))
	for k, v := range s.bookings {
		out.bookings[k] = v
	}
	out.codes = make(map[string]model.RetrievalCode, len(s.codes))
	for k, v := range s.codes {
		out.codes[k] = v
	}
	if s.event != nil {
		ev := *s.event
		ev.RowGroups = append([]model.RowGroup(nil), s.event.RowGroups...)
		out.event = &ev
	}
	return out
}

// MemoryStore keeps every table in maps guarded by one mutex.  A
// transaction holds the mutex from start to end, which serializes it
// against every other call, and restores a snapshot when it fails.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
	fail  map[string]error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memState{
			seats:         map[uint64]model.Seat{},
			holds:         map[uint64]model.SeatHold{},
			bookings:      map[uint64]model.Booking{},
			codes:         map[string]model.RetrievalCode{},
			nextSeatID:    1,
			nextBookingID: 1,
		},
		fail: map[string]error{},
	}
}

// Repos returns the store behind the service interfaces.
func (m *MemoryStore) Repos() service.Repositories {
	return service.Repositories{
		Tx:       memTx{m},
		Seats:    memSeats{m},
		Holds:    memHolds{m},
		Bookings: memBookings{m},
		Codes:    memCodes{m},
		Events:   memEvents{m},
	}
}

// FailOn makes every later call of op return err.  op is "Type.Method",
// for example "Bookings.CreateMany".  A nil err clears it.
func (m *MemoryStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

func (m *MemoryStore) do(ctx context.Context, op string, fn func(st *memState) error) error {
	if ctx.Value(txKey{}) == nil {
		m.mu.Lock()
		defer m.mu.Unlock()
	}
	if err := m.fail[op]; err != nil {
		return err
	}
	return fn(&m.state)
}

// AddSeats inserts seats, assigning ids, and returns them.
func (m *MemoryStore) AddSeats(seats ...model.Seat) []model.Seat {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Seat, 0, len(seats))
	for _, s := range seats {
		s.ID = m.state.nextSeatID
		m.state.nextSeatID++
		m.state.seats[s.ID] = s
		out = append(out, s)
	}
	return out
}

// PutHold stores h as is, expired or not.
func (m *MemoryStore) PutHold(h model.SeatHold) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.holds[h.SeatID] = h
}

// Hold returns the stored hold of seatID, including expired ones.
func (m *MemoryStore) Hold(seatID uint64) (model.SeatHold, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.state.holds[seatID]
	return h, ok
}

// HoldCount returns the number of stored holds, including expired ones.
func (m *MemoryStore) HoldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.holds)
}

// Bookings returns every stored booking ordered by id.
func (m *MemoryStore) Bookings() []model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Booking, 0, len(m.state.bookings))
	for _, b := range m.state.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CodeCount returns the number of issued retrieval codes.
func (m *MemoryStore) CodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.codes)
}

type memTx struct{ m *MemoryStore }

func (t memTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	snapshot := t.m.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		t.m.state = snapshot
		return err
	}
	return nil
}

type memSeats struct{ m *MemoryStore }

func (r memSeats) List(ctx context.Context) ([]model.Seat, error) {
	var out []model.Seat
	err := r.m.do(ctx, "Seats.List", func(st *memState) error {
		out = sortedSeats(st.seats, nil)
		return nil
	})
	return out, err
}

func (r memSeats) Count(ctx context.Context) (int, error) {
	var n int
	err := r.m.do(ctx, "Seats.Count", func(st *memState) error {
		n = len(st.seats)
		return nil
	})
	return n, err
}

func (r memSeats) GetByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Seat, error) {
	return r.byIDs(ctx, "Seats.GetByIDs", ids)
}

func (r memSeats) LockByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Seat, error) {
	return r.byIDs(ctx, "Seats.LockByIDs", ids)
}

func (r memSeats) byIDs(ctx context.Context, op string, ids []uint64) (map[uint64]model.Seat, error) {
	out := make(map[uint64]model.Seat, len(ids))
	err := r.m.do(ctx, op, func(st *memState) error {
		for _, id := range ids {
			if s, ok := st.seats[id]; ok {
				out[id] = s
			}
		}
		return nil
	})
	return out, err
}

func (r memSeats) LockAll(ctx context.Context) (int, error) {
	return r.Count(ctx)
}

func (r memSeats) LockRow(ctx context.Context, row string) ([]model.Seat, error) {
	var out []model.Seat
	err := r.m.do(ctx, "Seats.LockRow", func(st *memState) error {
		out = sortedSeats(st.seats, func(s model.Seat) bool { return s.Row == row })
		return nil
	})
	return out, err
}

func (r memSeats) CreateBulk(ctx context.Context, seats []model.Seat) error {
	return r.m.do(ctx, "Seats.CreateBulk", func(st *memState) error {
		for _, s := range seats {
			s.ID = st.nextSeatID
			st.nextSeatID++
			st.seats[s.ID] = s
		}
		return nil
	})
}

func (r memSeats) DeleteAll(ctx context.Context) error {
	return r.m.do(ctx, "Seats.DeleteAll", func(st *memState) error {
		st.seats = map[uint64]model.Seat{}
		st.holds = map[uint64]model.SeatHold{}
		return nil
	})
}

func (r memSeats) SetStaffReserved(ctx context.Context, ids []uint64, reserved bool) (int64, error) {
	var n int64
	err := r.m.do(ctx, "Seats.SetStaffReserved", func(st *memState) error {
		for _, id := range ids {
			if s, ok := st.seats[id]; ok {
				s.StaffReserved = reserved
				st.seats[id] = s
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memSeats) SetEnabled(ctx context.Context, id uint64, enabled bool) error {
	return r.m.do(ctx, "Seats.SetEnabled", func(st *memState) error {
		if s, ok := st.seats[id]; ok {
			s.Enabled = enabled
			st.seats[id] = s
		}
		return nil
	})
}

func sortedSeats(seats map[uint64]model.Seat, keep func(model.Seat) bool) []model.Seat {
	out := make([]model.Seat, 0, len(seats))
	for _, s := range seats {
		if keep == nil || keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return model.LessSeat(out[i], out[j]) })
	return out
}

type memHolds struct{ m *MemoryStore }

func (r memHolds) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.m.do(ctx, "Holds.PurgeExpired", func(st *memState) error {
		for id, h := range st.holds {
			if !h.ActiveAt(now) {
				delete(st.holds, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memHolds) ListActive(ctx context.Context, now time.Time) ([]model.SeatHold, error) {
	var out []model.SeatHold
	err := r.m.do(ctx, "Holds.ListActive", func(st *memState) error {
		for _, h := range st.holds {
			if h.ActiveAt(now) {
				out = append(out, h)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].SeatID < out[j].SeatID })
		return nil
	})
	return out, err
}

func (r memHolds) LockBySeatIDs(ctx context.Context, ids []uint64) (map[uint64]model.SeatHold, error) {
	out := make(map[uint64]model.SeatHold, len(ids))
	err := r.m.do(ctx, "Holds.LockBySeatIDs", func(st *memState) error {
		for _, id := range ids {
			if h, ok := st.holds[id]; ok {
				out[id] = h
			}
		}
		return nil
	})
	return out, err
}

func (r memHolds) Upsert(ctx context.Context, h model.SeatHold) error {
	return r.m.do(ctx, "Holds.Upsert", func(st *memState) error {
		st.holds[h.SeatID] = h
		return nil
	})
}

func (r memHolds) Extend(ctx context.Context, sessionID string, ids []uint64, now, until time.Time) (int64, error) {
	var n int64
	err := r.m.do(ctx, "Holds.Extend", func(st *memState) error {
		for _, id := range ids {
			h, ok := st.holds[id]
			if !ok || h.SessionID != sessionID || !h.ActiveAt(now) {
				continue
			}
			if until.After(h.ExpiresAt) {
				h.ExpiresAt = until
			}
			st.holds[id] = h
			n++
		}
		return nil
	})
	return n, err
}

func (r memHolds) DeleteForSession(ctx context.Context, sessionID string, ids []uint64) (int64, error) {
	var n int64
	err := r.m.do(ctx, "Holds.DeleteForSession", func(st *memState) error {
		for _, id := range ids {
			if h, ok := st.holds[id]; ok && h.SessionID == sessionID {
				delete(st.holds, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memHolds) DeleteBySeatIDs(ctx context.Context, ids []uint64) (int64, error) {
	var n int64
	err := r.m.do(ctx, "Holds.DeleteBySeatIDs", func(st *memState) error {
		for _, id := range ids {
			if _, ok := st.holds[id]; ok {
				delete(st.holds, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memHolds) DeleteAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.m.do(ctx, "Holds.DeleteAll", func(st *memState) error {
		n = int64(len(st.holds))
		st.holds = map[uint64]model.SeatHold{}
		return nil
	})
	return n, err
}

type memBookings struct{ m *MemoryStore }

func (r memBookings) CreateMany(ctx context.Context, bookings []model.Booking) ([]model.Booking, error) {
	out := make([]model.Booking, 0, len(bookings))
	err := r.m.do(ctx, "Bookings.CreateMany", func(st *memState) error {
		for _, b := range bookings {
			b.ID = st.nextBookingID
			st.nextBookingID++
			st.bookings[b.ID] = b
			out = append(out, b)
		}
		return nil
	})
	return out, err
}

func (r memBookings) ConfirmedBySeatIDs(ctx context.Context, ids []uint64) (map[uint64]model.Booking, error) {
	want := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[uint64]model.Booking, len(ids))
	err := r.m.do(ctx, "Bookings.ConfirmedBySeatIDs", func(st *memState) error {
		for _, b := range st.bookings {
			if want[b.SeatID] && b.Status == model.BookingConfirmed {
				out[b.SeatID] = b
			}
		}
		return nil
	})
	return out, err
}

func (r memBookings) ListConfirmed(ctx context.Context) ([]model.Booking, error) {
	return r.list(ctx, "Bookings.ListConfirmed", func(model.Booking) bool { return true })
}

func (r memBookings) ListConfirmedByEmail(ctx context.Context, email string) ([]model.Booking, error) {
	return r.list(ctx, "Bookings.ListConfirmedByEmail", func(b model.Booking) bool { return b.Email == email })
}

func (r memBookings) list(ctx context.Context, op string, keep func(model.Booking) bool) ([]model.Booking, error) {
	var out []model.Booking
	err := r.m.do(ctx, op, func(st *memState) error {
		for _, b := range st.bookings {
			if b.Status == model.BookingConfirmed && keep(b) {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

func (r memBookings) CountConfirmed(ctx context.Context) (int, error) {
	var n int
	err := r.m.do(ctx, "Bookings.CountConfirmed", func(st *memState) error {
		for _, b := range st.bookings {
			if b.Status == model.BookingConfirmed {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memBookings) LockByID(ctx context.Context, id uint64) (model.Booking, error) {
	var out model.Booking
	err := r.m.do(ctx, "Bookings.LockByID", func(st *memState) error {
		b, ok := st.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = b
		return nil
	})
	return out, err
}

func (r memBookings) SetStatus(ctx context.Context, id uint64, status model.BookingStatus) error {
	return r.m.do(ctx, "Bookings.SetStatus", func(st *memState) error {
		b, ok := st.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		b.Status = status
		st.bookings[id] = b
		return nil
	})
}

type memCodes struct{ m *MemoryStore }

func (r memCodes) FindByEmail(ctx context.Context, email string) (model.RetrievalCode, error) {
	var out model.RetrievalCode
	err := r.m.do(ctx, "Codes.FindByEmail", func(st *memState) error {
		rc, ok := st.codes[email]
		if !ok {
			return repository.ErrNotFound
		}
		out = rc
		return nil
	})
	return out, err
}

func (r memCodes) Insert(ctx context.Context, rc model.RetrievalCode) error {
	return r.m.do(ctx, "Codes.Insert", func(st *memState) error {
		if _, ok := st.codes[rc.Email]; ok {
			return repository.ErrDuplicateEmail
		}
		for _, existing := range st.codes {
			if existing.Code == rc.Code {
				return repository.ErrDuplicateCode
			}
		}
		st.codes[rc.Email] = rc
		return nil
	})
}

type memEvents struct{ m *MemoryStore }

func (r memEvents) Get(ctx context.Context) (model.EventConfig, error) {
	var out model.EventConfig
	err := r.m.do(ctx, "Events.Get", func(st *memState) error {
		if st.event == nil {
			return repository.ErrNotFound
		}
		out = *st.event
		out.RowGroups = append([]model.RowGroup{}, st.event.RowGroups...)
		return nil
	})
	return out, err
}

func (r memEvents) Save(ctx context.Context, cfg model.EventConfig) error {
	return r.m.do(ctx, "Events.Save", func(st *memState) error {
		cfg.RowGroups = append([]model.RowGroup{}, cfg.RowGroups...)
		st.event = &cfg
		return nil
	})
}
