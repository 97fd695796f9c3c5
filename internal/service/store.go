// Package service holds the seat reservation core: the seat registry, the
// hold manager, the booking engine, the retrieval code issuer and the event
// configuration.  Persistence is reached through the interfaces below; the
// MySQL implementations live in internal/repository.
package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

// Transactor runs fn inside one storage transaction.  Repository calls made
// with the context passed to fn join that transaction.  An error returned
// by fn rolls everything back.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SeatRepository persists seats.  Lock* methods take exclusive row locks
// that last until the surrounding transaction ends.
type SeatRepository interface {
	List(ctx context.Context) ([]model.Seat, error)
	Count(ctx context.Context) (int, error)
	GetByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Seat, error)
	LockByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Seat, error)
	LockAll(ctx context.Context) (int, error)
	LockRow(ctx context.Context, row string) ([]model.Seat, error)
	CreateBulk(ctx context.Context, seats []model.Seat) error
	DeleteAll(ctx context.Context) error
	SetStaffReserved(ctx context.Context, ids []uint64, reserved bool) (int64, error)
	SetEnabled(ctx context.Context, id uint64, enabled bool) error
}

// HoldRepository persists seat holds, at most one per seat.
type HoldRepository interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	ListActive(ctx context.Context, now time.Time) ([]model.SeatHold, error)
	LockBySeatIDs(ctx context.Context, ids []uint64) (map[uint64]model.SeatHold, error)
	Upsert(ctx context.Context, h model.SeatHold) error
	Extend(ctx context.Context, sessionID string, ids []uint64, now, until time.Time) (int64, error)
	DeleteForSession(ctx context.Context, sessionID string, ids []uint64) (int64, error)
	DeleteBySeatIDs(ctx context.Context, ids []uint64) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// BookingRepository persists bookings.  LockByID returns
// repository.ErrNotFound for unknown ids.
type BookingRepository interface {
	CreateMany(ctx context.Context, bookings []model.Booking) ([]model.Booking, error)
	ConfirmedBySeatIDs(ctx context.Context, ids []uint64) (map[uint64]model.Booking, error)
	ListConfirmed(ctx context.Context) ([]model.Booking, error)
	ListConfirmedByEmail(ctx context.Context, email string) ([]model.Booking, error)
	CountConfirmed(ctx context.Context) (int, error)
	LockByID(ctx context.Context, id uint64) (model.Booking, error)
	SetStatus(ctx context.Context, id uint64, status model.BookingStatus) error
}

// RetrievalCodeRepository persists retrieval codes.  FindByEmail returns
// repository.ErrNotFound when the email has none; Insert returns
// repository.ErrDuplicateEmail or repository.ErrDuplicateCode on clashes.
type RetrievalCodeRepository interface {
	FindByEmail(ctx context.Context, email string) (model.RetrievalCode, error)
	Insert(ctx context.Context, rc model.RetrievalCode) error
}

// EventConfigRepository persists the singleton event configuration.  Get
// returns repository.ErrNotFound until something was saved.
type EventConfigRepository interface {
	Get(ctx context.Context) (model.EventConfig, error)
	Save(ctx context.Context, cfg model.EventConfig) error
}

// Repositories bundles every storage dependency of the services.
type Repositories struct {
	Tx       Transactor
	Seats    SeatRepository
	Holds    HoldRepository
	Bookings BookingRepository
	Codes    RetrievalCodeRepository
	Events   EventConfigRepository
}

// MySQLRepositories wires the MySQL repositories sharing db.
func MySQLRepositories(db *sqlx.DB) Repositories {
	return Repositories{
		Tx:       repository.NewTxManager(db),
		Seats:    repository.NewSeatRepo(db),
		Holds:    repository.NewSeatHoldRepo(db),
		Bookings: repository.NewBookingRepo(db),
		Codes:    repository.NewRetrievalCodeRepo(db),
		Events:   repository.NewEventConfigRepo(db),
	}
}
