package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// eventConfigID is the primary key of the only event_config row.
const eventConfigID = 1

type eventConfigRecord struct {
	VenueName    string         `db:"venue_name"`
	VenueAddress string         `db:"venue_address"`
	ShowName     string         `db:"show_name"`
	EventAt      sql.NullTime   `db:"event_at"`
	RowCount     sql.NullInt64  `db:"row_count"`
	SeatsPerRow  sql.NullInt64  `db:"seats_per_row"`
	RowGroups    sql.NullString `db:"row_groups"`
}

// EventConfigRepo reads and writes the singleton event_config row.
type EventConfigRepo struct {
	db *sqlx.DB
}

// NewEventConfigRepo returns an EventConfigRepo bound to db.
func NewEventConfigRepo(db *sqlx.DB) *EventConfigRepo { return &EventConfigRepo{db: db} }

// Get returns the stored configuration or ErrNotFound when none was saved yet.
func (r *EventConfigRepo) Get(ctx context.Context) (model.EventConfig, error) {
	var rec eventConfigRecord
	const q = `SELECT venue_name, venue_address, show_name, event_at, row_count, seats_per_row, row_groups
	           FROM event_config WHERE id = ?`
	if err := sqlx.GetContext(ctx, conn(ctx, r.db), &rec, q, eventConfigID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EventConfig{}, ErrNotFound
		}
		return model.EventConfig{}, err
	}

	cfg := model.EventConfig{
		VenueName:    rec.VenueName,
		VenueAddress: rec.VenueAddress,
		ShowName:     rec.ShowName,
		RowGroups:    []model.RowGroup{},
	}
	if rec.EventAt.Valid {
		t := rec.EventAt.Time.UTC()
		cfg.EventDateTime = &t
	}
	if rec.RowCount.Valid {
		n := int(rec.RowCount.Int64)
		cfg.RowCount = &n
	}
	if rec.SeatsPerRow.Valid {
		n := int(rec.SeatsPerRow.Int64)
		cfg.SeatsPerRow = &n
	}
	if rec.RowGroups.Valid && rec.RowGroups.String != "" {
		if err := json.Unmarshal([]byte(rec.RowGroups.String), &cfg.RowGroups); err != nil {
			return model.EventConfig{}, fmt.Errorf("decode row groups: %w", err)
		}
	}
	return cfg, nil
}

// Save writes cfg as the singleton row.
func (r *EventConfigRepo) Save(ctx context.Context, cfg model.EventConfig) error {
	groups := cfg.RowGroups
	if groups == nil {
		groups = []model.RowGroup{}
	}
	raw, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("encode row groups: %w", err)
	}

	var eventAt sql.NullTime
	if cfg.EventDateTime != nil {
		eventAt = sql.NullTime{Time: cfg.EventDateTime.UTC(), Valid: true}
	}
	const q = `INSERT INTO event_config (id, venue_name, venue_address, show_name, event_at, row_count, seats_per_row, row_groups)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE venue_name = VALUES(venue_name), venue_address = VALUES(venue_address),
	               show_name = VALUES(show_name), event_at = VALUES(event_at), row_count = VALUES(row_count),
	               seats_per_row = VALUES(seats_per_row), row_groups = VALUES(row_groups)`
	_, err = conn(ctx, r.db).ExecContext(ctx, q, eventConfigID,
		cfg.VenueName, cfg.VenueAddress, cfg.ShowName, eventAt,
		nullInt(cfg.RowCount), nullInt(cfg.SeatsPerRow), string(raw))
	return err
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
