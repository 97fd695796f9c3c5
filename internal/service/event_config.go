package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

// Limits applied when the configuration is saved.
const (
	MaxVenueNameLength    = 120
	MaxVenueAddressLength = 255
	MaxShowNameLength     = 120
	MaxRowGroupLength     = 60
)

var eventTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

// EventInfo is the public projection of the event configuration.
type EventInfo struct {
	VenueName     string           `json:"venueName"`
	VenueAddress  string           `json:"venueAddress"`
	ShowName      string           `json:"showName"`
	EventDateTime *time.Time       `json:"eventDateTime"`
	RowGroups     []model.RowGroup `json:"rowGroups"`
}

// EventConfigUpdate lists the fields to change.  Nil fields keep their
// stored value.  An empty EventDateTime clears the date.
type EventConfigUpdate struct {
	VenueName     *string           `json:"venueName"`
	VenueAddress  *string           `json:"venueAddress"`
	ShowName      *string           `json:"showName"`
	EventDateTime *string           `json:"eventDateTime"`
	RowCount      *int              `json:"rowCount"`
	SeatsPerRow   *int              `json:"seatsPerRow"`
	RowGroups     *[]model.RowGroup `json:"rowGroups"`
}

// EventConfigService reads and updates the singleton event configuration.
type EventConfigService struct {
	repos Repositories
}

// NewEventConfigService returns an EventConfigService.
func NewEventConfigService(repos Repositories) *EventConfigService {
	return &EventConfigService{repos: repos}
}

// Get returns the stored configuration, or an empty one when nothing was
// saved yet.
func (s *EventConfigService) Get(ctx context.Context) (model.EventConfig, error) {
	cfg, err := s.repos.Events.Get(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return model.EventConfig{RowGroups: []model.RowGroup{}}, nil
	}
	if err != nil {
		return model.EventConfig{}, storageError("load event configuration", err)
	}
	if cfg.RowGroups == nil {
		cfg.RowGroups = []model.RowGroup{}
	}
	return cfg, nil
}

// Public returns the fields shown to customers.
func (s *EventConfigService) Public(ctx context.Context) (EventInfo, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return EventInfo{}, err
	}
	return EventInfo{
		VenueName:     cfg.VenueName,
		VenueAddress:  cfg.VenueAddress,
		ShowName:      cfg.ShowName,
		EventDateTime: cfg.EventDateTime,
		RowGroups:     cfg.RowGroups,
	}, nil
}

// Update applies upd to the stored configuration and returns the result.
func (s *EventConfigService) Update(ctx context.Context, upd EventConfigUpdate) (model.EventConfig, error) {
	var saved model.EventConfig
	err := s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		cfg, err := s.Get(ctx)
		if err != nil {
			return err
		}
		if cfg, err = applyUpdate(cfg, upd); err != nil {
			return err
		}
		if err := s.repos.Events.Save(ctx, cfg); err != nil {
			return err
		}
		saved = cfg
		return nil
	})
	if err != nil {
		return model.EventConfig{}, storageError("save event configuration", err)
	}
	return saved, nil
}

func applyUpdate(cfg model.EventConfig, upd EventConfigUpdate) (model.EventConfig, error) {
	if upd.VenueName != nil {
		cfg.VenueName = clip(*upd.VenueName, MaxVenueNameLength)
	}
	if upd.VenueAddress != nil {
		cfg.VenueAddress = clip(*upd.VenueAddress, MaxVenueAddressLength)
	}
	if upd.ShowName != nil {
		cfg.ShowName = clip(*upd.ShowName, MaxShowNameLength)
	}
	if upd.EventDateTime != nil {
		t, err := parseEventTime(*upd.EventDateTime)
		if err != nil {
			return cfg, err
		}
		cfg.EventDateTime = t
	}
	if upd.RowCount != nil {
		if *upd.RowCount < MinLayoutSize || *upd.RowCount > MaxLayoutSize {
			return cfg, validationError(CodeInvalidInput, "row count must be between %d and %d", MinLayoutSize, MaxLayoutSize)
		}
		n := *upd.RowCount
		cfg.RowCount = &n
	}
	if upd.SeatsPerRow != nil {
		if *upd.SeatsPerRow < MinLayoutSize || *upd.SeatsPerRow > MaxLayoutSize {
			return cfg, validationError(CodeInvalidInput, "seats per row must be between %d and %d", MinLayoutSize, MaxLayoutSize)
		}
		n := *upd.SeatsPerRow
		cfg.SeatsPerRow = &n
	}
	if upd.RowGroups != nil {
		cfg.RowGroups = sanitizeRowGroups(*upd.RowGroups)
	}
	return cfg, nil
}

func sanitizeRowGroups(groups []model.RowGroup) []model.RowGroup {
	return lo.FilterMap(groups, func(g model.RowGroup, _ int) (model.RowGroup, bool) {
		g.Letters = clip(g.Letters, MaxRowGroupLength)
		g.Name = clip(g.Name, MaxRowGroupLength)
		return g, g.Letters != "" && g.Name != ""
	})
}

func parseEventTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, validationError(CodeInvalidInput, "event date %q is not a valid date and time", s)
}

// clip trims s and cuts it to at most n runes.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
