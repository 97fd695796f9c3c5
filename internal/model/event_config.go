package model

import "time"

// RowGroup names a block of rows, e.g. letters "A-G" called "Stalls".
type RowGroup struct {
	Letters string `json:"letters"`
	Name    string `json:"name"`
}

// EventConfig is the singleton record describing the venue, the show and
// the seat layout parameters used when seats are regenerated.
type EventConfig struct {
	VenueName     string     `json:"venueName"`     // event_config.venue_name
	VenueAddress  string     `json:"venueAddress"`  // event_config.venue_address
	ShowName      string     `json:"showName"`      // event_config.show_name
	EventDateTime *time.Time `json:"eventDateTime"` // event_config.event_at (nullable)
	RowCount      *int       `json:"rowCount"`      // event_config.row_count (nullable)
	SeatsPerRow   *int       `json:"seatsPerRow"`   // event_config.seats_per_row (nullable)
	RowGroups     []RowGroup `json:"rowGroups"`     // event_config.row_groups (JSON)
}
