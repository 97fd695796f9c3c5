package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingLogAppendsBothEventKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "booking.log")
	sink := BookingLog{Path: path}

	confirmed, err := json.Marshal(BookingConfirmedEvent{
		Header:       EventHeader{ID: "ev-1"},
		BookingIDs:   []uint64{7, 8},
		SeatLabels:   []string{"A1", "A2"},
		CustomerName: "Ada Lovelace",
		Email:        "ada@example.com",
		CodeIsNew:    true,
		ConfirmedAt:  "2025-03-01T20:00:00Z",
	})
	require.NoError(t, err)
	cancelled, err := json.Marshal(BookingCancelledEvent{
		Header:      EventHeader{ID: "ev-2"},
		BookingID:   7,
		SeatID:      1,
		Email:       "ada@example.com",
		CancelledAt: "2025-03-01T21:00:00Z",
	})
	require.NoError(t, err)

	require.NoError(t, sink.Handle(QueueBookingConfirmed, confirmed))
	require.NoError(t, sink.Handle(QueueBookingCancelled, cancelled))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Booking confirmed")
	assert.Contains(t, lines[0], "seats=[A1,A2]")
	assert.Contains(t, lines[0], `customer="Ada Lovelace"`)
	assert.Contains(t, lines[1], "booking_id=7")
}

func TestBookingLogRejectsGarbage(t *testing.T) {
	sink := BookingLog{Path: filepath.Join(t.TempDir(), "booking.log")}
	assert.Error(t, sink.Handle(QueueBookingConfirmed, []byte("{")))
	assert.Error(t, sink.Handle("unknown.queue", []byte("{}")))
}

func TestNewEventHeaderHasID(t *testing.T) {
	a := NewEventHeader(fixedNow)
	b := NewEventHeader(fixedNow)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "2025-03-01T20:00:00Z", a.PublishedAt)
}

var fixedNow = mustParse("2025-03-01T20:00:00Z")

func mustParse(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
