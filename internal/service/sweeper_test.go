package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/service"
)

func TestSweeper_PurgesUntilCancelled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1, 2)
	f.store.PutHold(model.SeatHold{SeatID: f.id(t, "A1"), SessionID: "gone", ExpiresAt: baseTime.Add(-time.Second)})
	f.store.PutHold(model.SeatHold{SeatID: f.id(t, "A2"), SessionID: "here", ExpiresAt: baseTime.Add(time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	sw := service.NewSweeper(f.holds, 5*time.Millisecond, service.WithLogger(quietLogger()))
	go func() { done <- sw.Run(ctx) }()

	require.Eventually(t, func() bool { return f.store.HoldCount() == 1 }, time.Second, 5*time.Millisecond)
	_, kept := f.store.Hold(f.id(t, "A2"))
	assert.True(t, kept)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_DisabledWaitsForCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.NewSweeper(f.holds, 0).Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
