package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowPublisher struct {
	mu        sync.Mutex
	release   chan struct{}
	confirmed []BookingConfirmedEvent
	cancelled []BookingCancelledEvent
	err       error
}

func (p *slowPublisher) PublishBookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) error {
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, ev)
	return p.err
}

func (p *slowPublisher) PublishBookingCancelled(_ context.Context, ev BookingCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, ev)
	return p.err
}

func (p *slowPublisher) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.confirmed), len(p.cancelled)
}

func TestAsyncPublisherDoesNotBlockCaller(t *testing.T) {
	next := &slowPublisher{release: make(chan struct{})}
	logger, _ := test.NewNullLogger()
	p := NewAsyncPublisher(next, 4, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	start := time.Now()
	require.NoError(t, p.PublishBookingConfirmed(context.Background(), BookingConfirmedEvent{Email: "ada@example.com"}))
	require.NoError(t, p.PublishBookingCancelled(context.Background(), BookingCancelledEvent{BookingID: 7}))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(next.release)
	require.Eventually(t, func() bool {
		c, x := next.counts()
		return c == 1 && x == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}

func TestAsyncPublisherQueueFull(t *testing.T) {
	p := NewAsyncPublisher(&slowPublisher{}, 1, logrus.New())
	require.NoError(t, p.PublishBookingCancelled(context.Background(), BookingCancelledEvent{BookingID: 1}))
	err := p.PublishBookingCancelled(context.Background(), BookingCancelledEvent{BookingID: 2})
	assert.ErrorIs(t, err, ErrPublishQueueFull)
}

func TestAsyncPublisherDrainsOnShutdown(t *testing.T) {
	next := &slowPublisher{}
	logger, _ := test.NewNullLogger()
	p := NewAsyncPublisher(next, 8, logger)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.PublishBookingCancelled(context.Background(), BookingCancelledEvent{BookingID: uint64(i + 1)}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))
	_, cancelled := next.counts()
	assert.Equal(t, 3, cancelled)
}

func TestAsyncPublisherLogsEachFailureOnce(t *testing.T) {
	next := &slowPublisher{err: errors.New("broker down")}
	logger, hook := test.NewNullLogger()
	p := NewAsyncPublisher(next, 8, logger)
	require.NoError(t, p.PublishBookingCancelled(context.Background(), BookingCancelledEvent{BookingID: 1}))
	require.NoError(t, p.PublishBookingCancelled(context.Background(), BookingCancelledEvent{BookingID: 2}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, logrus.WarnLevel, e.Level)
		assert.Equal(t, QueueBookingCancelled, e.Data["queue"])
		assert.EqualError(t, e.Data[logrus.ErrorKey].(error), "broker down")
	}
}
