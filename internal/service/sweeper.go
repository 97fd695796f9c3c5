package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper purges expired holds on a fixed interval.  Reads already ignore
// expired holds, so it only keeps the table small.
type Sweeper struct {
	holds    *HoldManager
	interval time.Duration
	logger   logrus.FieldLogger
}

// NewSweeper returns a Sweeper.  A non-positive interval disables it.
func NewSweeper(holds *HoldManager, interval time.Duration, opts ...Option) *Sweeper {
	o := buildOptions(opts)
	return &Sweeper{holds: holds, interval: interval, logger: o.logger}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.holds.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.WithError(err).Warn("hold sweeper: purge failed")
				continue
			}
			if n > 0 {
				s.logger.WithField("removed", n).Debug("hold sweeper: expired holds purged")
			}
		}
	}
}
