package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HoldsPlaced counts seats newly held or renewed through place requests.
	HoldsPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seating",
			Name:      "holds_placed_total",
			Help:      "Seats held by place requests, split by new or renewed",
		},
		[]string{"kind"},
	)

	// HoldConflicts counts seats a place request could not hold because another session holds them.
	HoldConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "seating",
			Name:      "hold_conflicts_total",
			Help:      "Seats rejected because another session holds them",
		},
	)

	// HoldsPurged counts expired holds removed from storage.
	HoldsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "seating",
			Name:      "holds_purged_total",
			Help:      "Expired holds removed from storage",
		},
	)

	// BookingsConfirmed counts seats booked.
	BookingsConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "seating",
			Name:      "bookings_confirmed_total",
			Help:      "Seats booked through confirmed checkouts",
		},
	)

	// BookingsCancelled counts cancelled bookings.
	BookingsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "seating",
			Name:      "bookings_cancelled_total",
			Help:      "Bookings switched to cancelled",
		},
	)

	// ConfirmRejected counts failed checkouts by error code.
	ConfirmRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seating",
			Name:      "confirm_rejected_total",
			Help:      "Checkouts rejected, by error code",
		},
		[]string{"code"},
	)

	// ConfirmDuration observes the time spent in the confirm transaction.
	ConfirmDuration = promauto.NewSummary(
		prometheus.SummaryOpts{
			Namespace:  "seating",
			Name:       "confirm_duration_seconds",
			Help:       "Time spent validating and committing a checkout",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
	)
)
