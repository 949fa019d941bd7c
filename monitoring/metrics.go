package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_operations_total",
			Help: "Reservation operations by outcome",
		},
		[]string{"operation", "status"},
	)

	redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_redemptions_total",
			Help: "QR validation attempts by result reason",
		},
		[]string{"result"},
	)

	transfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_transfers_total",
			Help: "Transfer attempts by result reason",
		},
		[]string{"result"},
	)

	lockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributed_lock_acquisitions_total",
			Help: "Distributed lock acquisition outcomes",
		},
		[]string{"outcome"},
	)

	lockWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "distributed_lock_wait_seconds",
			Help:    "Time spent acquiring distributed locks",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	workerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker cycles by outcome",
		},
		[]string{"job", "status"},
	)

	workerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_cycle_duration_seconds",
			Help:    "Duration of background worker cycles",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"job"},
	)

	outboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox relay publish outcomes",
		},
		[]string{"status"},
	)

	inventoryCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_corrections_total",
			Help: "Impossible inventory states fixed by the reconciler",
		},
	)
)

func TrackReservation(operation, status string) {
	reservationOps.WithLabelValues(operation, status).Inc()
}

func TrackRedemption(result string) {
	redemptions.WithLabelValues(result).Inc()
}

func TrackTransfer(result string) {
	transfers.WithLabelValues(result).Inc()
}

func TrackLockAcquire(outcome string, wait time.Duration) {
	lockAcquisitions.WithLabelValues(outcome).Inc()
	lockWaitSeconds.Observe(wait.Seconds())
}

func TrackWorkerRun(job, status string, d time.Duration) {
	workerRuns.WithLabelValues(job, status).Inc()
	workerDuration.WithLabelValues(job).Observe(d.Seconds())
}

func TrackOutboxPublish(status string) {
	outboxPublished.WithLabelValues(status).Inc()
}

func TrackInventoryCorrection() {
	inventoryCorrections.Inc()
}
