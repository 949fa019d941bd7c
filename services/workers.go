package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/redis/go-redis/v9"

	"ticketing-core/config"
	"ticketing-core/internal/status"
	"ticketing-core/models"
	"ticketing-core/monitoring"
)

// ExpiryWorker reclaims pending reservations whose TTL elapsed. The job lock
// keeps it to one instance cluster-wide; the guarded transition keeps a
// repeated or concurrent run from double-releasing inventory.
type ExpiryWorker struct {
	db     *dbx.DB
	redis  *redis.Client
	locker Locker
	cfg    *config.Config
}

func NewExpiryWorker(db *dbx.DB, redisClient *redis.Client, locker Locker, cfg *config.Config) *ExpiryWorker {
	return &ExpiryWorker{db: db, redis: redisClient, locker: locker, cfg: cfg}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	return withLock(ctx, w.locker, LockKeyExpiryJob, func() error {
		return expirePendingBatch(ctx, w.db, w.redis, w.cfg)
	})
}

// expirePendingBatch expires one batch of due reservations, one bounded
// transaction per reservation so a bad row cannot poison the rest.
func expirePendingBatch(ctx context.Context, db *dbx.DB, redisClient *redis.Client, cfg *config.Config) error {
	var due []models.Reservation
	err := db.Select("*").From("reservations").
		Where(dbx.HashExp{"status": models.ReservationPending}).
		AndWhere(dbx.NewExp("expires_at < {:now}", dbx.Params{"now": models.NowDateTime()})).
		OrderBy("expires_at ASC").
		Limit(int64(cfg.WorkerBatchSize)).
		All(&due)
	if err != nil {
		return status.Infrastructure("load due reservations", err)
	}

	expired := 0
	for i := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r := &due[i]
		txCtx, cancel := context.WithTimeout(ctx, cfg.TxTimeout)
		err := db.TransactionalContext(txCtx, nil, func(tx *dbx.Tx) error {
			return releaseReservation(tx, r, models.ReservationExpired, models.EventReservationExpired)
		})
		cancel()
		if err != nil {
			// a concurrent confirm/cancel is a legitimate no-op
			if status.KindOf(err) == status.KindConflict {
				continue
			}
			slog.Error("expire reservation failed", "reservation_id", r.ID, "error", err)
			continue
		}
		expired++
		if redisClient != nil {
			redisClient.Del(ctx, holdCachePrefix+r.ID)
		}
	}

	if expired > 0 {
		slog.Info("expired reservations reclaimed", "count", expired)
	}
	return nil
}

// ReconciliationWorker removes impossible states: negative availability,
// stale hold-cache entries and pending reservations the expiry worker
// missed. It never invents inventory.
type ReconciliationWorker struct {
	db     *dbx.DB
	redis  *redis.Client
	locker Locker
	cfg    *config.Config
}

func NewReconciliationWorker(db *dbx.DB, redisClient *redis.Client, locker Locker, cfg *config.Config) *ReconciliationWorker {
	return &ReconciliationWorker{db: db, redis: redisClient, locker: locker, cfg: cfg}
}

func (w *ReconciliationWorker) Run(ctx context.Context) error {
	return withLock(ctx, w.locker, LockKeyReconcileJob, func() error {
		w.clampNegativeAvailability(ctx)

		if err := expirePendingBatch(ctx, w.db, w.redis, w.cfg); err != nil {
			slog.Error("reconcile straggler expiry failed", "error", err)
		}

		w.sweepHoldCache(ctx)
		return nil
	})
}

func (w *ReconciliationWorker) clampNegativeAvailability(ctx context.Context) {
	res, err := w.db.NewQuery(`
		UPDATE ticket_types SET available = 0, updated_at = {:now}
		WHERE available < 0`).
		Bind(dbx.Params{"now": models.NowDateTime()}).
		WithContext(ctx).
		Execute()
	if err != nil {
		slog.Error("availability clamp failed", "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Warn("clamped negative availability", "ticket_types", n)
		for i := int64(0); i < n; i++ {
			monitoring.TrackInventoryCorrection()
		}
	}
}

// sweepHoldCache drops cache entries whose reservation vanished or is no
// longer pending.
func (w *ReconciliationWorker) sweepHoldCache(ctx context.Context) {
	if w.redis == nil {
		return
	}
	keys, err := w.redis.Keys(ctx, holdCachePrefix+"*").Result()
	if err != nil {
		slog.Error("hold cache scan failed", "error", err)
		return
	}

	for _, key := range keys {
		id := strings.TrimPrefix(key, holdCachePrefix)

		var st string
		err := w.db.NewQuery(`SELECT status FROM reservations WHERE id = {:id}`).
			Bind(dbx.Params{"id": id}).
			WithContext(ctx).
			Row(&st)
		if err == nil && st == models.ReservationPending {
			continue
		}

		if derr := w.redis.Del(ctx, key).Err(); derr != nil {
			slog.Error("hold cache delete failed", "key", key, "error", derr)
			continue
		}
		slog.Info("removed stale hold cache entry", "reservation_id", id)
	}
}

// trackRun wraps a worker func with run metrics for the scheduler.
func trackRun(name string, run func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		started := time.Now()
		err := run(ctx)
		switch {
		case err == nil:
			monitoring.TrackWorkerRun(name, "ok", time.Since(started))
		case status.KindOf(err) == status.KindBusy:
			// another instance holds the job lock; skip the cycle
			monitoring.TrackWorkerRun(name, "skipped", time.Since(started))
			return nil
		default:
			monitoring.TrackWorkerRun(name, "error", time.Since(started))
		}
		return err
	}
}
