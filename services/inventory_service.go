package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"ticketing-core/config"
	"ticketing-core/internal/status"
	"ticketing-core/models"
	"ticketing-core/monitoring"
	"ticketing-core/utils"
)

// holdCachePrefix keys the redis entries that mirror pending reservations.
// They exist so the reconciler can spot stale holds; the ledger is the
// source of truth.
const holdCachePrefix = "reservation:hold:"

// InventoryService owns the Reservation lifecycle and the reserved/available
// counters of every ticket type. All counter mutations run inside a locked,
// bounded transaction.
type InventoryService struct {
	db     *dbx.DB
	redis  *redis.Client
	locker Locker
	cfg    *config.Config
}

func NewInventoryService(db *dbx.DB, redisClient *redis.Client, locker Locker, cfg *config.Config) *InventoryService {
	return &InventoryService{
		db:     db,
		redis:  redisClient,
		locker: locker,
		cfg:    cfg,
	}
}

type CreateReservationInput struct {
	EventID      string `json:"event_id"`
	TicketTypeID string `json:"ticket_type_id"`
	UserID       string `json:"user_id"`
	Quantity     int    `json:"quantity"`
	// TTL overrides the configured reservation TTL when positive.
	TTL time.Duration `json:"-"`
}

func (in *CreateReservationInput) validate() error {
	if in.EventID == "" || in.TicketTypeID == "" || in.UserID == "" {
		return status.Validation(status.ReasonInvalidInput, "event_id, ticket_type_id and user_id are required")
	}
	if in.Quantity <= 0 {
		return status.Validation(status.ReasonInvalidInput, "quantity must be positive")
	}
	return nil
}

// CreateReservation holds quantity units of a ticket type. It fails with a
// CapacityExceeded conflict when fewer than quantity units are available;
// the counter decrement and the reservation row commit atomically.
func (s *InventoryService) CreateReservation(ctx context.Context, in CreateReservationInput) (*models.Reservation, error) {
	if err := in.validate(); err != nil {
		monitoring.TrackReservation("create", "invalid")
		return nil, err
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.cfg.ReservationTTL
	}

	var reservation *models.Reservation
	err := withLock(ctx, s.locker, LockKeyTicketType+in.TicketTypeID, func() error {
		return s.transact(ctx, func(tx *dbx.Tx) error {
			var tt models.TicketType
			err := tx.Select("*").From("ticket_types").
				Where(dbx.HashExp{"id": in.TicketTypeID, "event_id": in.EventID}).
				One(&tt)
			if errors.Is(err, sql.ErrNoRows) {
				return status.NotFound(status.ReasonInvalidInput, "ticket type not found")
			}
			if err != nil {
				return status.Infrastructure("load ticket type", err)
			}

			res, err := tx.NewQuery(`
				UPDATE ticket_types
				SET available = available - {:q}, reserved = reserved + {:q}, updated_at = {:now}
				WHERE id = {:id} AND available >= {:q}`).
				Bind(dbx.Params{"q": in.Quantity, "id": in.TicketTypeID, "now": models.NowDateTime()}).
				Execute()
			if err != nil {
				return status.Infrastructure("reserve inventory", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return status.Conflict(status.ReasonCapacityExceeded,
					fmt.Sprintf("only %d of %d requested units available", tt.Available, in.Quantity))
			}

			now := models.NowDateTime()
			reservation = &models.Reservation{
				ID:           uuid.NewString(),
				TicketTypeID: in.TicketTypeID,
				EventID:      in.EventID,
				UserID:       in.UserID,
				Quantity:     in.Quantity,
				Total:        tt.Price.Mul(decimal.NewFromInt(int64(in.Quantity))),
				Status:       models.ReservationPending,
				ExpiresAt:    models.NewDateTime(now.Add(ttl)),
				CreatedAt:    now,
			}
			_, err = tx.Insert("reservations", dbx.Params{
				"id":             reservation.ID,
				"ticket_type_id": reservation.TicketTypeID,
				"event_id":       reservation.EventID,
				"user_id":        reservation.UserID,
				"quantity":       reservation.Quantity,
				"total":          reservation.Total,
				"status":         reservation.Status,
				"expires_at":     reservation.ExpiresAt,
				"created_at":     reservation.CreatedAt,
			}).Execute()
			if err != nil {
				return status.Infrastructure("insert reservation", err)
			}

			return appendOutbox(tx, "reservation", reservation.ID, models.EventReservationCreated, map[string]any{
				"reservationId": reservation.ID,
				"userId":        reservation.UserID,
				"quantity":      reservation.Quantity,
				"ticketTypeId":  reservation.TicketTypeID,
				"expiresAt":     reservation.ExpiresAt,
			})
		})
	})
	if err != nil {
		monitoring.TrackReservation("create", status.ReasonOf(err))
		return nil, err
	}

	s.cacheHold(ctx, reservation, ttl)
	monitoring.TrackReservation("create", "ok")
	return reservation, nil
}

// ConfirmReservation completes checkout: the pending hold becomes confirmed,
// held units move from reserved to sold (available is untouched, the
// inventory was already committed) and one active ticket per unit is issued
// to the reservation's user.
func (s *InventoryService) ConfirmReservation(ctx context.Context, id string) ([]models.Ticket, error) {
	reservation, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	var issued []models.Ticket
	err = withLock(ctx, s.locker, LockKeyTicketType+reservation.TicketTypeID, func() error {
		return s.transact(ctx, func(tx *dbx.Tx) error {
			res, err := tx.NewQuery(`
				UPDATE reservations SET status = {:to}
				WHERE id = {:id} AND status = {:from}`).
				Bind(dbx.Params{
					"to":   models.ReservationConfirmed,
					"id":   id,
					"from": models.ReservationPending,
				}).Execute()
			if err != nil {
				return status.Infrastructure("confirm reservation", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return status.Conflict(status.ReasonInvalidState,
					"reservation is not pending")
			}

			_, err = tx.NewQuery(`
				UPDATE ticket_types
				SET reserved = reserved - {:q}, sold = sold + {:q}, updated_at = {:now}
				WHERE id = {:id}`).
				Bind(dbx.Params{
					"q":   reservation.Quantity,
					"id":  reservation.TicketTypeID,
					"now": models.NowDateTime(),
				}).Execute()
			if err != nil {
				return status.Infrastructure("settle counters", err)
			}

			issued = issued[:0]
			for i := 0; i < reservation.Quantity; i++ {
				ticket, err := s.issueTicket(tx, reservation)
				if err != nil {
					return err
				}
				issued = append(issued, *ticket)
			}

			return appendOutbox(tx, "reservation", id, models.EventReservationConfirmed, map[string]any{
				"reservationId": id,
				"userId":        reservation.UserID,
				"quantity":      reservation.Quantity,
				"ticketTypeId":  reservation.TicketTypeID,
			})
		})
	})
	if err != nil {
		monitoring.TrackReservation("confirm", status.ReasonOf(err))
		return nil, err
	}

	s.dropHold(ctx, id)
	monitoring.TrackReservation("confirm", "ok")
	return issued, nil
}

// CancelReservation releases a pending hold back to available inventory.
func (s *InventoryService) CancelReservation(ctx context.Context, id string) error {
	reservation, err := s.GetReservation(ctx, id)
	if err != nil {
		return err
	}

	err = withLock(ctx, s.locker, LockKeyTicketType+reservation.TicketTypeID, func() error {
		return s.transact(ctx, func(tx *dbx.Tx) error {
			return releaseReservation(tx, reservation, models.ReservationCancelled, models.EventReservationCancelled)
		})
	})
	if err != nil {
		monitoring.TrackReservation("cancel", status.ReasonOf(err))
		return err
	}

	s.dropHold(ctx, id)
	monitoring.TrackReservation("cancel", "ok")
	return nil
}

func (s *InventoryService) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	if id == "" {
		return nil, status.Validation(status.ReasonInvalidInput, "reservation id is required")
	}
	var r models.Reservation
	err := s.db.Select("*").From("reservations").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&r)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.NotFound(status.ReasonInvalidInput, "reservation not found")
	}
	if err != nil {
		return nil, status.Infrastructure("load reservation", err)
	}
	return &r, nil
}

func (s *InventoryService) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	var tt models.TicketType
	err := s.db.Select("*").From("ticket_types").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&tt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.NotFound(status.ReasonInvalidInput, "ticket type not found")
	}
	if err != nil {
		return nil, status.Infrastructure("load ticket type", err)
	}
	return &tt, nil
}

func (s *InventoryService) issueTicket(tx dbx.Builder, r *models.Reservation) (*models.Ticket, error) {
	code, err := utils.GenerateCode(8)
	if err != nil {
		return nil, status.Infrastructure("generate ticket code", err)
	}
	ticket := &models.Ticket{
		ID:             uuid.NewString(),
		EventID:        r.EventID,
		TicketTypeID:   r.TicketTypeID,
		ReservationID:  r.ID,
		UserID:         &r.UserID,
		Code:           code,
		Status:         models.TicketActive,
		IsTransferable: true,
		CreatedAt:      models.NowDateTime(),
	}
	_, err = tx.Insert("tickets", dbx.Params{
		"id":              ticket.ID,
		"event_id":        ticket.EventID,
		"ticket_type_id":  ticket.TicketTypeID,
		"reservation_id":  ticket.ReservationID,
		"user_id":         r.UserID,
		"code":            ticket.Code,
		"status":          ticket.Status,
		"is_transferable": ticket.IsTransferable,
		"transfer_count":  0,
		"created_at":      ticket.CreatedAt,
	}).Execute()
	if err != nil {
		return nil, status.Infrastructure("issue ticket", err)
	}
	return ticket, nil
}

// releaseReservation performs the guarded pending -> terminal transition and
// gives the held units back. Shared by cancellation and the expiry worker;
// the status guard makes repeated runs no-ops.
func releaseReservation(tx dbx.Builder, r *models.Reservation, toStatus, eventType string) error {
	res, err := tx.NewQuery(`
		UPDATE reservations SET status = {:to}, released_at = {:now}
		WHERE id = {:id} AND status = {:from}`).
		Bind(dbx.Params{
			"to":   toStatus,
			"now":  models.NowDateTime(),
			"id":   r.ID,
			"from": models.ReservationPending,
		}).Execute()
	if err != nil {
		return status.Infrastructure("transition reservation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.Conflict(status.ReasonInvalidState, "reservation is not pending")
	}

	_, err = tx.NewQuery(`
		UPDATE ticket_types
		SET available = available + {:q}, reserved = reserved - {:q}, updated_at = {:now}
		WHERE id = {:id}`).
		Bind(dbx.Params{"q": r.Quantity, "id": r.TicketTypeID, "now": models.NowDateTime()}).
		Execute()
	if err != nil {
		return status.Infrastructure("release inventory", err)
	}

	return appendOutbox(tx, "reservation", r.ID, eventType, map[string]any{
		"reservationId": r.ID,
		"userId":        r.UserID,
		"quantity":      r.Quantity,
		"ticketTypeId":  r.TicketTypeID,
	})
}

// transact runs fn in one transaction bounded by the configured statement
// timeout, which is shorter than the lock TTL so a stuck transaction cannot
// outlive its lock.
func (s *InventoryService) transact(ctx context.Context, fn func(tx *dbx.Tx) error) error {
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()
	return s.db.TransactionalContext(txCtx, nil, fn)
}

func (s *InventoryService) cacheHold(ctx context.Context, r *models.Reservation, ttl time.Duration) {
	if s.redis == nil {
		return
	}
	err := s.redis.Set(ctx, holdCachePrefix+r.ID, r.TicketTypeID, ttl+time.Minute).Err()
	if err != nil {
		// cache is advisory only
		slog.Warn("hold cache write failed", "reservation_id", r.ID, "error", err)
	}
}

func (s *InventoryService) dropHold(ctx context.Context, id string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, holdCachePrefix+id).Err(); err != nil {
		slog.Warn("hold cache delete failed", "reservation_id", id, "error", err)
	}
}
