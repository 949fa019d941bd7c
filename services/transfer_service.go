package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"

	"ticketing-core/config"
	"ticketing-core/internal/status"
	"ticketing-core/models"
	"ticketing-core/monitoring"
)

// TransferService evaluates and executes ownership transfers. Validation is
// a pure read; Transfer re-runs it under the ticket's lock inside the
// transaction to close the check/use gap.
type TransferService struct {
	db     *dbx.DB
	locker Locker
	cfg    *config.Config
}

func NewTransferService(db *dbx.DB, locker Locker, cfg *config.Config) *TransferService {
	return &TransferService{db: db, locker: locker, cfg: cfg}
}

// EligibilityResult reports the first failing rule, if any.
type EligibilityResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func ineligible(reason string) *EligibilityResult {
	return &EligibilityResult{Valid: false, Reason: reason}
}

// Validate checks transfer eligibility without side effects.
func (s *TransferService) Validate(ctx context.Context, ticketID, fromUserID, toUserID string) (*EligibilityResult, error) {
	if ticketID == "" || fromUserID == "" || toUserID == "" {
		return nil, status.Validation(status.ReasonInvalidInput, "ticket_id, from_user_id and to_user_id are required")
	}
	return s.evaluate(ctx, s.db, ticketID, fromUserID, toUserID, time.Now().UTC())
}

// evaluate runs the rule chain against b, which is the live DB for the
// read-side check and the open transaction during a transfer.
func (s *TransferService) evaluate(ctx context.Context, b dbx.Builder, ticketID, fromUserID, toUserID string, now time.Time) (*EligibilityResult, error) {
	var ticket models.Ticket
	err := b.Select("*").From("tickets").Where(dbx.HashExp{"id": ticketID}).WithContext(ctx).One(&ticket)
	if errors.Is(err, sql.ErrNoRows) {
		return ineligible(status.ReasonTicketNotFound), nil
	}
	if err != nil {
		return nil, status.Infrastructure("load ticket", err)
	}

	if !ticket.IsTransferable {
		return ineligible(status.ReasonNotTransferable), nil
	}
	if !ticket.Usable() {
		if ticket.Status == models.TicketCancelled {
			return ineligible(status.ReasonTicketCancelled), nil
		}
		return ineligible(status.ReasonAlreadyUsed), nil
	}
	if !ticket.OwnedBy(fromUserID) {
		return ineligible(status.ReasonNotOwner), nil
	}
	if toUserID == fromUserID {
		return ineligible(status.ReasonSelfTransfer), nil
	}

	var event models.Event
	err = b.Select("*").From("events").Where(dbx.HashExp{"id": ticket.EventID}).WithContext(ctx).One(&event)
	if err != nil {
		return nil, status.Infrastructure("load event", err)
	}

	var recipient models.User
	err = b.Select("*").From("users").Where(dbx.HashExp{"id": toUserID}).WithContext(ctx).One(&recipient)
	if errors.Is(err, sql.ErrNoRows) {
		return ineligible(status.ReasonRecipientIneligible), nil
	}
	if err != nil {
		return nil, status.Infrastructure("load recipient", err)
	}
	if !recipient.EligibleRecipient() {
		return ineligible(status.ReasonRecipientIneligible), nil
	}
	if event.RequireIdentityCheck && !recipient.IdentityVerified {
		return ineligible(status.ReasonRecipientIneligible), nil
	}

	if !event.AllowTransfers {
		return ineligible(status.ReasonTransfersDisabled), nil
	}
	if deadline, ok := s.transferDeadline(ctx, b, &event); ok && !now.Before(deadline) {
		return ineligible(status.ReasonDeadlinePassed), nil
	}
	if s.inBlackout(&event, now) {
		return ineligible(status.ReasonBlackoutWindow), nil
	}

	maxTransfers := s.cfg.MaxTransfers
	if event.MaxTransfersPerTicket != nil {
		maxTransfers = *event.MaxTransfersPerTicket
	}
	if ticket.TransferCount >= maxTransfers {
		return ineligible(status.ReasonTransferLimit), nil
	}

	var last models.TicketTransfer
	err = b.Select("*").From("ticket_transfers").
		Where(dbx.HashExp{"ticket_id": ticketID}).
		OrderBy("transferred_at DESC").
		Limit(1).
		WithContext(ctx).
		One(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, status.Infrastructure("load last transfer", err)
	}
	if err == nil && now.Sub(last.TransferredAt.Time) < s.cfg.TransferCooldown {
		return ineligible(status.ReasonCooldownActive), nil
	}

	return &EligibilityResult{Valid: true}, nil
}

// transferDeadline resolves event.start - venue.transfer_deadline_hours.
// A venue without a configured deadline means transfers run until start.
func (s *TransferService) transferDeadline(ctx context.Context, b dbx.Builder, event *models.Event) (time.Time, bool) {
	var venue models.Venue
	err := b.Select("*").From("venues").Where(dbx.HashExp{"id": event.VenueID}).WithContext(ctx).One(&venue)
	if err != nil || venue.TransferDeadlineHours == nil {
		return time.Time{}, false
	}
	return event.StartTime.Add(-time.Duration(*venue.TransferDeadlineHours) * time.Hour), true
}

func (s *TransferService) inBlackout(event *models.Event, now time.Time) bool {
	if event.TransferBlackoutStart != nil && event.TransferBlackoutEnd != nil {
		if now.After(event.TransferBlackoutStart.Time) && now.Before(event.TransferBlackoutEnd.Time) {
			return true
		}
	}
	if start, end, ok := s.cfg.BlackoutWindow(); ok {
		if now.After(start) && now.Before(end) {
			return true
		}
	}
	return false
}

type TransferInput struct {
	TicketID   string `json:"ticket_id"`
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Reason     string `json:"reason"`
}

// Transfer moves ownership. The lock plus in-transaction re-validation
// guarantee that of two concurrent attempts only the first commits; the
// second surfaces the rule its rival's commit now violates.
func (s *TransferService) Transfer(ctx context.Context, in TransferInput) (*models.TicketTransfer, error) {
	if in.TicketID == "" || in.FromUserID == "" || in.ToUserID == "" {
		return nil, status.Validation(status.ReasonInvalidInput, "ticket_id, from_user_id and to_user_id are required")
	}

	var transfer *models.TicketTransfer
	err := withLock(ctx, s.locker, LockKeyTicket+in.TicketID, func() error {
		txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
		defer cancel()
		return s.db.TransactionalContext(txCtx, nil, func(tx *dbx.Tx) error {
			now := time.Now().UTC()
			eligibility, err := s.evaluate(txCtx, tx, in.TicketID, in.FromUserID, in.ToUserID, now)
			if err != nil {
				return err
			}
			if !eligibility.Valid {
				return transferError(eligibility.Reason)
			}

			res, err := tx.NewQuery(`
				UPDATE tickets
				SET user_id = {:to}, status = {:transferred}, transfer_count = transfer_count + 1
				WHERE id = {:id} AND user_id = {:from} AND status IN ({:active}, {:transferred})`).
				Bind(dbx.Params{
					"to":          in.ToUserID,
					"transferred": models.TicketTransferred,
					"id":          in.TicketID,
					"from":        in.FromUserID,
					"active":      models.TicketActive,
				}).Execute()
			if err != nil {
				return status.Infrastructure("apply transfer", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return status.Conflict(status.ReasonInvalidState, "ticket changed while transferring")
			}

			transfer = &models.TicketTransfer{
				ID:            uuid.NewString(),
				TicketID:      in.TicketID,
				FromUserID:    in.FromUserID,
				ToUserID:      in.ToUserID,
				Reason:        in.Reason,
				TransferredAt: models.NewDateTime(now),
			}
			_, err = tx.Insert("ticket_transfers", dbx.Params{
				"id":             transfer.ID,
				"ticket_id":      transfer.TicketID,
				"from_user_id":   transfer.FromUserID,
				"to_user_id":     transfer.ToUserID,
				"reason":         transfer.Reason,
				"transferred_at": transfer.TransferredAt,
			}).Execute()
			if err != nil {
				return status.Infrastructure("record transfer", err)
			}

			return appendOutbox(tx, "ticket", in.TicketID, models.EventTicketTransferred, map[string]any{
				"ticketId":      in.TicketID,
				"fromUserId":    in.FromUserID,
				"toUserId":      in.ToUserID,
				"transferredAt": transfer.TransferredAt,
			})
		})
	})
	if err != nil {
		monitoring.TrackTransfer(status.ReasonOf(err))
		return nil, err
	}

	monitoring.TrackTransfer("ok")
	return transfer, nil
}

// GetHistory returns the ticket's transfer audit trail, newest first.
func (s *TransferService) GetHistory(ctx context.Context, ticketID string) ([]models.TicketTransfer, error) {
	if ticketID == "" {
		return nil, status.Validation(status.ReasonInvalidInput, "ticket id is required")
	}
	history := []models.TicketTransfer{}
	err := s.db.Select("*").From("ticket_transfers").
		Where(dbx.HashExp{"ticket_id": ticketID}).
		OrderBy("transferred_at DESC").
		WithContext(ctx).
		All(&history)
	if err != nil {
		return nil, status.Infrastructure("load transfer history", err)
	}
	return history, nil
}

// transferError maps an eligibility reason to its taxonomy kind.
func transferError(reason string) error {
	switch reason {
	case status.ReasonTicketNotFound:
		return status.NotFound(reason, "ticket not found")
	case status.ReasonAlreadyUsed, status.ReasonTicketCancelled:
		return status.Conflict(reason, "ticket is no longer transferable")
	default:
		return status.Forbidden(reason, "transfer not allowed: "+reason)
	}
}
