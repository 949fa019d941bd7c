package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReservationPending   = "pending"
	ReservationConfirmed = "confirmed"
	ReservationExpired   = "expired"
	ReservationCancelled = "cancelled"
)

// Reservation is a time-bounded hold against a ticket type's inventory.
// expired and cancelled are terminal.
type Reservation struct {
	ID           string          `db:"id" json:"id"`
	TicketTypeID string          `db:"ticket_type_id" json:"ticket_type_id"`
	EventID      string          `db:"event_id" json:"event_id"`
	UserID       string          `db:"user_id" json:"user_id"`
	Quantity     int             `db:"quantity" json:"quantity"`
	Total        decimal.Decimal `db:"total" json:"total"`
	Status       string          `db:"status" json:"status"`
	ExpiresAt    DateTime        `db:"expires_at" json:"expires_at"`
	ReleasedAt   *DateTime       `db:"released_at" json:"released_at,omitempty"`
	CreatedAt    DateTime        `db:"created_at" json:"created_at"`
}

func (Reservation) TableName() string { return "reservations" }

func (r *Reservation) Terminal() bool {
	return r.Status == ReservationExpired || r.Status == ReservationCancelled
}

func (r *Reservation) ExpiredBy(now time.Time) bool {
	return r.Status == ReservationPending && r.ExpiresAt.Before(now)
}
