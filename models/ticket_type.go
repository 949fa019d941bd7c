package models

import (
	"github.com/shopspring/decimal"
)

// TicketType carries the per-type capacity counters. The invariant
// available = quantity - sold - reserved holds after every committed
// transaction that touches the counters.
type TicketType struct {
	ID        string          `db:"id" json:"id"`
	EventID   string          `db:"event_id" json:"event_id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Available int             `db:"available" json:"available"`
	Reserved  int             `db:"reserved" json:"reserved"`
	Sold      int             `db:"sold" json:"sold"`
	UpdatedAt DateTime        `db:"updated_at" json:"updated_at"`
}

func (TicketType) TableName() string { return "ticket_types" }

// CountersConsistent reports whether the capacity invariant holds.
func (t *TicketType) CountersConsistent() bool {
	return t.Available == t.Quantity-t.Sold-t.Reserved &&
		t.Available >= 0 && t.Reserved >= 0 && t.Sold >= 0
}
