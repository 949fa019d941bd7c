package models

const (
	TicketActive      = "active"
	TicketUsed        = "used"
	TicketCancelled   = "cancelled"
	TicketTransferred = "transferred"
)

// Ticket is one admission unit. used is terminal; transferred only records
// that ownership changed and leaves the ticket usable.
type Ticket struct {
	ID             string    `db:"id" json:"id"`
	EventID        string    `db:"event_id" json:"event_id"`
	TicketTypeID   string    `db:"ticket_type_id" json:"ticket_type_id"`
	ReservationID  string    `db:"reservation_id" json:"reservation_id"`
	UserID         *string   `db:"user_id" json:"user_id,omitempty"`
	Code           string    `db:"code" json:"code"`
	Status         string    `db:"status" json:"status"`
	IsTransferable bool      `db:"is_transferable" json:"is_transferable"`
	TransferCount  int       `db:"transfer_count" json:"transfer_count"`
	ValidatedAt    *DateTime `db:"validated_at" json:"validated_at,omitempty"`
	CreatedAt      DateTime  `db:"created_at" json:"created_at"`
}

func (Ticket) TableName() string { return "tickets" }

// Usable reports whether the ticket can still be redeemed or transferred.
func (t *Ticket) Usable() bool {
	return t.Status == TicketActive || t.Status == TicketTransferred
}

func (t *Ticket) OwnedBy(userID string) bool {
	return t.UserID != nil && *t.UserID == userID
}
