package models

// TicketTransfer is the append-only audit row written for every successful
// ownership transfer. History is read ordered by TransferredAt descending.
type TicketTransfer struct {
	ID            string   `db:"id" json:"id"`
	TicketID      string   `db:"ticket_id" json:"ticket_id"`
	FromUserID    string   `db:"from_user_id" json:"from_user_id"`
	ToUserID      string   `db:"to_user_id" json:"to_user_id"`
	Reason        string   `db:"reason" json:"reason,omitempty"`
	TransferredAt DateTime `db:"transferred_at" json:"transferred_at"`
}

func (TicketTransfer) TableName() string { return "ticket_transfers" }
