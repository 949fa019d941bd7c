package models

// ValidationRecord is the append-only audit row written once per redeemed
// ticket. Existence of a row is equivalent to Ticket.Status == used.
type ValidationRecord struct {
	ID          string   `db:"id" json:"id"`
	TicketID    string   `db:"ticket_id" json:"ticket_id"`
	EventID     string   `db:"event_id" json:"event_id"`
	ValidatorID string   `db:"validator_id" json:"validator_id"`
	ValidatedAt DateTime `db:"validated_at" json:"validated_at"`
}

func (ValidationRecord) TableName() string { return "validation_records" }
