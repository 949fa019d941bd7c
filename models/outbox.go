package models

// Domain event types carried through the outbox.
const (
	EventReservationCreated   = "reservation.created"
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationExpired   = "reservation.expired"
	EventTicketTransferred    = "ticket.transferred"
	EventTicketValidated      = "ticket.validated"
)

// OutboxEvent is appended in the same transaction as the state change it
// describes. The relay publishes rows with a NULL published_at and marks
// them afterwards; delivery is at-least-once.
type OutboxEvent struct {
	ID            string    `db:"id" json:"id"`
	AggregateType string    `db:"aggregate_type" json:"aggregate_type"`
	AggregateID   string    `db:"aggregate_id" json:"aggregate_id"`
	EventType     string    `db:"event_type" json:"event_type"`
	Payload       string    `db:"payload" json:"payload"`
	CreatedAt     DateTime  `db:"created_at" json:"created_at"`
	PublishedAt   *DateTime `db:"published_at" json:"published_at,omitempty"`
	Attempts      int       `db:"attempts" json:"attempts"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }
