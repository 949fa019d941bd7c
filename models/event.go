package models

type Event struct {
	ID                    string    `db:"id" json:"id"`
	VenueID               string    `db:"venue_id" json:"venue_id"`
	Name                  string    `db:"name" json:"name"`
	StartTime             DateTime  `db:"start_time" json:"start_time"`
	Status                string    `db:"status" json:"status"` // upcoming, ongoing, completed
	AllowTransfers        bool      `db:"allow_transfers" json:"allow_transfers"`
	RequireIdentityCheck  bool      `db:"require_identity_check" json:"require_identity_check"`
	MaxTransfersPerTicket *int      `db:"max_transfers_per_ticket" json:"max_transfers_per_ticket,omitempty"`
	TransferBlackoutStart *DateTime `db:"transfer_blackout_start" json:"transfer_blackout_start,omitempty"`
	TransferBlackoutEnd   *DateTime `db:"transfer_blackout_end" json:"transfer_blackout_end,omitempty"`
}

func (Event) TableName() string { return "events" }

type Venue struct {
	ID                    string `db:"id" json:"id"`
	Name                  string `db:"name" json:"name"`
	TransferDeadlineHours *int   `db:"transfer_deadline_hours" json:"transfer_deadline_hours,omitempty"`
}

func (Venue) TableName() string { return "venues" }
