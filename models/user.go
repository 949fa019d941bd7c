package models

const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

type User struct {
	ID                  string `db:"id" json:"id"`
	Email               string `db:"email" json:"email"`
	Status              string `db:"status" json:"status"`
	EmailVerified       bool   `db:"email_verified" json:"email_verified"`
	IdentityVerified    bool   `db:"identity_verified" json:"identity_verified"`
	CanReceiveTransfers bool   `db:"can_receive_transfers" json:"can_receive_transfers"`
}

func (User) TableName() string { return "users" }

// EligibleRecipient reports whether the user can receive a ticket transfer,
// before any event-level identity requirement is applied.
func (u *User) EligibleRecipient() bool {
	return u.Status == UserStatusActive && u.EmailVerified && u.CanReceiveTransfers
}
