// Package migrations holds the ordered schema statements and applies the
// ones a database has not seen yet.
package migrations

import (
	"fmt"

	"github.com/pocketbase/dbx"
)

type migration struct {
	name string
	stmt string
}

var all = []migration{
	{"1_create_venues", `
		CREATE TABLE IF NOT EXISTS venues (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			transfer_deadline_hours INTEGER
		)`},
	{"2_create_events", `
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			venue_id TEXT NOT NULL REFERENCES venues(id),
			name TEXT NOT NULL,
			start_time TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'upcoming',
			allow_transfers BOOLEAN NOT NULL DEFAULT TRUE,
			require_identity_check BOOLEAN NOT NULL DEFAULT FALSE,
			max_transfers_per_ticket INTEGER,
			transfer_blackout_start TEXT,
			transfer_blackout_end TEXT
		)`},
	{"3_create_users", `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			identity_verified BOOLEAN NOT NULL DEFAULT FALSE,
			can_receive_transfers BOOLEAN NOT NULL DEFAULT TRUE
		)`},
	{"4_create_ticket_types", `
		CREATE TABLE IF NOT EXISTS ticket_types (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL REFERENCES events(id),
			name TEXT NOT NULL,
			price TEXT NOT NULL DEFAULT '0',
			quantity INTEGER NOT NULL CHECK (quantity >= 0),
			available INTEGER NOT NULL,
			reserved INTEGER NOT NULL DEFAULT 0,
			sold INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		)`},
	{"5_create_reservations", `
		CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			ticket_type_id TEXT NOT NULL REFERENCES ticket_types(id),
			event_id TEXT NOT NULL REFERENCES events(id),
			user_id TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			total TEXT NOT NULL DEFAULT '0',
			status TEXT NOT NULL DEFAULT 'pending',
			expires_at TEXT NOT NULL,
			released_at TEXT,
			created_at TEXT NOT NULL
		)`},
	{"6_index_reservations_due", `
		CREATE INDEX IF NOT EXISTS idx_reservations_status_expires
		ON reservations (status, expires_at)`},
	{"7_create_tickets", `
		CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL REFERENCES events(id),
			ticket_type_id TEXT NOT NULL REFERENCES ticket_types(id),
			reservation_id TEXT NOT NULL REFERENCES reservations(id),
			user_id TEXT,
			code TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'active',
			is_transferable BOOLEAN NOT NULL DEFAULT TRUE,
			transfer_count INTEGER NOT NULL DEFAULT 0,
			validated_at TEXT,
			created_at TEXT NOT NULL
		)`},
	{"8_create_ticket_transfers", `
		CREATE TABLE IF NOT EXISTS ticket_transfers (
			id TEXT PRIMARY KEY,
			ticket_id TEXT NOT NULL REFERENCES tickets(id),
			from_user_id TEXT NOT NULL,
			to_user_id TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			transferred_at TEXT NOT NULL
		)`},
	{"9_index_ticket_transfers_history", `
		CREATE INDEX IF NOT EXISTS idx_ticket_transfers_ticket
		ON ticket_transfers (ticket_id, transferred_at DESC)`},
	{"10_create_validation_records", `
		CREATE TABLE IF NOT EXISTS validation_records (
			id TEXT PRIMARY KEY,
			ticket_id TEXT NOT NULL UNIQUE REFERENCES tickets(id),
			event_id TEXT NOT NULL REFERENCES events(id),
			validator_id TEXT NOT NULL DEFAULT '',
			validated_at TEXT NOT NULL
		)`},
	{"11_create_outbox_events", `
		CREATE TABLE IF NOT EXISTS outbox_events (
			id TEXT PRIMARY KEY,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL,
			published_at TEXT,
			attempts INTEGER NOT NULL DEFAULT 0
		)`},
	{"12_index_outbox_unpublished", `
		CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
		ON outbox_events (created_at) WHERE published_at IS NULL`},
}

// Apply runs all pending migrations in order. Safe to call on every start.
func Apply(db *dbx.DB) error {
	_, err := db.NewQuery(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`).Execute()
	if err != nil {
		return fmt.Errorf("init schema_migrations: %w", err)
	}

	var done []string
	if err := db.NewQuery(`SELECT name FROM schema_migrations`).Column(&done); err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	applied := make(map[string]bool, len(done))
	for _, name := range done {
		applied[name] = true
	}

	for _, m := range all {
		if applied[m.name] {
			continue
		}
		if _, err := db.NewQuery(m.stmt).Execute(); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		_, err := db.Insert("schema_migrations", dbx.Params{"name": m.name}).Execute()
		if err != nil {
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
	}
	return nil
}
