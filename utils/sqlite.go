package utils

import (
	"fmt"

	"github.com/pocketbase/dbx"

	_ "modernc.org/sqlite"
)

// NewSQLiteDB opens the ledger database. BEGIN IMMEDIATE transactions plus a
// busy timeout make concurrent writers queue instead of failing, and WAL
// keeps readers off the writer's back.
func NewSQLiteDB(path string) (*dbx.DB, error) {
	dsn := fmt.Sprintf(
		"%s?_txlock=immediate&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path,
	)
	db, err := dbx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	if err := db.DB().Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite at %s: %w", path, err)
	}
	return db, nil
}
