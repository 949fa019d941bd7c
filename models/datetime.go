package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// DateTimeLayout is the storage format for all timestamps: fixed width and
// UTC, so stored values compare correctly as strings in SQL.
const DateTimeLayout = "2006-01-02 15:04:05.000Z"

// DateTime wraps time.Time with a stable textual SQL representation.
type DateTime struct {
	time.Time
}

func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t.UTC()}
}

func NowDateTime() DateTime {
	return NewDateTime(time.Now())
}

func (d DateTime) String() string {
	return d.UTC().Format(DateTimeLayout)
}

// Value implements driver.Valuer.
func (d DateTime) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner.
func (d *DateTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		d.Time = time.Time{}
		return nil
	case time.Time:
		d.Time = v.UTC()
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into DateTime", value)
	}
}

func (d *DateTime) parse(s string) error {
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(DateTimeLayout, s)
	if err != nil {
		// fall back for values written by other tooling
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid datetime %q: %w", s, err)
		}
	}
	d.Time = t.UTC()
	return nil
}
