package services

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/stretchr/testify/require"

	"ticketing-core/config"
	"ticketing-core/migrations"
	"ticketing-core/models"
	"ticketing-core/utils"
)

func testConfig() *config.Config {
	return &config.Config{
		LockTTL:           10 * time.Second,
		LockRetries:       3,
		LockBackoff:       10 * time.Millisecond,
		TxTimeout:         5 * time.Second,
		ReservationTTL:    10 * time.Minute,
		ExpiryInterval:    30 * time.Second,
		ReconcileInterval: 5 * time.Minute,
		WorkerBatchSize:   100,
		RelayInterval:     time.Second,
		RelayBatch:        50,
		TransferCooldown:  time.Hour,
		MaxTransfers:      3,
		QRSecretHex:       strings.Repeat("ab", 32),
		QRImageSize:       128,
	}
}

func newTestDB(t *testing.T) *dbx.DB {
	t.Helper()
	db, err := utils.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Apply(db))
	return db
}

// localLocker is an in-process Locker standing in for Redis: one mutex per
// key, blocking acquire. It serializes the same way the real lock does,
// minus the network.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *localLocker) Acquire(_ context.Context, key string) (string, error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return "local", nil
}

func (l *localLocker) Release(_ context.Context, key, _ string) error {
	l.mu.Lock()
	m := l.locks[key]
	l.mu.Unlock()
	if m != nil {
		m.Unlock()
	}
	return nil
}

func seedVenue(t *testing.T, db *dbx.DB, deadlineHours *int) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Insert("venues", dbx.Params{
		"id":                      id,
		"name":                    "Test Arena",
		"transfer_deadline_hours": deadlineHours,
	}).Execute()
	require.NoError(t, err)
	return id
}

type eventOpts struct {
	startTime             time.Time
	allowTransfers        bool
	requireIdentityCheck  bool
	maxTransfersPerTicket *int
	blackoutStart         *time.Time
	blackoutEnd           *time.Time
}

func defaultEventOpts() eventOpts {
	return eventOpts{
		startTime:      time.Now().Add(30 * 24 * time.Hour),
		allowTransfers: true,
	}
}

func seedEvent(t *testing.T, db *dbx.DB, venueID string, opts eventOpts) string {
	t.Helper()
	id := uuid.NewString()
	params := dbx.Params{
		"id":                       id,
		"venue_id":                 venueID,
		"name":                     "Test Concert",
		"start_time":               models.NewDateTime(opts.startTime),
		"status":                   "upcoming",
		"allow_transfers":          opts.allowTransfers,
		"require_identity_check":   opts.requireIdentityCheck,
		"max_transfers_per_ticket": opts.maxTransfersPerTicket,
	}
	if opts.blackoutStart != nil {
		params["transfer_blackout_start"] = models.NewDateTime(*opts.blackoutStart)
	}
	if opts.blackoutEnd != nil {
		params["transfer_blackout_end"] = models.NewDateTime(*opts.blackoutEnd)
	}
	_, err := db.Insert("events", params).Execute()
	require.NoError(t, err)
	return id
}

func seedUser(t *testing.T, db *dbx.DB, mutate ...func(dbx.Params)) string {
	t.Helper()
	id := uuid.NewString()
	params := dbx.Params{
		"id":                    id,
		"email":                 id + "@example.com",
		"status":                models.UserStatusActive,
		"email_verified":        true,
		"identity_verified":     false,
		"can_receive_transfers": true,
	}
	for _, m := range mutate {
		m(params)
	}
	_, err := db.Insert("users", params).Execute()
	require.NoError(t, err)
	return id
}

func seedTicketType(t *testing.T, db *dbx.DB, eventID string, quantity int) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Insert("ticket_types", dbx.Params{
		"id":         id,
		"event_id":   eventID,
		"name":       "General Admission",
		"price":      "45.50",
		"quantity":   quantity,
		"available":  quantity,
		"reserved":   0,
		"sold":       0,
		"updated_at": models.NowDateTime(),
	}).Execute()
	require.NoError(t, err)
	return id
}

func seedReservation(t *testing.T, db *dbx.DB, ticketTypeID, eventID, userID string, quantity int, status string, expiresAt time.Time) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Insert("reservations", dbx.Params{
		"id":             id,
		"ticket_type_id": ticketTypeID,
		"event_id":       eventID,
		"user_id":        userID,
		"quantity":       quantity,
		"total":          "45.50",
		"status":         status,
		"expires_at":     models.NewDateTime(expiresAt),
		"created_at":     models.NowDateTime(),
	}).Execute()
	require.NoError(t, err)
	return id
}

func seedTicket(t *testing.T, db *dbx.DB, eventID, ticketTypeID, userID string, mutate ...func(dbx.Params)) string {
	t.Helper()

	reservationID := seedReservation(t, db, ticketTypeID, eventID, userID, 1,
		models.ReservationConfirmed, time.Now().Add(time.Hour))

	id := uuid.NewString()
	code, err := utils.GenerateCode(8)
	require.NoError(t, err)
	params := dbx.Params{
		"id":              id,
		"event_id":        eventID,
		"ticket_type_id":  ticketTypeID,
		"reservation_id":  reservationID,
		"user_id":         userID,
		"code":            code,
		"status":          models.TicketActive,
		"is_transferable": true,
		"transfer_count":  0,
		"created_at":      models.NowDateTime(),
	}
	for _, m := range mutate {
		m(params)
	}
	_, err = db.Insert("tickets", params).Execute()
	require.NoError(t, err)
	return id
}

func loadTicketType(t *testing.T, db *dbx.DB, id string) *models.TicketType {
	t.Helper()
	var tt models.TicketType
	require.NoError(t, db.Select("*").From("ticket_types").Where(dbx.HashExp{"id": id}).One(&tt))
	return &tt
}

func loadTicket(t *testing.T, db *dbx.DB, id string) *models.Ticket {
	t.Helper()
	var ticket models.Ticket
	require.NoError(t, db.Select("*").From("tickets").Where(dbx.HashExp{"id": id}).One(&ticket))
	return &ticket
}

func loadReservation(t *testing.T, db *dbx.DB, id string) *models.Reservation {
	t.Helper()
	var r models.Reservation
	require.NoError(t, db.Select("*").From("reservations").Where(dbx.HashExp{"id": id}).One(&r))
	return &r
}

func loadOutbox(t *testing.T, db *dbx.DB, eventType string) []models.OutboxEvent {
	t.Helper()
	events := []models.OutboxEvent{}
	require.NoError(t, db.Select("*").From("outbox_events").
		Where(dbx.HashExp{"event_type": eventType}).
		OrderBy("created_at ASC").
		All(&events))
	return events
}
