package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketing-core/internal/status"
	"ticketing-core/models"
)

func TestExpiryWorker_ReclaimsDueReservations(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	venueID := seedVenue(t, db, nil)
	eventID := seedEvent(t, db, venueID, defaultEventOpts())
	userID := seedUser(t, db)
	ticketTypeID := seedTicketType(t, db, eventID, 10)

	locker := newLocalLocker()
	cfg := testConfig()
	svc := NewInventoryService(db, nil, locker, cfg)

	reservation, err := svc.CreateReservation(ctx, CreateReservationInput{
		EventID:      eventID,
		TicketTypeID: ticketTypeID,
		UserID:       userID,
		Quantity:     2,
		TTL:          time.Millisecond,
	})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	worker := NewExpiryWorker(db, nil, locker, cfg)
	require.NoError(t, worker.Run(ctx))

	got := loadReservation(t, db, reservation.ID)
	assert.Equal(t, models.ReservationExpired, got.Status)
	assert.NotNil(t, got.ReleasedAt)

	tt := loadTicketType(t, db, ticketTypeID)
	assert.Equal(t, 10, tt.Available)
	assert.Equal(t, 0, tt.Reserved)

	require.Len(t, loadOutbox(t, db, models.EventReservationExpired), 1)

	// repeat run is a no-op
	require.NoError(t, worker.Run(ctx))
	tt = loadTicketType(t, db, ticketTypeID)
	assert.Equal(t, 10, tt.Available)
	require.Len(t, loadOutbox(t, db, models.EventReservationExpired), 1)
}

func TestExpiryWorker_LeavesConfirmedAlone(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	venueID := seedVenue(t, db, nil)
	eventID := seedEvent(t, db, venueID, defaultEventOpts())
	userID := seedUser(t, db)
	ticketTypeID := seedTicketType(t, db, eventID, 10)

	locker := newLocalLocker()
	cfg := testConfig()
	svc := NewInventoryService(db, nil, locker, cfg)

	reservation, err := svc.CreateReservation(ctx, CreateReservationInput{
		EventID:      eventID,
		TicketTypeID: ticketTypeID,
		UserID:       userID,
		Quantity:     1,
		TTL:          time.Millisecond,
	})
	require.NoError(t, err)
	_, err = svc.ConfirmReservation(ctx, reservation.ID)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	worker := NewExpiryWorker(db, nil, locker, cfg)
	require.NoError(t, worker.Run(ctx))

	got := loadReservation(t, db, reservation.ID)
	assert.Equal(t, models.ReservationConfirmed, got.Status)

	tt := loadTicketType(t, db, ticketTypeID)
	assert.Equal(t, 1, tt.Sold)
	assert.Equal(t, 9, tt.Available)
}

func TestReconciliationWorker_ClampsNegativeAvailability(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	venueID := seedVenue(t, db, nil)
	eventID := seedEvent(t, db, venueID, defaultEventOpts())
	ticketTypeID := seedTicketType(t, db, eventID, 10)

	_, err := db.NewQuery(`UPDATE ticket_types SET available = -3 WHERE id = {:id}`).
		Bind(dbx.Params{"id": ticketTypeID}).
		Execute()
	require.NoError(t, err)

	worker := NewReconciliationWorker(db, nil, newLocalLocker(), testConfig())
	require.NoError(t, worker.Run(ctx))

	tt := loadTicketType(t, db, ticketTypeID)
	assert.Equal(t, 0, tt.Available)
}

func TestReconciliationWorker_ExpiresStragglers(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	venueID := seedVenue(t, db, nil)
	eventID := seedEvent(t, db, venueID, defaultEventOpts())
	userID := seedUser(t, db)
	ticketTypeID := seedTicketType(t, db, eventID, 10)

	// a pending hold long past its TTL, as if the expiry worker kept missing it
	reservationID := seedReservation(t, db, ticketTypeID, eventID, userID, 2,
		models.ReservationPending, time.Now().Add(-time.Hour))
	_, err := db.NewQuery(`
		UPDATE ticket_types SET available = available - 2, reserved = reserved + 2
		WHERE id = {:id}`).
		Bind(dbx.Params{"id": ticketTypeID}).
		Execute()
	require.NoError(t, err)

	worker := NewReconciliationWorker(db, nil, newLocalLocker(), testConfig())
	require.NoError(t, worker.Run(ctx))

	got := loadReservation(t, db, reservationID)
	assert.Equal(t, models.ReservationExpired, got.Status)

	tt := loadTicketType(t, db, ticketTypeID)
	assert.Equal(t, 10, tt.Available)
	assert.Equal(t, 0, tt.Reserved)
}

func TestTrackRun_BusyMeansSkipped(t *testing.T) {
	run := trackRun("test-job", func(ctx context.Context) error {
		return status.Busy("lock held")
	})
	assert.NoError(t, run(context.Background()))

	boom := errors.New("boom")
	run = trackRun("test-job", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, run(context.Background()), boom)
}
