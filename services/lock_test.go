package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketing-core/config"
	"ticketing-core/internal/status"
)

const tokenPattern = `[A-F0-9]{32}`

func lockConfig() *config.Config {
	return &config.Config{
		LockTTL:     5 * time.Second,
		LockRetries: 1,
		LockBackoff: time.Millisecond,
	}
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	client, mock := redismock.NewClientMock()
	lock := NewRedisLock(client, lockConfig())

	mock.Regexp().ExpectSetNX("lock:ticket-type:tt1", tokenPattern, 5*time.Second).SetVal(true)

	token, err := lock.Acquire(context.Background(), LockKeyTicketType+"tt1")
	require.NoError(t, err)
	assert.Len(t, token, 32)

	mock.ExpectEval(releaseScript, []string{"lock:ticket-type:tt1"}, token).SetVal(int64(1))
	require.NoError(t, lock.Release(context.Background(), LockKeyTicketType+"tt1", token))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLock_AcquireRetriesThenSucceeds(t *testing.T) {
	client, mock := redismock.NewClientMock()
	lock := NewRedisLock(client, lockConfig())

	mock.Regexp().ExpectSetNX("lock:ticket:t1", tokenPattern, 5*time.Second).SetVal(false)
	mock.Regexp().ExpectSetNX("lock:ticket:t1", tokenPattern, 5*time.Second).SetVal(true)

	token, err := lock.Acquire(context.Background(), LockKeyTicket+"t1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLock_AcquireBusyAfterRetries(t *testing.T) {
	client, mock := redismock.NewClientMock()
	lock := NewRedisLock(client, lockConfig())

	// initial attempt plus one retry
	mock.Regexp().ExpectSetNX("lock:ticket:t1", tokenPattern, 5*time.Second).SetVal(false)
	mock.Regexp().ExpectSetNX("lock:ticket:t1", tokenPattern, 5*time.Second).SetVal(false)

	_, err := lock.Acquire(context.Background(), LockKeyTicket+"t1")
	require.Error(t, err)
	assert.Equal(t, status.KindBusy, status.KindOf(err))
	assert.True(t, status.Retryable(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLock_ReleaseWrongTokenIsNoop(t *testing.T) {
	client, mock := redismock.NewClientMock()
	lock := NewRedisLock(client, lockConfig())

	mock.ExpectEval(releaseScript, []string{"lock:ticket:t1"}, "stale-token").SetVal(int64(0))

	require.NoError(t, lock.Release(context.Background(), LockKeyTicket+"t1", "stale-token"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	locker := newLocalLocker()

	err := withLock(context.Background(), locker, "k", func() error {
		return status.Conflict(status.ReasonInvalidState, "boom")
	})
	require.Error(t, err)

	// a failed body must not leave the key held
	done := make(chan struct{})
	go func() {
		defer close(done)
		token, err := locker.Acquire(context.Background(), "k")
		assert.NoError(t, err)
		locker.Release(context.Background(), "k", token)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock was not released")
	}
}
