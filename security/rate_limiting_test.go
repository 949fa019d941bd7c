package security

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketing-core/config"
)

func limiterConfig() *config.Config {
	return &config.Config{ScanRateLimit: 2, ScanRateWindow: time.Minute}
}

func invoke(t *testing.T, mw echo.MiddlewareFunc) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/tickets/validate", nil)
	req.Header.Set("X-Validator-Id", "gate-7")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := mw(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	return rec, called
}

func TestScanRateLimit_AllowsUnderLimit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(client, limiterConfig())
	mw := limiter.ScanRateLimit()

	mock.ExpectIncr("ratelimit:scan:gate-7").SetVal(1)
	mock.ExpectExpire("ratelimit:scan:gate-7", time.Minute).SetVal(true)

	rec, called := invoke(t, mw)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRateLimit_BlocksOverLimit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(client, limiterConfig())
	mw := limiter.ScanRateLimit()

	mock.ExpectIncr("ratelimit:scan:gate-7").SetVal(3)

	rec, called := invoke(t, mw)
	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRateLimit_LimiterOutagePassesThrough(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(client, limiterConfig())
	mw := limiter.ScanRateLimit()

	mock.ExpectIncr("ratelimit:scan:gate-7").SetErr(errors.New("redis down"))

	_, called := invoke(t, mw)
	assert.True(t, called)
}
