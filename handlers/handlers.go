package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"ticketing-core/internal/status"
)

// respondError maps taxonomy kinds onto HTTP statuses. Unknown errors are
// treated as infrastructure failures.
func respondError(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	switch status.KindOf(err) {
	case status.KindValidation:
		code = http.StatusBadRequest
	case status.KindNotFound:
		code = http.StatusNotFound
	case status.KindConflict:
		code = http.StatusConflict
	case status.KindForbidden:
		code = http.StatusForbidden
	case status.KindBusy:
		code = http.StatusTooManyRequests
	}

	body := map[string]any{
		"error":  err.Error(),
		"reason": status.ReasonOf(err),
	}
	if status.Retryable(err) {
		body["retryable"] = true
	}
	return c.JSON(code, body)
}
