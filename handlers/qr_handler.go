package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"ticketing-core/services"
)

type QRHandler struct {
	qr *services.QRService
}

func NewQRHandler(qr *services.QRService) *QRHandler {
	return &QRHandler{qr: qr}
}

// GenerateToken - rotate the ticket's QR token
func (h *QRHandler) GenerateToken(c echo.Context) error {
	bundle, err := h.qr.GenerateToken(c.Request().Context(), c.PathParam("id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, bundle)
}

// ValidateToken - redeem a scanned token for entry
func (h *QRHandler) ValidateToken(c echo.Context) error {
	var req services.ValidateTokenInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result, err := h.qr.ValidateToken(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}
