package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"ticketing-core/services"
)

type TransferHandler struct {
	transfers *services.TransferService
}

func NewTransferHandler(transfers *services.TransferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

// CheckEligibility - dry-run a transfer without side effects
func (h *TransferHandler) CheckEligibility(c echo.Context) error {
	var req struct {
		FromUserID string `json:"from_user_id"`
		ToUserID   string `json:"to_user_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result, err := h.transfers.Validate(c.Request().Context(), c.PathParam("id"), req.FromUserID, req.ToUserID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// Transfer - execute an ownership transfer
func (h *TransferHandler) Transfer(c echo.Context) error {
	var req services.TransferInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	req.TicketID = c.PathParam("id")

	transfer, err := h.transfers.Transfer(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, transfer)
}

// GetHistory - transfer audit trail, newest first
func (h *TransferHandler) GetHistory(c echo.Context) error {
	history, err := h.transfers.GetHistory(c.Request().Context(), c.PathParam("id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, history)
}
