package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"ticketing-core/services"
)

type ReservationHandler struct {
	inventory *services.InventoryService
}

func NewReservationHandler(inventory *services.InventoryService) *ReservationHandler {
	return &ReservationHandler{inventory: inventory}
}

// CreateReservation - hold inventory for checkout
func (h *ReservationHandler) CreateReservation(c echo.Context) error {
	var req services.CreateReservationInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	reservation, err := h.inventory.CreateReservation(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, reservation)
}

// ConfirmReservation - checkout completed, issue tickets
func (h *ReservationHandler) ConfirmReservation(c echo.Context) error {
	tickets, err := h.inventory.ConfirmReservation(c.Request().Context(), c.PathParam("id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"reservation_id": c.PathParam("id"),
		"tickets":        tickets,
	})
}

// CancelReservation - release a pending hold
func (h *ReservationHandler) CancelReservation(c echo.Context) error {
	if err := h.inventory.CancelReservation(c.Request().Context(), c.PathParam("id")); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"reservation_id": c.PathParam("id"),
		"status":         "cancelled",
	})
}

// GetReservation - read a reservation's current state
func (h *ReservationHandler) GetReservation(c echo.Context) error {
	reservation, err := h.inventory.GetReservation(c.Request().Context(), c.PathParam("id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, reservation)
}
