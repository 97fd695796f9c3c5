package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-seat-reservation/internal/middleware"
	"github.com/iliyamo/event-seat-reservation/internal/service"
)

// PublicHandler serves the unauthenticated read endpoints: the event
// details and the seat map.
type PublicHandler struct {
	Event  *service.EventConfigService
	Seats  *service.SeatRegistry
	Logger logrus.FieldLogger
}

// NewPublicHandler constructs a PublicHandler.  Both services must be non-nil.
func NewPublicHandler(event *service.EventConfigService, seats *service.SeatRegistry, logger logrus.FieldLogger) *PublicHandler {
	if event == nil || seats == nil {
		panic("nil service passed to NewPublicHandler")
	}
	return &PublicHandler{Event: event, Seats: seats, Logger: loggerOrDefault(logger)}
}

// GetEvent handles GET /api/event.  A missing configuration yields empty
// strings and a null date.
func (h *PublicHandler) GetEvent(c echo.Context) error {
	info, err := h.Event.Public(c.Request().Context())
	if err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, info)
}

// ListSeats handles GET /api/seats.  Statuses are derived for the session
// given in the sessionId query parameter or the X-Session-Id header.
func (h *PublicHandler) ListSeats(c echo.Context) error {
	seats, err := h.Seats.ListSeats(c.Request().Context(), middleware.SessionID(c))
	if err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, seats)
}
