package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-seat-reservation/internal/middleware"
	"github.com/iliyamo/event-seat-reservation/internal/service"
)

// BookingHandler exposes checkout, listing, retrieval and cancellation of
// bookings.
type BookingHandler struct {
	Bookings *service.BookingEngine
	Logger   logrus.FieldLogger
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(bookings *service.BookingEngine, logger logrus.FieldLogger) *BookingHandler {
	if bookings == nil {
		panic("nil booking engine passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: bookings, Logger: loggerOrDefault(logger)}
}

type createBookingRequest struct {
	SeatIDs       []uint64 `json:"seatIds"`
	CustomerName  string   `json:"customerName"`
	CompanionName string   `json:"companionName"`
	Email         string   `json:"email"`
	SessionID     string   `json:"sessionId"`
}

// Create handles POST /api/bookings.  Every seat is booked or none is.
// Business rejections are 400; exhausted codes and storage failures are 500.
func (h *BookingHandler) Create(c echo.Context) error {
	var body createBookingRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.SessionID == "" {
		body.SessionID = middleware.SessionID(c)
	}
	res, err := h.Bookings.Confirm(c.Request().Context(), service.ConfirmInput{
		SeatIDs:       body.SeatIDs,
		CustomerName:  body.CustomerName,
		CompanionName: body.CompanionName,
		Email:         body.Email,
		SessionID:     body.SessionID,
	})
	if err != nil {
		return writeError(c, h.Logger, err, checkoutStatus)
	}
	return c.JSON(http.StatusOK, res)
}

// List handles GET /api/bookings.
func (h *BookingHandler) List(c echo.Context) error {
	views, err := h.Bookings.ListConfirmed(c.Request().Context())
	if err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": views})
}

type retrieveRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Retrieve handles POST /api/bookings/retrieve.  A malformed email or code
// is 400, an unknown pair is 404.
func (h *BookingHandler) Retrieve(c echo.Context) error {
	var body retrieveRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	views, err := h.Bookings.Retrieve(c.Request().Context(), body.Email, body.Code)
	if err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": views})
}

// Cancel handles DELETE /api/bookings/:id.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return badRequest(c, "invalid booking id")
	}
	if err := h.Bookings.Cancel(c.Request().Context(), id); err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}
