package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-seat-reservation/internal/service"
)

// EventRoute is the cached public route refreshed after an admin edit.
const EventRoute = "/api/event"

// Invalidator drops cached responses of a route.
type Invalidator interface {
	Invalidate(ctx context.Context, route string)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, string) {}

// AdminHandler serves the /api/admin endpoints.  Every method except Login
// runs behind middleware.RequireAdmin.
type AdminHandler struct {
	Auth     *service.AdminAuth
	Seats    *service.SeatRegistry
	Bookings *service.BookingEngine
	Event    *service.EventConfigService
	Cache    Invalidator
	Logger   logrus.FieldLogger
}

// NewAdminHandler constructs an AdminHandler.  A nil cache disables
// invalidation.
func NewAdminHandler(auth *service.AdminAuth, seats *service.SeatRegistry, bookings *service.BookingEngine, event *service.EventConfigService, cache Invalidator, logger logrus.FieldLogger) *AdminHandler {
	if auth == nil || seats == nil || bookings == nil || event == nil {
		panic("nil service passed to NewAdminHandler")
	}
	if cache == nil {
		cache = noopInvalidator{}
	}
	return &AdminHandler{Auth: auth, Seats: seats, Bookings: bookings, Event: event, Cache: cache, Logger: loggerOrDefault(logger)}
}

// Login handles POST /api/admin/login and returns a short lived bearer
// token for the admin secret.
func (h *AdminHandler) Login(c echo.Context) error {
	var body struct {
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	tok, err := h.Auth.Login(body.Password)
	if err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"token": tok.Token, "expiresAt": tok.Exp})
}

// ListRows handles GET /api/admin/rows.
func (h *AdminHandler) ListRows(c echo.Context) error {
	rows, err := h.Seats.ListRows(c.Request().Context())
	if err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, rows)
}

// UpdateRow handles PUT /api/admin/rows/:row.  staffReserved defaults to
// true when omitted.
func (h *AdminHandler) UpdateRow(c echo.Context) error {
	var body struct {
		StaffReserved *bool `json:"staffReserved"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	reserved := body.StaffReserved == nil || *body.StaffReserved
	row, updated, err := h.Seats.SetRowStaffReserved(c.Request().Context(), c.Param("row"), reserved)
	if err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "row": row, "updated": updated})
}

// ListSeats handles GET /api/admin/seats.  Booked seats carry the booker.
func (h *AdminHandler) ListSeats(c echo.Context) error {
	seats, err := h.Seats.AdminSeats(c.Request().Context())
	if err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, seats)
}

// UpdateSeat handles PUT /api/admin/seats/:id.  Booked seats cannot be
// changed.  A body with neither flag marks the seat staff reserved.
func (h *AdminHandler) UpdateSeat(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return badRequest(c, "invalid seat id")
	}
	var body struct {
		StaffReserved *bool `json:"staffReserved"`
		Enabled       *bool `json:"enabled"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.StaffReserved == nil && body.Enabled == nil {
		body.StaffReserved = lo.ToPtr(true)
	}
	seat, err := h.Seats.UpdateSeat(c.Request().Context(), id, service.SeatUpdate{
		StaffReserved: body.StaffReserved,
		Enabled:       body.Enabled,
	})
	if err != nil {
		return writeError(c, h.Logger, err, adminSeatStatus)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "seat": seat})
}

// Export handles GET /api/admin/export.
func (h *AdminHandler) Export(c echo.Context) error {
	exp, err := h.Bookings.Export(c.Request().Context())
	if err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, exp)
}

// GetEvent handles GET /api/admin/event.
func (h *AdminHandler) GetEvent(c echo.Context) error {
	cfg, err := h.Event.Get(c.Request().Context())
	if err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, cfg)
}

// UpdateEvent handles PUT /api/admin/event and refreshes the cached public
// event endpoint.
func (h *AdminHandler) UpdateEvent(c echo.Context) error {
	var body service.EventConfigUpdate
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()
	cfg, err := h.Event.Update(ctx, body)
	if err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	h.Cache.Invalidate(ctx, EventRoute)
	return c.JSON(http.StatusOK, cfg)
}

// Regenerate handles POST /api/admin/seats/regenerate.  Sizes missing from
// the body are taken from the stored configuration.
func (h *AdminHandler) Regenerate(c echo.Context) error {
	var body struct {
		RowCount    *int `json:"rowCount"`
		SeatsPerRow *int `json:"seatsPerRow"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()

	var (
		created int
		err     error
	)
	if body.RowCount == nil || body.SeatsPerRow == nil {
		cfg, gerr := h.Event.Get(ctx)
		if gerr != nil {
			return writeError(c, h.Logger, gerr, nil)
		}
		if body.RowCount == nil {
			body.RowCount = cfg.RowCount
		}
		if body.SeatsPerRow == nil {
			body.SeatsPerRow = cfg.SeatsPerRow
		}
	}
	if body.RowCount == nil || body.SeatsPerRow == nil {
		// the stored configuration lacks a size too; report it as such
		created, err = h.Seats.RegenerateFromConfig(ctx)
	} else {
		created, err = h.Seats.Regenerate(ctx, *body.RowCount, *body.SeatsPerRow)
	}
	if err != nil {
		return writeError(c, h.Logger, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "created": created})
}
