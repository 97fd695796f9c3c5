package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/event-seat-reservation/internal/service"
)

// statusOverrides replaces the default status of some error kinds for one
// endpoint.
type statusOverrides map[error]int

// checkoutStatus reports every business rejection of a checkout as 400.
var checkoutStatus = statusOverrides{
	service.ErrConflict: http.StatusBadRequest,
	service.ErrNotFound: http.StatusBadRequest,
}

// adminSeatStatus reports edits of booked seats as 400.
var adminSeatStatus = statusOverrides{
	service.ErrConflict: http.StatusBadRequest,
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error, overrides statusOverrides) int {
	kinds := []struct {
		kind   error
		status int
	}{
		{service.ErrValidation, http.StatusBadRequest},
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrConflict, http.StatusConflict},
		{service.ErrPrecondition, http.StatusBadRequest},
		{service.ErrUnauthorized, http.StatusUnauthorized},
		{service.ErrResourceExhausted, http.StatusInternalServerError},
		{service.ErrStorage, http.StatusInternalServerError},
	}
	for _, k := range kinds {
		if !errors.Is(err, k.kind) {
			continue
		}
		if s, ok := overrides[k.kind]; ok {
			return s
		}
		return k.status
	}
	return http.StatusInternalServerError
}

// writeError renders err as {error, code}.  Server side failures are logged
// and their cause is not exposed.
func writeError(c echo.Context, logger logrus.FieldLogger, err error, overrides statusOverrides) error {
	status := StatusFor(err, overrides)
	body := echo.Map{"error": "internal error", "code": service.CodeStorage}
	if se, ok := service.AsError(err); ok {
		body["error"] = se.Message
		body["code"] = se.Code
	}
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).Error("request failed")
	}
	return c.JSON(status, body)
}

// badRequest answers 400 for bodies and parameters that cannot be parsed.
func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": service.CodeInvalidInput})
}

func loggerOrDefault(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}
