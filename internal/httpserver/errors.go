package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ccdh/authservice/internal/service"
)

// httpError maps the service error taxonomy to HTTP statuses. Anything
// unrecognized is a 500 with no internal detail leaked.
func httpError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, service.ErrInvalidCredentials.Error())
	case errors.Is(err, service.ErrExpiredToken):
		return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
	case errors.Is(err, service.ErrInvalidToken):
		return echo.NewHTTPError(http.StatusUnauthorized, "could not validate credentials")
	case errors.Is(err, service.ErrUserInactive):
		return echo.NewHTTPError(http.StatusForbidden, "user inactive")
	case errors.Is(err, service.ErrDuplicateIdentity):
		return echo.NewHTTPError(http.StatusBadRequest, "email or username already registered")
	case errors.Is(err, service.ErrRegistrationDecided):
		return echo.NewHTTPError(http.StatusBadRequest, "registration request already decided")
	case errors.Is(err, service.ErrRegistrationExpired):
		return echo.NewHTTPError(http.StatusBadRequest, "registration request expired")
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
