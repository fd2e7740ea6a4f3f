package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	mwauth "github.com/ccdh/authservice/internal/middleware/auth"
	"github.com/ccdh/authservice/internal/service"
)

type RegistrationsHandler struct {
	Auth *service.AuthService
}

func (h *RegistrationsHandler) Pending(c echo.Context) error {
	reqs, err := h.Auth.PendingRegistrations(c.Request().Context())
	if err != nil {
		return httpError(err)
	}

	out := make([]registrationResponse, len(reqs))
	for i, r := range reqs {
		out[i] = registrationResponse{ID: r.ID, Email: r.Email, Username: r.Username}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RegistrationsHandler) Approve(c echo.Context) error {
	id, err := registrationID(c)
	if err != nil {
		return err
	}
	actor := mwauth.CurrentUser(c)

	user, err := h.Auth.ApproveRegistration(c.Request().Context(), id, actor, clientInfo(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *RegistrationsHandler) Reject(c echo.Context) error {
	id, err := registrationID(c)
	if err != nil {
		return err
	}
	actor := mwauth.CurrentUser(c)

	if err := h.Auth.RejectRegistration(c.Request().Context(), id, actor, clientInfo(c)); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "registration rejected"})
}

func registrationID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid registration id")
	}
	return uint(id), nil
}
