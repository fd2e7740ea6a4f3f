package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	mwauth "github.com/ccdh/authservice/internal/middleware/auth"
	"github.com/ccdh/authservice/internal/service"
)

const refreshCookieName = "refresh_token"

type AuthHandler struct {
	Auth       *service.AuthService
	RefreshTTL time.Duration
}

func clientInfo(c echo.Context) service.ClientInfo {
	return service.ClientInfo{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Username == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and username are required")
	}
	if len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "password must be at least 8 characters")
	}

	reg, err := h.Auth.Register(c.Request().Context(), req.Email, req.Username, req.Password, clientInfo(c))
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, registrationResponse{
		ID:       reg.ID,
		Email:    reg.Email,
		Username: reg.Username,
		Message:  "Registration request submitted. Awaiting approval from administrator.",
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.Auth.Login(c.Request().Context(), req.Email, req.Password, clientInfo(c))
	if err != nil {
		return httpError(err)
	}

	c.SetCookie(refreshCookie(result.RefreshToken, h.RefreshTTL))

	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "bearer",
	})
}

// Refresh accepts the refresh token from the request body or, for
// browser clients, from the httpOnly cookie.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil && !errors.Is(err, echo.ErrUnsupportedMediaType) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	token := req.RefreshToken
	if token == "" {
		if cookie, err := c.Cookie(refreshCookieName); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
	}

	result, err := h.Auth.Refresh(c.Request().Context(), token, clientInfo(c))
	if err != nil {
		return httpError(err)
	}

	c.SetCookie(refreshCookie(result.RefreshToken, h.RefreshTTL))

	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "bearer",
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	claims := mwauth.AccessClaims(c)
	if claims == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "could not validate credentials")
	}

	if err := h.Auth.Logout(c.Request().Context(), claims, clientInfo(c)); err != nil {
		return httpError(err)
	}

	c.SetCookie(deleteRefreshCookie())

	return c.JSON(http.StatusOK, echo.Map{"message": "successfully logged out"})
}

func (h *AuthHandler) Me(c echo.Context) error {
	user := mwauth.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "could not validate credentials")
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

func refreshCookie(value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func deleteRefreshCookie() *http.Cookie {
	return &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}
