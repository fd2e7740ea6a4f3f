package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ccdh/authservice/internal/models"
	"github.com/ccdh/authservice/internal/repo"
	"github.com/ccdh/authservice/internal/tokens"
)

const (
	userContextKey   = "current_user"
	claimsContextKey = "access_claims"
)

// Guard verifies bearer access tokens and enforces the role model:
// active/inactive and superuser/regular, nothing else.
type Guard struct {
	Repo   *repo.GormRepo
	Tokens *tokens.Service
}

// RequireUser authenticates the request. The blacklist lookup runs
// after signature, type and expiry checks and rejects revoked jtis no
// matter how much validity the token has left.
func (g *Guard) RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, err := bearerToken(c)
		if err != nil {
			return err
		}

		claims, err := g.Tokens.Verify(raw, tokens.TypeAccess)
		if err != nil {
			if errors.Is(err, tokens.ErrExpiredToken) {
				return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "could not validate credentials")
		}

		ctx := c.Request().Context()

		blacklisted, err := g.Repo.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "authorization check failed")
		}
		if blacklisted {
			return echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
		}

		userID, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "could not validate credentials")
		}

		user, err := g.Repo.FindUserByID(ctx, uint(userID))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return echo.NewHTTPError(http.StatusUnauthorized, "could not validate credentials")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "authorization check failed")
		}
		if !user.IsActive {
			return echo.NewHTTPError(http.StatusForbidden, "user inactive")
		}

		c.Set(userContextKey, user)
		c.Set(claimsContextKey, claims)
		return next(c)
	}
}

func (g *Guard) RequireSuperuser(next echo.HandlerFunc) echo.HandlerFunc {
	return g.RequireUser(func(c echo.Context) error {
		user := CurrentUser(c)
		if user == nil || !user.IsSuperuser {
			return echo.NewHTTPError(http.StatusForbidden, "not enough permissions")
		}
		return next(c)
	})
}

func CurrentUser(c echo.Context) *models.User {
	if u, ok := c.Get(userContextKey).(*models.User); ok {
		return u
	}
	return nil
}

func AccessClaims(c echo.Context) *tokens.Claims {
	if cl, ok := c.Get(claimsContextKey).(*tokens.Claims); ok {
		return cl
	}
	return nil
}

func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}
