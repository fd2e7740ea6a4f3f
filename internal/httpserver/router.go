package httpserver

import (
	"github.com/labstack/echo/v4"

	mwauth "github.com/ccdh/authservice/internal/middleware/auth"
)

type Deps struct {
	Guard         *mwauth.Guard
	Auth          *AuthHandler
	Registrations *RegistrationsHandler
	Audit         *AuditHandler
	Security      *SecurityHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	api := e.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", d.Auth.Register)
	auth.POST("/login", d.Auth.Login)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/logout", d.Auth.Logout, d.Guard.RequireUser)
	auth.GET("/me", d.Auth.Me, d.Guard.RequireUser)

	users := api.Group("/users", d.Guard.RequireSuperuser)
	users.GET("/registrations/pending", d.Registrations.Pending)
	users.POST("/registrations/:id/approve", d.Registrations.Approve)
	users.POST("/registrations/:id/reject", d.Registrations.Reject)

	auditGroup := api.Group("/audit", d.Guard.RequireSuperuser)
	auditGroup.GET("", d.Audit.List)
	auditGroup.GET("/actions", d.Audit.Actions)
	auditGroup.GET("/stats", d.Audit.Stats)
	auditGroup.GET("/search", d.Audit.Search)

	sec := api.Group("/security", d.Guard.RequireSuperuser)
	sec.GET("/alerts/failed-logins", d.Security.FailedLogins)
	sec.GET("/alerts/registration-spam", d.Security.RegistrationSpam)
	sec.GET("/alerts/unauthorized-access", d.Security.UnauthorizedAccess)
	sec.GET("/alerts/suspicious-patterns", d.Security.SuspiciousPatterns)
	sec.GET("/scan/weak-passwords", d.Security.WeakPasswords)
	sec.GET("/scan/inactive-users", d.Security.InactiveUsers)
	sec.GET("/scan/privilege-escalation", d.Security.PrivilegeEscalation)
}
