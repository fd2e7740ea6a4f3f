package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ccdh/authservice/internal/audit"
	"github.com/ccdh/authservice/internal/events"
	"github.com/ccdh/authservice/internal/logging"
	"github.com/ccdh/authservice/internal/security"
)

type SecurityHandler struct {
	Monitor *security.Monitor
	Scanner *security.Scanner
	Audit   *audit.Recorder
	Events  events.Publisher
}

type scanResult struct {
	ScanType        string             `json:"scan_type"`
	Findings        []security.Finding `json:"findings"`
	Timestamp       time.Time          `json:"timestamp"`
	Recommendations []string           `json:"recommendations"`
}

func (h *SecurityHandler) FailedLogins(c echo.Context) error {
	var userID *uint
	if v := c.QueryParam("user_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
		}
		uid := uint(id)
		userID = &uid
	}
	ip := c.QueryParam("ip_address")

	alert, err := h.Monitor.CheckFailedLogins(c.Request().Context(), userID, ip)
	if err != nil {
		return httpError(err)
	}

	h.reportIfTriggered(c, alert)
	return c.JSON(http.StatusOK, alert)
}

func (h *SecurityHandler) RegistrationSpam(c echo.Context) error {
	ip := c.QueryParam("ip_address")
	if ip == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ip_address is required")
	}

	alert, err := h.Monitor.CheckRegistrationSpam(c.Request().Context(), ip)
	if err != nil {
		return httpError(err)
	}

	h.reportIfTriggered(c, alert)
	return c.JSON(http.StatusOK, alert)
}

func (h *SecurityHandler) UnauthorizedAccess(c echo.Context) error {
	id, err := strconv.ParseUint(c.QueryParam("user_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	alert, err := h.Monitor.CheckUnauthorizedAccess(c.Request().Context(), uint(id))
	if err != nil {
		return httpError(err)
	}

	h.reportIfTriggered(c, alert)
	return c.JSON(http.StatusOK, alert)
}

func (h *SecurityHandler) SuspiciousPatterns(c echo.Context) error {
	patterns, err := h.Monitor.SuspiciousPatterns(c.Request().Context())
	if err != nil {
		return httpError(err)
	}

	if len(patterns) > 0 {
		h.Audit.RecordBestEffort(c.Request().Context(), audit.Entry{
			Action:   "security_scan",
			Resource: "suspicious_patterns",
			Success:  true,
			Details:  map[string]any{"patterns_found": len(patterns)},
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"timestamp": time.Now().UTC(),
		"patterns":  patterns,
		"count":     len(patterns),
	})
}

func (h *SecurityHandler) WeakPasswords(c echo.Context) error {
	return h.scan(c, "weak_passwords", h.Scanner.WeakPasswords, []string{
		"implement a password expiration policy",
		"require strong passwords",
	})
}

func (h *SecurityHandler) InactiveUsers(c echo.Context) error {
	return h.scan(c, "inactive_users", h.Scanner.InactiveUsers, []string{
		"disable accounts inactive for 30+ days",
		"notify users before disabling accounts",
	})
}

func (h *SecurityHandler) PrivilegeEscalation(c echo.Context) error {
	return h.scan(c, "privilege_escalation", h.Scanner.PrivilegeEscalation, []string{
		"review recent superuser grants",
	})
}

func (h *SecurityHandler) scan(c echo.Context, name string, run func(context.Context) ([]security.Finding, error), recs []string) error {
	findings, err := run(c.Request().Context())
	if err != nil {
		return httpError(err)
	}

	h.Audit.RecordBestEffort(c.Request().Context(), audit.Entry{
		Action:   "security_scan",
		Resource: name,
		Success:  true,
		Details:  map[string]any{"findings": len(findings)},
	})

	return c.JSON(http.StatusOK, scanResult{
		ScanType:        name,
		Findings:        findings,
		Timestamp:       time.Now().UTC(),
		Recommendations: recs,
	})
}

// reportIfTriggered audits a triggered alert and pushes it onto the
// outbound event queue. Both are side effects of a read endpoint, so
// both are best effort.
func (h *SecurityHandler) reportIfTriggered(c echo.Context, alert *security.Alert) {
	if !alert.Triggered {
		return
	}
	ctx := c.Request().Context()

	h.Audit.RecordBestEffort(ctx, audit.Entry{
		Action:   "security_alert",
		Resource: alert.Type,
		Success:  true,
		Details:  map[string]any{"count": alert.Count, "threshold": alert.Threshold},
	})

	if h.Events != nil {
		event := map[string]any{
			"type":       "security_alert",
			"alert_type": alert.Type,
			"count":      alert.Count,
			"threshold":  alert.Threshold,
		}
		if err := h.Events.Publish(ctx, alert.Type, event); err != nil {
			logging.FromContext(ctx).Error("alert publish failed", "alert_type", alert.Type, "error", err)
		}
	}
}
