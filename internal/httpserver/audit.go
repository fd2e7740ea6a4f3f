package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"

	"github.com/ccdh/authservice/internal/repo"
	"github.com/ccdh/authservice/internal/service/auditsearch"
)

type AuditHandler struct {
	Repo *repo.GormRepo

	// ES is optional; without it /audit/search answers 503.
	ES      *elasticsearch.Client
	ESIndex string
}

func (h *AuditHandler) List(c echo.Context) error {
	f := repo.AuditFilter{}

	if v := c.QueryParam("user_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
		}
		uid := uint(id)
		f.UserID = &uid
	}
	f.Action = c.QueryParam("action")
	if v := c.QueryParam("success"); v != "" {
		ok, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid success flag")
		}
		f.Success = &ok
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		f.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		f.To = &t
	}
	f.Offset, _ = strconv.Atoi(c.QueryParam("skip"))
	f.Limit, _ = strconv.Atoi(c.QueryParam("limit"))

	logs, err := h.Repo.QueryAudit(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, logs)
}

func (h *AuditHandler) Actions(c echo.Context) error {
	actions, err := h.Repo.AuditActions(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, actions)
}

func (h *AuditHandler) Stats(c echo.Context) error {
	days := 7
	if v := c.QueryParam("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 30 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be between 1 and 30")
		}
		days = n
	}

	stats, err := h.Repo.AuditStatsSince(c.Request().Context(), days)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *AuditHandler) Search(c echo.Context) error {
	if h.ES == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "audit search is not configured")
	}

	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}
	from, _ := strconv.Atoi(c.QueryParam("skip"))
	size, _ := strconv.Atoi(c.QueryParam("limit"))
	if size <= 0 || size > 1000 {
		size = 100
	}

	total, docs, err := auditsearch.Search(c.Request().Context(), h.ES, h.ESIndex, query, from, size)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "audit search failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total":   total,
		"results": docs,
	})
}
