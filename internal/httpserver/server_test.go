package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ccdh/authservice/internal/audit"
	"github.com/ccdh/authservice/internal/events"
	"github.com/ccdh/authservice/internal/hash"
	mwauth "github.com/ccdh/authservice/internal/middleware/auth"
	"github.com/ccdh/authservice/internal/models"
	"github.com/ccdh/authservice/internal/repo"
	"github.com/ccdh/authservice/internal/security"
	"github.com/ccdh/authservice/internal/service"
	"github.com/ccdh/authservice/internal/tokens"
)

type testServer struct {
	e   *echo.Echo
	db  *gorm.DB
	svc *service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.BlacklistedToken{},
		&models.RegistrationRequest{},
		&models.AuditLog{},
	))

	r := repo.New(db)
	tokenSvc := tokens.NewService([]byte("test-secret"), 15*time.Minute, 7*24*time.Hour)
	svc := &service.AuthService{
		Repo:   r,
		Tokens: tokenSvc,
		Audit:  audit.NewRecorder(r, nil),
		Events: events.Nop{},
	}

	e := echo.New()
	Register(e, &Deps{
		Guard:         &mwauth.Guard{Repo: r, Tokens: tokenSvc},
		Auth:          &AuthHandler{Auth: svc, RefreshTTL: 7 * 24 * time.Hour},
		Registrations: &RegistrationsHandler{Auth: svc},
		Audit:         &AuditHandler{Repo: r},
		Security: &SecurityHandler{
			Monitor: security.NewMonitor(db),
			Scanner: security.NewScanner(db),
			Audit:   audit.NewRecorder(r, nil),
			Events:  events.Nop{},
		},
	})

	return &testServer{e: e, db: db, svc: svc}
}

func (ts *testServer) do(method, path, body, token string) *httptest.ResponseRecorder {
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createUser(t *testing.T, email, username, password string, superuser bool) *models.User {
	t.Helper()

	digest, err := hash.HashPassword(password)
	require.NoError(t, err)

	user := models.User{
		Email:        email,
		Username:     username,
		PasswordHash: digest,
		IsActive:     true,
		IsSuperuser:  superuser,
	}
	require.NoError(t, ts.db.Create(&user).Error)
	return &user
}

func (ts *testServer) login(t *testing.T, email, password string) tokenResponse {
	t.Helper()

	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	rec := ts.do(http.MethodPost, "/api/auth/login", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestLoginEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice@example.com", "alice", "pw12345678", false)

	resp := ts.login(t, "alice@example.com", "pw12345678")
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "bearer", resp.TokenType)

	rec := ts.do(http.MethodPost, "/api/auth/login", `{"email":"alice@example.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "incorrect email or password")
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice@example.com", "alice", "pw12345678", false)

	rec := ts.do(http.MethodPost, "/api/auth/login", `{"email":"alice@example.com","password":"pw12345678"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	var found *http.Cookie
	for _, c := range cookies {
		if c.Name == "refresh_token" {
			found = c
		}
	}
	require.NotNil(t, found)
	assert.True(t, found.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, found.SameSite)
}

func TestMeEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice@example.com", "alice", "pw12345678", false)
	resp := ts.login(t, "alice@example.com", "pw12345678")

	rec := ts.do(http.MethodGet, "/api/auth/me", "", resp.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var me userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "alice@example.com", me.Email)

	rec = ts.do(http.MethodGet, "/api/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/api/auth/me", "", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice@example.com", "alice", "pw12345678", false)
	resp := ts.login(t, "alice@example.com", "pw12345678")

	rec := ts.do(http.MethodPost, "/api/auth/logout", "", resp.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	// The jti is blacklisted even though the JWT itself is still valid.
	rec = ts.do(http.MethodGet, "/api/auth/me", "", resp.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token has been revoked")

	// The refresh token died with the session.
	body := fmt.Sprintf(`{"refresh_token":%q}`, resp.RefreshToken)
	rec = ts.do(http.MethodPost, "/api/auth/refresh", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshEndpointRotation(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice@example.com", "alice", "pw12345678", false)
	resp := ts.login(t, "alice@example.com", "pw12345678")

	body := fmt.Sprintf(`{"refresh_token":%q}`, resp.RefreshToken)
	rec := ts.do(http.MethodPost, "/api/auth/refresh", body, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var rotated tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.NotEqual(t, resp.RefreshToken, rotated.RefreshToken)

	// Replaying the consumed token fails.
	rec = ts.do(http.MethodPost, "/api/auth/refresh", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshFromCookie(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice@example.com", "alice", "pw12345678", false)
	resp := ts.login(t, "alice@example.com", "pw12345678")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(""))
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: resp.RefreshToken})
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRegistrationFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "admin@example.com", "admin", "pw12345678", true)
	admin := ts.login(t, "admin@example.com", "pw12345678")

	rec := ts.do(http.MethodPost, "/api/auth/register",
		`{"email":"new@example.com","username":"newbie","password":"pw12345678"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Not a user yet.
	rec = ts.do(http.MethodPost, "/api/auth/login",
		`{"email":"new@example.com","password":"pw12345678"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/api/users/registrations/pending", "", admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []registrationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending, 1)

	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/users/registrations/%d/approve", pending[0].ID), "", admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Approving a decided request is rejected.
	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/users/registrations/%d/approve", pending[0].ID), "", admin.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Now the account works.
	ts.login(t, "new@example.com", "pw12345678")
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/auth/register",
		`{"email":"a@x.com","username":"a","password":"short"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/auth/register",
		`{"email":"","username":"a","password":"pw12345678"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuperuserGate(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice@example.com", "alice", "pw12345678", false)
	user := ts.login(t, "alice@example.com", "pw12345678")

	for _, path := range []string{
		"/api/users/registrations/pending",
		"/api/audit",
		"/api/security/alerts/suspicious-patterns",
		"/api/security/scan/weak-passwords",
	} {
		rec := ts.do(http.MethodGet, path, "", user.AccessToken)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestAuditListFilters(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "admin@example.com", "admin", "pw12345678", true)
	admin := ts.login(t, "admin@example.com", "pw12345678")

	ts.do(http.MethodPost, "/api/auth/login", `{"email":"admin@example.com","password":"wrong"}`, "")

	rec := ts.do(http.MethodGet, "/api/audit?action=login&success=false", "", admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var logs []models.AuditLog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)

	rec = ts.do(http.MethodGet, "/api/audit/actions", "", admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "login")
}

func TestAuditSearchWithoutES(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "admin@example.com", "admin", "pw12345678", true)
	admin := ts.login(t, "admin@example.com", "pw12345678")

	rec := ts.do(http.MethodGet, "/api/audit/search?q=login", "", admin.AccessToken)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSecurityAlertEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "admin@example.com", "admin", "pw12345678", true)
	admin := ts.login(t, "admin@example.com", "pw12345678")

	for i := 0; i < 5; i++ {
		ts.do(http.MethodPost, "/api/auth/login", `{"email":"admin@example.com","password":"wrong"}`, "")
	}

	rec := ts.do(http.MethodGet, "/api/security/alerts/failed-logins", "", admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var alert security.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alert))
	assert.True(t, alert.Triggered)
	assert.Equal(t, int64(5), alert.Count)

	// ip is required for the spam check.
	rec = ts.do(http.MethodGet, "/api/security/alerts/registration-spam", "", admin.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInactiveUserForbidden(t *testing.T) {
	ts := newTestServer(t)
	user := ts.createUser(t, "alice@example.com", "alice", "pw12345678", false)
	resp := ts.login(t, "alice@example.com", "pw12345678")

	require.NoError(t, ts.db.Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("is_active", false).Error)

	rec := ts.do(http.MethodGet, "/api/auth/me", "", resp.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExpiredAccessToken(t *testing.T) {
	ts := newTestServer(t)
	user := ts.createUser(t, "alice@example.com", "alice", "pw12345678", false)

	expired := tokens.NewService([]byte("test-secret"), -time.Minute, time.Hour)
	signed, _, err := expired.IssueAccess(fmt.Sprint(user.ID))
	require.NoError(t, err)

	rec := ts.do(http.MethodGet, "/api/auth/me", "", signed)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token expired")
}
