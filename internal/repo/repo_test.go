package repo

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ccdh/authservice/internal/models"
)

func newTestRepo(t *testing.T) *GormRepo {
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
	return New(db)
}

func TestRotateRefresh(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	require.NoError(t, r.SaveRefresh(ctx, 1, "old-token", expiry))

	require.NoError(t, r.RotateRefresh(ctx, "old-token", 1, "new-token", expiry))

	_, err := r.FindRefresh(ctx, "old-token", 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	row, err := r.FindRefresh(ctx, "new-token", 1)
	require.NoError(t, err)
	assert.Equal(t, uint(1), row.UserID)

	// A second rotation of the consumed token loses the race.
	err = r.RotateRefresh(ctx, "old-token", 1, "other-token", expiry)
	assert.ErrorIs(t, err, ErrTokenRotated)

	// The loser must not have inserted anything.
	_, err = r.FindRefresh(ctx, "other-token", 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRotateRefreshWrongUser(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	require.NoError(t, r.SaveRefresh(ctx, 1, "token", expiry))

	err := r.RotateRefresh(ctx, "token", 2, "new-token", expiry)
	assert.ErrorIs(t, err, ErrTokenRotated)

	// The original row is untouched.
	_, err = r.FindRefresh(ctx, "token", 1)
	require.NoError(t, err)
}

func TestBlacklistIdempotent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	row := &models.BlacklistedToken{
		TokenJTI:  "jti-1",
		TokenType: "access",
		UserID:    1,
		ExpiresAt: time.Now().Add(time.Hour),
		Reason:    "logout",
	}
	require.NoError(t, r.Blacklist(ctx, row))
	require.NoError(t, r.Blacklist(ctx, &models.BlacklistedToken{
		TokenJTI:  "jti-1",
		TokenType: "access",
		UserID:    1,
		ExpiresAt: time.Now().Add(time.Hour),
		Reason:    "logout",
	}))

	var count int64
	require.NoError(t, r.DB.Model(&models.BlacklistedToken{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	blacklisted, err := r.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, blacklisted)

	blacklisted, err = r.IsBlacklisted(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, blacklisted)
}

func TestPruneExpired(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, r.SaveRefresh(ctx, 1, "live", now.Add(time.Hour)))
	require.NoError(t, r.SaveRefresh(ctx, 1, "dead", now.Add(-time.Hour)))
	require.NoError(t, r.Blacklist(ctx, &models.BlacklistedToken{
		TokenJTI: "live-jti", TokenType: "access", UserID: 1, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, r.Blacklist(ctx, &models.BlacklistedToken{
		TokenJTI: "dead-jti", TokenType: "access", UserID: 1, ExpiresAt: now.Add(-time.Hour),
	}))

	require.NoError(t, r.PruneExpired(ctx, now))

	_, err := r.FindRefresh(ctx, "live", 1)
	require.NoError(t, err)
	_, err = r.FindRefresh(ctx, "dead", 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	blacklisted, err := r.IsBlacklisted(ctx, "live-jti")
	require.NoError(t, err)
	assert.True(t, blacklisted)
	blacklisted, err = r.IsBlacklisted(ctx, "dead-jti")
	require.NoError(t, err)
	assert.False(t, blacklisted)
}

func TestIdentityTaken(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.DB.Create(&models.User{
		Email: "alice@example.com", Username: "alice", PasswordHash: "x", IsActive: true,
	}).Error)
	require.NoError(t, r.DB.Create(&models.RegistrationRequest{
		Email: "pending@example.com", Username: "pending", PasswordHash: "x",
		Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour),
	}).Error)
	require.NoError(t, r.DB.Create(&models.RegistrationRequest{
		Email: "stale@example.com", Username: "stale", PasswordHash: "x",
		Token: "tok-2", ExpiresAt: time.Now().Add(-time.Hour),
	}).Error)

	cases := []struct {
		email, username string
		want            bool
	}{
		{"alice@example.com", "someone", true},
		{"someone@example.com", "alice", true},
		{"pending@example.com", "someone", true},
		{"someone@example.com", "pending", true},
		// An expired request no longer reserves the identity.
		{"stale@example.com", "stale", false},
		{"free@example.com", "free", false},
	}
	for _, tc := range cases {
		taken, err := r.IdentityTaken(ctx, tc.email, tc.username)
		require.NoError(t, err)
		assert.Equal(t, tc.want, taken, "%s / %s", tc.email, tc.username)
	}
}

func TestQueryAuditFilters(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	uid := uint(1)
	rows := []models.AuditLog{
		{UserID: &uid, Action: "login", Success: true, CreatedAt: now.Add(-time.Minute)},
		{UserID: &uid, Action: "login", Success: false, CreatedAt: now.Add(-2 * time.Minute)},
		{Action: "register", Success: true, CreatedAt: now.Add(-3 * time.Minute)},
	}
	for i := range rows {
		require.NoError(t, r.InsertAudit(ctx, &rows[i]))
	}

	logs, err := r.QueryAudit(ctx, AuditFilter{Action: "login"})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	// Newest first.
	assert.True(t, logs[0].Success)

	failed := false
	logs, err = r.QueryAudit(ctx, AuditFilter{Success: &failed})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "login", logs[0].Action)

	logs, err = r.QueryAudit(ctx, AuditFilter{UserID: &uid})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}
