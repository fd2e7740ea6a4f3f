package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/ccdh/authservice/internal/audit"
	"github.com/ccdh/authservice/internal/events"
	"github.com/ccdh/authservice/internal/hash"
	"github.com/ccdh/authservice/internal/logging"
	"github.com/ccdh/authservice/internal/models"
	"github.com/ccdh/authservice/internal/repo"
	"github.com/ccdh/authservice/internal/tokens"
)

// ClientInfo is what the transport layer knows about the caller and the
// audit log wants to keep.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type AuthService struct {
	Repo   *repo.GormRepo
	Tokens *tokens.Service
	Audit  *audit.Recorder
	Events events.Publisher

	// RegistrationTTL overrides the default pending-request lifetime
	// when non-zero.
	RegistrationTTL time.Duration
}

type LoginResult struct {
	AccessToken   string
	RefreshToken  string
	AccessClaims  *tokens.Claims
	RefreshClaims *tokens.Claims
	User          *models.User
}

func (s *AuthService) Login(ctx context.Context, email, password string, client ClientInfo) (*LoginResult, error) {
	user, reason, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.Audit.RecordBestEffort(ctx, audit.Entry{
			Action:    "login",
			Resource:  email,
			Success:   false,
			IPAddress: client.IP,
			UserAgent: client.UserAgent,
			Details:   map[string]any{"reason": reason},
		})
		return nil, ErrInvalidCredentials
	}

	result, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	if err := s.Repo.SaveRefresh(ctx, user.ID, result.RefreshToken, result.RefreshClaims.ExpiresAt.Time); err != nil {
		return nil, err
	}

	if err := s.Audit.Record(ctx, audit.Entry{
		UserID:    &user.ID,
		Action:    "login",
		Success:   true,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// authenticate resolves the user behind an email/password pair. A nil
// user with a non-empty reason means the attempt failed; the reason is
// for the audit trail only.
func (s *AuthService) authenticate(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.Repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "unknown_email", nil
		}
		return nil, "", err
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		return nil, "wrong_password", nil
	}
	if !user.IsActive {
		return nil, "inactive_account", nil
	}
	return user, "", nil
}

func (s *AuthService) Refresh(ctx context.Context, oldToken string, client ClientInfo) (*LoginResult, error) {
	claims, err := s.Tokens.Verify(oldToken, tokens.TypeRefresh)
	if err != nil {
		s.auditRefreshFailure(ctx, nil, client, "token_verify_failed")
		return nil, err
	}

	userID, err := parseSubject(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	stored, err := s.Repo.FindRefresh(ctx, oldToken, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Rotated away or never issued. Signature validity does
			// not matter here.
			s.auditRefreshFailure(ctx, &userID, client, "token_not_in_store")
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	// Stored expiry wins over the claim so the server can cut sessions
	// short without reissuing secrets.
	if stored.ExpiresAt.Before(time.Now()) {
		if err := s.Repo.DeleteRefresh(ctx, oldToken); err != nil {
			logging.FromContext(ctx).Warn("expired refresh cleanup failed", "error", err)
		}
		s.auditRefreshFailure(ctx, &userID, client, "token_expired")
		return nil, ErrExpiredToken
	}

	user, err := s.Repo.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserInactive
		}
		return nil, err
	}
	if !user.IsActive {
		s.auditRefreshFailure(ctx, &userID, client, "user_inactive")
		return nil, ErrUserInactive
	}

	result, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	err = s.Repo.RotateRefresh(ctx, oldToken, user.ID, result.RefreshToken, result.RefreshClaims.ExpiresAt.Time)
	if err != nil {
		if errors.Is(err, repo.ErrTokenRotated) {
			s.auditRefreshFailure(ctx, &userID, client, "token_already_rotated")
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	s.Audit.RecordBestEffort(ctx, audit.Entry{
		UserID:    &user.ID,
		Action:    "token_refresh",
		Success:   true,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
	})

	return result, nil
}

// Logout blacklists the presented access token and tears down every
// refresh token the user owns. Repeating it with an already
// blacklisted token is a no-op.
func (s *AuthService) Logout(ctx context.Context, accessClaims *tokens.Claims, client ClientInfo) error {
	userID, err := parseSubject(accessClaims.Subject)
	if err != nil {
		return ErrInvalidToken
	}

	row := &models.BlacklistedToken{
		TokenJTI:  accessClaims.ID,
		TokenType: accessClaims.TokenType,
		UserID:    userID,
		ExpiresAt: accessClaims.ExpiresAt.Time,
		Reason:    "logout",
	}
	// Best effort: a failed blacklist insert must not keep the user
	// logged in.
	if err := s.Repo.Blacklist(ctx, row); err != nil {
		logging.FromContext(ctx).Error("blacklist write failed", "jti", accessClaims.ID, "error", err)
	}

	if err := s.Repo.DeleteAllRefreshForUser(ctx, userID); err != nil {
		return err
	}

	return s.Audit.Record(ctx, audit.Entry{
		UserID:    &userID,
		Action:    "logout",
		Success:   true,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
	})
}

func (s *AuthService) issuePair(user *models.User) (*LoginResult, error) {
	id := strconv.FormatUint(uint64(user.ID), 10)

	access, accessClaims, err := s.Tokens.IssueAccess(id)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshClaims, err := s.Tokens.IssueRefresh(id)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return &LoginResult{
		AccessToken:   access,
		RefreshToken:  refresh,
		AccessClaims:  accessClaims,
		RefreshClaims: refreshClaims,
		User:          user,
	}, nil
}

// auditRefreshFailure tags the failure under the "error" key, which is
// what the unauthorized-access monitor counts.
func (s *AuthService) auditRefreshFailure(ctx context.Context, userID *uint, client ClientInfo, reason string) {
	s.Audit.RecordBestEffort(ctx, audit.Entry{
		UserID:    userID,
		Action:    "token_refresh",
		Success:   false,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"error": reason},
	})
}

func parseSubject(sub string) (uint, error) {
	n, err := strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(n), nil
}
