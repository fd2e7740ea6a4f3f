package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ccdh/authservice/internal/audit"
	"github.com/ccdh/authservice/internal/hash"
	"github.com/ccdh/authservice/internal/logging"
	"github.com/ccdh/authservice/internal/models"
	"github.com/ccdh/authservice/internal/repo"
)

// RegistrationTTL bounds how long a pending request stays approvable.
const RegistrationTTL = 7 * 24 * time.Hour

// Register files a pending registration request. No User row exists
// until a superuser approves it.
func (s *AuthService) Register(ctx context.Context, email, username, password string, client ClientInfo) (*models.RegistrationRequest, error) {
	taken, err := s.Repo.IdentityTaken(ctx, email, username)
	if err != nil {
		return nil, err
	}
	if taken {
		s.Audit.RecordBestEffort(ctx, audit.Entry{
			Action:    "register",
			Resource:  email,
			Success:   false,
			IPAddress: client.IP,
			UserAgent: client.UserAgent,
			Details:   map[string]any{"reason": "email_or_username_exists"},
		})
		return nil, ErrDuplicateIdentity
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := newApprovalToken()
	if err != nil {
		return nil, err
	}

	ttl := s.RegistrationTTL
	if ttl == 0 {
		ttl = RegistrationTTL
	}
	req := &models.RegistrationRequest{
		Email:        email,
		Username:     username,
		PasswordHash: pwHash,
		Token:        token,
		ExpiresAt:    time.Now().Add(ttl),
	}
	if err := s.Repo.CreateRegistration(ctx, req); err != nil {
		return nil, err
	}

	if err := s.Audit.Record(ctx, audit.Entry{
		Action:    "register",
		Resource:  email,
		Success:   true,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"username": username},
	}); err != nil {
		return nil, err
	}

	// The consumer notifies the active superusers about the pending
	// request, so their addresses ride along in the event.
	admins, err := s.Repo.SuperuserEmails(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("superuser lookup failed", "error", err)
	}
	s.publish(ctx, fmt.Sprint(req.ID), map[string]any{
		"type":     "registration_pending",
		"email":    req.Email,
		"username": req.Username,
		"notify":   admins,
	})

	return req, nil
}

func (s *AuthService) PendingRegistrations(ctx context.Context) ([]models.RegistrationRequest, error) {
	return s.Repo.PendingRegistrations(ctx)
}

// ApproveRegistration turns a pending request into an active user.
func (s *AuthService) ApproveRegistration(ctx context.Context, id uint, actor *models.User, client ClientInfo) (*models.User, error) {
	user, err := s.Repo.DecideRegistration(ctx, id, true, actor.ID)
	if err != nil {
		return nil, mapDecisionErr(err)
	}

	if err := s.Audit.Record(ctx, audit.Entry{
		UserID:    &actor.ID,
		Action:    "approve_registration",
		Resource:  fmt.Sprintf("user:%d", user.ID),
		Success:   true,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"registration_id": id, "email": user.Email},
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, fmt.Sprint(id), map[string]any{
		"type":  "registration_approved",
		"email": user.Email,
	})

	return user, nil
}

func (s *AuthService) RejectRegistration(ctx context.Context, id uint, actor *models.User, client ClientInfo) error {
	if _, err := s.Repo.DecideRegistration(ctx, id, false, actor.ID); err != nil {
		return mapDecisionErr(err)
	}

	if err := s.Audit.Record(ctx, audit.Entry{
		UserID:    &actor.ID,
		Action:    "reject_registration",
		Resource:  fmt.Sprintf("registration:%d", id),
		Success:   true,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
	}); err != nil {
		return err
	}

	s.publish(ctx, fmt.Sprint(id), map[string]any{
		"type":            "registration_rejected",
		"registration_id": id,
	})

	return nil
}

func (s *AuthService) publish(ctx context.Context, key string, event map[string]any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, key, event); err != nil {
		logging.FromContext(ctx).Error("event publish failed", "type", event["type"], "error", err)
	}
}

func mapDecisionErr(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, repo.ErrAlreadyDecided):
		return ErrRegistrationDecided
	case errors.Is(err, repo.ErrRegistrationGone):
		return ErrRegistrationExpired
	default:
		return err
	}
}

func newApprovalToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
