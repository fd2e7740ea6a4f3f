package security

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ccdh/authservice/internal/models"
)

// Scanner runs on-demand heuristics over users and the audit log. Like
// the Monitor it never mutates anything; findings are advisory.
type Scanner struct {
	DB *gorm.DB
}

func NewScanner(db *gorm.DB) *Scanner {
	return &Scanner{DB: db}
}

const (
	passwordAgeCutoff  = 90 * 24 * time.Hour
	inactivityCutoff   = 30 * 24 * time.Hour
	escalationLookback = 7 * 24 * time.Hour
)

// WeakPasswords lists accounts old enough that their password predates
// any rotation policy. Password age is approximated by account age
// since the store does not track password_changed_at.
func (s *Scanner) WeakPasswords(ctx context.Context) ([]Finding, error) {
	cutoff := time.Now().Add(-passwordAgeCutoff)

	var users []models.User
	if err := s.DB.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Find(&users).Error; err != nil {
		return nil, err
	}

	findings := []Finding{}
	for _, u := range users {
		uid := u.ID
		findings = append(findings, Finding{
			Type:           "weak_password",
			Severity:       "low",
			UserID:         &uid,
			Resource:       u.Email,
			Recommendation: "consider a password rotation policy",
		})
	}
	return findings, nil
}

// InactiveUsers lists active accounts with no audit activity in the
// last 30 days, falling back to the creation time for users that never
// produced an event.
func (s *Scanner) InactiveUsers(ctx context.Context) ([]Finding, error) {
	cutoff := time.Now().Add(-inactivityCutoff)

	lastActivity := s.DB.WithContext(ctx).Model(&models.AuditLog{}).
		Select("user_id, MAX(created_at) AS last_activity").
		Where("user_id IS NOT NULL").
		Group("user_id")

	var users []models.User
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Select("users.*").
		Joins("LEFT JOIN (?) AS la ON la.user_id = users.id", lastActivity).
		Where("users.is_active = ? AND COALESCE(la.last_activity, users.created_at) < ?", true, cutoff).
		Find(&users).Error
	if err != nil {
		return nil, err
	}

	findings := []Finding{}
	for _, u := range users {
		uid := u.ID
		findings = append(findings, Finding{
			Type:           "inactive_user",
			Severity:       "medium",
			UserID:         &uid,
			Resource:       u.Email,
			Recommendation: "consider disabling the inactive account",
		})
	}
	return findings, nil
}

// PrivilegeEscalation surfaces superuser grants recorded in the audit
// log over the last week.
func (s *Scanner) PrivilegeEscalation(ctx context.Context) ([]Finding, error) {
	since := time.Now().Add(-escalationLookback)

	var logs []models.AuditLog
	err := s.DB.WithContext(ctx).
		Where("action IN ? AND created_at >= ?", []string{"create_user", "update_user"}, since).
		Where(`details LIKE ?`, `%"is_superuser":true%`).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}

	findings := []Finding{}
	for _, log := range logs {
		findings = append(findings, Finding{
			Type:           "privilege_escalation",
			Severity:       "high",
			UserID:         log.UserID,
			Resource:       log.Resource,
			Recommendation: fmt.Sprintf("review superuser grant via %s", log.Action),
		})
	}
	return findings, nil
}
