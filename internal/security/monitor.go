package security

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ccdh/authservice/internal/models"
)

// Monitor runs threshold checks over the audit log. It only reads;
// acting on a triggered alert is the caller's business.
type Monitor struct {
	DB         *gorm.DB
	Thresholds Thresholds
}

type Thresholds struct {
	FailedLogins       int
	FailedLoginsWindow time.Duration

	RegistrationSpam   int
	RegistrationWindow time.Duration

	UnauthorizedAccess int
	UnauthorizedWindow time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		FailedLogins:       5,
		FailedLoginsWindow: 10 * time.Minute,
		RegistrationSpam:   10,
		RegistrationWindow: time.Hour,
		UnauthorizedAccess: 3,
		UnauthorizedWindow: 15 * time.Minute,
	}
}

func NewMonitor(db *gorm.DB) *Monitor {
	return &Monitor{DB: db, Thresholds: DefaultThresholds()}
}

type Alert struct {
	Type          string `json:"alert_type"`
	Count         int64  `json:"count"`
	Threshold     int    `json:"threshold"`
	Triggered     bool   `json:"triggered"`
	UserID        *uint  `json:"user_id,omitempty"`
	IPAddress     string `json:"ip_address,omitempty"`
	WindowMinutes int    `json:"window_minutes"`
}

type Finding struct {
	Type           string `json:"alert_type"`
	Severity       string `json:"severity"`
	UserID         *uint  `json:"user_id,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
	IPCount        int64  `json:"ip_count,omitempty"`
	ActionCount    int64  `json:"action_count,omitempty"`
	Resource       string `json:"resource,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

func (m *Monitor) CheckFailedLogins(ctx context.Context, userID *uint, ip string) (*Alert, error) {
	since := time.Now().Add(-m.Thresholds.FailedLoginsWindow)

	q := m.DB.WithContext(ctx).Model(&models.AuditLog{}).
		Where("action = ? AND success = ? AND created_at >= ?", "login", false, since)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if ip != "" {
		q = q.Where("ip_address = ?", ip)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return nil, err
	}

	return &Alert{
		Type:          "failed_logins",
		Count:         count,
		Threshold:     m.Thresholds.FailedLogins,
		Triggered:     count >= int64(m.Thresholds.FailedLogins),
		UserID:        userID,
		IPAddress:     ip,
		WindowMinutes: int(m.Thresholds.FailedLoginsWindow.Minutes()),
	}, nil
}

func (m *Monitor) CheckRegistrationSpam(ctx context.Context, ip string) (*Alert, error) {
	since := time.Now().Add(-m.Thresholds.RegistrationWindow)

	var count int64
	err := m.DB.WithContext(ctx).Model(&models.AuditLog{}).
		Where("action = ? AND ip_address = ? AND created_at >= ?", "register", ip, since).
		Count(&count).Error
	if err != nil {
		return nil, err
	}

	return &Alert{
		Type:          "registration_spam",
		Count:         count,
		Threshold:     m.Thresholds.RegistrationSpam,
		Triggered:     count >= int64(m.Thresholds.RegistrationSpam),
		IPAddress:     ip,
		WindowMinutes: int(m.Thresholds.RegistrationWindow.Minutes()),
	}, nil
}

func (m *Monitor) CheckUnauthorizedAccess(ctx context.Context, userID uint) (*Alert, error) {
	since := time.Now().Add(-m.Thresholds.UnauthorizedWindow)

	var count int64
	err := m.DB.WithContext(ctx).Model(&models.AuditLog{}).
		Where("user_id = ? AND success = ? AND created_at >= ?", userID, false, since).
		Where(`details LIKE ?`, `%"error"%`).
		Count(&count).Error
	if err != nil {
		return nil, err
	}

	return &Alert{
		Type:          "unauthorized_access",
		Count:         count,
		Threshold:     m.Thresholds.UnauthorizedAccess,
		Triggered:     count >= int64(m.Thresholds.UnauthorizedAccess),
		UserID:        &userID,
		WindowMinutes: int(m.Thresholds.UnauthorizedWindow.Minutes()),
	}, nil
}

// SuspiciousPatterns flags users spread over more than 3 IPs and
// (user, IP) pairs with more than 50 actions, both over the last hour.
func (m *Monitor) SuspiciousPatterns(ctx context.Context) ([]Finding, error) {
	since := time.Now().Add(-time.Hour)
	findings := []Finding{}

	var multiIP []struct {
		UserID  uint
		IPCount int64
	}
	err := m.DB.WithContext(ctx).Model(&models.AuditLog{}).
		Select("user_id, COUNT(DISTINCT ip_address) AS ip_count").
		Where("user_id IS NOT NULL AND created_at >= ?", since).
		Group("user_id").
		Having("COUNT(DISTINCT ip_address) > ?", 3).
		Scan(&multiIP).Error
	if err != nil {
		return nil, err
	}
	for _, row := range multiIP {
		severity := "medium"
		if row.IPCount >= 5 {
			severity = "high"
		}
		uid := row.UserID
		findings = append(findings, Finding{
			Type:     "multiple_ips",
			Severity: severity,
			UserID:   &uid,
			IPCount:  row.IPCount,
		})
	}

	var rapid []struct {
		UserID      *uint
		IPAddress   string
		ActionCount int64
	}
	err = m.DB.WithContext(ctx).Model(&models.AuditLog{}).
		Select("user_id, ip_address, COUNT(id) AS action_count").
		Where("created_at >= ?", since).
		Group("user_id, ip_address").
		Having("COUNT(id) > ?", 50).
		Scan(&rapid).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rapid {
		findings = append(findings, Finding{
			Type:        "rapid_actions",
			Severity:    "high",
			UserID:      row.UserID,
			IPAddress:   row.IPAddress,
			ActionCount: row.ActionCount,
		})
	}

	return findings, nil
}
