package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ccdh/authservice/internal/models"
)

type AuditFilter struct {
	UserID  *uint
	Action  string
	Success *bool
	From    *time.Time
	To      *time.Time
	Offset  int
	Limit   int
}

type AuditStats struct {
	TotalEvents   int64 `json:"total_events"`
	FailedEvents  int64 `json:"failed_events"`
	LoginAttempts int64 `json:"login_attempts"`
	FailedLogins  int64 `json:"failed_logins"`
	UniqueActors  int64 `json:"unique_actors"`
	WindowDays    int   `json:"window_days"`
}

func (r *GormRepo) InsertAudit(ctx context.Context, entry *models.AuditLog) error {
	if err := r.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (r *GormRepo) QueryAudit(ctx context.Context, f AuditFilter) ([]models.AuditLog, error) {
	q := r.DB.WithContext(ctx).Model(&models.AuditLog{})

	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Success != nil {
		q = q.Where("success = ?", *f.Success)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var logs []models.AuditLog
	err := q.Order("created_at DESC").Offset(f.Offset).Limit(limit).Find(&logs).Error
	return logs, err
}

func (r *GormRepo) AuditActions(ctx context.Context) ([]string, error) {
	var actions []string
	err := r.DB.WithContext(ctx).Model(&models.AuditLog{}).
		Distinct("action").
		Order("action").
		Pluck("action", &actions).Error
	return actions, err
}

func (r *GormRepo) AuditStatsSince(ctx context.Context, days int) (*AuditStats, error) {
	since := time.Now().AddDate(0, 0, -days)
	stats := AuditStats{WindowDays: days}

	base := func() *gorm.DB {
		return r.DB.WithContext(ctx).Model(&models.AuditLog{}).Where("created_at >= ?", since)
	}

	if err := base().Count(&stats.TotalEvents).Error; err != nil {
		return nil, err
	}
	if err := base().Where("success = ?", false).Count(&stats.FailedEvents).Error; err != nil {
		return nil, err
	}
	if err := base().Where("action = ?", "login").Count(&stats.LoginAttempts).Error; err != nil {
		return nil, err
	}
	if err := base().Where("action = ? AND success = ?", "login", false).Count(&stats.FailedLogins).Error; err != nil {
		return nil, err
	}
	if err := base().Where("user_id IS NOT NULL").Distinct("user_id").Count(&stats.UniqueActors).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}
