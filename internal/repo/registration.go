package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ccdh/authservice/internal/models"
)

func (r *GormRepo) CreateRegistration(ctx context.Context, req *models.RegistrationRequest) error {
	if err := r.DB.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("create registration request: %w", err)
	}
	return nil
}

func (r *GormRepo) PendingRegistrations(ctx context.Context) ([]models.RegistrationRequest, error) {
	var reqs []models.RegistrationRequest
	err := r.DB.WithContext(ctx).
		Where("approved IS NULL AND expires_at > ?", r.DB.NowFunc()).
		Order("created_at").
		Find(&reqs).Error
	return reqs, err
}

// DecideRegistration flips a pending request to approved or rejected
// exactly once. Approval also creates the active user inside the same
// transaction.
func (r *GormRepo) DecideRegistration(ctx context.Context, id uint, approve bool, actorID uint) (*models.User, error) {
	var created *models.User

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.RegistrationRequest
		if err := tx.Where("id = ?", id).First(&req).Error; err != nil {
			return err
		}
		if req.Approved != nil {
			return ErrAlreadyDecided
		}
		if req.ExpiresAt.Before(time.Now()) {
			return ErrRegistrationGone
		}

		now := time.Now()
		req.Approved = &approve
		req.ApprovedBy = &actorID
		req.ApprovedAt = &now
		if err := tx.Save(&req).Error; err != nil {
			return err
		}

		if !approve {
			return nil
		}

		user := models.User{
			Email:        req.Email,
			Username:     req.Username,
			PasswordHash: req.PasswordHash,
			IsActive:     true,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		created = &user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
