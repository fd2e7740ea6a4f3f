package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ccdh/authservice/internal/models"
)

func (r *GormRepo) SaveRefresh(ctx context.Context, userID uint, token string, expiresAt time.Time) error {
	row := models.RefreshToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (r *GormRepo) FindRefresh(ctx context.Context, token string, userID uint) (*models.RefreshToken, error) {
	var row models.RefreshToken
	err := r.DB.WithContext(ctx).
		Where("token = ? AND user_id = ?", token, userID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *GormRepo) DeleteRefresh(ctx context.Context, token string) error {
	return r.DB.WithContext(ctx).
		Where("token = ?", token).
		Delete(&models.RefreshToken{}).Error
}

func (r *GormRepo) DeleteAllRefreshForUser(ctx context.Context, userID uint) error {
	return r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.RefreshToken{}).Error
}

// RotateRefresh deletes the old token row and inserts its replacement in
// one transaction. The delete doubles as a compare-and-delete: with
// concurrent rotations of the same token only the caller that actually
// removed the row proceeds, the rest get ErrTokenRotated.
func (r *GormRepo) RotateRefresh(ctx context.Context, oldToken string, userID uint, newToken string, expiresAt time.Time) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("token = ? AND user_id = ?", oldToken, userID).
			Delete(&models.RefreshToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenRotated
		}

		row := models.RefreshToken{
			UserID:    userID,
			Token:     newToken,
			ExpiresAt: expiresAt,
		}
		return tx.Create(&row).Error
	})
}

// PruneExpired sweeps refresh tokens and blacklist rows past their
// natural expiry.
func (r *GormRepo) PruneExpired(ctx context.Context, now time.Time) error {
	if err := r.DB.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.RefreshToken{}).Error; err != nil {
		return fmt.Errorf("prune refresh tokens: %w", err)
	}
	if err := r.DB.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.BlacklistedToken{}).Error; err != nil {
		return fmt.Errorf("prune blacklisted tokens: %w", err)
	}
	return nil
}
