package repo

import (
	"context"
	"fmt"

	"github.com/ccdh/authservice/internal/models"
)

// Blacklist records a jti. Inserting an already blacklisted jti is a
// no-op, so repeated logout with the same token stays idempotent.
func (r *GormRepo) Blacklist(ctx context.Context, row *models.BlacklistedToken) error {
	tx := r.DB.WithContext(ctx).
		Where("token_jti = ?", row.TokenJTI).
		FirstOrCreate(row)
	if tx.Error != nil {
		return fmt.Errorf("blacklist token: %w", tx.Error)
	}
	return nil
}

func (r *GormRepo) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.BlacklistedToken{}).
		Where("token_jti = ?", jti).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
