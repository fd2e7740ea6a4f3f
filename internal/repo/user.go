package repo

import (
	"context"
	"fmt"

	"github.com/ccdh/authservice/internal/models"
)

func (r *GormRepo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	if err := r.DB.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// IdentityTaken reports whether email or username collides with an
// existing user or an undecided, unexpired registration request.
func (r *GormRepo) IdentityTaken(ctx context.Context, email, username string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("email = ? OR username = ?", email, username).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	if err := r.DB.WithContext(ctx).Model(&models.RegistrationRequest{}).
		Where("(email = ? OR username = ?) AND approved IS NULL AND expires_at > ?",
			email, username, r.DB.NowFunc()).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) SuperuserEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("is_superuser = ? AND is_active = ?", true, true).
		Pluck("email", &emails).Error
	return emails, err
}
