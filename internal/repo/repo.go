package repo

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrTokenRotated     = errors.New("refresh token already rotated")
	ErrAlreadyDecided   = errors.New("registration request already decided")
	ErrRegistrationGone = errors.New("registration request expired")
)

type GormRepo struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db}
}
