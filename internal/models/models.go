package models

import (
	"time"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"       json:"id"`
	Email        string    `gorm:"size:255;uniqueIndex;not null"  json:"email"`
	Username     string    `gorm:"size:100;uniqueIndex;not null"  json:"username"`
	PasswordHash string    `gorm:"size:255;not null"              json:"-"`
	IsActive     bool      `gorm:"default:false"                  json:"is_active"`
	IsSuperuser  bool      `gorm:"default:false"                  json:"is_superuser"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	RefreshTokens []RefreshToken `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"                     json:"id"`
	UserID    uint      `gorm:"index;not null"                 json:"user_id"`
	Token     string    `gorm:"size:512;uniqueIndex;not null"  json:"-"`
	ExpiresAt time.Time `gorm:"not null"                       json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type BlacklistedToken struct {
	ID            uint      `gorm:"primaryKey"                     json:"id"`
	TokenJTI      string    `gorm:"size:255;uniqueIndex;not null"  json:"token_jti"`
	TokenType     string    `gorm:"size:50;not null"               json:"token_type"`
	UserID        uint      `gorm:"not null"                       json:"user_id"`
	BlacklistedAt time.Time `gorm:"autoCreateTime"                 json:"blacklisted_at"`
	ExpiresAt     time.Time `gorm:"not null"                       json:"expires_at"`
	Reason        string    `gorm:"size:255"                       json:"reason"`
}

// Approved is tri-state: nil is pending, true/false is decided.
type RegistrationRequest struct {
	ID           uint       `gorm:"primaryKey"                     json:"id"`
	Email        string     `gorm:"size:255;uniqueIndex;not null"  json:"email"`
	Username     string     `gorm:"size:100;uniqueIndex;not null"  json:"username"`
	PasswordHash string     `gorm:"size:255;not null"              json:"-"`
	Token        string     `gorm:"size:255;uniqueIndex;not null"  json:"-"`
	Approved     *bool      `json:"approved"`
	ApprovedBy   *uint      `json:"approved_by"`
	ApprovedAt   *time.Time `json:"approved_at"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `gorm:"not null"                       json:"expires_at"`
}

// AuditLog rows are append-only: the repo exposes no update or delete
// path for them. Details holds JSON as written by the recorder.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey"        json:"id"`
	UserID    *uint     `gorm:"index:idx_audit_logs_user_action,priority:1" json:"user_id"`
	Action    string    `gorm:"size:100;not null;index:idx_audit_logs_user_action,priority:2" json:"action"`
	Resource  string    `gorm:"size:255"          json:"resource"`
	Success   bool      `gorm:"not null"          json:"success"`
	Details   string    `gorm:"type:text"         json:"details"`
	IPAddress string    `gorm:"size:64"           json:"ip_address"`
	UserAgent string    `gorm:"type:text"         json:"user_agent"`
	CreatedAt time.Time `gorm:"index;index:idx_audit_logs_user_action,priority:3" json:"created_at"`
}
