package models

import (
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog/log"
)

// UserStatus represents the lifecycle status of a user account.
type UserStatus string

const (
	// UserStatusActive indicates the account may log in and use the application.
	UserStatusActive UserStatus = "active"
	// UserStatusBlocked indicates the account is blocked; any live session is revoked.
	UserStatusBlocked UserStatus = "blocked"
)

// User represents a user account in the system.
// Users hold zero or more roles and may additionally hold permissions
// directly; both grants are additive.
type User struct {
	// ID is the unique identifier for the user.
	ID uint64 `gorm:"primaryKey"`
	// Name is the user's display name.
	Name string `gorm:"size:255;not null"`
	// Email is the unique email address used for login.
	Email string `gorm:"unique;size:255;not null"`
	// Password is the Argon2id hashed password.
	Password string `gorm:"size:255"`
	// Status indicates whether the account is active or blocked.
	Status UserStatus `gorm:"type:varchar(20);not null;default:'active'"`
	// TwoFactorSecret is the TOTP secret if the user enabled a second factor.
	TwoFactorSecret string `gorm:"size:255"`
	// LastSeenAt is the timestamp of the user's most recent authenticated request.
	LastSeenAt *time.Time
	// Roles are the roles assigned to this user.
	Roles []Role `gorm:"many2many:user_roles"`
	// Permissions are the permissions granted directly to this user.
	Permissions []Permission `gorm:"many2many:user_permissions"`
	// CreatedAt is the timestamp when the user was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the user was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the User model.
func (User) TableName() string {
	return "users"
}

// IsBlocked reports whether the account is in the blocked state.
func (u *User) IsBlocked() bool {
	return u.Status == UserStatusBlocked
}

// HashPassword hashes a plaintext password using the Argon2id algorithm.
// This function should be used when creating or updating user passwords.
func HashPassword(password string) string {
	hashedPassword, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		log.Fatal().Msgf("failed to hash password: %v", err)
	}

	return hashedPassword
}

// VerifyPassword verifies a plaintext password against the user's stored hashed password.
// It uses constant-time comparison to prevent timing attacks.
func (u *User) VerifyPassword(password string) bool {
	match, err := argon2id.ComparePasswordAndHash(password, u.Password)
	if err != nil {
		log.Error().Msgf("failed to verify password: %v", err)
		return false
	}

	return match
}

// VerifyTOTP validates a one-time code against the user's TOTP secret.
// Users without a second factor configured always pass.
func (u *User) VerifyTOTP(code string) bool {
	if u.TwoFactorSecret == "" {
		return true
	}

	return totp.Validate(code, u.TwoFactorSecret)
}
