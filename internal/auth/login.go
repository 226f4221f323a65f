package auth

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/go-backoffice/backoffice/internal/db/models"
)

// Authenticate verifies a login attempt against the local database.
// Blocked accounts are refused before password verification so a blocked
// user cannot probe whether their credentials still work. When the user has
// a TOTP secret configured, totpCode must validate; users without a second
// factor ignore it.
func (s *Service) Authenticate(email, password, totpCode string) (*models.User, error) {
	var user models.User

	err := s.db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if user.IsBlocked() {
		return nil, ErrUserAccountBlocked
	}

	if !user.VerifyPassword(password) {
		return nil, ErrInvalidPassword
	}

	if !user.VerifyTOTP(totpCode) {
		return nil, ErrInvalidTOTPCode
	}

	return &user, nil
}
