package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-backoffice/backoffice/internal/db/models"
)

func TestAuthenticate(t *testing.T) {
	svc, db := setupTestService(t)

	user := &models.User{
		Name:     "Jane Admin",
		Email:    "jane@example.com",
		Password: models.HashPassword("correct horse"),
		Status:   models.UserStatusActive,
	}
	require.NoError(t, db.Create(user).Error)

	blocked := &models.User{
		Name:     "Blocked User",
		Email:    "blocked@example.com",
		Password: models.HashPassword("correct horse"),
		Status:   models.UserStatusBlocked,
	}
	require.NoError(t, db.Create(blocked).Error)

	testCases := []struct {
		name          string
		email         string
		password      string
		expectedError error
	}{
		{
			name:          "unknown email",
			email:         "nobody@example.com",
			password:      "correct horse",
			expectedError: ErrUserNotFound,
		},
		{
			name:          "blocked account refused before password check",
			email:         "blocked@example.com",
			password:      "correct horse",
			expectedError: ErrUserAccountBlocked,
		},
		{
			name:          "wrong password",
			email:         "jane@example.com",
			password:      "battery staple",
			expectedError: ErrInvalidPassword,
		},
		{
			name:     "valid credentials",
			email:    "jane@example.com",
			password: "correct horse",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.Authenticate(tc.email, tc.password, "")

			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, tc.email, got.Email)
			}
		})
	}
}

func TestAuthenticateTOTP(t *testing.T) {
	svc, db := setupTestService(t)

	user := &models.User{
		Name:            "Second Factor",
		Email:           "totp@example.com",
		Password:        models.HashPassword("correct horse"),
		Status:          models.UserStatusActive,
		TwoFactorSecret: "JBSWY3DPEHPK3PXP",
	}
	require.NoError(t, db.Create(user).Error)

	// wrong code with valid credentials
	_, err := svc.Authenticate("totp@example.com", "correct horse", "000000")
	require.ErrorIs(t, err, ErrInvalidTOTPCode)

	// no second factor configured: code is ignored
	plain := &models.User{
		Name:     "No Second Factor",
		Email:    "plain@example.com",
		Password: models.HashPassword("correct horse"),
		Status:   models.UserStatusActive,
	}
	require.NoError(t, db.Create(plain).Error)

	got, err := svc.Authenticate("plain@example.com", "correct horse", "000000")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
