// Package blocked enforces account blocks on live sessions. Session
// revocation at block time handles the common case; this middleware is the
// backstop that re-checks the persisted status on every request, so a block
// takes effect even if a session slipped past revocation.
package blocked

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/go-backoffice/backoffice/internal/db/models"
	"github.com/go-backoffice/backoffice/internal/web/handler/login"
	"github.com/go-backoffice/backoffice/internal/web/session"
)

// Middleware returns a Fiber middleware that destroys the session and
// redirects to login when the session's user has been blocked or deleted.
func Middleware(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies("session")
		if sessionID == "" {
			return c.Next()
		}

		sessData := new(session.Data)
		if err := sessData.Read(sessionID); err != nil || sessData.User.ID == 0 {
			return c.Next()
		}

		var user models.User
		if err := db.First(&user, sessData.User.ID).Error; err != nil {
			// user row is gone, the session is orphaned
			return evict(c, sessData.User.ID)
		}

		if user.IsBlocked() {
			log.Info().Uint64("user_id", user.ID).Msg("blocked user's session destroyed")
			return evict(c, user.ID)
		}

		return c.Next()
	}
}

func evict(c *fiber.Ctx, userID uint64) error {
	if err := session.RevokeUser(userID); err != nil {
		log.Error().Err(err).Uint64("user_id", userID).Msg("failed to revoke sessions")
	}

	c.Cookie(&fiber.Cookie{
		Name:     "session",
		Value:    "",
		MaxAge:   -1,
		Secure:   true,
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return c.Redirect(login.Path)
}
