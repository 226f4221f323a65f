// Package activity records presence for every authenticated request.
package activity

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/go-backoffice/backoffice/internal/presence"
	"github.com/go-backoffice/backoffice/internal/web/session"
)

// Middleware returns a Fiber middleware that touches the presence tracker
// for the session user. Tracking failures are logged, never fatal: a broken
// presence flag must not take the request down with it.
func Middleware(tracker *presence.Tracker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies("session")
		if sessionID == "" {
			return c.Next()
		}

		sessData := new(session.Data)
		if err := sessData.Read(sessionID); err != nil || sessData.User.ID == 0 {
			return c.Next()
		}

		if err := tracker.Touch(&sessData.User); err != nil {
			log.Error().Err(err).Uint64("user_id", sessData.User.ID).
				Msg("failed to track user activity")
		}

		return c.Next()
	}
}
