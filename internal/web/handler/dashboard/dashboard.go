// Package dashboard provides the admin landing page with entity counts and
// the currently-online users.
package dashboard

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/go-backoffice/backoffice/internal/auth"
	"github.com/go-backoffice/backoffice/internal/config"
	"github.com/go-backoffice/backoffice/internal/db/models"
	"github.com/go-backoffice/backoffice/internal/presence"
	"github.com/go-backoffice/backoffice/internal/web/handler"
	"github.com/go-backoffice/backoffice/internal/web/navigation"
)

const (
	// Path is the path to the dashboard page.
	Path = handler.RootPath + "dashboard"

	// TemplateName is the name of the dashboard template.
	TemplateName = "dashboard/dashboard"

	// recentUserLimit caps how many recently-seen users the online panel inspects.
	recentUserLimit = 50
)

// Counts holds the entity totals shown on the dashboard.
type Counts struct {
	Users       int64
	Roles       int64
	Permissions int64
	Settings    int64
}

// OnlineUser is one row of the currently-online panel.
type OnlineUser struct {
	ID           uint64
	Name         string
	Email        string
	LastSeenText string
}

// Service is the dashboard handler service.
type Service struct {
	handler.Service
	cfg     *config.Config
	db      *gorm.DB
	tracker *presence.Tracker
}

// Handler is the dashboard handler.
var Handler = Service{}

// Init initializes the dashboard handler.
func (s *Service) Init(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	authService *auth.Service,
	tracker *presence.Tracker,
) {
	if app == nil || cfg == nil || db == nil || tracker == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.db = db
	s.cfg = cfg
	s.tracker = tracker

	app.Get(Path,
		auth.RequirePermission(authService, auth.PermUserView),
		s.Get,
	)
}

// Get handles the dashboard page rendering.
func (s *Service) Get(c *fiber.Ctx) error {
	nav := navigation.NewContext("Dashboard", "dashboard", "dashboard").
		AddBreadcrumb("Home", Path, false).
		AddBreadcrumb("Dashboard", Path, true)

	counts, err := s.entityCounts()
	if err != nil {
		log.Error().Err(err).Msg("failed to load dashboard counts")

		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load dashboard")
	}

	online, err := s.onlineUsers()
	if err != nil {
		log.Error().Err(err).Msg("failed to load online users")

		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load dashboard")
	}

	return c.Render(TemplateName, fiber.Map{
		"Navigation":  nav,
		"Counts":      counts,
		"OnlineUsers": online,
	}, handler.BaseLayout)
}

func (s *Service) entityCounts() (Counts, error) {
	var counts Counts

	if err := s.db.Model(&models.User{}).Count(&counts.Users).Error; err != nil {
		return Counts{}, err
	}

	if err := s.db.Model(&models.Role{}).Count(&counts.Roles).Error; err != nil {
		return Counts{}, err
	}

	if err := s.db.Model(&models.Permission{}).Count(&counts.Permissions).Error; err != nil {
		return Counts{}, err
	}

	if err := s.db.Model(&models.Setting{}).Count(&counts.Settings).Error; err != nil {
		return Counts{}, err
	}

	return counts, nil
}

// onlineUsers returns the users whose presence flag is currently live.
// Candidates are narrowed by last_seen_at first; the flag check is the
// authority.
func (s *Service) onlineUsers() ([]OnlineUser, error) {
	var candidates []models.User

	err := s.db.Where("last_seen_at IS NOT NULL").
		Order("last_seen_at DESC").
		Limit(recentUserLimit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	online := make([]OnlineUser, 0, len(candidates))

	for i := range candidates {
		user := &candidates[i]

		isOnline, err := s.tracker.IsOnline(user.ID)
		if err != nil {
			return nil, err
		}

		if !isOnline {
			continue
		}

		text, err := s.tracker.LastSeenText(user)
		if err != nil {
			return nil, err
		}

		online = append(online, OnlineUser{
			ID:           user.ID,
			Name:         user.Name,
			Email:        user.Email,
			LastSeenText: text,
		})
	}

	return online, nil
}
