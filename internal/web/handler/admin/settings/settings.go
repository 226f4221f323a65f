// Package settings provides the grouped site settings form and its batch
// update submission.
package settings

import (
	"mime/multipart"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/go-backoffice/backoffice/internal/auth"
	"github.com/go-backoffice/backoffice/internal/config"
	appsettings "github.com/go-backoffice/backoffice/internal/settings"
	"github.com/go-backoffice/backoffice/internal/web/handler"
	"github.com/go-backoffice/backoffice/internal/web/handler/dashboard"
	"github.com/go-backoffice/backoffice/internal/web/navigation"
)

const (
	// Path is the path to the settings page.
	Path = handler.RootPath + "admin/settings"

	// TemplateName is the settings form template.
	TemplateName = "admin/settings/form"
)

// Service is the settings handler service.
type Service struct {
	handler.Service
	cfg      *config.Config
	db       *gorm.DB
	settings *appsettings.Service
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	authService *auth.Service,
	settingsSvc *appsettings.Service,
) {
	if app == nil || cfg == nil || db == nil || settingsSvc == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.cfg = cfg
	s.db = db
	s.settings = settingsSvc

	app.Get(Path,
		auth.RequirePermission(authService, auth.PermSettingsManage),
		s.Get,
	)
	app.Post(Path,
		auth.RequirePermission(authService, auth.PermSettingsManage),
		s.Update,
	)
}

func nav() *navigation.Context {
	return navigation.NewContext("Settings", "admin", "settings").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Settings", Path, true)
}

func redirectFlash(c *fiber.Ctx, kind, message string) error {
	return c.Redirect(Path + "?" + kind + "=" + url.QueryEscape(message))
}

// Get renders the grouped settings form.
func (s *Service) Get(c *fiber.Ctx) error {
	groups, err := s.settings.Grouped()
	if err != nil {
		log.Error().Err(err).Msg("failed to load settings")

		return c.Status(fiber.StatusInternalServerError).Render(TemplateName, fiber.Map{
			"Navigation": nav(),
			"Error":      "Failed to load settings",
		}, handler.BaseLayout)
	}

	return c.Render(TemplateName, fiber.Map{
		"Navigation": nav(),
		"Groups":     groups,
		"Success":    c.Query("success"),
		"Error":      c.Query("error"),
	}, handler.BaseLayout)
}

// Update applies one settings form submission, values and file uploads alike.
func (s *Service) Update(c *fiber.Ctx) error {
	values, files := submittedFields(c)

	uploads := make(map[string]appsettings.Upload, len(files))
	openFiles := make([]multipart.File, 0, len(files))

	defer func() {
		for _, f := range openFiles {
			_ = f.Close()
		}
	}()

	for key, header := range files {
		f, err := header.Open()
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to open settings upload")

			return redirectFlash(c, "error", "Failed to read uploaded file")
		}

		openFiles = append(openFiles, f)
		uploads[key] = appsettings.Upload{Filename: header.Filename, Reader: f}
	}

	if err := s.settings.UpdateBatch(values, uploads); err != nil {
		log.Error().Err(err).Msg("settings update failed")

		return redirectFlash(c, "error", "Failed to save settings")
	}

	return redirectFlash(c, "success", "Settings saved")
}

// submittedFields collects the form values and file headers from either a
// multipart or urlencoded body. Repeated fields keep their first value.
func submittedFields(c *fiber.Ctx) (map[string]string, map[string]*multipart.FileHeader) {
	values := make(map[string]string)
	files := make(map[string]*multipart.FileHeader)

	if form, err := c.MultipartForm(); err == nil && form != nil {
		for key, fieldValues := range form.Value {
			if len(fieldValues) > 0 {
				values[key] = fieldValues[0]
			}
		}

		for key, headers := range form.File {
			if len(headers) > 0 && headers[0].Filename != "" {
				files[key] = headers[0]
			}
		}

		return values, files
	}

	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		if _, seen := values[string(key)]; !seen {
			values[string(key)] = string(value)
		}
	})

	return values, files
}
