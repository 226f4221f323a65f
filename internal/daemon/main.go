// Package daemon wires the database, caches, and web service together and
// runs the application.
package daemon

import (
	"fmt"

	"github.com/gofiber/storage/memory/v2"
	sessionmysql "github.com/gofiber/storage/mysql/v2"
	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/go-backoffice/backoffice/internal/cache"
	"github.com/go-backoffice/backoffice/internal/config"
	"github.com/go-backoffice/backoffice/internal/db/dsn"
	"github.com/go-backoffice/backoffice/internal/db/models"
	"github.com/go-backoffice/backoffice/internal/presence"
	"github.com/go-backoffice/backoffice/internal/settings"
	"github.com/go-backoffice/backoffice/internal/web"
	"github.com/go-backoffice/backoffice/internal/web/session"
	"github.com/go-backoffice/backoffice/internal/web/upload"
)

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	webService *web.Service
}

// Start starts the Daemon's web service and blocks until shutdown.
func (d *Daemon) Start() error {
	go d.webService.WaitShutdown()

	return d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) *Daemon {
	if cfg == nil {
		log.Fatal().Msg("config is nil")
		return nil
	}

	dbDriver := gormmysql.Open(dsn.Create(cfg))

	db, err := gorm.Open(dbDriver, &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
		return nil
	}

	if err = db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.UserRole{},
		&models.UserPermission{},
		&models.RolePermission{},
		&models.Setting{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
		return nil
	}

	seed(cfg, db)

	// Sessions persist in MySQL so logins survive restarts.
	sessionStorage := sessionmysql.New(sessionmysql.Config{
		ConnectionURI: dsn.Create(cfg),
		Table:         "sessions",
	})

	session.Init(sessionStorage)

	// Presence flags and the settings cache are ephemeral and get their own
	// in-process backends: the settings cache flush must not touch presence.
	tracker, err := presence.New(db, memory.New())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init presence tracker")
		return nil
	}

	settingsCache, err := cache.New(memory.New(), "setting_")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init settings cache")
		return nil
	}

	fileStore, err := upload.NewDiskStore(cfg.Webserver.UploadPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init upload store")
		return nil
	}

	settingsSvc, err := settings.New(db, settingsCache, fileStore, cfg.Title)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init settings service")
		return nil
	}

	mailCfg, err := settingsSvc.MailConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive mail configuration")
		return nil
	}

	log.Info().
		Str("mailer", mailCfg.Mailer).
		Str("host", mailCfg.Host).
		Int("port", mailCfg.Port).
		Str("from", mailCfg.FromAddress).
		Msg("mail configuration loaded")

	return &Daemon{
		cfg:        cfg,
		webService: web.New(cfg, db, tracker, settingsSvc),
	}
}
