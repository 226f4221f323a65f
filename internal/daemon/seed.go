package daemon

import (
	"os"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/go-backoffice/backoffice/internal/auth"
	"github.com/go-backoffice/backoffice/internal/config"
	"github.com/go-backoffice/backoffice/internal/db/controller/setting"
	"github.com/go-backoffice/backoffice/internal/db/models"
)

// permissionDescriptions documents each seeded permission in the admin UI.
var permissionDescriptions = map[string]string{
	auth.PermUserView:             "View users and the dashboard",
	auth.PermUserCreate:           "Create user accounts",
	auth.PermUserEdit:             "Edit user accounts",
	auth.PermUserDelete:           "Delete user accounts",
	auth.PermUserBlock:            "Block and unblock user accounts",
	auth.PermUserAssignRole:       "Assign and remove user roles",
	auth.PermUserAssignPermission: "Grant and revoke direct user permissions",
	auth.PermRoleManage:           "Manage roles and their permissions",
	auth.PermPermissionManage:     "Manage the permission catalog",
	auth.PermSettingsManage:       "Manage site settings",
}

// seed populates the catalog tables on first start and keeps the permission
// catalog and default settings up to date on subsequent starts.
func seed(cfg *config.Config, db *gorm.DB) {
	seedPermissions(db)
	seedRoles(db)
	seedAdminUser(db)
	seedSettings(cfg, db)
}

func seedPermissions(db *gorm.DB) {
	for _, name := range auth.AllPermissions {
		p := models.Permission{Name: name, Description: permissionDescriptions[name]}

		err := db.Where("name = ?", name).FirstOrCreate(&p).Error
		if err != nil {
			log.Fatal().Err(err).Str("permission", name).Msg("failed to seed permission")
		}
	}
}

func seedRoles(db *gorm.DB) {
	roles := []models.Role{
		{Name: "super_admin", Description: "Full access to every admin operation"},
		{Name: "admin", Description: "Manage users and settings"},
		{Name: "user", Description: "Regular account without admin access"},
	}

	for i := range roles {
		err := db.Where("name = ?", roles[i].Name).FirstOrCreate(&roles[i]).Error
		if err != nil {
			log.Fatal().Err(err).Str("role", roles[i].Name).Msg("failed to seed role")
		}
	}

	// super_admin always carries the complete catalog
	var superAdmin models.Role
	if err := db.Where("name = ?", "super_admin").First(&superAdmin).Error; err != nil {
		log.Fatal().Err(err).Msg("failed to load super_admin role")
	}

	authService := auth.NewService(db)
	for _, name := range auth.AllPermissions {
		if _, err := authService.GrantRolePermission(superAdmin.ID, name); err != nil {
			log.Fatal().Err(err).Str("permission", name).Msg("failed to seed super_admin permission")
		}
	}
}

func seedAdminUser(db *gorm.DB) {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		log.Fatal().Err(err).Msg("failed to count users")
	}

	if count > 0 {
		return
	}

	admin := models.User{
		Name:     "Administrator",
		Email:    "admin@example.com",
		Password: models.HashPassword("changeme"),
		Status:   models.UserStatusActive,
	}

	if err := db.Create(&admin).Error; err != nil {
		log.Fatal().Err(err).Msg("failed to seed admin user")
	}

	if _, err := auth.NewService(db).AssignRole(admin.ID, "super_admin"); err != nil {
		log.Fatal().Err(err).Msg("failed to assign super_admin to seeded user")
	}

	log.Warn().Str("email", admin.Email).
		Msg("seeded default admin user, change its password after first login")
}

// envOr reads a seed default from the environment, used so deployments can
// preconfigure the mail group without touching the admin form.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func seedSettings(cfg *config.Config, db *gorm.DB) {
	defaults := []models.Setting{
		{Key: "site_name", Value: cfg.Title, Type: models.SettingTypeText, Group: "general", Label: "Site name", Order: 1},
		{Key: "site_description", Value: "", Type: models.SettingTypeTextarea, Group: "general", Label: "Site description", Order: 2},
		{Key: "site_logo", Value: "", Type: models.SettingTypeImage, Group: "general", Label: "Site logo", Order: 3},
		{Key: "site_favicon", Value: "", Type: models.SettingTypeImage, Group: "general", Label: "Favicon", Order: 4},
		{Key: "maintenance_mode", Value: "0", Type: models.SettingTypeBoolean, Group: "general", Label: "Maintenance mode", Order: 5},

		{Key: "facebook_url", Value: "", Type: models.SettingTypeText, Group: "social", Label: "Facebook URL", Order: 1},
		{Key: "twitter_url", Value: "", Type: models.SettingTypeText, Group: "social", Label: "Twitter URL", Order: 2},
		{Key: "instagram_url", Value: "", Type: models.SettingTypeText, Group: "social", Label: "Instagram URL", Order: 3},
		{Key: "youtube_url", Value: "", Type: models.SettingTypeText, Group: "social", Label: "YouTube URL", Order: 4},

		{Key: "seo_title", Value: "", Type: models.SettingTypeText, Group: "seo", Label: "Meta title", Order: 1},
		{Key: "seo_description", Value: "", Type: models.SettingTypeTextarea, Group: "seo", Label: "Meta description", Order: 2},
		{Key: "seo_keywords", Value: "", Type: models.SettingTypeText, Group: "seo", Label: "Meta keywords", Order: 3},

		{Key: "og_title", Value: "", Type: models.SettingTypeText, Group: "opengraph", Label: "Open Graph title", Order: 1},
		{Key: "og_description", Value: "", Type: models.SettingTypeTextarea, Group: "opengraph", Label: "Open Graph description", Order: 2},
		{Key: "og_image", Value: "", Type: models.SettingTypeImage, Group: "opengraph", Label: "Open Graph image", Order: 3},

		{Key: "twitter_card", Value: "summary", Type: models.SettingTypeText, Group: "twitter", Label: "Twitter card type", Order: 1},
		{Key: "twitter_site", Value: "", Type: models.SettingTypeText, Group: "twitter", Label: "Twitter site handle", Order: 2},

		{Key: "mail_mailer", Value: envOr("MAIL_MAILER", "smtp"), Type: models.SettingTypeText, Group: "mail", Label: "Mailer", Order: 1},
		{Key: "mail_host", Value: envOr("MAIL_HOST", "smtp.mailtrap.io"), Type: models.SettingTypeText, Group: "mail", Label: "Host", Order: 2},
		{Key: "mail_port", Value: envOr("MAIL_PORT", "587"), Type: models.SettingTypeText, Group: "mail", Label: "Port", Order: 3},
		{Key: "mail_username", Value: envOr("MAIL_USERNAME", ""), Type: models.SettingTypeText, Group: "mail", Label: "Username", Order: 4},
		{Key: "mail_password", Value: envOr("MAIL_PASSWORD", ""), Type: models.SettingTypeText, Group: "mail", Label: "Password", Order: 5},
		{Key: "mail_encryption", Value: envOr("MAIL_ENCRYPTION", "tls"), Type: models.SettingTypeText, Group: "mail", Label: "Encryption", Order: 6},
		{Key: "mail_from_address", Value: envOr("MAIL_FROM_ADDRESS", "hello@example.com"), Type: models.SettingTypeEmail, Group: "mail", Label: "From address", Order: 7},
		{Key: "mail_from_name", Value: envOr("MAIL_FROM_NAME", cfg.Title), Type: models.SettingTypeText, Group: "mail", Label: "From name", Order: 8},
	}

	for i := range defaults {
		var count int64

		err := db.Model(&models.Setting{}).
			Where("`key` = ? AND group_name = ?", defaults[i].Key, defaults[i].Group).
			Count(&count).Error
		if err != nil {
			log.Fatal().Err(err).Str("key", defaults[i].Key).Msg("failed to check setting")
		}

		if count > 0 {
			continue // never clobber values edited through the admin form
		}

		if err := setting.Upsert(db, &defaults[i]); err != nil {
			log.Fatal().Err(err).Str("key", defaults[i].Key).Msg("failed to seed setting")
		}
	}
}
