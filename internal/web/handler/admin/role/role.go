// Package role provides handlers for managing roles and their permission
// sets in the admin area.
package role

import (
	"errors"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/go-backoffice/backoffice/internal/auth"
	"github.com/go-backoffice/backoffice/internal/config"
	"github.com/go-backoffice/backoffice/internal/db/models"
	"github.com/go-backoffice/backoffice/internal/web/handler"
	"github.com/go-backoffice/backoffice/internal/web/handler/dashboard"
	"github.com/go-backoffice/backoffice/internal/web/navigation"
)

const (
	// Path is the base path for role management.
	Path = handler.RootPath + "admin/role"

	// TemplateList is the template for listing roles.
	TemplateList = "admin/role/list"
	// TemplateForm is the template for creating/updating a role.
	TemplateForm = "admin/role/form"
	// TemplateShow is the template for a single role.
	TemplateShow = "admin/role/show"
)

// Row is one role in the list view with its usage counts.
type Row struct {
	models.Role
	UserCount       int64
	PermissionCount int64
}

// Service provides CRUD operations for roles.
type Service struct {
	handler.Service
	cfg         *config.Config
	db          *gorm.DB
	authService *auth.Service
	validator   *validator.Validate
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, authService *auth.Service) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.db = db
	s.cfg = cfg
	s.authService = authService
	s.validator = validator.New()

	app.Get(Path,
		auth.RequirePermission(authService, auth.PermRoleManage),
		s.List,
	)
	app.Get(Path+"/new",
		auth.RequirePermission(authService, auth.PermRoleManage),
		s.New,
	)
	app.Post(Path,
		auth.RequirePermission(authService, auth.PermRoleManage),
		s.Create,
	)
	app.Get(Path+"/:id",
		auth.RequirePermission(authService, auth.PermRoleManage),
		s.Show,
	)
	app.Get(Path+"/:id/edit",
		auth.RequirePermission(authService, auth.PermRoleManage),
		s.Edit,
	)
	app.Post(Path+"/:id",
		auth.RequirePermission(authService, auth.PermRoleManage),
		s.Update,
	)
	app.Post(Path+"/:id/delete",
		auth.RequirePermission(authService, auth.PermRoleManage),
		s.Delete,
	)
	app.Post(Path+"/:id/permissions",
		auth.RequirePermission(authService, auth.PermRoleManage),
		s.GrantPermission,
	)
	app.Post(Path+"/:id/permissions/revoke",
		auth.RequirePermission(authService, auth.PermRoleManage),
		s.RevokePermission,
	)
}

func listNav() *navigation.Context {
	return navigation.NewContext("Roles", "admin", "role").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Roles", Path, true)
}

func targetID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid role id")
	}

	return uint(id), nil
}

func redirectFlash(c *fiber.Ctx, target, kind, message string) error {
	return c.Redirect(target + "?" + kind + "=" + url.QueryEscape(message))
}

// formMultiValue reads all submitted values for a checkbox group, from
// either multipart or urlencoded bodies.
func formMultiValue(c *fiber.Ctx, key string) []string {
	if form, err := c.MultipartForm(); err == nil && form != nil {
		if values, ok := form.Value[key]; ok {
			return values
		}
	}

	raw := c.Request().PostArgs().PeekMulti(key)

	values := make([]string, 0, len(raw))
	for _, v := range raw {
		values = append(values, string(v))
	}

	return values
}

func (s *Service) renderListError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).Render(TemplateList, fiber.Map{
		"Navigation": listNav(),
		"Error":      message,
	}, handler.BaseLayout)
}

// List shows all roles with user and permission counts.
func (s *Service) List(c *fiber.Ctx) error {
	var roles []models.Role
	if err := s.db.Order("name ASC").Find(&roles).Error; err != nil {
		log.Error().Err(err).Msg("query roles failed")

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load roles")
	}

	rows := make([]Row, 0, len(roles))

	for _, role := range roles {
		users, err := s.authService.RoleUserCount(role.ID)
		if err != nil {
			return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load roles")
		}

		permissions, err := s.authService.RolePermissionCount(role.ID)
		if err != nil {
			return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load roles")
		}

		rows = append(rows, Row{Role: role, UserCount: users, PermissionCount: permissions})
	}

	return c.Render(TemplateList, fiber.Map{
		"Navigation": listNav(),
		"Roles":      rows,
		"Success":    c.Query("success"),
		"Info":       c.Query("info"),
		"Error":      c.Query("error"),
	}, handler.BaseLayout)
}

// New shows the creation form with the permission catalog.
func (s *Service) New(c *fiber.Ctx) error {
	nav := navigation.NewContext("New Role", "admin", "role").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Roles", Path, false).
		AddBreadcrumb("New", Path+"/new", true)

	var permissions []models.Permission
	if err := s.db.Order("name ASC").Find(&permissions).Error; err != nil {
		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load permissions")
	}

	return c.Render(TemplateForm, fiber.Map{
		"Navigation":     nav,
		"Role":           models.Role{},
		"AllPermissions": permissions,
		"IsCreate":       true,
	}, handler.BaseLayout)
}

type roleForm struct {
	Name        string `form:"name"        validate:"required,min=2,max=100"`
	Description string `form:"description" validate:"max=255"`
}

// Create creates a role together with its initial permissions, atomically.
func (s *Service) Create(c *fiber.Ctx) error {
	var in roleForm
	if err := c.BodyParser(&in); err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Invalid form data")
	}

	if err := s.validator.Struct(in); err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Please correct the highlighted errors")
	}

	permissionNames := formMultiValue(c, "permissions")

	role, err := s.authService.CreateRole(in.Name, in.Description, permissionNames)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRoleNameExists):
			return s.renderListError(c, fiber.StatusBadRequest, "A role with this name already exists")
		case errors.Is(err, auth.ErrPermissionNotFound):
			return s.renderListError(c, fiber.StatusBadRequest, "Unknown permission selected")
		default:
			log.Error().Err(err).Str("role", in.Name).Msg("create role failed")

			return s.renderListError(c, fiber.StatusInternalServerError, "Failed to create role")
		}
	}

	return redirectFlash(c, Path+"/"+strconv.FormatUint(uint64(role.ID), 10), "success", "Role created")
}

// Show displays a role with its permissions and the grant form.
func (s *Service) Show(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	var role models.Role
	if err := s.db.Preload("Permissions").First(&role, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load role")
	}

	var allPermissions []models.Permission
	if err := s.db.Order("name ASC").Find(&allPermissions).Error; err != nil {
		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load permissions")
	}

	users, err := s.authService.RoleUserCount(role.ID)
	if err != nil {
		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load role")
	}

	nav := navigation.NewContext(role.Name, "admin", "role").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Roles", Path, false).
		AddBreadcrumb(role.Name, Path+"/"+strconv.FormatUint(uint64(id), 10), true)

	return c.Render(TemplateShow, fiber.Map{
		"Navigation":     nav,
		"Role":           role,
		"AllPermissions": allPermissions,
		"UserCount":      users,
		"Success":        c.Query("success"),
		"Info":           c.Query("info"),
		"Error":          c.Query("error"),
	}, handler.BaseLayout)
}

// Edit shows the edit form for a role.
func (s *Service) Edit(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	var role models.Role
	if err := s.db.Preload("Permissions").First(&role, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load role")
	}

	var allPermissions []models.Permission
	if err := s.db.Order("name ASC").Find(&allPermissions).Error; err != nil {
		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load permissions")
	}

	nav := navigation.NewContext("Edit Role", "admin", "role").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Roles", Path, false).
		AddBreadcrumb("Edit", Path+"/"+strconv.FormatUint(uint64(id), 10)+"/edit", true)

	return c.Render(TemplateForm, fiber.Map{
		"Navigation":     nav,
		"Role":           role,
		"AllPermissions": allPermissions,
		"IsCreate":       false,
	}, handler.BaseLayout)
}

// Update updates a role's name and description and syncs its permission set
// to the submitted selection.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	var in roleForm
	if err := c.BodyParser(&in); err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Invalid form data")
	}

	if err := s.validator.Struct(in); err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Please correct the highlighted errors")
	}

	var role models.Role
	if err := s.db.First(&role, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load role")
	}

	role.Name = in.Name
	role.Description = in.Description

	if err := s.db.Save(&role).Error; err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Failed to update role: "+err.Error())
	}

	if err := s.authService.SyncRolePermissions(role.ID, formMultiValue(c, "permissions")); err != nil {
		if errors.Is(err, auth.ErrPermissionNotFound) {
			return s.renderListError(c, fiber.StatusBadRequest, "Unknown permission selected")
		}

		log.Error().Err(err).Uint("role_id", role.ID).Msg("sync role permissions failed")

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to update role permissions")
	}

	return redirectFlash(c, Path+"/"+strconv.FormatUint(uint64(id), 10), "success", "Role updated")
}

// Delete removes a role. Rejected while any user still holds it.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	if err := s.authService.DeleteRole(id); err != nil {
		switch {
		case errors.Is(err, auth.ErrRoleNotFound):
			return c.Redirect(Path)
		case errors.Is(err, auth.ErrRoleInUse):
			return redirectFlash(c, Path, "error", "Cannot delete a role that is still assigned to users")
		default:
			log.Error().Err(err).Uint("role_id", id).Msg("delete role failed")

			return s.renderListError(c, fiber.StatusInternalServerError, "Failed to delete role")
		}
	}

	return redirectFlash(c, Path, "success", "Role deleted")
}

// GrantPermission attaches the submitted permission to the role.
func (s *Service) GrantPermission(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	target := Path + "/" + strconv.FormatUint(uint64(id), 10)
	permissionName := c.FormValue("permission")

	outcome, err := s.authService.GrantRolePermission(id, permissionName)
	if err != nil {
		if errors.Is(err, auth.ErrPermissionNotFound) {
			return redirectFlash(c, target, "error", "Permission not found")
		}

		log.Error().Err(err).Uint("role_id", id).Str("permission", permissionName).
			Msg("grant role permission failed")

		return redirectFlash(c, target, "error", "Failed to grant permission")
	}

	if outcome == auth.OutcomeAlreadyPresent {
		return redirectFlash(c, target, "info", "Role already has this permission")
	}

	return redirectFlash(c, target, "success", "Permission granted")
}

// RevokePermission detaches the submitted permission from the role.
func (s *Service) RevokePermission(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	target := Path + "/" + strconv.FormatUint(uint64(id), 10)
	permissionName := c.FormValue("permission")

	outcome, err := s.authService.RevokeRolePermission(id, permissionName)
	if err != nil {
		if errors.Is(err, auth.ErrPermissionNotFound) {
			return redirectFlash(c, target, "error", "Permission not found")
		}

		log.Error().Err(err).Uint("role_id", id).Str("permission", permissionName).
			Msg("revoke role permission failed")

		return redirectFlash(c, target, "error", "Failed to revoke permission")
	}

	if outcome == auth.OutcomeAlreadyAbsent {
		return redirectFlash(c, target, "info", "Role does not have this permission")
	}

	return redirectFlash(c, target, "success", "Permission revoked")
}
