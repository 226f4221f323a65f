// Package permission provides handlers for managing the permission catalog
// in the admin area.
package permission

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
	// Path is the base path for permission management.
	Path = handler.RootPath + "admin/permission"

	// TemplateList is the template for listing permissions.
	TemplateList = "admin/permission/list"
	// TemplateForm is the template for creating/updating a permission.
	TemplateForm = "admin/permission/form"
	// TemplateShow is the template for a single permission.
	TemplateShow = "admin/permission/show"
)

// Row is one permission in the list view with its usage counts.
type Row struct {
	models.Permission
	RoleCount int64
	UserCount int64
}

// Service provides CRUD operations for permissions.
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
		auth.RequirePermission(authService, auth.PermPermissionManage),
		s.List,
	)
	app.Get(Path+"/new",
		auth.RequirePermission(authService, auth.PermPermissionManage),
		s.New,
	)
	app.Post(Path,
		auth.RequirePermission(authService, auth.PermPermissionManage),
		s.Create,
	)
	app.Get(Path+"/:id",
		auth.RequirePermission(authService, auth.PermPermissionManage),
		s.Show,
	)
	app.Get(Path+"/:id/edit",
		auth.RequirePermission(authService, auth.PermPermissionManage),
		s.Edit,
	)
	app.Post(Path+"/:id",
		auth.RequirePermission(authService, auth.PermPermissionManage),
		s.Update,
	)
	app.Post(Path+"/:id/delete",
		auth.RequirePermission(authService, auth.PermPermissionManage),
		s.Delete,
	)
	app.Post(Path+"/:id/roles",
		auth.RequirePermission(authService, auth.PermPermissionManage),
		s.AttachRole,
	)
	app.Post(Path+"/:id/roles/remove",
		auth.RequirePermission(authService, auth.PermPermissionManage),
		s.DetachRole,
	)
}

func listNav() *navigation.Context {
	return navigation.NewContext("Permissions", "admin", "permission").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Permissions", Path, true)
}

func targetID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid permission id")
	}

	return uint(id), nil
}

func redirectFlash(c *fiber.Ctx, target, kind, message string) error {
	return c.Redirect(target + "?" + kind + "=" + url.QueryEscape(message))
}

func (s *Service) renderListError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).Render(TemplateList, fiber.Map{
		"Navigation": listNav(),
		"Error":      message,
	}, handler.BaseLayout)
}

// List shows all permissions with the roles and users carrying each.
func (s *Service) List(c *fiber.Ctx) error {
	var permissions []models.Permission
	if err := s.db.Order("name ASC").Find(&permissions).Error; err != nil {
		log.Error().Err(err).Msg("query permissions failed")

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load permissions")
	}

	rows := make([]Row, 0, len(permissions))

	for _, permission := range permissions {
		roles, err := s.authService.PermissionRoleCount(permission.ID)
		if err != nil {
			return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load permissions")
		}

		users, err := s.authService.PermissionUserCount(permission.ID)
		if err != nil {
			return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load permissions")
		}

		rows = append(rows, Row{Permission: permission, RoleCount: roles, UserCount: users})
	}

	return c.Render(TemplateList, fiber.Map{
		"Navigation":  listNav(),
		"Permissions": rows,
		"Success":     c.Query("success"),
		"Info":        c.Query("info"),
		"Error":       c.Query("error"),
	}, handler.BaseLayout)
}

// New shows the creation form.
func (s *Service) New(c *fiber.Ctx) error {
	nav := navigation.NewContext("New Permission", "admin", "permission").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Permissions", Path, false).
		AddBreadcrumb("New", Path+"/new", true)

	return c.Render(TemplateForm, fiber.Map{
		"Navigation": nav,
		"Permission": models.Permission{},
		"IsCreate":   true,
	}, handler.BaseLayout)
}

type permissionForm struct {
	Name        string `form:"name"        validate:"required,min=2,max=100"`
	Description string `form:"description" validate:"max=255"`
}

// Create adds a permission to the catalog.
func (s *Service) Create(c *fiber.Ctx) error {
	var in permissionForm
	if err := c.BodyParser(&in); err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Invalid form data")
	}

	if err := s.validator.Struct(in); err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Please correct the highlighted errors")
	}

	if _, err := s.authService.CreatePermission(in.Name, in.Description); err != nil {
		if errors.Is(err, auth.ErrPermissionNameExists) {
			return s.renderListError(c, fiber.StatusBadRequest, "A permission with this name already exists")
		}

		log.Error().Err(err).Str("permission", in.Name).Msg("create permission failed")

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to create permission")
	}

	return redirectFlash(c, Path, "success", "Permission created")
}

// Show displays a permission with the roles carrying it and the attach form.
func (s *Service) Show(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	var permission models.Permission
	if err := s.db.First(&permission, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load permission")
	}

	var attachedRoles []models.Role

	err = s.db.
		Joins("JOIN role_permissions ON role_permissions.role_id = roles.id").
		Where("role_permissions.permission_id = ?", id).
		Order("roles.name ASC").
		Find(&attachedRoles).Error
	if err != nil {
		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load permission")
	}

	var allRoles []models.Role
	if err := s.db.Order("name ASC").Find(&allRoles).Error; err != nil {
		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load roles")
	}

	users, err := s.authService.PermissionUserCount(permission.ID)
	if err != nil {
		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load permission")
	}

	nav := navigation.NewContext(permission.Name, "admin", "permission").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Permissions", Path, false).
		AddBreadcrumb(permission.Name, Path+"/"+strconv.FormatUint(uint64(id), 10), true)

	return c.Render(TemplateShow, fiber.Map{
		"Navigation":    nav,
		"Permission":    permission,
		"AttachedRoles": attachedRoles,
		"AllRoles":      allRoles,
		"UserCount":     users,
		"Success":       c.Query("success"),
		"Info":          c.Query("info"),
		"Error":         c.Query("error"),
	}, handler.BaseLayout)
}

// Edit shows the edit form.
func (s *Service) Edit(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	var permission models.Permission
	if err := s.db.First(&permission, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load permission")
	}

	nav := navigation.NewContext("Edit Permission", "admin", "permission").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Permissions", Path, false).
		AddBreadcrumb("Edit", Path+"/"+strconv.FormatUint(uint64(id), 10)+"/edit", true)

	return c.Render(TemplateForm, fiber.Map{
		"Navigation": nav,
		"Permission": permission,
		"IsCreate":   false,
	}, handler.BaseLayout)
}

// Update changes a permission's name or description.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	var in permissionForm
	if err := c.BodyParser(&in); err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Invalid form data")
	}

	if err := s.validator.Struct(in); err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Please correct the highlighted errors")
	}

	var permission models.Permission
	if err := s.db.First(&permission, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load permission")
	}

	permission.Name = in.Name
	permission.Description = in.Description

	if err := s.db.Save(&permission).Error; err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Failed to update permission: "+err.Error())
	}

	return redirectFlash(c, Path, "success", "Permission updated")
}

// Delete removes a permission. Rejected while any role or user still
// carries it.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	if err := s.authService.DeletePermission(id); err != nil {
		switch {
		case errors.Is(err, auth.ErrPermissionNotFound):
			return c.Redirect(Path)
		case errors.Is(err, auth.ErrPermissionInUse):
			return redirectFlash(c, Path, "error", "Cannot delete a permission that is still in use")
		default:
			log.Error().Err(err).Uint("permission_id", id).Msg("delete permission failed")

			return s.renderListError(c, fiber.StatusInternalServerError, "Failed to delete permission")
		}
	}

	return redirectFlash(c, Path, "success", "Permission deleted")
}

// roleByName resolves a submitted role name, needed because the attach forms
// post names rather than IDs.
func (s *Service) roleByName(name string) (*models.Role, error) {
	var role models.Role
	if err := s.db.Where("name = ?", name).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrRoleNotFound
		}

		return nil, err
	}

	return &role, nil
}

// AttachRole attaches this permission to the submitted role.
func (s *Service) AttachRole(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	target := Path + "/" + strconv.FormatUint(uint64(id), 10)

	var permission models.Permission
	if err := s.db.First(&permission, id).Error; err != nil {
		return c.Redirect(Path)
	}

	role, err := s.roleByName(c.FormValue("role"))
	if err != nil {
		if errors.Is(err, auth.ErrRoleNotFound) {
			return redirectFlash(c, target, "error", "Role not found")
		}

		return redirectFlash(c, target, "error", "Failed to attach role")
	}

	outcome, err := s.authService.GrantRolePermission(role.ID, permission.Name)
	if err != nil {
		log.Error().Err(err).Str("role", role.Name).Str("permission", permission.Name).
			Msg("attach role failed")

		return redirectFlash(c, target, "error", "Failed to attach role")
	}

	if outcome == auth.OutcomeAlreadyPresent {
		return redirectFlash(c, target, "info", "Role already has this permission")
	}

	return redirectFlash(c, target, "success", "Role attached")
}

// DetachRole detaches this permission from the submitted role.
func (s *Service) DetachRole(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	target := Path + "/" + strconv.FormatUint(uint64(id), 10)

	var permission models.Permission
	if err := s.db.First(&permission, id).Error; err != nil {
		return c.Redirect(Path)
	}

	role, err := s.roleByName(c.FormValue("role"))
	if err != nil {
		if errors.Is(err, auth.ErrRoleNotFound) {
			return redirectFlash(c, target, "error", "Role not found")
		}

		return redirectFlash(c, target, "error", "Failed to detach role")
	}

	outcome, err := s.authService.RevokeRolePermission(role.ID, permission.Name)
	if err != nil {
		log.Error().Err(err).Str("role", role.Name).Str("permission", permission.Name).
			Msg("detach role failed")

		return redirectFlash(c, target, "error", "Failed to detach role")
	}

	if outcome == auth.OutcomeAlreadyAbsent {
		return redirectFlash(c, target, "info", "Role does not have this permission")
	}

	return redirectFlash(c, target, "success", "Role detached")
}
