// Package user provides handlers for managing users (CRUD, lifecycle, and
// role/permission assignment) in the admin area.
package user

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
	"github.com/go-backoffice/backoffice/internal/presence"
	"github.com/go-backoffice/backoffice/internal/web/handler"
	"github.com/go-backoffice/backoffice/internal/web/handler/dashboard"
	"github.com/go-backoffice/backoffice/internal/web/navigation"
	"github.com/go-backoffice/backoffice/internal/web/session"
)

const (
	// Path is the base path for user management.
	Path = handler.RootPath + "admin/user"

	// TemplateList is the template for listing users.
	TemplateList = "admin/user/list"
	// TemplateForm is the template for creating/updating a user.
	TemplateForm = "admin/user/form"
	// TemplateShow is the template for a single user with assignment forms.
	TemplateShow = "admin/user/show"

	// DefaultPageSize for pagination.
	DefaultPageSize = 25
)

// Row is one user in the list view, enriched with the presence read fields.
type Row struct {
	models.User
	IsOnline         bool
	OnlineStatus     presence.Status
	LastSeenText     string
	LastSeenDetailed presence.Detailed
}

// Service provides CRUD, lifecycle, and assignment operations for users.
type Service struct {
	handler.Service
	cfg         *config.Config
	db          *gorm.DB
	authService *auth.Service
	tracker     *presence.Tracker
	validator   *validator.Validate
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
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
	s.authService = authService
	s.tracker = tracker
	s.validator = validator.New()

	app.Get(Path,
		auth.RequirePermission(authService, auth.PermUserView),
		s.List,
	)
	app.Get(Path+"/new",
		auth.RequirePermission(authService, auth.PermUserCreate),
		s.New,
	)
	app.Post(Path,
		auth.RequirePermission(authService, auth.PermUserCreate),
		s.Create,
	)
	app.Get(Path+"/:id",
		auth.RequirePermission(authService, auth.PermUserView),
		s.Show,
	)
	app.Get(Path+"/:id/edit",
		auth.RequirePermission(authService, auth.PermUserEdit),
		s.Edit,
	)
	app.Post(Path+"/:id",
		auth.RequirePermission(authService, auth.PermUserEdit),
		s.Update,
	)
	app.Post(Path+"/:id/delete",
		auth.RequirePermission(authService, auth.PermUserDelete),
		s.Delete,
	)
	app.Post(Path+"/:id/block",
		auth.RequirePermission(authService, auth.PermUserBlock),
		s.Block,
	)
	app.Post(Path+"/:id/unblock",
		auth.RequirePermission(authService, auth.PermUserBlock),
		s.Unblock,
	)
	app.Post(Path+"/:id/roles",
		auth.RequirePermission(authService, auth.PermUserAssignRole),
		s.AssignRole,
	)
	app.Post(Path+"/:id/roles/remove",
		auth.RequirePermission(authService, auth.PermUserAssignRole),
		s.RemoveRole,
	)
	app.Post(Path+"/:id/permissions",
		auth.RequirePermission(authService, auth.PermUserAssignPermission),
		s.GrantPermission,
	)
	app.Post(Path+"/:id/permissions/revoke",
		auth.RequirePermission(authService, auth.PermUserAssignPermission),
		s.RevokePermission,
	)
}

func listNav() *navigation.Context {
	return navigation.NewContext("Users", "admin", "user").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Users", Path, true)
}

// currentUserID resolves the acting user from the session cookie.
func currentUserID(c *fiber.Ctx) uint64 {
	sessionID := c.Cookies("session")
	if sessionID == "" {
		return 0
	}

	sessionData := new(session.Data)
	if err := sessionData.Read(sessionID); err != nil {
		return 0
	}

	return sessionData.User.ID
}

func targetID(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid user id")
	}

	return id, nil
}

// redirectFlash redirects with a one-shot message in the query string.
func redirectFlash(c *fiber.Ctx, target, kind, message string) error {
	return c.Redirect(target + "?" + kind + "=" + url.QueryEscape(message))
}

func (s *Service) renderListError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).Render(TemplateList, fiber.Map{
		"Navigation": listNav(),
		"Error":      message,
	}, handler.BaseLayout)
}

// List shows users with pagination, search, and presence information.
func (s *Service) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	pageSize := c.QueryInt("pageSize", DefaultPageSize)
	if pageSize < 1 || pageSize > 100 {
		pageSize = DefaultPageSize
	}

	search := c.Query("search", "")

	var (
		users      []models.User
		totalCount int64
		tx         = s.db.Model(&models.User{})
	)

	if search != "" {
		like := "%" + search + "%"
		tx = tx.Where("name LIKE ? OR email LIKE ?", like, like)
	}

	if err := tx.Count(&totalCount).Error; err != nil {
		log.Error().Err(err).Msg("count users failed")

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load users")
	}

	totalPages := int((totalCount + int64(pageSize) - 1) / int64(pageSize))
	if totalPages == 0 {
		totalPages = 1
	}

	if page > totalPages {
		page = totalPages
	}

	offset := (page - 1) * pageSize
	if err := tx.Preload("Roles").Order("id DESC").Limit(pageSize).Offset(offset).Find(&users).Error; err != nil {
		log.Error().Err(err).Msg("query users failed")

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load users")
	}

	rows := make([]Row, 0, len(users))

	for i := range users {
		row, err := s.presenceRow(&users[i])
		if err != nil {
			log.Error().Err(err).Uint64("user_id", users[i].ID).Msg("failed to resolve presence")

			return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load users")
		}

		rows = append(rows, row)
	}

	return c.Render(TemplateList, fiber.Map{
		"Navigation":    listNav(),
		"Users":         rows,
		"CurrentUserID": currentUserID(c),
		"Search":        search,
		"Page":          page,
		"PageSize":      pageSize,
		"TotalItems":    totalCount,
		"TotalPages":    totalPages,
		"HasPrev":       page > 1,
		"HasNext":       page < totalPages,
		"PrevPage":      page - 1,
		"NextPage":      page + 1,
		"Success":       c.Query("success"),
		"Info":          c.Query("info"),
		"Error":         c.Query("error"),
	}, handler.BaseLayout)
}

func (s *Service) presenceRow(user *models.User) (Row, error) {
	isOnline, err := s.tracker.IsOnline(user.ID)
	if err != nil {
		return Row{}, err
	}

	status, err := s.tracker.OnlineStatus(user)
	if err != nil {
		return Row{}, err
	}

	text, err := s.tracker.LastSeenText(user)
	if err != nil {
		return Row{}, err
	}

	detailed, err := s.tracker.LastSeenDetailed(user)
	if err != nil {
		return Row{}, err
	}

	return Row{
		User:             *user,
		IsOnline:         isOnline,
		OnlineStatus:     status,
		LastSeenText:     text,
		LastSeenDetailed: detailed,
	}, nil
}

// New shows the creation form.
func (s *Service) New(c *fiber.Ctx) error {
	nav := navigation.NewContext("New User", "admin", "user").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Users", Path, false).
		AddBreadcrumb("New", Path+"/new", true)

	return c.Render(TemplateForm, fiber.Map{
		"Navigation": nav,
		"User":       models.User{Status: models.UserStatusActive},
		"IsCreate":   true,
	}, handler.BaseLayout)
}

type userForm struct {
	Name     string `form:"name"     validate:"required,min=2,max=255"`
	Email    string `form:"email"    validate:"required,email,max=255"`
	Password string `form:"password" validate:"omitempty,min=8,max=255"`
}

// Create creates a new user. Password is required on create only.
func (s *Service) Create(c *fiber.Ctx) error {
	var in userForm

	if err := c.BodyParser(&in); err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Invalid form data")
	}

	if err := s.validator.Struct(in); err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Please correct the highlighted errors")
	}

	if in.Password == "" {
		return s.renderListError(c, fiber.StatusBadRequest, "Password is required")
	}

	user := models.User{
		Name:     in.Name,
		Email:    in.Email,
		Password: models.HashPassword(in.Password),
		Status:   models.UserStatusActive,
	}

	if err := s.db.Create(&user).Error; err != nil {
		// unique constraint on email, most likely
		return s.renderListError(c, fiber.StatusBadRequest, "Failed to create user: "+err.Error())
	}

	return redirectFlash(c, Path, "success", "User created")
}

// Show displays a single user with their roles, direct permissions, and the
// assignment forms.
func (s *Service) Show(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	var user models.User
	if err := s.db.Preload("Roles").Preload("Permissions").First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load user")
	}

	var allRoles []models.Role
	if err := s.db.Order("name ASC").Find(&allRoles).Error; err != nil {
		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load roles")
	}

	var allPermissions []models.Permission
	if err := s.db.Order("name ASC").Find(&allPermissions).Error; err != nil {
		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load permissions")
	}

	row, err := s.presenceRow(&user)
	if err != nil {
		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load user")
	}

	nav := navigation.NewContext(user.Name, "admin", "user").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Users", Path, false).
		AddBreadcrumb(user.Name, Path+"/"+strconv.FormatUint(id, 10), true)

	return c.Render(TemplateShow, fiber.Map{
		"Navigation":     nav,
		"User":           row,
		"AllRoles":       allRoles,
		"AllPermissions": allPermissions,
		"CurrentUserID":  currentUserID(c),
		"Success":        c.Query("success"),
		"Info":           c.Query("info"),
		"Error":          c.Query("error"),
	}, handler.BaseLayout)
}

// Edit shows the edit form for a user.
func (s *Service) Edit(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load user")
	}

	nav := navigation.NewContext("Edit User", "admin", "user").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Users", Path, false).
		AddBreadcrumb("Edit", Path+"/"+strconv.FormatUint(id, 10)+"/edit", true)

	return c.Render(TemplateForm, fiber.Map{
		"Navigation": nav,
		"User":       user,
		"IsCreate":   false,
	}, handler.BaseLayout)
}

// Update updates a user. An empty password keeps the current one.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	var in userForm
	if err := c.BodyParser(&in); err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Invalid form data")
	}

	if err := s.validator.Struct(in); err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Please correct the highlighted errors")
	}

	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load user")
	}

	user.Name = in.Name
	user.Email = in.Email

	if in.Password != "" {
		user.Password = models.HashPassword(in.Password)
	}

	if err := s.db.Save(&user).Error; err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Failed to update user: "+err.Error())
	}

	return redirectFlash(c, Path+"/"+strconv.FormatUint(id, 10), "success", "User updated")
}

// Block transitions a user to the blocked state and revokes their sessions.
// Users cannot block themselves regardless of permission level.
func (s *Service) Block(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	if currentUserID(c) == id {
		return redirectFlash(c, Path, "error", "You cannot block your own account")
	}

	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load user")
	}

	if user.IsBlocked() {
		return redirectFlash(c, Path, "info", "User is already blocked")
	}

	if err := s.db.Model(&user).Update("status", models.UserStatusBlocked).Error; err != nil {
		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to block user")
	}

	// kill live sessions so the block takes effect immediately
	if err := session.RevokeUser(id); err != nil {
		log.Error().Err(err).Uint64("user_id", id).Msg("failed to revoke sessions for blocked user")

		return s.renderListError(c, fiber.StatusInternalServerError, "User blocked but session revocation failed")
	}

	log.Info().Uint64("user_id", id).Uint64("blocked_by", currentUserID(c)).Msg("user blocked")

	return redirectFlash(c, Path, "success", "User blocked")
}

// Unblock transitions a user back to the active state.
func (s *Service) Unblock(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load user")
	}

	if !user.IsBlocked() {
		return redirectFlash(c, Path, "info", "User is not blocked")
	}

	if err := s.db.Model(&user).Update("status", models.UserStatusActive).Error; err != nil {
		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to unblock user")
	}

	return redirectFlash(c, Path, "success", "User unblocked")
}

// Delete removes a user. Users cannot delete themselves.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	if currentUserID(c) == id {
		return redirectFlash(c, Path, "error", "You cannot delete your own account")
	}

	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(Path)
		}

		return s.renderListError(c, fiber.StatusInternalServerError, "Failed to load user")
	}

	if err := s.db.Delete(&models.User{}, id).Error; err != nil {
		return s.renderListError(c, fiber.StatusBadRequest, "Failed to delete user: "+err.Error())
	}

	// drop any session the deleted user still had
	if err := session.RevokeUser(id); err != nil {
		log.Error().Err(err).Uint64("user_id", id).Msg("failed to revoke sessions for deleted user")
	}

	return redirectFlash(c, Path, "success", "User deleted")
}

// AssignRole assigns the submitted role to the user, reporting the tri-state
// outcome as a flash message.
func (s *Service) AssignRole(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	target := Path + "/" + strconv.FormatUint(id, 10)
	roleName := c.FormValue("role")

	outcome, err := s.authService.AssignRole(id, roleName)
	if err != nil {
		if errors.Is(err, auth.ErrRoleNotFound) {
			return redirectFlash(c, target, "error", "Role not found")
		}

		log.Error().Err(err).Uint64("user_id", id).Str("role", roleName).Msg("assign role failed")

		return redirectFlash(c, target, "error", "Failed to assign role")
	}

	if outcome == auth.OutcomeAlreadyPresent {
		return redirectFlash(c, target, "info", "User already has this role")
	}

	return redirectFlash(c, target, "success", "Role assigned")
}

// RemoveRole removes the submitted role from the user.
func (s *Service) RemoveRole(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	target := Path + "/" + strconv.FormatUint(id, 10)
	roleName := c.FormValue("role")

	outcome, err := s.authService.RemoveRole(id, roleName)
	if err != nil {
		if errors.Is(err, auth.ErrRoleNotFound) {
			return redirectFlash(c, target, "error", "Role not found")
		}

		log.Error().Err(err).Uint64("user_id", id).Str("role", roleName).Msg("remove role failed")

		return redirectFlash(c, target, "error", "Failed to remove role")
	}

	if outcome == auth.OutcomeAlreadyAbsent {
		return redirectFlash(c, target, "info", "User does not have this role")
	}

	return redirectFlash(c, target, "success", "Role removed")
}

// GrantPermission grants the submitted permission directly to the user.
func (s *Service) GrantPermission(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	target := Path + "/" + strconv.FormatUint(id, 10)
	permissionName := c.FormValue("permission")

	outcome, err := s.authService.GrantPermission(id, permissionName)
	if err != nil {
		if errors.Is(err, auth.ErrPermissionNotFound) {
			return redirectFlash(c, target, "error", "Permission not found")
		}

		log.Error().Err(err).Uint64("user_id", id).Str("permission", permissionName).
			Msg("grant permission failed")

		return redirectFlash(c, target, "error", "Failed to grant permission")
	}

	if outcome == auth.OutcomeAlreadyPresent {
		return redirectFlash(c, target, "info", "User already has this permission")
	}

	return redirectFlash(c, target, "success", "Permission granted")
}

// RevokePermission removes a direct permission grant from the user.
func (s *Service) RevokePermission(c *fiber.Ctx) error {
	id, err := targetID(c)
	if err != nil {
		return c.Redirect(Path)
	}

	target := Path + "/" + strconv.FormatUint(id, 10)
	permissionName := c.FormValue("permission")

	outcome, err := s.authService.RevokePermission(id, permissionName)
	if err != nil {
		if errors.Is(err, auth.ErrPermissionNotFound) {
			return redirectFlash(c, target, "error", "Permission not found")
		}

		log.Error().Err(err).Uint64("user_id", id).Str("permission", permissionName).
			Msg("revoke permission failed")

		return redirectFlash(c, target, "error", "Failed to revoke permission")
	}

	if outcome == auth.OutcomeAlreadyAbsent {
		return redirectFlash(c, target, "info", "User does not have this permission")
	}

	return redirectFlash(c, target, "success", "Permission revoked")
}
