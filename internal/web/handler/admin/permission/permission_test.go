package permission

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/memory/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/go-backoffice/backoffice/internal/auth"
	"github.com/go-backoffice/backoffice/internal/config"
	"github.com/go-backoffice/backoffice/internal/db/models"
	websess "github.com/go-backoffice/backoffice/internal/web/session"
)

type noOpViews struct{}

func (noOpViews) Load() error { return nil }

func (noOpViews) Render(w io.Writer, name string, _ interface{}, _ ...string) error {
	_, _ = io.WriteString(w, name)
	return nil
}

type testEnv struct {
	app  *fiber.App
	db   *gorm.DB
	auth *auth.Service
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.UserRole{},
		&models.UserPermission{},
		&models.RolePermission{},
	)
	require.NoError(t, err)

	websess.Init(memory.New())

	authService := auth.NewService(db)

	app := fiber.New(fiber.Config{Views: noOpViews{}})
	cfg := &config.Config{
		Webserver: config.Webserver{Session: config.Session{ExpiryTime: time.Hour}},
	}

	var s Service
	s.Init(app, cfg, db, authService)

	require.NoError(t, db.Create(&models.Permission{Name: auth.PermPermissionManage}).Error)

	return &testEnv{app: app, db: db, auth: authService}
}

func loginAdmin(t *testing.T, env *testEnv) string {
	t.Helper()

	admin := &models.User{Name: "Admin", Email: "admin@example.com", Status: models.UserStatusActive}
	require.NoError(t, env.db.Create(admin).Error)

	_, err := env.auth.GrantPermission(admin.ID, auth.PermPermissionManage)
	require.NoError(t, err)

	sessionID, err := websess.GenerateSessionID()
	require.NoError(t, err)
	require.NoError(t, (&websess.Data{User: *admin}).Write(sessionID, time.Hour))

	return sessionID
}

func postForm(t *testing.T, env *testEnv, sessionID, path string, form url.Values) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "session", Value: sessionID})

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)

	return resp
}

func permissionPath(id uint) string {
	return Path + "/" + strconv.FormatUint(uint64(id), 10)
}

func TestCreatePermission(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	form := url.Values{
		"name":        {"article.publish"},
		"description": {"Publish articles"},
	}

	resp := postForm(t, env, sessionID, Path, form)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "success=")

	var stored models.Permission
	require.NoError(t, env.db.Where("name = ?", "article.publish").First(&stored).Error)
	assert.Equal(t, "Publish articles", stored.Description)
}

func TestCreatePermissionDuplicateName(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	resp := postForm(t, env, sessionID, Path,
		url.Values{"name": {auth.PermPermissionManage}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdatePermission(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	created, err := env.auth.CreatePermission("article.publish", "")
	require.NoError(t, err)

	form := url.Values{
		"name":        {"article.publish"},
		"description": {"Publish and unpublish articles"},
	}

	resp := postForm(t, env, sessionID, permissionPath(created.ID), form)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	var stored models.Permission
	require.NoError(t, env.db.First(&stored, created.ID).Error)
	assert.Equal(t, "Publish and unpublish articles", stored.Description)
}

func TestDeletePermissionAttachedToRole(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	created, err := env.auth.CreatePermission("article.publish", "")
	require.NoError(t, err)

	_, err = env.auth.CreateRole("editor", "", []string{"article.publish"})
	require.NoError(t, err)

	resp := postForm(t, env, sessionID, permissionPath(created.ID)+"/delete", url.Values{})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "error=")

	var count int64
	require.NoError(t, env.db.Model(&models.Permission{}).
		Where("id = ?", created.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDeletePermissionGrantedToUser(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	created, err := env.auth.CreatePermission("article.publish", "")
	require.NoError(t, err)

	holder := &models.User{Name: "Holder", Email: "holder@example.com", Status: models.UserStatusActive}
	require.NoError(t, env.db.Create(holder).Error)

	_, err = env.auth.GrantPermission(holder.ID, "article.publish")
	require.NoError(t, err)

	resp := postForm(t, env, sessionID, permissionPath(created.ID)+"/delete", url.Values{})
	assert.Contains(t, resp.Header.Get("Location"), "error=")
}

func TestDeleteUnusedPermission(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	created, err := env.auth.CreatePermission("article.publish", "")
	require.NoError(t, err)

	resp := postForm(t, env, sessionID, permissionPath(created.ID)+"/delete", url.Values{})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "success=")

	var count int64
	require.NoError(t, env.db.Model(&models.Permission{}).
		Where("id = ?", created.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAttachDetachRoleTriStateFlash(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	created, err := env.auth.CreatePermission("article.publish", "")
	require.NoError(t, err)

	_, err = env.auth.CreateRole("editor", "", nil)
	require.NoError(t, err)

	form := url.Values{"role": {"editor"}}

	resp := postForm(t, env, sessionID, permissionPath(created.ID)+"/roles", form)
	assert.Contains(t, resp.Header.Get("Location"), "success=")

	resp = postForm(t, env, sessionID, permissionPath(created.ID)+"/roles", form)
	assert.Contains(t, resp.Header.Get("Location"), "info=", "repeat attach must surface as info")

	resp = postForm(t, env, sessionID, permissionPath(created.ID)+"/roles/remove", form)
	assert.Contains(t, resp.Header.Get("Location"), "success=")

	resp = postForm(t, env, sessionID, permissionPath(created.ID)+"/roles/remove", form)
	assert.Contains(t, resp.Header.Get("Location"), "info=")
}

func TestAttachUnknownRoleIsError(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	created, err := env.auth.CreatePermission("article.publish", "")
	require.NoError(t, err)

	resp := postForm(t, env, sessionID, permissionPath(created.ID)+"/roles",
		url.Values{"role": {"nonexistent"}})
	assert.Contains(t, resp.Header.Get("Location"), "error=")
}

func TestPermissionDenied(t *testing.T) {
	env := setupTestEnv(t)

	nobody := &models.User{Name: "Nobody", Email: "nobody@example.com", Status: models.UserStatusActive}
	require.NoError(t, env.db.Create(nobody).Error)

	sessionID, err := websess.GenerateSessionID()
	require.NoError(t, err)
	require.NoError(t, (&websess.Data{User: *nobody}).Write(sessionID, time.Hour))

	resp := postForm(t, env, sessionID, Path, url.Values{"name": {"article.publish"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
