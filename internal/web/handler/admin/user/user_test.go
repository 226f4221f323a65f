package user

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
	"github.com/go-backoffice/backoffice/internal/presence"
	websess "github.com/go-backoffice/backoffice/internal/web/session"
)

type noOpViews struct{}

func (noOpViews) Load() error { return nil }

func (noOpViews) Render(w io.Writer, name string, _ interface{}, _ ...string) error {
	_, _ = io.WriteString(w, name)
	return nil
}

type testEnv struct {
	app     *fiber.App
	db      *gorm.DB
	auth    *auth.Service
	tracker *presence.Tracker
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

	tracker, err := presence.New(db, memory.New())
	require.NoError(t, err)

	authService := auth.NewService(db)

	app := fiber.New(fiber.Config{Views: noOpViews{}})
	cfg := &config.Config{
		Webserver: config.Webserver{Session: config.Session{ExpiryTime: time.Hour}},
	}

	var s Service
	s.Init(app, cfg, db, authService, tracker)

	// seed the full permission catalog and an editor role to assign
	for _, name := range auth.AllPermissions {
		require.NoError(t, db.Create(&models.Permission{Name: name}).Error)
	}
	require.NoError(t, db.Create(&models.Role{Name: "editor"}).Error)

	return &testEnv{app: app, db: db, auth: authService, tracker: tracker}
}

// loginAdmin creates a user holding every permission and a live session.
func loginAdmin(t *testing.T, env *testEnv) (*models.User, string) {
	t.Helper()

	admin := &models.User{Name: "Admin", Email: "admin@example.com", Status: models.UserStatusActive}
	require.NoError(t, env.db.Create(admin).Error)

	for _, name := range auth.AllPermissions {
		_, err := env.auth.GrantPermission(admin.ID, name)
		require.NoError(t, err)
	}

	sessionID, err := websess.GenerateSessionID()
	require.NoError(t, err)
	require.NoError(t, (&websess.Data{User: *admin}).Write(sessionID, time.Hour))

	return admin, sessionID
}

func createTarget(t *testing.T, env *testEnv, email string) *models.User {
	t.Helper()

	target := &models.User{Name: "Target", Email: email, Status: models.UserStatusActive}
	require.NoError(t, env.db.Create(target).Error)

	return target
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

func userPath(id uint64) string {
	return Path + "/" + strconv.FormatUint(id, 10)
}

func TestBlockSelfGuard(t *testing.T) {
	env := setupTestEnv(t)
	admin, sessionID := loginAdmin(t, env)

	resp := postForm(t, env, sessionID, userPath(admin.ID)+"/block", url.Values{})

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "error=")

	var stored models.User
	require.NoError(t, env.db.First(&stored, admin.ID).Error)
	assert.Equal(t, models.UserStatusActive, stored.Status, "self-block must not change status")
}

func TestDeleteSelfGuard(t *testing.T) {
	env := setupTestEnv(t)
	admin, sessionID := loginAdmin(t, env)

	resp := postForm(t, env, sessionID, userPath(admin.ID)+"/delete", url.Values{})

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "error=")

	var count int64
	require.NoError(t, env.db.Model(&models.User{}).Where("id = ?", admin.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestBlockRevokesSessions(t *testing.T) {
	env := setupTestEnv(t)
	_, adminSession := loginAdmin(t, env)
	target := createTarget(t, env, "target@example.com")

	// give the target a live session
	targetSession, err := websess.GenerateSessionID()
	require.NoError(t, err)
	require.NoError(t, (&websess.Data{User: *target}).Write(targetSession, time.Hour))

	resp := postForm(t, env, adminSession, userPath(target.ID)+"/block", url.Values{})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "success=")

	var stored models.User
	require.NoError(t, env.db.First(&stored, target.ID).Error)
	assert.Equal(t, models.UserStatusBlocked, stored.Status)

	require.Error(t, new(websess.Data).Read(targetSession),
		"blocking must destroy the target's live sessions")
}

func TestBlockAlreadyBlockedIsInfo(t *testing.T) {
	env := setupTestEnv(t)
	_, adminSession := loginAdmin(t, env)
	target := createTarget(t, env, "target@example.com")
	require.NoError(t, env.db.Model(target).Update("status", models.UserStatusBlocked).Error)

	resp := postForm(t, env, adminSession, userPath(target.ID)+"/block", url.Values{})
	assert.Contains(t, resp.Header.Get("Location"), "info=")
}

func TestUnblock(t *testing.T) {
	env := setupTestEnv(t)
	_, adminSession := loginAdmin(t, env)
	target := createTarget(t, env, "target@example.com")
	require.NoError(t, env.db.Model(target).Update("status", models.UserStatusBlocked).Error)

	resp := postForm(t, env, adminSession, userPath(target.ID)+"/unblock", url.Values{})
	assert.Contains(t, resp.Header.Get("Location"), "success=")

	var stored models.User
	require.NoError(t, env.db.First(&stored, target.ID).Error)
	assert.Equal(t, models.UserStatusActive, stored.Status)
}

func TestAssignRoleTriStateFlash(t *testing.T) {
	env := setupTestEnv(t)
	_, adminSession := loginAdmin(t, env)
	target := createTarget(t, env, "target@example.com")

	form := url.Values{"role": {"editor"}}

	resp := postForm(t, env, adminSession, userPath(target.ID)+"/roles", form)
	assert.Contains(t, resp.Header.Get("Location"), "success=")

	resp = postForm(t, env, adminSession, userPath(target.ID)+"/roles", form)
	assert.Contains(t, resp.Header.Get("Location"), "info=", "repeat assignment must surface as info, not success")

	resp = postForm(t, env, adminSession, userPath(target.ID)+"/roles/remove", form)
	assert.Contains(t, resp.Header.Get("Location"), "success=")

	resp = postForm(t, env, adminSession, userPath(target.ID)+"/roles/remove", form)
	assert.Contains(t, resp.Header.Get("Location"), "info=")
}

func TestGrantPermissionUnknownIsError(t *testing.T) {
	env := setupTestEnv(t)
	_, adminSession := loginAdmin(t, env)
	target := createTarget(t, env, "target@example.com")

	resp := postForm(t, env, adminSession, userPath(target.ID)+"/permissions",
		url.Values{"permission": {"nonexistent"}})
	assert.Contains(t, resp.Header.Get("Location"), "error=")
}

func TestPermissionDenied(t *testing.T) {
	env := setupTestEnv(t)
	target := createTarget(t, env, "target@example.com")

	// a session without any permissions
	nobody := createTarget(t, env, "nobody@example.com")
	sessionID, err := websess.GenerateSessionID()
	require.NoError(t, err)
	require.NoError(t, (&websess.Data{User: *nobody}).Write(sessionID, time.Hour))

	resp := postForm(t, env, sessionID, userPath(target.ID)+"/block", url.Values{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
