package settings

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
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
	"github.com/go-backoffice/backoffice/internal/cache"
	"github.com/go-backoffice/backoffice/internal/config"
	"github.com/go-backoffice/backoffice/internal/db/models"
	appsettings "github.com/go-backoffice/backoffice/internal/settings"
	websess "github.com/go-backoffice/backoffice/internal/web/session"
)

type noOpViews struct{}

func (noOpViews) Load() error { return nil }

func (noOpViews) Render(w io.Writer, name string, _ interface{}, _ ...string) error {
	_, _ = io.WriteString(w, name)
	return nil
}

type fakeFileStore struct {
	saved   map[string][]byte
	deleted []string
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{saved: make(map[string][]byte)}
}

func (f *fakeFileStore) Save(filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	path := "settings/" + filename
	f.saved[path] = data

	return path, nil
}

func (f *fakeFileStore) Delete(path string) error {
	delete(f.saved, path)
	f.deleted = append(f.deleted, path)

	return nil
}

func (f *fakeFileStore) Exists(path string) bool {
	_, ok := f.saved[path]
	return ok
}

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	settings *appsettings.Service
	files    *fakeFileStore
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
		&models.Setting{},
	)
	require.NoError(t, err)

	websess.Init(memory.New())

	files := newFakeFileStore()
	cacheSvc, err := cache.New(memory.New(), "setting_")
	require.NoError(t, err)

	settingsSvc, err := appsettings.New(db, cacheSvc, files, "Backoffice")
	require.NoError(t, err)

	authService := auth.NewService(db)

	app := fiber.New(fiber.Config{Views: noOpViews{}})
	cfg := &config.Config{
		Webserver: config.Webserver{Session: config.Session{ExpiryTime: time.Hour}},
	}

	var s Service
	s.Init(app, cfg, db, authService, settingsSvc)

	require.NoError(t, db.Create(&models.Permission{Name: auth.PermSettingsManage}).Error)

	seed := []models.Setting{
		{Key: "site_name", Value: "Old Name", Type: models.SettingTypeText, Group: "general"},
		{Key: "maintenance_mode", Value: "1", Type: models.SettingTypeBoolean, Group: "general"},
		{Key: "site_logo", Value: "", Type: models.SettingTypeImage, Group: "general"},
		{Key: "mail_host", Value: "smtp.old.com", Type: models.SettingTypeText, Group: "mail"},
	}
	for i := range seed {
		require.NoError(t, db.Create(&seed[i]).Error)
	}

	return &testEnv{app: app, db: db, settings: settingsSvc, files: files}
}

func loginAdmin(t *testing.T, env *testEnv) string {
	t.Helper()

	admin := &models.User{Name: "Admin", Email: "admin@example.com", Status: models.UserStatusActive}
	require.NoError(t, env.db.Create(admin).Error)

	authService := auth.NewService(env.db)
	_, err := authService.GrantPermission(admin.ID, auth.PermSettingsManage)
	require.NoError(t, err)

	sessionID, err := websess.GenerateSessionID()
	require.NoError(t, err)
	require.NoError(t, (&websess.Data{User: *admin}).Write(sessionID, time.Hour))

	return sessionID
}

func postURLEncoded(t *testing.T, env *testEnv, sessionID string, form url.Values) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, Path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "session", Value: sessionID})

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)

	return resp
}

func postMultipart(
	t *testing.T,
	env *testEnv,
	sessionID string,
	fields map[string]string,
	fileField, filename string,
	fileContent []byte,
) *http.Response {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	for key, value := range fields {
		require.NoError(t, w.WriteField(key, value))
	}

	if fileField != "" {
		part, err := w.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = part.Write(fileContent)
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, Path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: "session", Value: sessionID})

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)

	return resp
}

func settingValue(t *testing.T, env *testEnv, key string) string {
	t.Helper()

	var stored models.Setting
	require.NoError(t, env.db.Where("`key` = ?", key).First(&stored).Error)

	return stored.Value
}

func TestUpdateValues(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	resp := postURLEncoded(t, env, sessionID, url.Values{
		"site_name": {"New Name"},
		"mail_host": {"smtp.new.com"},
	})

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "success=")
	assert.Equal(t, "New Name", settingValue(t, env, "site_name"))
	assert.Equal(t, "smtp.new.com", settingValue(t, env, "mail_host"))
}

func TestUpdateEvictsCachedReads(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	// warm the cache first so the update must actually evict it
	value, err := env.settings.Get("mail_host", "")
	require.NoError(t, err)
	require.Equal(t, "smtp.old.com", value)

	postURLEncoded(t, env, sessionID, url.Values{"mail_host": {"smtp.new.com"}})

	value, err = env.settings.Get("mail_host", "")
	require.NoError(t, err)
	assert.Equal(t, "smtp.new.com", value, "cached value must not survive the update")
}

func TestUpdateOmittedCheckboxReset(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	// submission without maintenance_mode, as a browser sends an unchecked box
	resp := postURLEncoded(t, env, sessionID, url.Values{"site_name": {"New Name"}})

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "0", settingValue(t, env, "maintenance_mode"))
}

func TestUpdateImageUpload(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	resp := postMultipart(t, env, sessionID,
		map[string]string{"site_logo": ""},
		"site_logo", "logo.png", []byte("png-bytes"))

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "success=")

	path := settingValue(t, env, "site_logo")
	assert.Equal(t, "settings/logo.png", path)
	assert.Equal(t, []byte("png-bytes"), env.files.saved[path])
}

func TestUpdateImageReplacedDeletesOld(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	postMultipart(t, env, sessionID,
		map[string]string{"site_logo": ""},
		"site_logo", "old.png", []byte("old"))

	postMultipart(t, env, sessionID,
		map[string]string{"site_logo": "settings/old.png"},
		"site_logo", "new.png", []byte("new"))

	assert.Equal(t, "settings/new.png", settingValue(t, env, "site_logo"))
	assert.Contains(t, env.files.deleted, "settings/old.png")
}

func TestUpdateImageSkippedWithoutUpload(t *testing.T) {
	env := setupTestEnv(t)
	sessionID := loginAdmin(t, env)

	postMultipart(t, env, sessionID,
		map[string]string{"site_logo": ""},
		"site_logo", "logo.png", []byte("png"))

	// plain resubmit with no file attached keeps the stored path
	resp := postURLEncoded(t, env, sessionID, url.Values{"site_name": {"X Y"}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "settings/logo.png", settingValue(t, env, "site_logo"))
}

func TestPermissionDenied(t *testing.T) {
	env := setupTestEnv(t)

	nobody := &models.User{Name: "Nobody", Email: "nobody@example.com", Status: models.UserStatusActive}
	require.NoError(t, env.db.Create(nobody).Error)

	sessionID, err := websess.GenerateSessionID()
	require.NoError(t, err)
	require.NoError(t, (&websess.Data{User: *nobody}).Write(sessionID, time.Hour))

	resp := postURLEncoded(t, env, sessionID, url.Values{"site_name": {"Hacked"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
