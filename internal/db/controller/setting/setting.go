// Package setting provides persistence operations for the typed site settings store.
package setting

import (
	"errors"

	"gorm.io/gorm"

	"github.com/go-backoffice/backoffice/internal/db/models"
)

const (
	keyQueryPattern      = "`key` = ?"
	keyGroupQueryPattern = "`key` = ? AND group_name = ?"
)

var (
	// ErrSettingNotFound is returned when a setting is not found.
	ErrSettingNotFound = errors.New("setting not found")
	// ErrSettingKeyEmpty is returned when attempting to access a setting with an empty key.
	ErrSettingKeyEmpty = errors.New("setting key cannot be empty")
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
)

// Group is one named settings group with its settings in display order.
type Group struct {
	Name     string
	Settings []models.Setting
}

// Get retrieves a setting by its key.
func Get(db *gorm.DB, key string) (*models.Setting, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	if key == "" {
		return nil, ErrSettingKeyEmpty
	}

	var setting models.Setting
	result := db.Where(keyQueryPattern, key).First(&setting)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSettingNotFound
		}
		return nil, result.Error
	}

	return &setting, nil
}

// GetValue retrieves the stored value for a key. The default is returned only
// when no row exists for the key; an existing row with an empty value wins
// over the default.
func GetValue(db *gorm.DB, key, def string) (string, error) {
	setting, err := Get(db, key)
	if err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return def, nil
		}
		return "", err
	}

	return setting.Value, nil
}

// SetValue updates the stored value for a key, creating the row if it does
// not exist yet.
func SetValue(db *gorm.DB, key, value string) (*models.Setting, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	if key == "" {
		return nil, ErrSettingKeyEmpty
	}

	var setting models.Setting
	result := db.Where(keyQueryPattern, key).First(&setting)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		setting = models.Setting{Key: key, Value: value}
		if err := db.Create(&setting).Error; err != nil {
			return nil, err
		}

		return &setting, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}

	setting.Value = value
	if err := db.Save(&setting).Error; err != nil {
		return nil, err
	}

	return &setting, nil
}

// Upsert creates or updates a setting keyed on (key, group). Seeding uses
// this so deploys stay idempotent; existing values are preserved, only the
// metadata (type, label, order, options) is refreshed.
func Upsert(db *gorm.DB, s *models.Setting) error {
	if db == nil {
		return ErrDBNil
	}
	if s == nil || s.Key == "" {
		return ErrSettingKeyEmpty
	}

	var existing models.Setting
	result := db.Where(keyGroupQueryPattern, s.Key, s.Group).First(&existing)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return db.Create(s).Error
	}
	if result.Error != nil {
		return result.Error
	}

	existing.Type = s.Type
	existing.Label = s.Label
	existing.Order = s.Order
	existing.Options = s.Options

	return db.Save(&existing).Error
}

// GetAll retrieves all settings from the database.
func GetAll(db *gorm.DB) ([]models.Setting, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var settings []models.Setting
	result := db.Find(&settings)
	if result.Error != nil {
		return nil, result.Error
	}

	return settings, nil
}

// Grouped returns the settings bundle exposed to the UI layer: settings
// ordered by (order, group), bucketed by group in first-encounter order.
func Grouped(db *gorm.DB) ([]Group, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var settings []models.Setting
	result := db.Order("sort_order").Order("group_name").Find(&settings)
	if result.Error != nil {
		return nil, result.Error
	}

	var (
		groups  []Group
		indexOf = make(map[string]int)
	)

	for _, s := range settings {
		i, ok := indexOf[s.Group]
		if !ok {
			i = len(groups)
			indexOf[s.Group] = i
			groups = append(groups, Group{Name: s.Group})
		}

		groups[i].Settings = append(groups[i].Settings, s)
	}

	return groups, nil
}

// BooleanKeys returns the keys of all boolean-type settings. The settings
// update path needs the full list up front to reset unchecked checkboxes.
func BooleanKeys(db *gorm.DB) ([]string, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var keys []string
	result := db.Model(&models.Setting{}).
		Where("type = ?", models.SettingTypeBoolean).
		Pluck("`key`", &keys)
	if result.Error != nil {
		return nil, result.Error
	}

	return keys, nil
}
