// Package models contains database model definitions.
package models

import "time"

// SettingType enumerates the input types a setting can have. The type drives
// both form rendering and the update semantics (boolean checkboxes and image
// uploads have special handling).
type SettingType string

const (
	// SettingTypeText is a single-line text value.
	SettingTypeText SettingType = "text"
	// SettingTypeTextarea is a multi-line text value.
	SettingTypeTextarea SettingType = "textarea"
	// SettingTypeEmail is a text value validated as an email address.
	SettingTypeEmail SettingType = "email"
	// SettingTypeBoolean is a checkbox; stored canonical values are "1" and "0".
	SettingTypeBoolean SettingType = "boolean"
	// SettingTypeImage is an uploaded file; the stored value is the file path.
	SettingTypeImage SettingType = "image"
)

// Setting represents a single named, typed, grouped configuration value.
// Settings are seeded at deploy time and mutated through the admin settings
// form. Lookup and cache keying use Key alone; upserts key on (Key, Group).
type Setting struct {
	ID uint64 `gorm:"primaryKey"`
	// Key is the lookup identifier (e.g., "site_name", "mail_host").
	Key string `gorm:"size:100;not null;index;uniqueIndex:idx_key_group"`
	// Value is the stored value; image settings store the uploaded file path.
	Value string `gorm:"size:2048"`
	// Type is the input type of the setting.
	Type SettingType `gorm:"type:varchar(20);not null;default:'text'"`
	// Group names the settings group shown as one form section (e.g., "general", "mail").
	Group string `gorm:"column:group_name;size:100;not null;uniqueIndex:idx_key_group"`
	// Label is the human-readable form label.
	Label string `gorm:"size:255"`
	// Order positions the setting within its group.
	Order int `gorm:"column:sort_order"`
	// Options carries loosely-structured extra data (e.g., select choices), opaque here.
	Options []byte `gorm:"type:blob"`
	// CreatedAt is the timestamp when the setting was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the setting was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Setting model.
func (Setting) TableName() string {
	return "settings"
}

// IsBoolean reports whether the setting is a checkbox-backed boolean.
func (s *Setting) IsBoolean() bool {
	return s.Type == SettingTypeBoolean
}

// IsImage reports whether the setting stores an uploaded file path.
func (s *Setting) IsImage() bool {
	return s.Type == SettingTypeImage
}
