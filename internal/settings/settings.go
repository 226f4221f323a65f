// Package settings provides cached access to the site settings store and the
// batch update operation behind the admin settings form.
package settings

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/go-backoffice/backoffice/internal/cache"
	"github.com/go-backoffice/backoffice/internal/db/controller/setting"
)

// aggregateBundleKey caches the whole grouped bundle on the UI fetch path.
// It is evicted on every settings update in addition to the per-key entries.
const aggregateBundleKey = "app_settings"

// ErrNilDependency is returned when the service is constructed without its
// database, cache, or file store.
var ErrNilDependency = errors.New("settings service dependency is nil")

// Upload is one submitted file for an image-type setting.
type Upload struct {
	Filename string
	Reader   io.Reader
}

// FileStore persists uploaded setting files (logos, share images).
type FileStore interface {
	// Save stores the upload and returns the path to persist as the setting value.
	Save(filename string, r io.Reader) (string, error)
	// Delete removes a previously stored file.
	Delete(path string) error
	// Exists reports whether a stored file is still present.
	Exists(path string) bool
}

// Service reads settings through a forever-cache and applies form update
// batches with the checkbox and image-upload edge cases handled.
type Service struct {
	db      *gorm.DB
	cache   *cache.Service
	files   FileStore
	appName string
}

// New creates a settings service. appName is the fallback mail from-name.
func New(db *gorm.DB, cacheSvc *cache.Service, files FileStore, appName string) (*Service, error) {
	if db == nil || cacheSvc == nil || files == nil {
		return nil, ErrNilDependency
	}

	return &Service{db: db, cache: cacheSvc, files: files, appName: appName}, nil
}

// Get returns the value for key, memoized until the next settings update.
// The default applies only when no setting row exists for the key.
func (s *Service) Get(key, def string) (string, error) {
	return s.cache.Remember(key, func() (string, error) {
		return setting.GetValue(s.db, key, def)
	})
}

// Grouped returns the settings bundle for the UI: groups in display order,
// each with its settings sorted by (order, group).
func (s *Service) Grouped() ([]setting.Group, error) {
	return setting.Grouped(s.db)
}

// UpdateBatch applies one admin settings form submission.
//
// Semantics, in order:
//   - every submitted key updates its setting and evicts its cache entry;
//   - image settings replace the stored file (deleting the old one) when a
//     new upload is attached, and are skipped entirely when neither a file
//     nor a value was submitted;
//   - boolean settings absent from the submission are forced to "0" (HTML
//     forms omit unchecked checkboxes) and evicted;
//   - finally the cache is flushed and the aggregate bundle key evicted.
func (s *Service) UpdateBatch(values map[string]string, uploads map[string]Upload) error {
	booleanKeys, err := setting.BooleanKeys(s.db)
	if err != nil {
		return fmt.Errorf("failed to enumerate boolean settings: %w", err)
	}

	for key, value := range values {
		current, err := setting.Get(s.db, key)
		if err != nil {
			if errors.Is(err, setting.ErrSettingNotFound) {
				continue // unknown form field, not a setting
			}
			return fmt.Errorf("failed to load setting %s: %w", key, err)
		}

		if current.IsImage() {
			upload, hasUpload := uploads[key]

			if !hasUpload && value == "" {
				continue // keep the existing file reference
			}

			if hasUpload {
				if current.Value != "" && s.files.Exists(current.Value) {
					if err := s.files.Delete(current.Value); err != nil {
						log.Warn().Err(err).Str("key", key).Str("path", current.Value).
							Msg("failed to delete replaced setting file")
					}
				}

				path, err := s.files.Save(upload.Filename, upload.Reader)
				if err != nil {
					return fmt.Errorf("failed to store upload for setting %s: %w", key, err)
				}

				value = path
			}
		}

		if _, err := setting.SetValue(s.db, key, value); err != nil {
			return fmt.Errorf("failed to update setting %s: %w", key, err)
		}

		if err := s.cache.Forget(key); err != nil {
			return fmt.Errorf("failed to evict setting %s: %w", key, err)
		}
	}

	// Unchecked checkboxes never reach the payload; reset them explicitly.
	for _, key := range booleanKeys {
		if _, submitted := values[key]; submitted {
			continue
		}

		if _, err := setting.SetValue(s.db, key, "0"); err != nil {
			return fmt.Errorf("failed to reset boolean setting %s: %w", key, err)
		}

		if err := s.cache.Forget(key); err != nil {
			return fmt.Errorf("failed to evict boolean setting %s: %w", key, err)
		}
	}

	if err := s.cache.Flush(); err != nil {
		return fmt.Errorf("failed to flush settings cache: %w", err)
	}

	if err := s.cache.Forget(aggregateBundleKey); err != nil {
		return fmt.Errorf("failed to evict settings bundle: %w", err)
	}

	return nil
}

// MailConfig is the process-wide mail configuration derived from the store.
type MailConfig struct {
	Mailer      string
	Host        string
	Port        int
	Username    string
	Password    string
	Encryption  string
	FromAddress string
	FromName    string
}

// MailConfig derives the mail configuration from cached setting lookups,
// falling back to the application name for the from-name.
func (s *Service) MailConfig() (MailConfig, error) {
	var (
		mc  MailConfig
		err error
	)

	if mc.Mailer, err = s.Get("mail_mailer", "smtp"); err != nil {
		return MailConfig{}, err
	}

	if mc.Host, err = s.Get("mail_host", "smtp.mailtrap.io"); err != nil {
		return MailConfig{}, err
	}

	portStr, err := s.Get("mail_port", "587")
	if err != nil {
		return MailConfig{}, err
	}

	if mc.Port, err = strconv.Atoi(portStr); err != nil {
		log.Warn().Str("mail_port", portStr).Msg("mail_port is not numeric, using 587")
		mc.Port = 587
	}

	if mc.Username, err = s.Get("mail_username", ""); err != nil {
		return MailConfig{}, err
	}

	if mc.Password, err = s.Get("mail_password", ""); err != nil {
		return MailConfig{}, err
	}

	if mc.Encryption, err = s.Get("mail_encryption", "tls"); err != nil {
		return MailConfig{}, err
	}

	if mc.FromAddress, err = s.Get("mail_from_address", "hello@example.com"); err != nil {
		return MailConfig{}, err
	}

	if mc.FromName, err = s.Get("mail_from_name", s.appName); err != nil {
		return MailConfig{}, err
	}

	return mc, nil
}
