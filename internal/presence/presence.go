// Package presence tracks which users are currently active.
//
// Activity leaves two traces: a persisted last-seen timestamp on the user row
// and an ephemeral per-user flag with a short sliding TTL. The flag answers
// "online right now"; the timestamp drives the coarser "recently" window and
// the human-readable last-seen buckets.
package presence

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/storage"
	"gorm.io/gorm"

	"github.com/go-backoffice/backoffice/internal/db/models"
)

const (
	// flagKeyPrefix namespaces the per-user online flags in the storage backend.
	flagKeyPrefix = "user-is-online-"

	// onlineTTL is the sliding expiry of the online flag. Each tracked
	// request overwrites the flag, so the window is keyed by request
	// recency, not by session lifetime.
	onlineTTL = 2 * time.Minute

	// recentlyWindow is how far back a last-seen timestamp still counts as
	// "recently" once the online flag has expired. Deliberately wider than
	// onlineTTL.
	recentlyWindow = 5 * time.Minute

	// absoluteTimeFormat renders last-seen timestamps older than a day.
	absoluteTimeFormat = "Jan 2, 2006 3:04 PM"
)

// Status is the coarse online state of a user.
type Status string

const (
	StatusOnline   Status = "online"
	StatusRecently Status = "recently"
	StatusOffline  Status = "offline"
)

// Detailed is the last-seen presentation for listing views: a text bucket
// plus icon and color hints for the UI.
type Detailed struct {
	Text  string `json:"text"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// ErrNilDependency is returned when the tracker is constructed without its
// database or storage backend.
var ErrNilDependency = errors.New("presence tracker dependency is nil")

// Tracker records and reports user activity.
type Tracker struct {
	db      *gorm.DB
	storage storage.Storage
	ttl     time.Duration
	now     func() time.Time
}

// New creates a presence tracker over the given database and flag storage.
func New(db *gorm.DB, st storage.Storage) (*Tracker, error) {
	if db == nil || st == nil {
		return nil, ErrNilDependency
	}

	return &Tracker{db: db, storage: st, ttl: onlineTTL, now: time.Now}, nil
}

func flagKey(userID uint64) string {
	return fmt.Sprintf("%s%d", flagKeyPrefix, userID)
}

// Touch records activity for the user: it persists last_seen_at and sets the
// online flag with a fresh TTL, overwriting any prior expiry. Called once per
// authenticated request.
func (t *Tracker) Touch(user *models.User) error {
	now := t.now()

	if err := t.db.Model(user).Update("last_seen_at", now).Error; err != nil {
		return fmt.Errorf("failed to persist last seen time: %w", err)
	}

	user.LastSeenAt = &now

	if err := t.storage.Set(flagKey(user.ID), []byte("1"), t.ttl); err != nil {
		return fmt.Errorf("failed to set online flag: %w", err)
	}

	return nil
}

// IsOnline reports whether the user's online flag is currently unexpired.
func (t *Tracker) IsOnline(userID uint64) (bool, error) {
	raw, err := t.storage.Get(flagKey(userID))
	if err != nil {
		return false, err
	}

	return raw != nil, nil
}

// OnlineStatus derives the coarse state: online while the flag lives,
// recently while last_seen_at is within the 5-minute window, offline past it.
func (t *Tracker) OnlineStatus(user *models.User) (Status, error) {
	online, err := t.IsOnline(user.ID)
	if err != nil {
		return StatusOffline, err
	}

	if online {
		return StatusOnline, nil
	}

	if user.LastSeenAt != nil && t.now().Sub(*user.LastSeenAt) < recentlyWindow {
		return StatusRecently, nil
	}

	return StatusOffline, nil
}

// LastSeenText renders the user's last activity as a short human-readable
// string, bucketed by age.
func (t *Tracker) LastSeenText(user *models.User) (string, error) {
	if user.LastSeenAt == nil {
		return "Never", nil
	}

	online, err := t.IsOnline(user.ID)
	if err != nil {
		return "", err
	}

	if online {
		return "Online now", nil
	}

	minutes := int(t.now().Sub(*user.LastSeenAt).Minutes())

	switch {
	case minutes < 1:
		return "Just now", nil
	case minutes < 60:
		return fmt.Sprintf("%d min ago", minutes), nil
	case minutes < 1440:
		return hoursAgo(minutes / 60), nil
	default:
		return user.LastSeenAt.Format(absoluteTimeFormat), nil
	}
}

// LastSeenDetailed renders the user's last activity with icon and color hints.
// Unlike LastSeenText it keeps "Just now" up to five minutes.
func (t *Tracker) LastSeenDetailed(user *models.User) (Detailed, error) {
	if user.LastSeenAt == nil {
		return Detailed{Text: "Never been online", Icon: "never", Color: "gray"}, nil
	}

	online, err := t.IsOnline(user.ID)
	if err != nil {
		return Detailed{}, err
	}

	if online {
		return Detailed{Text: "Online now", Icon: "online", Color: "green"}, nil
	}

	minutes := int(t.now().Sub(*user.LastSeenAt).Minutes())

	switch {
	case minutes < 5:
		return Detailed{Text: "Just now", Icon: "recent", Color: "green"}, nil
	case minutes < 60:
		return Detailed{Text: fmt.Sprintf("%d minutes ago", minutes), Icon: "recent", Color: "amber"}, nil
	case minutes < 1440:
		return Detailed{Text: hoursAgo(minutes / 60), Icon: "away", Color: "amber"}, nil
	default:
		return Detailed{Text: user.LastSeenAt.Format(absoluteTimeFormat), Icon: "offline", Color: "gray"}, nil
	}
}

func hoursAgo(hours int) string {
	if hours == 1 {
		return "1 hour ago"
	}

	return fmt.Sprintf("%d hours ago", hours)
}
