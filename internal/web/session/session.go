// Package session manages server-side sessions and the per-user session
// index that makes revocation possible. Blocking a user must kill their live
// sessions immediately, so every session write is also recorded under a
// per-user key that RevokeUser can walk.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage"

	"github.com/go-backoffice/backoffice/internal/db/models"
)

// Store is the global session store instance.
var Store *session.Store

// Data represents the session data structure.
type Data struct {
	User models.User
}

func userIndexKey(userID uint64) string {
	return fmt.Sprintf("user-sessions-%d", userID)
}

// userSessions reads the session ID index for a user. A missing index is an
// empty list.
func userSessions(userID uint64) ([]string, error) {
	raw, err := Store.Storage.Get(userIndexKey(userID))
	if err != nil {
		return nil, err
	}

	if raw == nil {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}

	return ids, nil
}

func writeUserSessions(userID uint64, ids []string) error {
	if len(ids) == 0 {
		return Store.Storage.Delete(userIndexKey(userID))
	}

	out, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	return Store.Storage.Set(userIndexKey(userID), out, 0)
}

// Write writes the session data for the given session ID with an expiration
// duration and records the session in the user's index.
func (s *Data) Write(sessionID string, exp time.Duration) error {
	out, err := json.Marshal(s)
	if err != nil {
		return err
	}

	if err := Store.Storage.Set(sessionID, out, exp); err != nil {
		return err
	}

	ids, err := userSessions(s.User.ID)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if id == sessionID {
			return nil
		}
	}

	return writeUserSessions(s.User.ID, append(ids, sessionID))
}

// Read reads the session data for the given session ID.
func (s *Data) Read(sessionID string) error {
	byteData, err := Store.Storage.Get(sessionID)
	if err != nil {
		return err
	}

	return json.Unmarshal(byteData, s)
}

// Delete removes a single session and de-indexes it from its user.
func Delete(sessionID string) error {
	data := new(Data)
	if err := data.Read(sessionID); err == nil && data.User.ID != 0 {
		ids, err := userSessions(data.User.ID)
		if err != nil {
			return err
		}

		kept := make([]string, 0, len(ids))

		for _, id := range ids {
			if id != sessionID {
				kept = append(kept, id)
			}
		}

		if err := writeUserSessions(data.User.ID, kept); err != nil {
			return err
		}
	}

	return Store.Storage.Delete(sessionID)
}

// RevokeUser destroys every live session belonging to the user. Called when
// an account is blocked so the block takes effect on the user's next request,
// not at session expiry.
func RevokeUser(userID uint64) error {
	ids, err := userSessions(userID)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := Store.Storage.Delete(id); err != nil {
			return err
		}
	}

	return Store.Storage.Delete(userIndexKey(userID))
}

// Init initializes the session store with the provided storage backend.
func Init(storage storage.Storage) {
	if storage == nil {
		panic("storage is nil")
	}

	Store = session.New(session.Config{
		Storage: storage,
	})
}

// GenerateSessionID generates a new secure random session ID.
func GenerateSessionID() (string, error) {
	// 32 bytes = 256 bits
	b := make([]byte, 32) //nolint:mnd
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
