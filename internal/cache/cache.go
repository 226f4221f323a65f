// Package cache implements an explicitly-invalidated memoization service.
//
// Entries live forever until evicted: read-side correctness depends entirely
// on writers calling Forget or Flush after mutating the backing data. The
// service is an instance handed to the components that need it. Keys are
// namespaced with a prefix; Flush resets the whole backend, so give each
// service its own backend when flush isolation matters.
package cache

import (
	"errors"

	"github.com/gofiber/storage"
)

// ErrStorageNil is returned when the cache service is constructed without a backend.
var ErrStorageNil = errors.New("cache storage is nil")

// Service memoizes string values in a storage backend under a common key prefix.
type Service struct {
	storage storage.Storage
	prefix  string
}

// New creates a cache service over the given storage backend. All keys are
// namespaced with the prefix.
func New(st storage.Storage, prefix string) (*Service, error) {
	if st == nil {
		return nil, ErrStorageNil
	}

	return &Service{storage: st, prefix: prefix}, nil
}

// Remember returns the cached value for key if present; otherwise it calls
// loader, stores the result with no expiry, and returns it. Loader errors are
// propagated and nothing is cached.
func (s *Service) Remember(key string, loader func() (string, error)) (string, error) {
	raw, err := s.storage.Get(s.prefix + key)
	if err != nil {
		return "", err
	}

	if raw != nil {
		return string(raw), nil
	}

	value, err := loader()
	if err != nil {
		return "", err
	}

	if err := s.storage.Set(s.prefix+key, []byte(value), 0); err != nil {
		return "", err
	}

	return value, nil
}

// Has reports whether a value is currently cached for key.
func (s *Service) Has(key string) (bool, error) {
	raw, err := s.storage.Get(s.prefix + key)
	if err != nil {
		return false, err
	}

	return raw != nil, nil
}

// Forget evicts the given keys individually. Missing keys are not an error.
func (s *Service) Forget(keys ...string) error {
	for _, key := range keys {
		if err := s.storage.Delete(s.prefix + key); err != nil {
			return err
		}
	}

	return nil
}

// Flush evicts every entry in the backend this service writes to.
func (s *Service) Flush() error {
	return s.storage.Reset()
}
