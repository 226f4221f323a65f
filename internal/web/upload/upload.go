// Package upload stores files submitted through the admin UI on local disk.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-backoffice/backoffice/internal/uniuri"
)

// settingsDir is the subdirectory for files attached to settings (logos,
// share images).
const settingsDir = "settings"

// randomPrefixLen is the length of the random filename prefix that prevents
// collisions between uploads sharing an original filename.
const randomPrefixLen = 12

// ErrPathOutsideRoot is returned when a stored path would escape the upload root.
var ErrPathOutsideRoot = errors.New("path is outside the upload root")

// DiskStore persists uploads under a root directory. Stored paths returned
// by Save are relative to the root so they survive a root relocation.
type DiskStore struct {
	root string
}

// NewDiskStore creates a disk store rooted at root, creating the directory
// tree if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(filepath.Join(root, settingsDir), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return &DiskStore{root: root}, nil
}

// abs resolves a stored relative path against the root, refusing anything
// that would escape it.
func (d *DiskStore) abs(rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", ErrPathOutsideRoot
	}

	return filepath.Join(d.root, cleaned), nil
}

// Save stores the upload under a collision-free name and returns the
// relative path to persist as the setting value.
func (d *DiskStore) Save(filename string, r io.Reader) (string, error) {
	name := uniuri.NewLen(randomPrefixLen) + "_" + filepath.Base(filename)
	rel := filepath.ToSlash(filepath.Join(settingsDir, name))

	abs, err := d.abs(rel)
	if err != nil {
		return "", err
	}

	f, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}

	return rel, nil
}

// Delete removes a previously stored file.
func (d *DiskStore) Delete(rel string) error {
	abs, err := d.abs(rel)
	if err != nil {
		return err
	}

	return os.Remove(abs)
}

// Exists reports whether a stored file is still present.
func (d *DiskStore) Exists(rel string) bool {
	abs, err := d.abs(rel)
	if err != nil {
		return false
	}

	info, err := os.Stat(abs)

	return err == nil && !info.IsDir()
}
