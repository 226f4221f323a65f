package upload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("logo.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rel, "settings/"), "stored path must live under the settings subdirectory")
	assert.True(t, strings.HasSuffix(rel, "_logo.png"))
	assert.True(t, store.Exists(rel))

	content, err := os.ReadFile(filepath.Join(store.root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(content))
}

func TestSaveStripsDirectoryFromFilename(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rel, "settings/"))
	assert.True(t, strings.HasSuffix(rel, "_passwd"))
	assert.True(t, store.Exists(rel))
}

func TestSaveCollisionFree(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	first, err := store.Save("logo.png", strings.NewReader("one"))
	require.NoError(t, err)

	second, err := store.Save("logo.png", strings.NewReader("two"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, store.Exists(first))
	assert.True(t, store.Exists(second))
}

func TestDelete(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("logo.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(rel))
	assert.False(t, store.Exists(rel))

	// deleting a missing file is an error the caller may log and ignore
	require.Error(t, store.Delete(rel))
}

func TestPathEscapeRejected(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	err = store.Delete("../outside.txt")
	require.ErrorIs(t, err, ErrPathOutsideRoot)

	assert.False(t, store.Exists("../outside.txt"))
	assert.False(t, store.Exists("/etc/passwd"))
}
