package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(t.TempDir(), "http://localhost:3000")
	require.NoError(t, err)
	return m
}

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestFileURL(t *testing.T) {
	t.Parallel()
	m, err := New(t.TempDir(), "http://localhost:3000/")
	require.NoError(t, err)

	url := m.FileURL("manga/abc/volume-1/001.jpg")
	assert.Equal(t, "http://localhost:3000/files/manga/abc/volume-1/001.jpg", url)
}

func TestSaveFileAndExists(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	_, err := m.SaveFile("manga/abc/archives/volume-1.zip", strings.NewReader("zipbytes"))
	require.NoError(t, err)

	assert.True(t, m.Exists("manga/abc/archives/volume-1.zip"))
	assert.False(t, m.Exists("manga/abc/archives/volume-2.zip"))

	data, err := os.ReadFile(m.FullPath("manga/abc/archives/volume-1.zip"))
	require.NoError(t, err)
	assert.Equal(t, "zipbytes", string(data))
}

func TestCopyFromAbsolutePath(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	src := filepath.Join(t.TempDir(), "001.jpg")
	writeTestFile(t, src, "image")

	require.NoError(t, m.Copy(src, "manga/abc/volume-1/001.jpg"))
	assert.True(t, m.Exists("manga/abc/volume-1/001.jpg"))
}

func TestMove(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	writeTestFile(t, m.FullPath("manga/a/volume-1/001.jpg"), "image")

	err := m.Move("manga/a/volume-1", "manga/b/volume-3")
	require.NoError(t, err)

	assert.False(t, m.Exists("manga/a/volume-1"))
	assert.True(t, m.Exists("manga/b/volume-3/001.jpg"))
}

func TestMoveMissingSourceFails(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	err := m.Move("manga/nope/volume-1", "manga/b/volume-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "move source does not exist")
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	writeTestFile(t, m.FullPath("manga/a/volume-1/001.jpg"), "image")

	require.NoError(t, m.Delete("manga/a/volume-1", true))
	assert.False(t, m.Exists("manga/a/volume-1"))

	// Second delete of the same path is a no-op, not an error.
	require.NoError(t, m.Delete("manga/a/volume-1", true))
}

func TestDeleteNonRecursiveRefusesNonEmptyDir(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	writeTestFile(t, m.FullPath("manga/a/volume-1/001.jpg"), "image")

	err := m.Delete("manga/a/volume-1", false)
	require.Error(t, err)
	assert.True(t, m.Exists("manga/a/volume-1/001.jpg"))
}
