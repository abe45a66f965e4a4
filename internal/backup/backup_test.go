package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maloquacious/catscrape/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedManager() *Manager {
	return &Manager{
		Now: func() time.Time { return time.Date(2025, 12, 9, 14, 3, 7, 0, time.UTC) },
		Log: logger.Nop,
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestFolderMissingSource(t *testing.T) {
	dir := t.TempDir()

	got, err := fixedManager().Folder(filepath.Join(dir, "catalogues"))
	require.NoError(t, err)
	assert.Empty(t, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no filesystem writes expected")
}

func TestFolderCopiesTree(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "catalogues")
	writeFile(t, filepath.Join(src, "aldi", "2024", "a", "page_001.jpg"), "one")
	writeFile(t, filepath.Join(src, "aldi", "2024", "a", "page_002.jpg"), "two")
	writeFile(t, filepath.Join(src, "aldi", "2024", "a", "metadata.json"), "{}")
	writeFile(t, filepath.Join(src, "coles", "2025", "b", "page_001.jpg"), "three")

	m := fixedManager()
	got, err := m.Folder(src)
	require.NoError(t, err)
	assert.Equal(t, src+"_backup_20251209_140307", got)

	n, _, err := CountFiles(got)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	b, err := os.ReadFile(filepath.Join(got, "coles", "2025", "b", "page_001.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "three", string(b))

	// same second again: a new name, the first backup is untouched
	again, err := m.Folder(src)
	require.NoError(t, err)
	assert.Equal(t, src+"_backup_20251209_140307_1", again)
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "catalogue_tracking.csv")

	got, err := fixedManager().File(src)
	require.NoError(t, err)
	assert.Empty(t, got)

	writeFile(t, src, "store,title\n")
	got, err = fixedManager().File(src)
	require.NoError(t, err)
	assert.Equal(t, src+".backup_20251209_140307", got)

	b, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "store,title\n", string(b))
}

func TestFileRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := fixedManager().File(dir)
	assert.Error(t, err)
}
