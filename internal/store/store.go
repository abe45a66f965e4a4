package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	DefaultDataDir  = "catalogue_data"
	DefaultCSVFile  = "catalogue_tracking.csv"
	DefaultJSONFile = "catalogue_tracking.json"
	DefaultDBFile   = "catalogue_tracking.db"
)

// CheckExists verifies if a tracking file exists at the given path.
// Returns true if the file exists, false otherwise.
func CheckExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check store existence: %w", err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("tracking path is a directory, expected file: %s", path)
	}
	return true, nil
}

// FilePath returns the tracking file for a file-backed kind under dataDir.
func FilePath(dataDir string, kind Kind) string {
	switch kind {
	case KindJSON:
		return filepath.Join(dataDir, DefaultJSONFile)
	case KindSQLite:
		return filepath.Join(dataDir, DefaultDBFile)
	default:
		return filepath.Join(dataDir, DefaultCSVFile)
	}
}

// TrackingFiles returns every tracking file any file-backed kind may have
// written under dataDir.
func TrackingFiles(dataDir string) []string {
	return []string{
		FilePath(dataDir, KindCSV),
		FilePath(dataDir, KindJSON),
		FilePath(dataDir, KindSQLite),
	}
}

// WriteFileAtomic writes path through a temp file in the same directory and
// renames it into place, so a crash leaves either the old or the new file.
func WriteFileAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
