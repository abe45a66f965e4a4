// Package backup takes timestamped sibling copies of folders and files
// before anything destructive touches them. Backups are never pruned.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/maloquacious/catscrape/internal/logger"
)

const stampLayout = "20060102_150405"

// Manager creates backups. The zero value uses time.Now and logger.Default.
type Manager struct {
	Now func() time.Time
	Log logger.Logger
}

// New returns a Manager logging to log.
func New(log logger.Logger) *Manager {
	return &Manager{Now: time.Now, Log: log}
}

func (m *Manager) now() time.Time {
	if m == nil || m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Manager) log() logger.Logger {
	if m == nil || m.Log == nil {
		return logger.Default
	}
	return m.Log
}

// Folder copies the tree at src to src_backup_YYYYMMDD_HHMMSS.
// A missing src is not an error: it returns "" and nil.
func (m *Manager) Folder(src string) (string, error) {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		m.log().Info("No existing folder to backup: %s", src)
		return "", nil
	}
	if err != nil {
		m.log().Error("Backup ERROR: %v", err)
		return "", fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.IsDir() {
		err := fmt.Errorf("backup folder: %s is not a directory", src)
		m.log().Error("Backup ERROR: %v", err)
		return "", err
	}

	dst, err := freePath(src + "_backup_" + m.now().Format(stampLayout))
	if err != nil {
		m.log().Error("Backup ERROR: %v", err)
		return "", err
	}
	m.log().Info("Creating full backup from %s to %s", src, dst)

	if err := copyTree(src, dst); err != nil {
		m.log().Error("Backup ERROR: %v", err)
		return "", fmt.Errorf("copy %s: %w", src, err)
	}

	files, bytes, err := CountFiles(dst)
	if err != nil {
		m.log().Warn("Backup written but could not be counted: %v", err)
	} else {
		m.log().Info("Backup SUCCESS - Backed up %d files (%s)", files, humanize.Bytes(uint64(bytes)))
	}
	return dst, nil
}

// File copies src to src.backup_YYYYMMDD_HHMMSS.
// A missing src is not an error: it returns "" and nil.
func (m *Manager) File(src string) (string, error) {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		m.log().Info("No existing tracking file to backup: %s", src)
		return "", nil
	}
	if err != nil {
		m.log().Error("ERROR backing up tracking file: %v", err)
		return "", fmt.Errorf("stat %s: %w", src, err)
	}
	if info.IsDir() {
		err := fmt.Errorf("backup file: %s is a directory", src)
		m.log().Error("ERROR backing up tracking file: %v", err)
		return "", err
	}

	dst, err := freePath(src + ".backup_" + m.now().Format(stampLayout))
	if err != nil {
		m.log().Error("ERROR backing up tracking file: %v", err)
		return "", err
	}
	if err := copyFile(src, dst, info); err != nil {
		m.log().Error("ERROR backing up tracking file: %v", err)
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	m.log().Info("Tracking file backed up: %s", dst)
	return dst, nil
}

// CountFiles walks root and returns the number of regular files and their total size.
func CountFiles(root string) (int, int64, error) {
	var n int
	var size int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		n++
		size += info.Size()
		return nil
	})
	return n, size, err
}

// freePath returns p, or p_1, p_2... if p is taken. Backups never overwrite.
func freePath(p string) (string, error) {
	candidate := p
	for i := 1; i < 1000; i++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s_%d", p, i)
	}
	return "", fmt.Errorf("no free backup name for %s", p)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case d.Type().IsRegular():
			return copyFile(path, target, info)
		default:
			// symlinks and devices are not part of a catalogue tree
			return nil
		}
	})
}

func copyFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
