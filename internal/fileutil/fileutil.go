// Package fileutil holds the file-system collaborator used by the batch
// runner and small path helpers.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// OS implements the batch file-system collaborator on the local disk.
type OS struct{}

// Exists reports whether path exists. Stat errors other than not-exist are
// treated as existing so a conflicting destination is never clobbered.
func (OS) Exists(path string) bool {
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	return !errors.Is(err, fs.ErrNotExist)
}

// Remove deletes path, ignoring a missing file.
func (OS) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// MkdirAll creates dir and its parents.
func (OS) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// Fingerprint identifies a file version by size and modification time.
type Fingerprint struct {
	Size    int64
	ModTime time.Time
}

// Stat returns the fingerprint of a regular file.
func Stat(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	if !info.Mode().IsRegular() {
		return Fingerprint{}, fmt.Errorf("%s is not a regular file", path)
	}
	return Fingerprint{Size: info.Size(), ModTime: info.ModTime().UTC()}, nil
}

// ReplaceExt swaps the extension of path for ext (which includes the dot).
func ReplaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
