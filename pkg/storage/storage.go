// Package storage provides primitive operations over the hierarchical blob
// store holding archives, page images, and covers. All paths passed to a
// Manager are relative to its configured root unless noted otherwise. No
// cross-call transactionality is provided; callers own ordering.
package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type Manager struct {
	root    string
	baseURL string
}

// New creates a Manager rooted at root, creating the directory if needed.
// baseURL is the public address files are served under; it is the single
// source of truth for image and cover URLs.
func New(root, baseURL string) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create storage root: %s", root)
	}
	return &Manager{
		root:    root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Root returns the absolute storage root.
func (m *Manager) Root() string {
	return m.root
}

// FullPath resolves a relative path against the storage root.
func (m *Manager) FullPath(relPath string) string {
	return filepath.Join(m.root, filepath.FromSlash(relPath))
}

// FileURL builds the public URL for a stored file.
func (m *Manager) FileURL(relPath string) string {
	return m.baseURL + "/files/" + filepath.ToSlash(relPath)
}

// Exists reports whether a file or directory exists at the relative path.
func (m *Manager) Exists(relPath string) bool {
	_, err := os.Stat(m.FullPath(relPath))
	return err == nil
}

// CreateDirectory creates a directory (and parents) at the relative path.
// Idempotent.
func (m *Manager) CreateDirectory(relPath string) (string, error) {
	full := m.FullPath(relPath)
	if err := os.MkdirAll(full, 0755); err != nil {
		return "", errors.WithStack(err)
	}
	return full, nil
}

// SaveFile writes the reader's contents to the relative path, creating parent
// directories as needed.
func (m *Manager) SaveFile(relPath string, r io.Reader) (string, error) {
	full := m.FullPath(relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", errors.WithStack(err)
	}

	f, err := os.Create(full)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", errors.WithStack(err)
	}
	return full, nil
}

// Copy copies a file from an absolute source path (typically a temp
// extraction area) into the store at the relative destination.
func (m *Manager) Copy(srcAbsPath, destRelPath string) error {
	full := m.FullPath(destRelPath)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return errors.WithStack(err)
	}
	return copyFile(srcAbsPath, full)
}

// Move relocates a file or directory within the store. It fails if the source
// is absent, and verifies the destination exists afterward; a move that
// silently does nothing must not look like success.
func (m *Manager) Move(srcRelPath, destRelPath string) error {
	src := m.FullPath(srcRelPath)
	dest := m.FullPath(destRelPath)

	if _, err := os.Stat(src); err != nil {
		return errors.Wrapf(err, "move source does not exist: %s", srcRelPath)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Rename(src, dest); err != nil {
		return errors.WithStack(err)
	}
	if _, err := os.Stat(dest); err != nil {
		return errors.Wrapf(err, "move destination missing after rename: %s", destRelPath)
	}
	return nil
}

// Delete removes a file or directory at the relative path. Deleting something
// that is already gone is not an error. recursive is required to remove a
// non-empty directory.
func (m *Manager) Delete(relPath string, recursive bool) error {
	full := m.FullPath(relPath)
	if _, err := os.Stat(full); os.IsNotExist(err) {
		return nil
	}

	var err error
	if recursive {
		err = os.RemoveAll(full)
	} else {
		err = os.Remove(full)
	}
	return errors.WithStack(err)
}

// copyFile copies a file, preserving its permissions.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return errors.WithStack(err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return errors.WithStack(err)
	}

	sourceInfo, err := sourceFile.Stat()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(destFile.Chmod(sourceInfo.Mode()))
}
