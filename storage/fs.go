// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ssbc/go-ssbd"
)

// FS stores files as <base>/<location>/<name>.
type FS struct {
	base string
}

var _ ssbd.Storage = (*FS)(nil)

// NewFS returns filesystem storage. An empty base uses locations as paths on their own.
func NewFS(base string) *FS {
	return &FS{base: base}
}

func (s *FS) path(location, name string) string {
	return filepath.Join(s.base, location, name)
}

func (s *FS) ReadFile(location, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(location, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage/fs: %s: %w", name, ssbd.ErrNoSuchFile)
	}
	if err != nil {
		return nil, fmt.Errorf("storage/fs: failed to read %s: %w", name, err)
	}
	return data, nil
}

// WriteFile replaces the file by renaming a temporary file over it.
func (s *FS) WriteFile(location, name string, data []byte) error {
	dir := filepath.Join(s.base, location)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("storage/fs: failed to create location: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage/fs: failed to create tmp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("storage/fs: failed to write tmp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storage/fs: failed to close tmp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(location, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storage/fs: failed to move tmp file into place: %w", err)
	}
	return nil
}

func (s *FS) AppendFile(location, name string, data []byte) error {
	if err := os.MkdirAll(filepath.Join(s.base, location), 0700); err != nil {
		return fmt.Errorf("storage/fs: failed to create location: %w", err)
	}

	f, err := os.OpenFile(s.path(location, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("storage/fs: failed to open %s: %w", name, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("storage/fs: failed to append to %s: %w", name, err)
	}
	return f.Close()
}
