// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package storage

import (
	"fmt"
	"sync"

	"github.com/ssbc/go-ssbd"
)

// Memory keeps all files in a map. Nothing survives the process.
type Memory struct {
	mu    sync.Mutex
	files map[string][]byte
}

var _ ssbd.Storage = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

func memKey(location, name string) string {
	if location == "" {
		location = "default"
	}
	return location + "/" + name
}

func (m *Memory) ReadFile(location, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, has := m.files[memKey(location, name)]
	if !has {
		return nil, fmt.Errorf("storage/memory: %s: %w", name, ssbd.ErrNoSuchFile)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) WriteFile(location, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[memKey(location, name)] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) AppendFile(location, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := memKey(location, name)
	m.files[k] = append(m.files[k], data...)
	return nil
}
