// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package ssbd

// Storage is the file abstraction the feed log is written through.
// A location groups files the way a directory does.
//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -o mock/storage.go . Storage
type Storage interface {
	// ReadFile returns ErrNoSuchFile if name was never written in location.
	ReadFile(location, name string) ([]byte, error)

	WriteFile(location, name string, data []byte) error

	AppendFile(location, name string, data []byte) error
}
