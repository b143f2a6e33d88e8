// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package storage implements ssbd.Storage on the filesystem, in memory and on badger.
package storage
