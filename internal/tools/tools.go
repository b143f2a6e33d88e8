// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

//go:build tools

// Package tools pins the code generators used by go:generate.
package tools

import (
	_ "github.com/maxbrunsfeld/counterfeiter/v6"
)
