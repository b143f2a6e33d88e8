// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package testutils

import (
	"os"
	"testing"
)

// RunsOnCI is true in CI pipelines, which are too slow for some timing dependent tests.
func RunsOnCI() bool {
	return os.Getenv("RUNNING_ON_CI") == "YES" || os.Getenv("CI") == "true"
}

// SkipOnCI skips timing dependent tests on CI and in -short mode.
func SkipOnCI(t testing.TB) {
	t.Helper()
	if RunsOnCI() {
		t.Skip("running on CI, skipping this test.")
	}
	if testing.Short() {
		t.Skip("skipping replication test in short mode")
	}
}
