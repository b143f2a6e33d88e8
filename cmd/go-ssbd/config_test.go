// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-ssbd/internal/config"
)

func TestFlagsWinOverConfig(t *testing.T) {
	r := require.New(t)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	err := os.WriteFile(configPath, []byte(`[go-ssbd]
port = 9000
hops = 1
storage = "badger"
cors-origins = ["https://a.example", "https://b.example"]
bridge-url = "http://upstream:8008"
`), 0600)
	r.NoError(err)

	conf, _, err := config.ReadDaemon(configPath, nil)
	r.NoError(err)

	listenPort, hops, storageKind, corsOrigins, bridgeURL = 8008, 3, "fs", "*", ""
	applyConfig(conf, map[string]bool{"port": true})

	r.EqualValues(8008, listenPort, "flag was passed")
	r.EqualValues(1, hops)
	r.Equal("badger", storageKind)
	r.Equal("http://upstream:8008", bridgeURL)
	r.Equal([]string{"https://a.example", "https://b.example"}, splitOrigins(corsOrigins))
}

func TestSplitOrigins(t *testing.T) {
	r := require.New(t)
	r.Equal([]string{"*"}, splitOrigins("*"))
	r.Equal([]string{"a", "b"}, splitOrigins(" a, ,b "))
	r.Nil(splitOrigins(""))
}
