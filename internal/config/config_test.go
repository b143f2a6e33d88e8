// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(contents), 0600), "write config file")
	return configPath
}

func TestReadDaemon(t *testing.T) {
	r := require.New(t)
	configPath := writeConfig(t, `# daemon settings
[go-ssbd]
repo = "/srv/ssbd"
host = "0.0.0.0"
port = 9000
storage = "badger"
hops = 2
bridge-url = "https://example.org/"
bridge-interval = "2500"
cors-origins = ["https://a.example", "https://b.example"]
repair = "yes"

[sbotcli]
addr = "http://localhost:9000"
timeout = "3s"
`)

	conf, exists, err := ReadDaemon(configPath, nil)
	r.NoError(err)
	r.True(exists)
	r.Equal("/srv/ssbd", conf.Repo)
	r.Equal("0.0.0.0", conf.Host)
	r.EqualValues(9000, conf.Port)
	r.Equal("badger", conf.Storage)
	r.EqualValues(2, conf.Hops)
	r.Equal("https://example.org/", conf.BridgeURL)
	r.Equal([]string{"https://a.example", "https://b.example"}, conf.CORSOrigins)
	r.True(bool(conf.Repair))

	d, err := conf.Interval()
	r.NoError(err)
	r.Equal(2500*time.Millisecond, d)

	r.True(conf.Has("hops"))
	r.True(conf.Has("repair"))
	r.False(conf.Has("hmac"))
	r.False(conf.Has("debuglis"))

	client, exists, err := ReadClient(configPath, nil)
	r.NoError(err)
	r.True(exists)
	r.Equal("http://localhost:9000", client.Addr)
	r.Equal("3s", client.Timeout)
	r.True(client.Has("addr"))
	r.False(client.Has("repo"))
}

func TestReadDaemonBooleans(t *testing.T) {
	for _, tc := range []struct {
		value string
		want  bool
		fails bool
	}{
		{`true`, true, false},
		{`false`, false, false},
		{`"on"`, true, false},
		{`"off"`, false, false},
		{`"1"`, true, false},
		{`"no"`, false, false},
		{`"maybe"`, false, true},
	} {
		t.Run(tc.value, func(t *testing.T) {
			r := require.New(t)
			conf, _, err := ReadDaemon(writeConfig(t, "[go-ssbd]\nrepair = "+tc.value+"\n"), nil)
			if tc.fails {
				r.Error(err)
				return
			}
			r.NoError(err)
			r.Equal(tc.want, bool(conf.Repair))
		})
	}
}

func TestReadDaemonMissing(t *testing.T) {
	r := require.New(t)
	conf, exists, err := ReadDaemon(filepath.Join(t.TempDir(), "nope.toml"), nil)
	r.NoError(err)
	r.False(exists)
	r.False(conf.Has("repo"))
}

func TestReadDaemonInvalidInterval(t *testing.T) {
	_, _, err := ReadDaemon(writeConfig(t, "[go-ssbd]\nbridge-interval = \"soon\"\n"), nil)
	require.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	r := require.New(t)
	configPath := writeConfig(t, `[go-ssbd]
port = 9000
hops = 2
`)

	t.Setenv("SSBD_PORT", "9100")
	t.Setenv("SSBD_STORAGE", "memory")
	t.Setenv("SSBD_BRIDGE_URL", "http://upstream:8008")
	t.Setenv("SSBD_BRIDGE_INTERVAL", "10s")
	t.Setenv("SSBD_METRICS_ADDRESS", "localhost:6078")
	t.Setenv("SSBD_REPAIR", "on")
	t.Setenv("SSBD_DIR", "/tmp/ssbd-env")

	conf, err := ReadDaemonConfigAndEnv(configPath, nil)
	r.NoError(err)
	r.EqualValues(9100, conf.Port)
	r.EqualValues(2, conf.Hops, "untouched by env")
	r.Equal("memory", conf.Storage)
	r.Equal("http://upstream:8008", conf.BridgeURL)
	r.Equal("localhost:6078", conf.MetricsAddress)
	r.Equal("/tmp/ssbd-env", conf.Repo)
	r.True(bool(conf.Repair))
	r.True(conf.Has("debuglis"))

	d, err := conf.Interval()
	r.NoError(err)
	r.Equal(10*time.Second, d)

	t.Setenv("SSBD_PORT", "not a port")
	_, err = ReadDaemonConfigAndEnv(configPath, nil)
	r.Error(err)
}

func TestClientEnvironment(t *testing.T) {
	r := require.New(t)
	t.Setenv("SSBD_ADDR", "http://127.0.0.1:8008")

	var conf ClientConfig
	r.NoError(ReadClientEnvironmentVariables(&conf))
	r.Equal("http://127.0.0.1:8008", conf.Addr)
	r.True(conf.Has("addr"))
}

func TestExpandPath(t *testing.T) {
	r := require.New(t)
	home, err := os.UserHomeDir()
	r.NoError(err)

	for in, want := range map[string]string{
		"~/.ssbd":   filepath.Join(home, ".ssbd"),
		".ssbd":     filepath.Join(home, ".ssbd"),
		"/srv/ssbd": "/srv/ssbd",
	} {
		got, err := ExpandPath(in)
		r.NoError(err)
		r.Equal(want, got, in)
	}
}

func TestMarshalConfig(t *testing.T) {
	r := require.New(t)
	conf := DaemonConfig{
		Hops:   3,
		Repair: true,
		Host:   "localhost",
	}
	b, err := json.MarshalIndent(conf, "", "  ")
	r.NoError(err)
	for _, expected := range []string{`"hops": 3`, `"repair": true`, `"host": "localhost"`} {
		r.True(strings.Contains(string(b), expected), expected)
	}
	r.NotContains(string(b), "Presence")
}
