// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package config reads the TOML configuration of go-ssbd and sbotcli and the SSBD_* environment overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/komkom/toml"
	"go.mindeco.de/log"
	"go.mindeco.de/log/level"
)

// Section names in the config file.
const (
	DaemonSection = "go-ssbd"
	ClientSection = "sbotcli"
)

// ConfigBool accepts real booleans and boolish strings ("yes", "on", "1").
type ConfigBool bool

// DaemonConfig holds the [go-ssbd] section.
type DaemonConfig struct {
	Repo    string `json:"repo,omitempty"`
	Host    string `json:"host,omitempty"`
	Port    uint   `json:"port,omitempty"`
	Storage string `json:"storage,omitempty"`
	Hops    uint   `json:"hops,omitempty"`
	Hmac    string `json:"hmac,omitempty"`

	BridgeURL      string `json:"bridge-url,omitempty"`
	BridgeAuthor   string `json:"bridge-author,omitempty"`
	BridgeInterval string `json:"bridge-interval,omitempty"`

	CORSOrigins    []string   `json:"cors-origins,omitempty"`
	MetricsAddress string     `json:"debuglis,omitempty"`
	Repair         ConfigBool `json:"repair"`

	Presence map[string]interface{} `json:"-"`
}

// ClientConfig holds the [sbotcli] section.
type ClientConfig struct {
	Addr    string `json:"addr,omitempty"`
	Repo    string `json:"repo,omitempty"`
	Timeout string `json:"timeout,omitempty"`

	Presence map[string]interface{} `json:"-"`
}

type mergedConfig struct {
	Daemon DaemonConfig `json:"go-ssbd"`
	Client ClientConfig `json:"sbotcli"`
}

// Has reports whether key was set in the file or the environment.
func (c DaemonConfig) Has(key string) bool {
	_, ok := c.Presence[key]
	return ok
}

// Has reports whether key was set in the file or the environment.
func (c ClientConfig) Has(key string) bool {
	_, ok := c.Presence[key]
	return ok
}

// Interval parses BridgeInterval.
func (c DaemonConfig) Interval() (time.Duration, error) {
	return ParseInterval(c.BridgeInterval)
}

// ParseInterval reads s as a duration. Plain numbers are milliseconds.
func ParseInterval(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid interval %q: %w", s, err)
	}
	return d, nil
}

// readMerged decodes data twice, once into the typed struct and once into a map to know which keys are present.
func readMerged(data []byte) (mergedConfig, map[string]interface{}, error) {
	var conf mergedConfig
	dec := json.NewDecoder(toml.New(bytes.NewBuffer(data)))
	if err := dec.Decode(&conf); err != nil {
		return conf, nil, eout(err, "decode into struct")
	}

	presence := make(map[string]interface{})
	dec = json.NewDecoder(toml.New(bytes.NewBuffer(data)))
	if err := dec.Decode(&presence); err != nil {
		return conf, nil, eout(err, "decode into presence map")
	}
	return conf, presence, nil
}

func sectionOf(presence map[string]interface{}, name string) map[string]interface{} {
	if sec, ok := presence[name].(map[string]interface{}); ok {
		return sec
	}
	return make(map[string]interface{})
}

// ReadDaemon reads the [go-ssbd] section of the file at configPath.
// A missing file is not an error, the returned bool reports whether it existed.
func ReadDaemon(configPath string, logger log.Logger) (DaemonConfig, bool, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	conf := DaemonConfig{Presence: make(map[string]interface{})}

	data, err := os.ReadFile(configPath)
	if err != nil {
		level.Info(logger).Log("event", "read config", "msg", "no config detected", "path", configPath)
		return conf, false, nil
	}
	level.Info(logger).Log("event", "read config", "msg", "config detected", "path", configPath)

	merged, presence, err := readMerged(data)
	if err != nil {
		return conf, true, fmt.Errorf("config: %s: %w", configPath, err)
	}
	conf = merged.Daemon
	conf.Presence = sectionOf(presence, DaemonSection)
	if len(conf.Presence) == 0 {
		level.Warn(logger).Log("event", "read config", "msg", "no [go-ssbd] section in config file", "path", configPath)
	}

	if conf.Has("repo") {
		conf.Repo, err = ExpandPath(conf.Repo)
		if err != nil {
			return conf, true, err
		}
	}
	if _, err := conf.Interval(); err != nil {
		return conf, true, err
	}
	return conf, true, nil
}

// ReadClient reads the [sbotcli] section of the file at configPath.
func ReadClient(configPath string, logger log.Logger) (ClientConfig, bool, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	conf := ClientConfig{Presence: make(map[string]interface{})}

	data, err := os.ReadFile(configPath)
	if err != nil {
		level.Debug(logger).Log("event", "read config", "msg", "no config detected", "path", configPath)
		return conf, false, nil
	}

	merged, presence, err := readMerged(data)
	if err != nil {
		return conf, true, fmt.Errorf("config: %s: %w", configPath, err)
	}
	conf = merged.Client
	conf.Presence = sectionOf(presence, ClientSection)

	if conf.Has("repo") {
		conf.Repo, err = ExpandPath(conf.Repo)
		if err != nil {
			return conf, true, err
		}
	}
	return conf, true, nil
}

// ReadEnvironmentVariables applies the SSBD_* overrides to config.
func ReadEnvironmentVariables(config *DaemonConfig) error {
	if config.Presence == nil {
		config.Presence = make(map[string]interface{})
	}

	if val := os.Getenv("SSBD_DIR"); val != "" {
		p, err := ExpandPath(val)
		if err != nil {
			return err
		}
		config.Repo = p
		config.Presence["repo"] = true
	}
	if val := os.Getenv("SSBD_HOST"); val != "" {
		config.Host = val
		config.Presence["host"] = true
	}
	if val := os.Getenv("SSBD_PORT"); val != "" {
		port, err := strconv.ParseUint(val, 10, 16)
		if err != nil {
			return eout(err, "parse port from environment variable")
		}
		config.Port = uint(port)
		config.Presence["port"] = true
	}
	if val := os.Getenv("SSBD_STORAGE"); val != "" {
		config.Storage = val
		config.Presence["storage"] = true
	}
	if val := os.Getenv("SSBD_HOPS"); val != "" {
		hops, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return eout(err, "parse hops from environment variable")
		}
		config.Hops = uint(hops)
		config.Presence["hops"] = true
	}
	if val := os.Getenv("SSBD_HMAC_KEY"); val != "" {
		config.Hmac = val
		config.Presence["hmac"] = true
	}
	if val := os.Getenv("SSBD_BRIDGE_URL"); val != "" {
		config.BridgeURL = val
		config.Presence["bridge-url"] = true
	}
	if val := os.Getenv("SSBD_BRIDGE_AUTHOR"); val != "" {
		config.BridgeAuthor = val
		config.Presence["bridge-author"] = true
	}
	if val := os.Getenv("SSBD_BRIDGE_INTERVAL"); val != "" {
		if _, err := ParseInterval(val); err != nil {
			return err
		}
		config.BridgeInterval = val
		config.Presence["bridge-interval"] = true
	}
	if val := os.Getenv("SSBD_METRICS_ADDRESS"); val != "" {
		config.MetricsAddress = val
		config.Presence["debuglis"] = true
	}
	if val := os.Getenv("SSBD_REPAIR"); val != "" {
		b, err := readEnvironmentBoolean(val)
		if err != nil {
			return err
		}
		config.Repair = b
		config.Presence["repair"] = true
	}
	return nil
}

// ReadClientEnvironmentVariables applies the client overrides.
func ReadClientEnvironmentVariables(config *ClientConfig) error {
	if config.Presence == nil {
		config.Presence = make(map[string]interface{})
	}
	if val := os.Getenv("SSBD_ADDR"); val != "" {
		config.Addr = val
		config.Presence["addr"] = true
	}
	if val := os.Getenv("SSBD_DIR"); val != "" {
		p, err := ExpandPath(val)
		if err != nil {
			return err
		}
		config.Repo = p
		config.Presence["repo"] = true
	}
	if val := os.Getenv("SSBD_TIMEOUT"); val != "" {
		config.Timeout = val
		config.Presence["timeout"] = true
	}
	return nil
}

// ReadDaemonConfigAndEnv combines ReadDaemon and ReadEnvironmentVariables.
func ReadDaemonConfigAndEnv(configPath string, logger log.Logger) (DaemonConfig, error) {
	conf, _, err := ReadDaemon(configPath, logger)
	if err != nil {
		return conf, err
	}
	if err := ReadEnvironmentVariables(&conf); err != nil {
		return conf, err
	}
	return conf, nil
}

// ExpandPath makes p absolute:
//   - ~/.ssbd   => /home/<user>/.ssbd
//   - .ssbd     => /home/<user>/.ssbd
//   - /srv/ssbd => /srv/ssbd
func ExpandPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: could not get user home directory: %w", err)
	}

	if strings.HasPrefix(p, "~") {
		p = strings.Replace(p, "~", home, 1)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(home, p)
	}
	return p, nil
}

func (booly ConfigBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(booly))
}

func (booly *ConfigBool) UnmarshalJSON(b []byte) error {
	// a bool can't be unmarshaled into a string and vice versa
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return eout(err, "unmarshal config bool")
	}

	var temp bool
	switch val := v.(type) {
	case bool:
		temp = val
	case string:
		temp = booleanIsTrue(val)
		if !temp && !booleanIsFalse(val) {
			return fmt.Errorf("config: non-boolean string %q", val)
		}
	case nil:
	default:
		return errors.New("config: expected a boolean")
	}
	*booly = ConfigBool(temp)
	return nil
}

func booleanIsTrue(s string) bool {
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func booleanIsFalse(s string) bool {
	return s == "false" || s == "0" || s == "no" || s == "off"
}

func readEnvironmentBoolean(s string) (ConfigBool, error) {
	var booly ConfigBool
	quoted, _ := json.Marshal(s)
	if err := json.Unmarshal(quoted, &booly); err != nil {
		return false, eout(err, "parsing environment variable bool")
	}
	return booly, nil
}

func eout(err error, msg string, args ...interface{}) error {
	if err != nil {
		msg = fmt.Sprintf(msg, args...)
		return fmt.Errorf("%s (%w)", msg, err)
	}
	return nil
}
