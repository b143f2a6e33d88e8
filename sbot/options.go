// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package sbot

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-kit/kit/metrics"
	"go.mindeco.de/log"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/bridge"
	"github.com/ssbc/go-ssbd/storage"
)

// DefaultLocation is the log location of a node.
const DefaultLocation = "feed"

// Storage kinds for WithStorageKind
const (
	StorageFS     = "fs"
	StorageMemory = "memory"
	StorageBadger = "badger"
)

type Option func(*Sbot) error

func WithRepoPath(path string) Option {
	return func(s *Sbot) error {
		s.repoPath = path
		return nil
	}
}

// WithLocation sets the name the feed log is stored under.
func WithLocation(loc string) Option {
	return func(s *Sbot) error {
		s.location = loc
		return nil
	}
}

func WithKeyPair(kp ssbd.KeyPair) Option {
	return func(s *Sbot) error {
		s.KeyPair = kp
		s.hasKeyPair = true
		return nil
	}
}

// WithHMACSigning makes the node sign and verify over the HMAC of each message, with the base64 encoded key.
func WithHMACSigning(key string) Option {
	return func(s *Sbot) error {
		if key == "" {
			return nil
		}
		k, err := base64.StdEncoding.DecodeString(key)
		if err != nil {
			return fmt.Errorf("hmac key: failed to decode: %w", err)
		}
		if n := len(k); n != 32 {
			return fmt.Errorf("hmac key: need 32 bytes got %d", n)
		}
		var hk [32]byte
		copy(hk[:], k)
		s.hmacKey = &hk
		return nil
	}
}

// WithStorageKind picks one of the storage adapters, stored inside the repo.
func WithStorageKind(kind string) Option {
	return func(s *Sbot) error {
		switch kind {
		case "", StorageFS, StorageMemory, StorageBadger:
			s.storageKind = kind
			return nil
		}
		return fmt.Errorf("unknown storage kind %q", kind)
	}
}

// WithStorage uses store instead of one of the built-in adapters.
func WithStorage(store ssbd.Storage) Option {
	return func(s *Sbot) error {
		s.store = store
		return nil
	}
}

func WithInfo(log log.Logger) Option {
	return func(s *Sbot) error {
		s.info = log
		return nil
	}
}

func WithContext(ctx context.Context) Option {
	return func(s *Sbot) error {
		s.rootCtx = ctx
		return nil
	}
}

// WithHops sets how far the follow graph is walked to pick feeds for replication.
func WithHops(h int) Option {
	return func(s *Sbot) error {
		s.hopCount = h
		return nil
	}
}

// WithRepair rebuilds the checkpoints from the log before opening it.
func WithRepair(yes bool) Option {
	return func(s *Sbot) error {
		s.repair = yes
		return nil
	}
}

// WithBridge replicates from the node at baseURL. An empty or invalid address disables the bridge.
func WithBridge(baseURL, author string, interval time.Duration) Option {
	return func(s *Sbot) error {
		s.bridgeURL = baseURL
		s.bridgeAuthor = author
		s.bridgeInterval = interval
		return nil
	}
}

// WithBridgeSource replicates from src instead of a HTTP remote.
func WithBridgeSource(src bridge.Source) Option {
	return func(s *Sbot) error {
		s.bridgeSource = src
		return nil
	}
}

// WithAppendCounter counts appended messages by mode.
func WithAppendCounter(c metrics.Counter) Option {
	return func(s *Sbot) error {
		s.appendCounter = c
		return nil
	}
}

// WithBridgeMetrics counts replicated messages and followed feeds.
func WithBridgeMetrics(applied, failed metrics.Counter, followed metrics.Gauge) Option {
	return func(s *Sbot) error {
		s.bridgeApplied = applied
		s.bridgeFailed = failed
		s.bridgeFollowed = followed
		return nil
	}
}

func New(fopts ...Option) (*Sbot, error) {
	var s Sbot
	for i, opt := range fopts {
		err := opt(&s)
		if err != nil {
			return nil, fmt.Errorf("error applying option #%d: %w", i, err)
		}
	}

	if s.repoPath == "" {
		u, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("error getting info on current user: %w", err)
		}

		s.repoPath = filepath.Join(u.HomeDir, ".ssbd")
	}

	if s.location == "" {
		s.location = DefaultLocation
	}

	if s.info == nil {
		logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
		s.info = logger
	}

	if s.rootCtx == nil {
		s.rootCtx = context.TODO()
	}

	return initSbot(&s)
}

func (s *Sbot) openStorage() (ssbd.Storage, error) {
	if s.store != nil {
		return s.store, nil
	}

	switch s.storageKind {
	case StorageMemory:
		return storage.NewMemory(), nil
	case StorageBadger:
		b, err := storage.OpenBadger(filepath.Join(s.repoPath, "badger"))
		if err != nil {
			return nil, err
		}
		s.closers.addCloser(b)
		return b, nil
	default:
		return storage.NewFS(s.repoPath), nil
	}
}
