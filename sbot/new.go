// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package sbot assembles feed log, tracker, follow graph, blob store and bridge into a node.
package sbot

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/ssbc/go-luigi"
	refs "github.com/ssbc/go-ssb-refs"
	"go.mindeco.de/log"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/blobstore"
	"github.com/ssbc/go-ssbd/bridge"
	"github.com/ssbc/go-ssbd/feedlog"
	"github.com/ssbc/go-ssbd/graph"
	"github.com/ssbc/go-ssbd/tracker"
)

type Sbot struct {
	repoPath    string
	location    string
	info        log.Logger
	rootCtx     context.Context
	shutdown    context.CancelFunc
	hmacKey     *[32]byte
	storageKind string
	store       ssbd.Storage
	hopCount    int
	repair      bool
	hasKeyPair  bool

	bridgeURL      string
	bridgeAuthor   string
	bridgeInterval time.Duration
	bridgeSource   bridge.Source

	appendCounter  metrics.Counter
	bridgeApplied  metrics.Counter
	bridgeFailed   metrics.Counter
	bridgeFollowed metrics.Gauge

	closers  multiCloser
	appendMu sync.Mutex
	closedMu sync.Mutex
	closed   bool
	started  time.Time

	// background work like the initial bridge follow
	bgWait sync.WaitGroup

	liveSink  luigi.Sink
	live      luigi.Broadcast
	liveQueue chan ssbd.KeyValue

	KeyPair   ssbd.KeyPair
	Log       *feedlog.Log
	Tracker   *tracker.Tracker
	Graph     *graph.FollowGraph
	BlobStore *blobstore.Store

	// Bridge is nil if no remote is configured
	Bridge *bridge.Manager
}

var _ io.Closer = (*Sbot)(nil)

func initSbot(s *Sbot) (*Sbot, error) {
	log := s.info
	s.started = time.Now()
	s.rootCtx, s.shutdown = context.WithCancel(s.rootCtx)

	if !s.hasKeyPair {
		kp, err := ssbd.LoadOrCreateKeyPair(s.repoPath)
		if err != nil {
			return nil, fmt.Errorf("sbot: failed to get keypair: %w", err)
		}
		s.KeyPair = kp
	}
	log = logWith(log, "self", s.KeyPair.ID.ShortSigil())
	s.info = log

	store, err := s.openStorage()
	if err != nil {
		return nil, fmt.Errorf("sbot: failed to open storage: %w", err)
	}

	s.Log, err = feedlog.New(store,
		feedlog.WithLogger(logWith(log, "unit", "feedlog")),
		feedlog.WithHMACKey(s.hmacKey),
		feedlog.WithAppendCounter(s.appendCounter),
	)
	if err != nil {
		s.closers.Close()
		return nil, fmt.Errorf("sbot: failed to open feed log: %w", err)
	}

	if s.repair {
		n, err := s.Log.RepairState(s.location)
		if err != nil {
			s.closers.Close()
			return nil, fmt.Errorf("sbot: repair failed: %w", err)
		}
		level.Info(log).Log("event", "repaired checkpoints", "feeds", n)
	}

	s.Tracker = tracker.New(s.Log, s.location, tracker.WithLogger(logWith(log, "unit", "tracker")))
	if err := s.Tracker.Initialize(s.rootCtx); err != nil {
		s.closers.Close()
		return nil, fmt.Errorf("sbot: failed to initialize tracker: %w", err)
	}

	s.Graph = graph.New(
		graph.WithMaxHops(s.hopCount),
		graph.WithLogger(logWith(log, "unit", "graph")),
	)
	entries, err := s.Log.Read(s.location, feedlog.Reverse(false))
	if err != nil {
		s.closers.Close()
		return nil, fmt.Errorf("sbot: failed to read log: %w", err)
	}
	s.Graph.Load(entries)

	s.BlobStore, err = blobstore.New(s.repoPath, logWith(log, "unit", "blobs"))
	if err != nil {
		s.closers.Close()
		return nil, fmt.Errorf("sbot: failed to open blob store: %w", err)
	}

	s.startLive()

	if err := s.startBridge(); err != nil {
		s.closers.Close()
		return nil, err
	}

	level.Info(log).Log("event", "sbot ready", "repo", s.repoPath, "entries", len(entries), "feeds", len(s.Tracker.Authors()))
	return s, nil
}

func logWith(l log.Logger, kv ...interface{}) log.Logger {
	return log.With(l, kv...)
}

func (s *Sbot) startBridge() error {
	src := s.bridgeSource
	if src == nil {
		if s.bridgeURL == "" {
			return nil
		}
		httpSrc, err := bridge.NewHTTPSource(s.bridgeURL, nil)
		if err != nil {
			level.Warn(s.info).Log("event", "bridge disabled", "err", err)
			return nil
		}
		src = httpSrc
	}

	s.Bridge = bridge.NewManager(s.rootCtx, src, s.Tracker, s.appendLoose,
		bridge.WithLogger(logWith(s.info, "unit", "bridge")),
		bridge.WithSelf(s.KeyPair.ID.String()),
		bridge.WithInterval(s.bridgeInterval),
		bridge.WithMetrics(s.bridgeApplied, s.bridgeFailed, s.bridgeFollowed),
	)
	s.closers.addCloser(s.Bridge)

	s.bgWait.Add(1)
	go func() {
		defer s.bgWait.Done()

		remoteID, err := s.Bridge.Follow(s.rootCtx, "")
		if err != nil {
			level.Warn(s.info).Log("event", "failed to start bridge follower", "err", err)
		} else {
			level.Info(s.info).Log("event", "following upstream", "author", remoteID)
			s.Graph.SetRoot(remoteID)
			s.Bridge.SyncAuto(s.Graph.ComputeReachable())
		}

		if s.bridgeAuthor != "" {
			author, err := s.Bridge.Follow(s.rootCtx, s.bridgeAuthor)
			if err != nil {
				level.Warn(s.info).Log("event", "failed to follow requested feed", "err", err)
				return
			}
			level.Info(s.info).Log("event", "also following", "author", author)
		}
	}()
	return nil
}

// Whoami returns the identity of the node.
func (s *Sbot) Whoami() refs.FeedRef {
	return s.KeyPair.ID
}

// Location returns where the node's feed log is stored.
func (s *Sbot) Location() string {
	return s.location
}

// Live emits every appended ssbd.KeyValue.
func (s *Sbot) Live() luigi.Broadcast {
	return s.live
}

// Read returns entries of the node's log.
func (s *Sbot) Read(opts ...feedlog.ReadOption) ([]ssbd.KeyValue, error) {
	return s.Log.Read(s.location, opts...)
}

func (s *Sbot) Close() error {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return nil
	}
	s.closed = true
	s.closedMu.Unlock()

	s.shutdown()
	s.info.Log("event", "closing", "msg", "sbot close waiting for background work")
	s.bgWait.Wait()

	if err := s.closers.Close(); err != nil {
		return err
	}
	s.info.Log("event", "closing", "msg", "closers closed")
	return nil
}

func (s *Sbot) isClosed() bool {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	return s.closed
}
