// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/kit/metrics"
	"go.mindeco.de/log"
	"go.mindeco.de/log/level"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ssbc/go-ssbd"
)

const (
	// DefaultInterval is the poll interval used when none is configured.
	DefaultInterval = 5 * time.Second

	// MinInterval is the shortest poll interval a manager accepts.
	MinInterval = time.Second
)

// ErrNoAuthor is returned by Follow if neither a target was given nor the remote told its identity.
var ErrNoAuthor = errors.New("bridge: unable to resolve bridge author")

// ErrClosed is returned by Follow after Close.
var ErrClosed = errors.New("bridge: manager closed")

// Tracker is the part of the progress tracker the bridge needs.
type Tracker interface {
	Highest(author string) int64
	HasKey(key string) bool
	RememberKey(key string)
	RecomputeAuthor(author string) (int64, error)
}

// AppendFunc stores a replicated message without requiring it to follow the local checkpoint.
type AppendFunc func(v ssbd.Value) (ssbd.KeyValue, error)

// Manager runs one poller per followed author.
type Manager struct {
	src     Source
	tracker Tracker
	append  AppendFunc

	self     string
	interval time.Duration
	info     log.Logger

	applied  metrics.Counter
	failed   metrics.Counter
	followed metrics.Gauge

	manual *ssbd.FeedSet
	auto   *ssbd.FeedSet

	lookup singleflight.Group

	rootCtx context.Context
	cancel  context.CancelFunc
	eg      *errgroup.Group

	mu            sync.Mutex
	closed        bool
	defaultAuthor string
	pollers       map[string]*poller
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l log.Logger) Option {
	return func(m *Manager) {
		m.info = l
	}
}

// WithSelf sets the local identity, which is never polled.
func WithSelf(id string) Option {
	return func(m *Manager) {
		m.self = id
	}
}

// WithInterval sets the poll interval. Values below MinInterval are raised to it.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.interval = d
	}
}

// WithMetrics counts applied and failed appends and the number of pollers.
func WithMetrics(applied, failed metrics.Counter, followed metrics.Gauge) Option {
	return func(m *Manager) {
		m.applied = applied
		m.failed = failed
		m.followed = followed
	}
}

// NewManager returns a manager that polls src. The pollers stop when ctx is canceled or Close is called.
func NewManager(ctx context.Context, src Source, tracker Tracker, append AppendFunc, opts ...Option) *Manager {
	m := &Manager{
		src:     src,
		tracker: tracker,
		append:  append,

		manual: ssbd.NewFeedSet(0),
		auto:   ssbd.NewFeedSet(0),

		pollers: make(map[string]*poller),
	}
	for _, o := range opts {
		o(m)
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	m.interval = max(m.interval, MinInterval)
	if m.info == nil {
		m.info = log.NewNopLogger()
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.eg, m.rootCtx = errgroup.WithContext(ctx)
	return m
}

// Interval returns the effective poll interval.
func (m *Manager) Interval() time.Duration { return m.interval }

// resolveAuthor returns target or, if that is empty, the identity of the remote.
func (m *Manager) resolveAuthor(ctx context.Context, target string) (string, error) {
	if t := strings.TrimSpace(target); t != "" {
		return t, nil
	}

	m.mu.Lock()
	cached := m.defaultAuthor
	m.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	v, err, _ := m.lookup.Do("default", func() (interface{}, error) {
		return m.src.DefaultAuthor(ctx)
	})
	if err != nil {
		level.Warn(m.info).Log("event", "default author lookup failed", "err", err)
		return "", fmt.Errorf("%w: %s", ErrNoAuthor, err)
	}
	id := v.(string)

	m.mu.Lock()
	if m.defaultAuthor == "" {
		m.defaultAuthor = id
		level.Info(m.info).Log("event", "default remote author", "author", id)
	}
	m.mu.Unlock()
	return id, nil
}

// Follow adds target to the manually followed feeds.
// An empty target follows the remote's own feed. It returns the followed author.
func (m *Manager) Follow(ctx context.Context, target string) (string, error) {
	author, err := m.resolveAuthor(ctx, target)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return "", ErrClosed
	}

	m.manual.Add(author)
	m.update()
	return author, nil
}

// Unfollow removes author from the manually followed feeds.
// It might still be polled if it is part of the automatic set.
func (m *Manager) Unfollow(author string) {
	if m.manual.Delete(author) {
		m.update()
	}
}

// SyncAuto replaces the automatically followed feeds, usually with the reachable part of the follow graph.
func (m *Manager) SyncAuto(authors []string) {
	filtered := make([]string, 0, len(authors))
	for _, a := range authors {
		if a != "" {
			filtered = append(filtered, a)
		}
	}
	m.auto.Replace(filtered)
	m.update()
}

// List returns the authors that currently have a poller.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lst := make([]string, 0, len(m.pollers))
	for a := range m.pollers {
		lst = append(lst, a)
	}
	sort.Strings(lst)
	return lst
}

// update starts and stops pollers until they match the union of the manual and automatic sets.
func (m *Manager) update() {
	desired := make(map[string]struct{})
	for _, set := range []*ssbd.FeedSet{m.manual, m.auto} {
		for _, id := range set.List() {
			if id != "" && id != m.self {
				desired[id] = struct{}{}
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	for author := range desired {
		if _, running := m.pollers[author]; running {
			continue
		}
		p := newPoller(m, author)
		m.pollers[author] = p
		m.eg.Go(p.run)
		level.Debug(m.info).Log("event", "poller started", "author", author)
	}

	for author, p := range m.pollers {
		if _, keep := desired[author]; keep {
			continue
		}
		p.stop()
		delete(m.pollers, author)
		level.Debug(m.info).Log("event", "poller stopped", "author", author)
	}

	if m.followed != nil {
		m.followed.Set(float64(len(m.pollers)))
	}
}

// Sync runs one sync step for author right away, unless one is already running.
// It returns the number of applied entries.
func (m *Manager) Sync(author string) (int, error) {
	m.mu.Lock()
	p, has := m.pollers[author]
	m.mu.Unlock()
	if !has {
		p = newPoller(m, author)
	}
	return p.syncOnce()
}

// Close stops all pollers and waits for them to return.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for author, p := range m.pollers {
		p.stop()
		delete(m.pollers, author)
	}
	m.mu.Unlock()

	m.cancel()
	err := m.eg.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}
