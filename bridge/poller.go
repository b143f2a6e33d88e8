// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/gohistogram"
	"go.mindeco.de/log"
	"go.mindeco.de/log/level"
)

type poller struct {
	m      *Manager
	author string
	info   log.Logger

	done chan struct{}
	once sync.Once

	// set while a sync step runs
	syncing int32

	statsMu  sync.Mutex
	applied  int64
	failed   int64
	syncs    int64
	lastSync time.Time
	lastErr  error
	latency  *gohistogram.NumericHistogram
}

func newPoller(m *Manager, author string) *poller {
	return &poller{
		m:      m,
		author: author,
		info:   log.With(m.info, "author", author),

		done:    make(chan struct{}),
		latency: gohistogram.NewHistogram(20),
	}
}

func (p *poller) stop() {
	p.once.Do(func() { close(p.done) })
}

// run polls until the poller is stopped or the manager shuts down.
func (p *poller) run() error {
	p.syncOnce()

	tick := time.NewTicker(p.m.interval)
	defer tick.Stop()

	for {
		select {
		case <-p.done:
			return nil
		case <-p.m.rootCtx.Done():
			return nil
		case <-tick.C:
			p.syncOnce()
		}
	}
}

// syncOnce fetches what the remote has beyond the highest known sequence and appends it.
// Errors are logged and left for the next tick.
func (p *poller) syncOnce() (int, error) {
	if !atomic.CompareAndSwapInt32(&p.syncing, 0, 1) {
		return 0, nil
	}
	defer atomic.StoreInt32(&p.syncing, 0)

	start := time.Now()
	applied, failed, err := p.step(p.m.rootCtx)
	took := time.Since(start)

	p.statsMu.Lock()
	p.syncs++
	p.applied += int64(applied)
	p.failed += int64(failed)
	p.lastSync = start
	p.lastErr = err
	p.latency.Add(took.Seconds())
	p.statsMu.Unlock()

	if err != nil && p.m.rootCtx.Err() == nil {
		level.Warn(p.info).Log("event", "sync failed", "err", err)
	}
	return applied, err
}

func (p *poller) step(ctx context.Context) (int, int, error) {
	m := p.m
	since := m.tracker.Highest(p.author)

	entries, err := m.src.EntriesSince(ctx, p.author, since)
	if err != nil {
		return 0, 0, err
	}
	if len(entries) == 0 {
		return 0, 0, nil
	}

	var (
		applied     int
		failed      int
		expectedSeq = since
	)
	for _, e := range entries {
		if e.Value == nil {
			continue
		}
		seq := e.Value.Sequence

		if e.Key != "" && m.tracker.HasKey(e.Key) {
			expectedSeq = max(expectedSeq, seq)
			continue
		}
		if seq <= expectedSeq {
			continue
		}

		kv, err := m.append(*e.Value)
		if err != nil {
			failed++
			if m.failed != nil {
				m.failed.Add(1)
			}
			level.Warn(p.info).Log("event", "append failed",
				"seq", seq,
				"previous", e.Value.PreviousString(),
				"expected", expectedSeq+1,
				"remote", m.src,
				"err", err)
			continue
		}

		key := e.Key
		if key == "" {
			key = kv.Key.String()
		}
		m.tracker.RememberKey(key)

		applied++
		expectedSeq = seq
		if m.applied != nil {
			m.applied.Add(1)
		}
		level.Debug(p.info).Log("event", "synced", "seq", seq, "key", kv.Key.ShortSigil())
	}

	if applied > 0 {
		if _, err := m.tracker.RecomputeAuthor(p.author); err != nil {
			level.Warn(p.info).Log("event", "recompute failed", "err", err)
		}
		level.Info(p.info).Log("event", "synced entries", "count", applied)
	}
	return applied, failed, nil
}

// FollowStatus describes the poller of one author.
type FollowStatus struct {
	Author    string    `json:"author"`
	Syncs     int64     `json:"syncs"`
	Applied   int64     `json:"applied"`
	Failed    int64     `json:"failed"`
	LastSync  time.Time `json:"lastSync"`
	LastError string    `json:"lastError,omitempty"`

	// sync duration quantiles in seconds
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
}

func (p *poller) status() FollowStatus {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	st := FollowStatus{
		Author:   p.author,
		Syncs:    p.syncs,
		Applied:  p.applied,
		Failed:   p.failed,
		LastSync: p.lastSync,
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	if p.syncs > 0 {
		st.P50 = p.latency.Quantile(0.5)
		st.P90 = p.latency.Quantile(0.9)
	}
	return st
}

// Status returns the state of every poller, sorted by author.
func (m *Manager) Status() []FollowStatus {
	m.mu.Lock()
	pollers := make([]*poller, 0, len(m.pollers))
	for _, p := range m.pollers {
		pollers = append(pollers, p)
	}
	m.mu.Unlock()

	sts := make([]FollowStatus, len(pollers))
	for i, p := range pollers {
		sts[i] = p.status()
	}
	sort.Slice(sts, func(i, j int) bool { return sts[i].Author < sts[j].Author })
	return sts
}
