// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-kit/kit/metrics"
)

// MaxConnsPerHost limits the concurrent websocket sessions of one remote host.
const MaxConnsPerHost = 8

// ConnTracker keeps the open websocket sessions.
// Hijacked connections are not closed by http.Server.Shutdown, CloseAll does that.
type ConnTracker interface {
	// OnAccept registers c for remote. It returns false if remote has too many sessions.
	OnAccept(remote string, c io.Closer) bool

	// OnClose unregisters c and returns how long it was open.
	OnClose(c io.Closer) time.Duration

	Count() uint
	CloseAll()
}

type instrumentedConnTracker struct {
	root ConnTracker

	count    metrics.Gauge
	duration metrics.Histogram
}

// NewInstrumentedConnTracker reports the number of sessions to ct and their lifetime to h.
func NewInstrumentedConnTracker(r ConnTracker, ct metrics.Gauge, h metrics.Histogram) ConnTracker {
	return &instrumentedConnTracker{root: r, count: ct, duration: h}
}

func (ict instrumentedConnTracker) Count() uint {
	n := ict.root.Count()
	ict.count.With("part", "tracked_count").Set(float64(n))
	return n
}

func (ict instrumentedConnTracker) CloseAll() {
	ict.root.CloseAll()
}

func (ict instrumentedConnTracker) OnAccept(remote string, c io.Closer) bool {
	ok := ict.root.OnAccept(remote, c)
	if ok {
		ict.count.With("part", "tracked_conns").Add(1)
	}
	return ok
}

func (ict instrumentedConnTracker) OnClose(c io.Closer) time.Duration {
	dur := ict.root.OnClose(c)
	if dur > 0 {
		ict.count.With("part", "tracked_conns").Add(-1)
		ict.duration.With("part", "tracked_conns").Observe(dur.Seconds())
	}
	return dur
}

type connEntry struct {
	host    string
	started time.Time
}

// NewConnTracker returns a tracker that allows MaxConnsPerHost sessions per host.
func NewConnTracker() ConnTracker {
	return &connTracker{
		active: make(map[io.Closer]connEntry),
		hosts:  make(map[string]int),
	}
}

type connTracker struct {
	activeLock sync.Mutex
	active     map[io.Closer]connEntry
	hosts      map[string]int
}

func (ct *connTracker) CloseAll() {
	ct.activeLock.Lock()
	conns := make([]io.Closer, 0, len(ct.active))
	for c := range ct.active {
		conns = append(conns, c)
	}
	ct.activeLock.Unlock()

	// the handlers call OnClose once their conn is gone
	for _, c := range conns {
		c.Close()
	}
}

func (ct *connTracker) Count() uint {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()
	return uint(len(ct.active))
}

func hostOf(remote string) string {
	if h, _, err := net.SplitHostPort(remote); err == nil {
		return h
	}
	return remote
}

func (ct *connTracker) OnAccept(remote string, c io.Closer) bool {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()

	host := hostOf(remote)
	if ct.hosts[host] >= MaxConnsPerHost {
		return false
	}
	ct.hosts[host]++
	ct.active[c] = connEntry{host: host, started: time.Now()}
	return true
}

func (ct *connTracker) OnClose(c io.Closer) time.Duration {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()

	who, ok := ct.active[c]
	if !ok {
		return 0
	}
	delete(ct.active, c)
	if ct.hosts[who.host]--; ct.hosts[who.host] <= 0 {
		delete(ct.hosts, who.host)
	}
	return time.Since(who.started)
}
