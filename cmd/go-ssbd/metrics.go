// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-ssbd/network"
	"github.com/ssbc/go-ssbd/sbot"
)

type daemonMetrics struct {
	appended *prometheus.Counter

	bridgeApplied  *prometheus.Counter
	bridgeFailed   *prometheus.Counter
	bridgeFollowed *prometheus.Gauge

	repoStats *prometheus.Gauge

	conns         *prometheus.Gauge
	connDurations *prometheus.Histogram
}

func newMetrics() *daemonMetrics {
	return &daemonMetrics{
		appended: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: "ssbd",
			Subsystem: "feedlog",
			Name:      "appended_total",
			Help:      "entries appended to the feed log",
		}, []string{"mode"}),

		bridgeApplied: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: "ssbd",
			Subsystem: "bridge",
			Name:      "applied_total",
			Help:      "remote entries appended by the bridge",
		}, []string{}),

		bridgeFailed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: "ssbd",
			Subsystem: "bridge",
			Name:      "failed_total",
			Help:      "remote entries the bridge could not append",
		}, []string{}),

		bridgeFollowed: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: "ssbd",
			Subsystem: "bridge",
			Name:      "followed",
			Help:      "authors polled by the bridge",
		}, []string{}),

		repoStats: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: "ssbd",
			Subsystem: "repo",
			Name:      "repostats",
		}, []string{"part"}),

		conns: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: "ssbd",
			Subsystem: "network",
			Name:      "websocket_conns",
		}, []string{"part"}),

		connDurations: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: "ssbd",
			Subsystem: "network",
			Name:      "websocket_duration_seconds",
			Buckets:   stdprometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"part"}),
	}
}

func (m *daemonMetrics) connTracker() network.ConnTracker {
	return network.NewInstrumentedConnTracker(network.NewConnTracker(), m.conns, m.connDurations)
}

func (m *daemonMetrics) sbotOptions() []sbot.Option {
	return []sbot.Option{
		sbot.WithAppendCounter(m.appended),
		sbot.WithBridgeMetrics(m.bridgeApplied, m.bridgeFailed, m.bridgeFollowed),
	}
}

// updateRepoStats refreshes the repo gauges until ctx is done.
func (m *daemonMetrics) updateRepoStats(ctx context.Context, bot *sbot.Sbot) error {
	tick := time.NewTicker(15 * time.Second)
	defer tick.Stop()
	for {
		st := bot.Status()
		m.repoStats.With("part", "keys").Set(float64(st.KnownKeys))
		m.repoStats.With("part", "feeds").Set(float64(len(st.Feeds)))
		m.repoStats.With("part", "reachable").Set(float64(len(st.Reachable)))

		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	level.Info(log).Log("event", "starting metrics", "addr", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
