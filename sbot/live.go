// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package sbot

import (
	"github.com/ssbc/go-luigi"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-ssbd"
)

// number of appended entries that may wait for slow live subscribers
const liveQueueSize = 256

func (s *Sbot) startLive() {
	s.liveSink, s.live = luigi.NewBroadcast()
	s.liveQueue = make(chan ssbd.KeyValue, liveQueueSize)
	go s.pourLive()
}

// pourLive hands queued entries to the live subscribers in log order until the node shuts down.
func (s *Sbot) pourLive() {
	for {
		select {
		case <-s.rootCtx.Done():
			return
		case kv := <-s.liveQueue:
			if err := s.liveSink.Pour(s.rootCtx, kv); err != nil {
				level.Debug(s.info).Log("event", "live update failed", "err", err)
			}
		}
	}
}

// emitLive queues kv for the live subscribers without waiting for them.
// If they fall more than liveQueueSize entries behind, kv is dropped.
func (s *Sbot) emitLive(kv ssbd.KeyValue) {
	select {
	case s.liveQueue <- kv:
	default:
		level.Warn(s.info).Log("event", "live queue full", "dropped", kv.Key.String())
	}
}
