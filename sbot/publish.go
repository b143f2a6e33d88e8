// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package sbot

import (
	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/message"
)

// Publish signs content as the next message of the node's own feed and appends it.
func (s *Sbot) Publish(content interface{}) (ssbd.KeyValue, error) {
	if s.isClosed() {
		return ssbd.KeyValue{}, ssbd.ErrShuttingDown
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	kv, err := s.Log.AppendContent(s.location, s.KeyPair, content)
	if err != nil {
		return ssbd.KeyValue{}, err
	}
	s.notify(kv)
	return kv, nil
}

// PublishSigned appends a message that was signed elsewhere.
// It needs to directly follow the last known message of its author.
func (s *Sbot) PublishSigned(v ssbd.Value) (ssbd.KeyValue, error) {
	if s.isClosed() {
		return ssbd.KeyValue{}, ssbd.ErrShuttingDown
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	kv, err := s.Log.AppendSigned(s.location, v, true)
	if err != nil {
		return ssbd.KeyValue{}, err
	}
	s.notify(kv)
	return kv, nil
}

// appendLoose stores a replicated message. Already known messages are not stored again.
func (s *Sbot) appendLoose(v ssbd.Value) (ssbd.KeyValue, error) {
	if s.isClosed() {
		return ssbd.KeyValue{}, ssbd.ErrShuttingDown
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	if key, _, err := message.Hash(v); err == nil && s.Tracker.HasKey(key.String()) {
		return ssbd.KeyValue{Key: &key, Value: v}, nil
	}

	kv, err := s.Log.AppendSigned(s.location, v, false)
	if err != nil {
		return ssbd.KeyValue{}, err
	}
	s.notify(kv)
	return kv, nil
}

// notify updates tracker and follow graph and queues kv for live subscribers.
// It has to be called with appendMu held so everything sees entries in log order.
func (s *Sbot) notify(kv ssbd.KeyValue) {
	s.Tracker.Observe(kv)

	if s.Graph.ProcessEntry(kv) && s.Bridge != nil {
		s.Bridge.SyncAuto(s.Graph.ComputeReachable())
	}

	s.emitLive(kv)
}
