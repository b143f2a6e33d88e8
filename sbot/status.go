// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package sbot

import (
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ssbc/go-ssbd/bridge"
)

// FeedStatus is the progress of one known feed.
type FeedStatus struct {
	Author     string  `json:"author"`
	Contiguous int64   `json:"contiguous"`
	Highest    int64   `json:"highest"`
	Missing    []int64 `json:"missing,omitempty"`
}

// Status summarizes the state of a node.
type Status struct {
	PID       int                   `json:"pid"`
	ID        string                `json:"id"`
	Location  string                `json:"location"`
	Since     string                `json:"since"`
	KnownKeys int                   `json:"knownKeys"`
	Feeds     []FeedStatus          `json:"feeds"`
	Root      string                `json:"root,omitempty"`
	Reachable []string              `json:"reachable,omitempty"`
	Bridge    []bridge.FollowStatus `json:"bridge,omitempty"`
}

// maximum number of listed gaps per feed
const maxMissing = 64

func (s *Sbot) Status() Status {
	st := Status{
		PID:       os.Getpid(),
		ID:        s.KeyPair.ID.String(),
		Location:  s.location,
		Since:     humanize.Time(s.started),
		KnownKeys: s.Tracker.KnownKeys(),
		Root:      s.Graph.Root(),
		Reachable: s.Graph.ComputeReachable(),
	}

	for _, author := range s.Tracker.Authors() {
		missing := s.Tracker.Missing(author)
		if len(missing) > maxMissing {
			missing = missing[:maxMissing]
		}
		st.Feeds = append(st.Feeds, FeedStatus{
			Author:     author,
			Contiguous: s.Tracker.Contiguous(author),
			Highest:    s.Tracker.Highest(author),
			Missing:    missing,
		})
	}

	if s.Bridge != nil {
		st.Bridge = s.Bridge.Status()
	}
	return st
}

// Uptime returns how long the node is running.
func (s *Sbot) Uptime() time.Duration {
	return time.Since(s.started)
}
