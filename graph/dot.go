// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package graph

import (
	"fmt"

	"gonum.org/v1/gonum/graph/encoding/dot"
)

// MarshalDOT renders the current follow relations in graphviz format.
func (g *FollowGraph) MarshalDOT() ([]byte, error) {
	g.mu.Lock()
	dg := g.build()
	g.mu.Unlock()

	dotbytes, err := dot.Marshal(dg, "follows", "", "  ")
	if err != nil {
		return nil, fmt.Errorf("graph: dot marshal failed: %w", err)
	}
	return dotbytes, nil
}

// Nodes returns the number of feeds mentioned in contact messages.
func (g *FollowGraph) Nodes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.feeds)
}
