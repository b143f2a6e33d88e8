// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package graph keeps the follow relations announced by contact messages
// and computes which feeds are within reach of a root feed.
package graph

import (
	"sort"
	"sync"

	"go.mindeco.de/log"
	"go.mindeco.de/log/level"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/ssbc/go-ssbd"
)

// DefaultMaxHops is used when New gets a non-positive hop count.
const DefaultMaxHops = 3

type feedNode struct {
	id   int64
	feed string
}

func (n feedNode) ID() int64 { return n.id }

func (n feedNode) DOTID() string { return n.feed }

var _ graph.Node = feedNode{}

// FollowGraph is safe for concurrent use.
type FollowGraph struct {
	mu sync.Mutex

	info    log.Logger
	maxHops int
	root    string

	// author -> contact -> following
	relations map[string]map[string]bool

	// stable node ids for feeds
	ids   map[string]int64
	feeds []string
}

// Option configures a FollowGraph.
type Option func(*FollowGraph)

func WithLogger(l log.Logger) Option {
	return func(g *FollowGraph) {
		g.info = l
	}
}

// WithMaxHops sets how many follow hops ComputeReachable walks from the root.
func WithMaxHops(n int) Option {
	return func(g *FollowGraph) {
		g.maxHops = n
	}
}

func New(opts ...Option) *FollowGraph {
	g := &FollowGraph{
		relations: make(map[string]map[string]bool),
		ids:       make(map[string]int64),
	}
	for _, o := range opts {
		o(g)
	}
	if g.maxHops <= 0 {
		g.maxHops = DefaultMaxHops
	}
	if g.info == nil {
		g.info = log.NewNopLogger()
	}
	return g
}

// ProcessEntry applies kv if it is a contact message.
// It returns true if the announced relation differs from the known one.
func (g *FollowGraph) ProcessEntry(kv ssbd.KeyValue) bool {
	c, err := ssbd.ParseContact(kv.Value.Content)
	if err != nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	rels, has := g.relations[kv.Value.Author]
	if !has {
		rels = make(map[string]bool)
		g.relations[kv.Value.Author] = rels
	}
	if current, has := rels[c.Contact]; has && current == c.Following {
		return false
	}
	rels[c.Contact] = c.Following
	g.nodeID(kv.Value.Author)
	g.nodeID(c.Contact)

	level.Debug(g.info).Log("event", "relation changed", "author", kv.Value.Author, "contact", c.Contact, "following", c.Following)
	return true
}

// Load processes all entries and reports whether any relation changed.
func (g *FollowGraph) Load(entries []ssbd.KeyValue) bool {
	var changed bool
	for _, kv := range entries {
		if g.ProcessEntry(kv) {
			changed = true
		}
	}
	return changed
}

func (g *FollowGraph) SetRoot(feed string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.root = feed
}

func (g *FollowGraph) Root() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.root
}

// Follows reports whether the last contact message from a about b said following.
func (g *FollowGraph) Follows(a, b string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.relations[a][b]
}

// has to be called with the lock held
func (g *FollowGraph) nodeID(feed string) int64 {
	id, has := g.ids[feed]
	if !has {
		id = int64(len(g.feeds))
		g.ids[feed] = id
		g.feeds = append(g.feeds, feed)
	}
	return id
}

// has to be called with the lock held
func (g *FollowGraph) build() *simple.DirectedGraph {
	dg := simple.NewDirectedGraph()
	for id, feed := range g.feeds {
		dg.AddNode(feedNode{id: int64(id), feed: feed})
	}
	for author, rels := range g.relations {
		from := dg.Node(g.ids[author])
		for contact, following := range rels {
			if !following || contact == author {
				continue
			}
			dg.SetEdge(dg.NewEdge(from, dg.Node(g.ids[contact])))
		}
	}
	return dg
}

// ComputeReachable returns the feeds that can be reached from the root by following
// at most maxHops follow relations. The root itself is never part of the result.
// Without a root the result is empty.
func (g *FollowGraph) ComputeReachable() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.root == "" {
		return nil
	}
	rootID, has := g.ids[g.root]
	if !has {
		return nil
	}

	dg := g.build()

	var reachable []string
	var w traverse.BreadthFirst
	w.Walk(dg, dg.Node(rootID), func(n graph.Node, depth int) bool {
		if depth > g.maxHops {
			return true
		}
		if depth > 0 {
			reachable = append(reachable, g.feeds[n.ID()])
		}
		return false
	})

	sort.Strings(reachable)
	return reachable
}
