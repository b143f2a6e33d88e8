// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package graph

import (
	"testing"

	"github.com/ssbc/go-ssbd/internal/testutils"
)

var hopsScenarios = []PeopleTestCase{
	{
		name:    "chain with two hops",
		maxHops: 2,
		ops: []PeopleOp{
			PeopleOpNewPeer{"root"},
			PeopleOpNewPeer{"a"},
			PeopleOpNewPeer{"b"},
			PeopleOpNewPeer{"c"},
			PeopleOpFollow{"root", "a"},
			PeopleOpFollow{"a", "b"},
			PeopleOpFollow{"b", "c"},
			PeopleOpSetRoot{"root"},
		},
		asserts: []PeopleAssertMaker{
			PeopleAssertReachable("a", "b"),
		},
	},

	{
		name: "default hops",
		ops: []PeopleOp{
			PeopleOpNewPeer{"root"},
			PeopleOpNewPeer{"a"},
			PeopleOpNewPeer{"b"},
			PeopleOpNewPeer{"c"},
			PeopleOpNewPeer{"d"},
			PeopleOpFollow{"root", "a"},
			PeopleOpFollow{"a", "b"},
			PeopleOpFollow{"b", "c"},
			PeopleOpFollow{"c", "d"},
			PeopleOpSetRoot{"root"},
		},
		asserts: []PeopleAssertMaker{
			PeopleAssertReachable("a", "b", "c"),
		},
	},

	{
		name:    "hops 1",
		maxHops: 1,
		ops: []PeopleOp{
			PeopleOpNewPeer{"alice"},
			PeopleOpNewPeer{"bob"},
			PeopleOpNewPeer{"claire"},

			// alice is interested in
			PeopleOpFollow{"alice", "bob"},
			PeopleOpFollow{"alice", "claire"},

			// bobs friends
			PeopleOpNewPeer{"bobf1"},
			PeopleOpNewPeer{"bobf2"},
			PeopleOpFollow{"bob", "bobf1"},
			PeopleOpFollow{"bob", "bobf2"},

			PeopleOpFollow{"bob", "alice"},
			PeopleOpSetRoot{"alice"},
		},
		asserts: []PeopleAssertMaker{
			PeopleAssertReachable("bob", "claire"),
		},
	},

	{
		name:    "hops 2",
		maxHops: 2,
		ops: []PeopleOp{
			PeopleOpNewPeer{"alice"},
			PeopleOpNewPeer{"bob"},
			PeopleOpNewPeer{"claire"},

			// alice is interested in
			PeopleOpFollow{"alice", "bob"},
			PeopleOpFollow{"alice", "claire"},

			// bobs friends
			PeopleOpNewPeer{"bobf1"},
			PeopleOpNewPeer{"bobf2"},
			PeopleOpFollow{"bob", "bobf1"},
			PeopleOpFollow{"bob", "bobf2"},

			PeopleOpFollow{"bob", "alice"},

			// claire's friend is only unfollowed
			PeopleOpNewPeer{"off"},
			PeopleOpUnfollow{"claire", "off"},

			// too far
			PeopleOpNewPeer{"bobfam1"},
			PeopleOpFollow{"bobf1", "bobfam1"},
			PeopleOpSetRoot{"alice"},
		},
		asserts: []PeopleAssertMaker{
			PeopleAssertReachable("bob", "claire", "bobf1", "bobf2"),
		},
	},

	{
		name:    "shortest path wins",
		maxHops: 2,
		ops: []PeopleOp{
			PeopleOpNewPeer{"root"},
			PeopleOpNewPeer{"a"},
			PeopleOpNewPeer{"b"},
			PeopleOpNewPeer{"c"},
			PeopleOpNewPeer{"far"},

			// c is three hops away via a and b, but one via the direct follow
			PeopleOpFollow{"root", "a"},
			PeopleOpFollow{"a", "b"},
			PeopleOpFollow{"b", "c"},
			PeopleOpFollow{"root", "c"},
			PeopleOpFollow{"c", "far"},
			PeopleOpSetRoot{"root"},
		},
		asserts: []PeopleAssertMaker{
			PeopleAssertReachable("a", "b", "c", "far"),
		},
	},
}

func TestHops(t *testing.T) {
	for _, tc := range hopsScenarios {
		hops := tc.maxHops
		mk := func(t *testing.T) *FollowGraph {
			return New(WithMaxHops(hops), WithLogger(testutils.NewTestLogger(t)))
		}
		t.Run(tc.name, tc.run(mk))
	}
}
