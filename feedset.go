// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package ssbd

import (
	"sort"
	"sync"
)

// FeedSet is a concurrency safe set of feed identifiers.
type FeedSet struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func NewFeedSet(size int) *FeedSet {
	return &FeedSet{
		set: make(map[string]struct{}, size),
	}
}

// Add returns true if id wasn't in the set before.
func (fs *FeedSet) Add(id string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, has := fs.set[id]; has {
		return false
	}
	fs.set[id] = struct{}{}
	return true
}

// Delete returns true if id was in the set.
func (fs *FeedSet) Delete(id string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, has := fs.set[id]; !has {
		return false
	}
	delete(fs.set, id)
	return true
}

// Replace swaps the content of the set for ids.
func (fs *FeedSet) Replace(ids []string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.set = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		fs.set[id] = struct{}{}
	}
}

func (fs *FeedSet) Has(id string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, has := fs.set[id]
	return has
}

func (fs *FeedSet) Count() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.set)
}

// List returns the sorted members of the set.
func (fs *FeedSet) List() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	lst := make([]string, 0, len(fs.set))
	for id := range fs.set {
		lst = append(lst, id)
	}
	sort.Strings(lst)
	return lst
}
