// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package tracker keeps, per author, how far a feed is verified and how far it was seen.
//
// contiguous is the longest prefix 1..N of a feed that validates in order from an empty state.
// highest is the largest sequence observed at all. The two differ while a feed has gaps.
package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/machinebox/progress"
	refs "github.com/ssbc/go-ssb-refs"
	"go.mindeco.de/log"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/feedlog"
)

// Log is what the tracker needs from the feed log.
type Log interface {
	Read(location string, opts ...feedlog.ReadOption) ([]ssbd.KeyValue, error)
	Validate(v ssbd.Value, prior *ssbd.FeedState, enforceSequence bool) (refs.MessageRef, error)
}

type feedProgress struct {
	contiguous int64
	highest    int64

	// tip of the verified prefix
	last ssbd.FeedState

	// observed sequences
	seen *roaring.Bitmap
}

func newFeedProgress() *feedProgress {
	return &feedProgress{seen: roaring.New()}
}

// Tracker is safe for concurrent use.
type Tracker struct {
	log      Log
	location string
	info     log.Logger

	progressInterval time.Duration

	mu    sync.Mutex
	known map[string]struct{}
	feeds map[string]*feedProgress
}

// Option configures a Tracker.
type Option func(*Tracker)

func WithLogger(l log.Logger) Option {
	return func(t *Tracker) {
		t.info = l
	}
}

// WithProgressInterval sets how often Initialize reports progress.
func WithProgressInterval(d time.Duration) Option {
	return func(t *Tracker) {
		t.progressInterval = d
	}
}

// New returns an empty tracker for location. Call Initialize to fill it from the log.
func New(l Log, location string, opts ...Option) *Tracker {
	t := &Tracker{
		log:      l,
		location: location,

		progressInterval: 5 * time.Second,

		known: make(map[string]struct{}),
		feeds: make(map[string]*feedProgress),
	}
	for _, o := range opts {
		o(t)
	}
	if t.info == nil {
		t.info = log.NewNopLogger()
	}
	return t
}

// replayCounter implements progress.Counter
type replayCounter struct {
	n int64
}

func (c *replayCounter) N() int64    { return atomic.LoadInt64(&c.n) }
func (c *replayCounter) Err() error  { return nil }
func (c *replayCounter) add(n int64) { atomic.AddInt64(&c.n, n) }

var _ progress.Counter = (*replayCounter)(nil)

// Initialize rescans the whole log and replays every author from scratch.
func (t *Tracker) Initialize(ctx context.Context) error {
	entries, err := t.log.Read(t.location, feedlog.Reverse(false))
	if err != nil {
		return fmt.Errorf("tracker: failed to read log: %w", err)
	}

	byAuthor := make(map[string][]ssbd.KeyValue)
	known := make(map[string]struct{}, len(entries))
	for _, kv := range entries {
		known[kv.Key.String()] = struct{}{}
		byAuthor[kv.Value.Author] = append(byAuthor[kv.Value.Author], kv)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var counter replayCounter
	go func() {
		p := progress.NewTicker(ctx, &counter, int64(len(entries)), t.progressInterval)
		pinfo := log.With(level.Info(t.info), "event", "tracker-progress")
		for remaining := range p {
			timeLeft := time.Until(remaining.Estimated()).Round(time.Second)
			pinfo.Log("done", fmt.Sprintf("%.2f%%", remaining.Percent()), "time-left", timeLeft)
		}
	}()

	feeds := make(map[string]*feedProgress, len(byAuthor))
	for author, authorEntries := range byAuthor {
		if err := ctx.Err(); err != nil {
			return err
		}
		feeds[author] = t.replay(authorEntries)
		counter.add(int64(len(authorEntries)))
	}

	t.mu.Lock()
	t.known = known
	t.feeds = feeds
	t.mu.Unlock()

	level.Info(t.info).Log("event", "tracker initialized", "authors", len(feeds), "entries", len(entries))
	return nil
}

// RecomputeAuthor replays the feed of author from the start of the log and returns its contiguous sequence.
func (t *Tracker) RecomputeAuthor(author string) (int64, error) {
	entries, err := t.log.Read(t.location, feedlog.Reverse(false))
	if err != nil {
		return 0, fmt.Errorf("tracker: failed to read log: %w", err)
	}

	var authorEntries []ssbd.KeyValue
	for _, kv := range entries {
		if kv.Value.Author == author {
			authorEntries = append(authorEntries, kv)
		}
	}

	fp := t.replay(authorEntries)

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, kv := range authorEntries {
		t.known[kv.Key.String()] = struct{}{}
	}

	// entries observed while the log was replayed are not part of the snapshot
	if cur, has := t.feeds[author]; has {
		fp.seen.Or(cur.seen)
		if cur.highest > fp.highest {
			fp.highest = cur.highest
		}
		if cur.contiguous > fp.contiguous {
			fp.contiguous = cur.contiguous
			fp.last = cur.last
		}
	}
	if fp.highest > 0 {
		t.feeds[author] = fp
	}

	level.Debug(t.info).Log("event", "recomputed", "author", author, "contiguous", fp.contiguous, "highest", fp.highest)
	return fp.contiguous, nil
}

// replay validates the entries of one author in sequence order and stops at the first failure.
func (t *Tracker) replay(entries []ssbd.KeyValue) *feedProgress {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Value.Sequence < entries[j].Value.Sequence
	})

	fp := newFeedProgress()
	for _, kv := range entries {
		if kv.Value.Sequence > fp.highest {
			fp.highest = kv.Value.Sequence
		}
		if kv.Value.Sequence > 0 && kv.Value.Sequence <= maxTracked {
			fp.seen.Add(uint32(kv.Value.Sequence))
		}
	}

	var (
		prior    *ssbd.FeedState
		accepted = make(map[string]struct{})
	)
	for _, kv := range entries {
		key := kv.Key.String()
		if _, dup := accepted[key]; dup {
			continue
		}

		computed, err := t.log.Validate(kv.Value, prior, true)
		if err != nil || computed.String() != key {
			break
		}

		accepted[key] = struct{}{}
		fp.contiguous = kv.Value.Sequence
		fp.last = ssbd.FeedState{ID: kv.Key, Sequence: kv.Value.Sequence, Timestamp: kv.Value.Timestamp}
		prior = &fp.last
	}
	return fp
}

const maxTracked = int64(^uint32(0))

// Observe updates the tracker with an entry that was just accepted by the feed log.
// The verified prefix only grows if kv directly follows it, everything else needs RecomputeAuthor.
func (t *Tracker) Observe(kv ssbd.KeyValue) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.known[kv.Key.String()] = struct{}{}

	fp, has := t.feeds[kv.Value.Author]
	if !has {
		fp = newFeedProgress()
		t.feeds[kv.Value.Author] = fp
	}

	seq := kv.Value.Sequence
	if seq > fp.highest {
		fp.highest = seq
	}
	if seq > 0 && seq <= maxTracked {
		fp.seen.Add(uint32(seq))
	}

	follows := seq == fp.contiguous+1 &&
		kv.Value.PreviousString() == fp.last.IDString() &&
		(fp.contiguous == 0 || kv.Value.Timestamp > fp.last.Timestamp)
	if follows {
		fp.contiguous = seq
		fp.last = ssbd.FeedState{ID: kv.Key, Sequence: seq, Timestamp: kv.Value.Timestamp}
	}
}

// Contiguous returns the highest N for which 1..N of author validated in order.
func (t *Tracker) Contiguous(author string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fp, has := t.feeds[author]; has {
		return fp.contiguous
	}
	return 0
}

// Highest returns the largest sequence of author observed so far, valid or not.
func (t *Tracker) Highest(author string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fp, has := t.feeds[author]; has {
		return fp.highest
	}
	return 0
}

// Missing lists the sequences between 1 and Highest(author) that were never observed.
func (t *Tracker) Missing(author string) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	fp, has := t.feeds[author]
	if !has || fp.highest == 0 {
		return nil
	}

	holes := roaring.Flip(fp.seen, 1, uint64(fp.highest)+1)
	missing := make([]int64, 0, holes.GetCardinality())
	it := holes.Iterator()
	for it.HasNext() {
		missing = append(missing, int64(it.Next()))
	}
	return missing
}

// HasKey reports whether a message with key was accepted in this location.
func (t *Tracker) HasKey(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, has := t.known[key]
	return has
}

// RememberKey adds key to the known set.
func (t *Tracker) RememberKey(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known[key] = struct{}{}
}

// KnownKeys returns the size of the known set.
func (t *Tracker) KnownKeys() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.known)
}

// Authors returns all tracked authors, sorted.
func (t *Tracker) Authors() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	authors := make([]string, 0, len(t.feeds))
	for a := range t.feeds {
		authors = append(authors, a)
	}
	sort.Strings(authors)
	return authors
}
