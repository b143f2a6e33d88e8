// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package feedlog stores signed messages of one or more authors in an append-only log.
//
// Every log location has two files: the newline delimited log itself and a checkpoint
// with the last accepted message of each author. All appends to one location are
// serialized, so reading the checkpoint, validating, appending and writing the checkpoint
// back happens as one step.
package feedlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/kit/metrics"
	refs "github.com/ssbc/go-ssb-refs"
	"go.mindeco.de/log"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/message"
)

const (
	// LogFileName holds one KeyValue per line.
	LogFileName = "log.jsonl"

	// MetaFileName holds the checkpoints of all authors.
	MetaFileName = "log.meta.json"
)

// Log is the append path for all locations of one storage.
type Log struct {
	store ssbd.Storage
	info  log.Logger

	hmacKey *[32]byte
	now     func() time.Time

	appended metrics.Counter

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// message keys per location, loaded on the first older-than-checkpoint append.
	// The inner maps are only touched with the location lock held.
	keys map[string]map[string]struct{}
}

// Option configures a Log.
type Option func(*Log) error

// WithLogger sets the logger for append and read events.
func WithLogger(l log.Logger) Option {
	return func(fl *Log) error {
		fl.info = l
		return nil
	}
}

// WithHMACKey signs and verifies messages over the HMAC of their canonical bytes.
func WithHMACKey(key *[32]byte) Option {
	return func(fl *Log) error {
		fl.hmacKey = key
		return nil
	}
}

// WithClock replaces time.Now for new message timestamps and receive times.
func WithClock(now func() time.Time) Option {
	return func(fl *Log) error {
		if now == nil {
			return errors.New("feedlog: nil clock")
		}
		fl.now = now
		return nil
	}
}

// WithAppendCounter counts accepted messages, labeled by "mode".
func WithAppendCounter(c metrics.Counter) Option {
	return func(fl *Log) error {
		fl.appended = c
		return nil
	}
}

// New returns a Log that writes through store.
func New(store ssbd.Storage, opts ...Option) (*Log, error) {
	if store == nil {
		return nil, errors.New("feedlog: storage is required")
	}

	fl := &Log{
		store: store,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
		keys:  make(map[string]map[string]struct{}),
	}

	for i, o := range opts {
		if err := o(fl); err != nil {
			return nil, fmt.Errorf("feedlog: option %d failed: %w", i, err)
		}
	}

	if fl.info == nil {
		fl.info = log.NewNopLogger()
	}

	return fl, nil
}

func (fl *Log) messageOpts() []message.Option {
	if fl.hmacKey == nil {
		return nil
	}
	return []message.Option{message.SetHMACKey(fl.hmacKey)}
}

// Sign signs unsigned with kp. The author of unsigned has to be the identity of kp.
func (fl *Log) Sign(kp ssbd.KeyPair, unsigned ssbd.Value) (ssbd.Value, error) {
	return message.Sign(kp, unsigned, fl.messageOpts()...)
}

// Validate checks v against prior and returns its key. See message.Validate.
func (fl *Log) Validate(v ssbd.Value, prior *ssbd.FeedState, enforceSequence bool) (refs.MessageRef, error) {
	return message.Validate(v, prior, enforceSequence, fl.messageOpts()...)
}

// lock returns the append lock of location
func (fl *Log) lock(location string) *sync.Mutex {
	fl.locksMu.Lock()
	defer fl.locksMu.Unlock()

	mu, has := fl.locks[location]
	if !has {
		mu = new(sync.Mutex)
		fl.locks[location] = mu
	}
	return mu
}

// AppendSigned validates v against the checkpoint of its author and appends it.
//
// Without enforceSequence the message doesn't need to follow the checkpoint, which
// lets replication ingest partial feeds. The checkpoint then only moves forward.
func (fl *Log) AppendSigned(location string, v ssbd.Value, enforceSequence bool) (ssbd.KeyValue, error) {
	mu := fl.lock(location)
	mu.Lock()
	defer mu.Unlock()

	meta, err := fl.readMeta(location)
	if err != nil {
		return ssbd.KeyValue{}, err
	}

	return fl.appendWithState(location, v, meta, enforceSequence)
}

// AppendContent creates, signs and appends the next message of kp's feed.
// content can be anything that encodes to a JSON object or a json.RawMessage.
func (fl *Log) AppendContent(location string, kp ssbd.KeyPair, content interface{}) (ssbd.KeyValue, error) {
	encoded, err := encodeContent(content)
	if err != nil {
		return ssbd.KeyValue{}, err
	}

	mu := fl.lock(location)
	mu.Lock()
	defer mu.Unlock()

	meta, err := fl.readMeta(location)
	if err != nil {
		return ssbd.KeyValue{}, err
	}

	author := kp.ID.String()
	current := meta.Feeds[author]

	timestamp := float64(fl.now().UnixMilli())
	if current != nil && timestamp < current.Timestamp+1 {
		timestamp = current.Timestamp + 1
	}

	unsigned := ssbd.Value{
		Author:    author,
		Timestamp: timestamp,
		Sequence:  1,
		Hash:      ssbd.HashAlgoSHA256,
		Content:   encoded,
	}
	if current != nil {
		unsigned.Previous = current.ID
		unsigned.Sequence = current.Sequence + 1
	}

	signed, err := fl.Sign(kp, unsigned)
	if err != nil {
		return ssbd.KeyValue{}, fmt.Errorf("feedlog: failed to sign next message: %w", err)
	}

	return fl.appendWithState(location, signed, meta, true)
}

func encodeContent(content interface{}) (json.RawMessage, error) {
	switch tv := content.(type) {
	case nil:
		return nil, fmt.Errorf("feedlog: %w: nil", ssbd.ErrInvalidContent)
	case json.RawMessage:
		return tv, nil
	case []byte:
		return json.RawMessage(tv), nil
	}

	encoded, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("feedlog: failed to encode content: %w", err)
	}
	return encoded, nil
}

// has to be called with the location lock held
func (fl *Log) appendWithState(location string, v ssbd.Value, meta *metaFile, enforceSequence bool) (ssbd.KeyValue, error) {
	prior := meta.Feeds[v.Author]

	key, err := fl.Validate(v, prior, enforceSequence)
	if err != nil {
		level.Debug(fl.info).Log("event", "rejected message", "author", v.Author, "seq", v.Sequence, "err", err)
		return ssbd.KeyValue{}, err
	}

	kv := ssbd.KeyValue{
		Key:       &key,
		Value:     v,
		Timestamp: fl.now().UnixMilli(),
	}

	// re-delivery of a stored message. Only messages at or below the checkpoint can be stored already.
	if !enforceSequence && prior != nil && v.Sequence <= prior.Sequence {
		if prior.IDString() == key.String() {
			return kv, nil
		}
		known, err := fl.knownKeys(location)
		if err != nil {
			return ssbd.KeyValue{}, err
		}
		if _, has := known[key.String()]; has {
			level.Debug(fl.info).Log("event", "skipped known message", "author", v.Author, "seq", v.Sequence)
			return kv, nil
		}
	}

	line, err := json.Marshal(kv)
	if err != nil {
		return ssbd.KeyValue{}, fmt.Errorf("feedlog: failed to encode log entry: %w", err)
	}
	line = append(line, '\n')

	if err := fl.store.AppendFile(location, LogFileName, line); err != nil {
		return ssbd.KeyValue{}, fmt.Errorf("feedlog: failed to append entry: %w", err)
	}

	fl.rememberKey(location, key.String())

	if enforceSequence || prior == nil || v.Sequence > prior.Sequence {
		meta.Feeds[v.Author] = &ssbd.FeedState{
			ID:        &key,
			Sequence:  v.Sequence,
			Timestamp: v.Timestamp,
		}
		if err := fl.writeMeta(location, meta); err != nil {
			return ssbd.KeyValue{}, err
		}
	}

	mode := "strict"
	if !enforceSequence {
		mode = "loose"
	}
	if fl.appended != nil {
		fl.appended.With("mode", mode).Add(1)
	}
	level.Debug(fl.info).Log("event", "appended", "mode", mode, "author", v.Author, "seq", v.Sequence, "key", key.ShortSigil())

	return kv, nil
}

// knownKeys returns the keys stored in location. It has to be called with the location lock held.
func (fl *Log) knownKeys(location string) (map[string]struct{}, error) {
	fl.locksMu.Lock()
	known, has := fl.keys[location]
	fl.locksMu.Unlock()
	if has {
		return known, nil
	}

	entries, err := fl.Read(location, Reverse(false))
	if err != nil {
		return nil, err
	}
	known = make(map[string]struct{}, len(entries))
	for _, kv := range entries {
		known[kv.Key.String()] = struct{}{}
	}

	fl.locksMu.Lock()
	fl.keys[location] = known
	fl.locksMu.Unlock()
	return known, nil
}

// rememberKey adds key to the loaded key set of location, if there is one.
func (fl *Log) rememberKey(location, key string) {
	fl.locksMu.Lock()
	known, has := fl.keys[location]
	fl.locksMu.Unlock()
	if has {
		known[key] = struct{}{}
	}
}

// State returns the checkpoint of author in location, the zero value if there is none.
func (fl *Log) State(location, author string) (ssbd.FeedState, error) {
	meta, err := fl.readMeta(location)
	if err != nil {
		return ssbd.FeedState{}, err
	}
	if s, has := meta.Feeds[author]; has {
		return *s, nil
	}
	return ssbd.FeedState{}, nil
}

// States returns the checkpoints of all authors in location.
func (fl *Log) States(location string) (map[string]ssbd.FeedState, error) {
	meta, err := fl.readMeta(location)
	if err != nil {
		return nil, err
	}
	states := make(map[string]ssbd.FeedState, len(meta.Feeds))
	for author, s := range meta.Feeds {
		states[author] = *s
	}
	return states, nil
}
