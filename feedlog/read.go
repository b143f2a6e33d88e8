// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package feedlog

import (
	"bytes"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-ssbd"
)

var lineCodec = jsoniter.ConfigCompatibleWithStandardLibrary

type readOptions struct {
	limit   int
	reverse bool
}

// ReadOption changes the result of Read.
type ReadOption func(*readOptions)

// Limit truncates the result to n entries, after ordering.
func Limit(n int) ReadOption {
	return func(o *readOptions) {
		o.limit = n
	}
}

// Reverse selects newest-first (the default) or log order.
func Reverse(yes bool) ReadOption {
	return func(o *readOptions) {
		o.reverse = yes
	}
}

// Read returns the entries of the log in location. Lines that can't be decoded are skipped.
func (fl *Log) Read(location string, opts ...ReadOption) ([]ssbd.KeyValue, error) {
	ro := readOptions{limit: -1, reverse: true}
	for _, o := range opts {
		o(&ro)
	}

	data, err := fl.store.ReadFile(location, LogFileName)
	if errors.Is(err, ssbd.ErrNoSuchFile) {
		return []ssbd.KeyValue{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("feedlog: failed to read log: %w", err)
	}

	entries := make([]ssbd.KeyValue, 0, bytes.Count(data, []byte{'\n'})+1)
	for i, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var kv ssbd.KeyValue
		if err := lineCodec.Unmarshal(line, &kv); err != nil {
			level.Warn(fl.info).Log("event", "skipping malformed log line", "line", i+1, "err", err)
			continue
		}
		if kv.Key == nil || kv.Value.Author == "" {
			level.Warn(fl.info).Log("event", "skipping incomplete log line", "line", i+1)
			continue
		}
		entries = append(entries, kv)
	}

	if ro.reverse {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	if ro.limit >= 0 && ro.limit < len(entries) {
		entries = entries[:ro.limit]
	}
	return entries, nil
}

// RepairState rebuilds the checkpoints of location from the log.
// Every author ends up at the message with the highest sequence in the log.
func (fl *Log) RepairState(location string) (int, error) {
	mu := fl.lock(location)
	mu.Lock()
	defer mu.Unlock()

	entries, err := fl.Read(location, Reverse(false))
	if err != nil {
		return 0, err
	}

	meta := &metaFile{Feeds: make(map[string]*ssbd.FeedState)}
	for _, kv := range entries {
		current, has := meta.Feeds[kv.Value.Author]
		if has && current.Sequence >= kv.Value.Sequence {
			continue
		}
		meta.Feeds[kv.Value.Author] = &ssbd.FeedState{
			ID:        kv.Key,
			Sequence:  kv.Value.Sequence,
			Timestamp: kv.Value.Timestamp,
		}
	}

	if err := fl.writeMeta(location, meta); err != nil {
		return 0, err
	}
	level.Info(fl.info).Log("event", "repaired checkpoints", "authors", len(meta.Feeds), "entries", len(entries))
	return len(meta.Feeds), nil
}
