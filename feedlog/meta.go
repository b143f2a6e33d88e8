// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package feedlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ssbc/go-ssbd"
)

type metaFile struct {
	Feeds map[string]*ssbd.FeedState `json:"feeds"`
}

func (fl *Log) readMeta(location string) (*metaFile, error) {
	meta := &metaFile{Feeds: make(map[string]*ssbd.FeedState)}

	data, err := fl.store.ReadFile(location, MetaFileName)
	if errors.Is(err, ssbd.ErrNoSuchFile) {
		return meta, nil
	}
	if err != nil {
		return nil, fmt.Errorf("feedlog: failed to read checkpoints: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return meta, nil
	}

	if err := json.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("feedlog: failed to decode checkpoints: %w", err)
	}

	if meta.Feeds == nil {
		meta.Feeds = make(map[string]*ssbd.FeedState)
	}
	for author, s := range meta.Feeds {
		if s == nil {
			delete(meta.Feeds, author)
		}
	}
	return meta, nil
}

func (fl *Log) writeMeta(location string, meta *metaFile) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("feedlog: failed to encode checkpoints: %w", err)
	}
	if err := fl.store.WriteFile(location, MetaFileName, data); err != nil {
		return fmt.Errorf("feedlog: failed to write checkpoints: %w", err)
	}
	return nil
}
