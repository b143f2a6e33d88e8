// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package ssbd

import (
	"encoding/json"
	"fmt"

	refs "github.com/ssbc/go-ssb-refs"
)

// HashAlgoSHA256 is the only digest scheme messages can declare.
const HashAlgoSHA256 = "sha256"

// Value is a single feed message. The field order of this struct is the
// order in which the fields are encoded for hashing and signing.
type Value struct {
	Previous  *refs.MessageRef `json:"previous"`
	Author    string           `json:"author"`
	Sequence  int64            `json:"sequence"`
	Timestamp float64          `json:"timestamp"`
	Hash      string           `json:"hash"`
	Content   json.RawMessage  `json:"content"`
	Signature string           `json:"signature,omitempty"`
}

// Unsigned returns a copy of the value without its signature.
func (v Value) Unsigned() Value {
	v.Signature = ""
	return v
}

// PreviousString returns the previous key or the empty string for the first message of a feed.
func (v Value) PreviousString() string {
	if v.Previous == nil {
		return ""
	}
	return v.Previous.String()
}

// KeyValue is one line of the feed log.
type KeyValue struct {
	Key   *refs.MessageRef `json:"key"`
	Value Value            `json:"value"`

	// Timestamp is the local receive time in milliseconds since the epoch
	Timestamp int64 `json:"timestamp"`
}

func (kv KeyValue) String() string {
	return fmt.Sprintf("%s:%d (%s)", kv.Value.Author, kv.Value.Sequence, kv.Key.String())
}

// FeedState is the append checkpoint of one author within a log location.
type FeedState struct {
	ID        *refs.MessageRef `json:"id"`
	Sequence  int64            `json:"sequence"`
	Timestamp float64          `json:"timestamp"`
}

// IDString returns the last accepted key or the empty string.
func (s FeedState) IDString() string {
	if s.ID == nil {
		return ""
	}
	return s.ID.String()
}

// Contact is the content of a "contact" message.
type Contact struct {
	Type      string `json:"type"`
	Contact   string `json:"contact"`
	Following bool   `json:"following"`
	Blocking  bool   `json:"blocking"`
}

// ErrWrongType is returned when content is decoded into a type it doesn't declare.
type ErrWrongType struct {
	Has, Want string
}

func (errWt ErrWrongType) Error() string {
	return fmt.Sprintf("ssbd: wrong message type. expected %q - got %q", errWt.Want, errWt.Has)
}

// ParseContact decodes message content as a contact record.
func ParseContact(content json.RawMessage) (Contact, error) {
	var c Contact
	if err := json.Unmarshal(content, &c); err != nil {
		return c, fmt.Errorf("ssbd/contact: failed to decode content: %w", err)
	}
	if c.Type != "contact" {
		return c, ErrWrongType{Has: c.Type, Want: "contact"}
	}
	if _, err := refs.ParseFeedRef(c.Contact); err != nil {
		return c, fmt.Errorf("ssbd/contact: invalid contact field: %w", err)
	}
	return c, nil
}

// About is the content of an "about" message, which may link an avatar blob.
type About struct {
	Type  string `json:"type"`
	About string `json:"about"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// ParseAbout decodes message content as an about record.
func ParseAbout(content json.RawMessage) (About, error) {
	var a About
	if err := json.Unmarshal(content, &a); err != nil {
		return a, fmt.Errorf("ssbd/about: failed to decode content: %w", err)
	}
	if a.Type != "about" {
		return a, ErrWrongType{Has: a.Type, Want: "about"}
	}
	if a.Image != "" && !IsBlobHash(a.Image) {
		return a, fmt.Errorf("ssbd/about: image is not a blob reference: %q", a.Image)
	}
	return a, nil
}
