// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package ssbd

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const testFeed = "@p13zSAiOpguI9nsawkGijsnMfWmFd5rlUNpzekEE+vI=.ed25519"

func TestParseContact(t *testing.T) {
	r := require.New(t)

	c, err := ParseContact(json.RawMessage(`{"type":"contact","contact":"` + testFeed + `","following":true}`))
	r.NoError(err)
	r.Equal(testFeed, c.Contact)
	r.True(c.Following)
	r.False(c.Blocking)

	c, err = ParseContact(json.RawMessage(`{"type":"contact","contact":"` + testFeed + `","blocking":true}`))
	r.NoError(err)
	r.False(c.Following)
	r.True(c.Blocking)

	_, err = ParseContact(json.RawMessage(`{"type":"post","text":"hi"}`))
	var wt ErrWrongType
	r.True(errors.As(err, &wt))
	r.Equal("post", wt.Has)

	_, err = ParseContact(json.RawMessage(`{"type":"contact","contact":"@nope"}`))
	r.Error(err)

	_, err = ParseContact(json.RawMessage(`"contact"`))
	r.Error(err)
}

func TestParseAbout(t *testing.T) {
	r := require.New(t)

	a, err := ParseAbout(json.RawMessage(`{"type":"about","about":"` + testFeed + `","name":"alice","image":"%ZR3jMW+ifnTWqd5hnrrGjjt4HpUn/dAMXvcUOx+lgbY=.sha256"}`))
	r.NoError(err)
	r.Equal("alice", a.Name)
	r.True(IsBlobHash(a.Image))

	_, err = ParseAbout(json.RawMessage(`{"type":"about","about":"` + testFeed + `","image":"not-a-blob"}`))
	r.Error(err)

	_, err = ParseAbout(json.RawMessage(`{"type":"contact"}`))
	r.Error(err)
}

func TestBlobHash(t *testing.T) {
	r := require.New(t)
	r.Equal("%ZR3jMW+ifnTWqd5hnrrGjjt4HpUn/dAMXvcUOx+lgbY=.sha256", BlobHash([]byte("omg")))
	r.True(IsBlobHash(BlobHash(nil)))
	r.False(IsBlobHash("%short.sha256"))
	r.False(IsBlobHash("&ZR3jMW+ifnTWqd5hnrrGjjt4HpUn/dAMXvcUOx+lgbY=.sha256"))
}
