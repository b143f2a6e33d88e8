// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package testutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	refs "github.com/ssbc/go-ssb-refs"
	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/message"
)

// KeyPair returns a key pair that is derived from name, the same name gives the same identity.
func KeyPair(t testing.TB, name string) ssbd.KeyPair {
	seed := bytes.Repeat([]byte(name), 32)[:32]
	kp, err := ssbd.NewKeyPair(bytes.NewReader(seed))
	require.NoError(t, err)
	return kp
}

// MakeChain signs n consecutive messages of kp without storing them.
func MakeChain(t testing.TB, kp ssbd.KeyPair, n int) []ssbd.KeyValue {
	var (
		chain []ssbd.KeyValue
		prev  *refs.MessageRef
	)
	for i := 1; i <= n; i++ {
		v := ssbd.Value{
			Author:    kp.ID.String(),
			Sequence:  int64(i),
			Timestamp: float64(1000 + i),
			Hash:      ssbd.HashAlgoSHA256,
			Content:   json.RawMessage(fmt.Sprintf(`{"type":"test","i":%d}`, i)),
		}
		v.Previous = prev
		signed, err := message.Sign(kp, v)
		require.NoError(t, err)
		key, _, err := message.Hash(signed)
		require.NoError(t, err)

		prev = &key
		chain = append(chain, ssbd.KeyValue{Key: &key, Value: signed, Timestamp: int64(2000 + i)})
	}
	return chain
}

// SignNext signs content as the message after prev, or as the first message of kp if prev is nil.
func SignNext(t testing.TB, kp ssbd.KeyPair, prev *ssbd.KeyValue, content string) ssbd.KeyValue {
	v := ssbd.Value{
		Author:    kp.ID.String(),
		Sequence:  1,
		Timestamp: 1000,
		Hash:      ssbd.HashAlgoSHA256,
		Content:   json.RawMessage(content),
	}
	if prev != nil {
		v.Previous = prev.Key
		v.Sequence = prev.Value.Sequence + 1
		v.Timestamp = prev.Value.Timestamp + 1
	}
	signed, err := message.Sign(kp, v)
	require.NoError(t, err)
	key, _, err := message.Hash(signed)
	require.NoError(t, err)
	return ssbd.KeyValue{Key: &key, Value: signed}
}
