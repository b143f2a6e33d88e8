// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package bridge_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-ssbd/bridge"
	"github.com/ssbc/go-ssbd/internal/testutils"
)

func TestNormalizeURL(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
		err  bool
	}{
		{in: "http://127.0.0.1:8927", want: "http://127.0.0.1:8927"},
		{in: " https://example.com/ ", want: "https://example.com"},
		{in: "http://example.com/api///", want: "http://example.com/api"},
		{in: "", err: true},
		{in: "   ", err: true},
		{in: "ftp://example.com", err: true},
		{in: "ws://example.com", err: true},
		{in: "not a url", err: true},
		{in: "http://", err: true},
		{in: "http://[::1", err: true},
	} {
		got, err := bridge.NormalizeURL(tc.in)
		if tc.err {
			assert.ErrorIs(t, err, bridge.ErrDisabled, "input %q", tc.in)
			continue
		}
		if assert.NoError(t, err, "input %q", tc.in) {
			assert.Equal(t, tc.want, got)
		}
	}
}

func TestHTTPSource(t *testing.T) {
	r := require.New(t)

	alice := testutils.KeyPair(t, "alice")
	chain := testutils.MakeChain(t, alice, 3)

	// a plain handler, ServeMux would clean the base64 in the path
	handler := func(w http.ResponseWriter, req *http.Request) {
		switch {
		case req.URL.Path == "/status":
			json.NewEncoder(w).Encode(map[string]string{"id": alice.ID.String()})

		case req.URL.Path == "/feeds/"+alice.ID.String():
			if req.URL.Query().Get("since") != "1" {
				http.Error(w, "unexpected since", http.StatusBadRequest)
				return
			}
			raw := []interface{}{
				chain[1],
				map[string]interface{}{"key": "%broken.sha256", "value": map[string]interface{}{"sequence": "three"}},
				chain[2],
			}
			json.NewEncoder(w).Encode(raw)

		default:
			http.NotFound(w, req)
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(handler))
	defer srv.Close()

	src, err := bridge.NewHTTPSource(srv.URL+"/", nil)
	r.NoError(err)
	r.Equal(srv.URL, src.String())

	id, err := src.DefaultAuthor(context.TODO())
	r.NoError(err)
	r.Equal(alice.ID.String(), id)

	entries, err := src.EntriesSince(context.TODO(), alice.ID.String(), 1)
	r.NoError(err)
	r.Len(entries, 2, "the broken element is dropped")
	r.Equal(chain[1].Key.String(), entries[0].Key)
	r.EqualValues(2, entries[0].Value.Sequence)
	r.Equal(chain[1].Value.Signature, entries[0].Value.Signature)
	r.EqualValues(3, entries[1].Value.Sequence)

	_, err = src.EntriesSince(context.TODO(), "@nobody", 1)
	r.Error(err)
	r.Contains(err.Error(), "404")
}

func TestHTTPSourceInvalidBase(t *testing.T) {
	_, err := bridge.NewHTTPSource("file:///tmp", nil)
	require.ErrorIs(t, err, bridge.ErrDisabled)
}
