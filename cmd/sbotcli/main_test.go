// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/internal/testutils"
	"github.com/ssbc/go-ssbd/network"
	"github.com/ssbc/go-ssbd/sbot"
)

// run executes the cli in-process and returns what it printed.
func run(t *testing.T, args ...string) ([]byte, error) {
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	t.Cleanup(func() { app.Writer = os.Stdout })

	err := app.Run(append([]string{"sbotcli", "--timeout", "10s"}, args...))
	return out.Bytes(), err
}

func TestBuildContent(t *testing.T) {
	for _, tc := range []struct {
		args []string
		want map[string]interface{}
		err  bool
	}{
		{
			args: []string{"--type", "post", "--text", "hello world"},
			want: map[string]interface{}{"type": "post", "text": "hello world"},
		},
		{
			args: []string{"--type=about", "--about", "@alice.ed25519", "--name", "Alice"},
			want: map[string]interface{}{"type": "about", "about": "@alice.ed25519", "name": "Alice"},
		},
		{
			args: []string{"--type", "vote", "--link", "a", "--link", "b", "--link", "c"},
			want: map[string]interface{}{"type": "vote", "link": []interface{}{"a", "b", "c"}},
		},
		{
			args: []string{"--type", "contact", "--following", "--contact", "@bob.ed25519"},
			want: map[string]interface{}{"type": "contact", "following": true, "contact": "@bob.ed25519"},
		},
		{args: []string{"--text", "no type"}, err: true},
		{args: []string{"--type", ""}, err: true},
		{args: []string{"post"}, err: true},
	} {
		got, err := buildContent(tc.args)
		if tc.err {
			require.Error(t, err, "%v", tc.args)
			continue
		}
		require.NoError(t, err, "%v", tc.args)
		require.Equal(t, tc.want, got)
	}
}

func TestOfflinePublishAndLog(t *testing.T) {
	r := require.New(t)
	repo := t.TempDir()

	out, err := run(t, "--repo", repo, "publish", "--type", "post", "--text", "offline")
	r.NoError(err, string(out))

	var entry ssbd.KeyValue
	r.NoError(json.Unmarshal(out, &entry))
	r.EqualValues(1, entry.Value.Sequence)
	r.JSONEq(`{"type":"post","text":"offline"}`, string(entry.Value.Content))

	_, err = run(t, "--repo", repo, "publish", "--type", "contact", "--contact", testutils.KeyPair(t, "bob").ID.String(), "--following")
	r.NoError(err)

	out, err = run(t, "--repo", repo, "log", "--limit", "1")
	r.NoError(err, string(out))
	var entries []ssbd.KeyValue
	r.NoError(json.Unmarshal(out, &entries))
	r.Len(entries, 1)
	r.EqualValues(2, entries[0].Value.Sequence)

	out, err = run(t, "--repo", repo, "feed", "--since", "1", entry.Value.Author)
	r.NoError(err, string(out))
	r.NoError(json.Unmarshal(out, &entries))
	r.Len(entries, 1)

	out, err = run(t, "--repo", repo, "graph")
	r.NoError(err, string(out))
	r.Contains(string(out), "digraph follows")

	out, err = run(t, "--repo", repo, "graph", "--root", entry.Value.Author)
	r.NoError(err, string(out))
	var reachable []string
	r.NoError(json.Unmarshal(out, &reachable))
	r.Equal([]string{testutils.KeyPair(t, "bob").ID.String()}, reachable)

	out, err = run(t, "--repo", repo, "status")
	r.NoError(err, string(out))
	var status sbot.Status
	r.NoError(json.Unmarshal(out, &status))
	r.Equal(entry.Value.Author, status.ID)
	r.Equal(2, status.KnownKeys)

	_, err = run(t, "--repo", repo, "follow")
	r.Error(err, "needs a daemon")
}

func TestRemoteCommands(t *testing.T) {
	r := require.New(t)

	bot, err := sbot.New(
		sbot.WithRepoPath(t.TempDir()),
		sbot.WithStorageKind(sbot.StorageMemory),
		sbot.WithInfo(testutils.NewTestLogger(t)),
	)
	r.NoError(err)
	t.Cleanup(func() { bot.Close() })

	srv := httptest.NewServer(network.New(bot, network.WithBlobStore(bot.BlobStore)))
	t.Cleanup(srv.Close)

	// a repo without secret, everything goes through the daemon
	repo := t.TempDir()

	out, err := run(t, "--repo", repo, "--addr", srv.URL, "publish", "--type", "post", "--text", "remote")
	r.NoError(err, string(out))
	var entry ssbd.KeyValue
	r.NoError(json.Unmarshal(out, &entry))
	r.Equal(bot.Whoami().String(), entry.Value.Author)

	out, err = run(t, "--repo", repo, "--addr", srv.URL, "log")
	r.NoError(err, string(out))
	var entries []ssbd.KeyValue
	r.NoError(json.Unmarshal(out, &entries))
	r.Len(entries, 1)

	blobFile := filepath.Join(t.TempDir(), "blob.txt")
	r.NoError(os.WriteFile(blobFile, []byte("omg"), 0600))
	out, err = run(t, "--repo", repo, "--addr", srv.URL, "blobs", "add", "--type", "text/plain", blobFile)
	r.NoError(err, string(out))
	hash := strings.TrimSpace(string(out))
	r.Equal("%ZR3jMW+ifnTWqd5hnrrGjjt4HpUn/dAMXvcUOx+lgbY=.sha256", hash)

	out, err = run(t, "--repo", repo, "--addr", srv.URL, "blobs", "get", hash)
	r.NoError(err)
	r.Equal("omg", string(out))

	_, err = run(t, "--repo", repo, "--addr", srv.URL, "follow")
	r.Error(err, "bridge disabled")

	_, err = os.Stat(filepath.Join(repo, "secret"))
	r.True(os.IsNotExist(err), "remote mode doesn't touch the repo")
}

func TestLocalBlobs(t *testing.T) {
	r := require.New(t)
	repo := t.TempDir()

	blobFile := filepath.Join(t.TempDir(), "blob.txt")
	r.NoError(os.WriteFile(blobFile, []byte("wat"), 0600))

	out, err := run(t, "--repo", repo, "blobs", "add", blobFile)
	r.NoError(err, string(out))
	hash := strings.TrimSpace(string(out))
	r.Equal("%8Ap4f3SSqV4WW0cHAvT+k3NYP73AJbLIvfAmLMSPz/Q=.sha256", hash)

	out, err = run(t, "--repo", repo, "blobs", "get", hash)
	r.NoError(err)
	r.Equal("wat", string(out))

	_, err = run(t, "--repo", repo, "blobs", "get", "nope")
	r.Error(err)
}
