// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/internal/testutils"
	"github.com/ssbc/go-ssbd/network"
	"github.com/ssbc/go-ssbd/sbot"
)

func newBot(t *testing.T, opts ...sbot.Option) *sbot.Sbot {
	opts = append([]sbot.Option{
		sbot.WithRepoPath(t.TempDir()),
		sbot.WithStorageKind(sbot.StorageMemory),
		sbot.WithInfo(testutils.NewTestLogger(t)),
	}, opts...)
	bot, err := sbot.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { bot.Close() })
	return bot
}

func serve(t *testing.T, bot *sbot.Sbot) *httptest.Server {
	opts := []network.Option{
		network.WithLogger(testutils.NewTestLogger(t)),
		network.WithBlobStore(bot.BlobStore),
	}
	if bot.Bridge != nil {
		opts = append(opts, network.WithBridge(bot.Bridge))
	}
	srv := httptest.NewServer(network.New(bot, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, u string, v interface{}) int {
	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, u string, body string, v interface{}) int {
	resp, err := http.Post(u, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func feedURL(base, author string) string {
	return base + "/feeds/" + url.PathEscape(author)
}

func TestStatus(t *testing.T) {
	r := require.New(t)
	bot := newBot(t)
	srv := serve(t, bot)

	var st network.StatusResponse
	r.Equal(http.StatusOK, getJSON(t, srv.URL+"/status", &st))
	r.Equal(bot.Whoami().String(), st.ID)
	r.Equal("ed25519", st.Curve)
	r.True(strings.HasSuffix(st.Public, ".ed25519"))
	r.Equal("127.0.0.1", st.Host)
	r.NotZero(st.Port)

	resp, err := http.Get(srv.URL + "/nothing/here")
	r.NoError(err)
	resp.Body.Close()
	r.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestPublishAndRead(t *testing.T) {
	r := require.New(t)
	bot := newBot(t)
	srv := serve(t, bot)

	var kv ssbd.KeyValue
	r.Equal(http.StatusOK, postJSON(t, srv.URL+"/publish", `{"content":{"type":"post","text":"hello"}}`, &kv))
	r.EqualValues(1, kv.Value.Sequence)
	r.Equal(bot.Whoami().String(), kv.Value.Author)
	r.JSONEq(`{"type":"post","text":"hello"}`, string(kv.Value.Content))

	alice := testutils.KeyPair(t, "alice")
	chain := testutils.MakeChain(t, alice, 3)
	msg, err := json.Marshal(map[string]interface{}{"msg": chain[0].Value})
	r.NoError(err)
	r.Equal(http.StatusOK, postJSON(t, srv.URL+"/publish", string(msg), &kv))
	r.Equal(chain[0].Key.String(), kv.Key.String())

	// strict: 3 doesn't follow 1
	msg, err = json.Marshal(map[string]interface{}{"msg": chain[2].Value})
	r.NoError(err)
	var errResp map[string]interface{}
	r.Equal(http.StatusBadRequest, postJSON(t, srv.URL+"/publish", string(msg), &errResp))
	r.Contains(errResp["error"], "sequence")

	r.Equal(http.StatusBadRequest, postJSON(t, srv.URL+"/publish", `{}`, &errResp))
	r.Equal("payload must include content or msg", errResp["error"])
	r.Equal(http.StatusBadRequest, postJSON(t, srv.URL+"/publish", `{"content":"just a string"}`, &errResp))
	r.Equal(http.StatusBadRequest, postJSON(t, srv.URL+"/publish", `{nope`, &errResp))
	r.Equal("invalid json", errResp["error"])

	// the feed of alice
	msg, err = json.Marshal(map[string]interface{}{"msg": chain[1].Value})
	r.NoError(err)
	r.Equal(http.StatusOK, postJSON(t, feedURL(srv.URL, alice.ID.String()), string(msg), &kv))
	r.Equal(http.StatusBadRequest, postJSON(t, feedURL(srv.URL, bot.Whoami().String()), string(msg), &errResp))
	r.Equal(http.StatusBadRequest, postJSON(t, feedURL(srv.URL, alice.ID.String()), `{}`, &errResp))
	r.Equal("missing msg", errResp["error"])

	var entries []ssbd.KeyValue
	r.Equal(http.StatusOK, getJSON(t, feedURL(srv.URL, alice.ID.String())+"?since=0", &entries))
	r.Len(entries, 2)
	r.EqualValues(1, entries[0].Value.Sequence, "log order")

	r.Equal(http.StatusOK, getJSON(t, feedURL(srv.URL, alice.ID.String())+"?since=1", &entries))
	r.Len(entries, 1)
	r.EqualValues(2, entries[0].Value.Sequence)

	r.Equal(http.StatusOK, getJSON(t, feedURL(srv.URL, alice.ID.String())+"?since=-4", &entries))
	r.Len(entries, 2, "negative since falls back to 0")

	r.Equal(http.StatusOK, getJSON(t, feedURL(srv.URL, "@unknown.ed25519"), &entries))
	r.Len(entries, 0)

	r.Equal(http.StatusOK, getJSON(t, srv.URL+"/feed", &entries))
	r.Len(entries, 3)
	r.Equal(alice.ID.String(), entries[0].Value.Author, "newest first")

	r.Equal(http.StatusOK, getJSON(t, srv.URL+"/feed?limit=1&reverse=false", &entries))
	r.Len(entries, 1)
	r.Equal(bot.Whoami().String(), entries[0].Value.Author)

	r.Equal(http.StatusOK, getJSON(t, srv.URL+"/log.json", &entries))
	r.Len(entries, 3)
}

func TestBlobs(t *testing.T) {
	r := require.New(t)
	bot := newBot(t)
	srv := serve(t, bot)

	resp, err := http.Post(srv.URL+"/blobs/add", "text/plain", strings.NewReader("omg"))
	r.NoError(err)
	body, err := io.ReadAll(resp.Body)
	r.NoError(err)
	resp.Body.Close()
	r.Equal(http.StatusOK, resp.StatusCode)
	r.Equal("%ZR3jMW+ifnTWqd5hnrrGjjt4HpUn/dAMXvcUOx+lgbY=.sha256\n", string(body))

	hash := strings.TrimSpace(string(body))
	resp, err = http.Get(srv.URL + "/blobs/" + url.PathEscape(hash))
	r.NoError(err)
	body, err = io.ReadAll(resp.Body)
	r.NoError(err)
	resp.Body.Close()
	r.Equal(http.StatusOK, resp.StatusCode)
	r.Equal("omg", string(body))
	r.Equal("text/plain", resp.Header.Get("Content-Type"))
	r.Equal("3", resp.Header.Get("Content-Length"))
	r.Contains(resp.Header.Get("Cache-Control"), "immutable")

	var errResp map[string]interface{}
	r.Equal(http.StatusBadRequest, getJSON(t, srv.URL+"/blobs/nope", &errResp))
	r.Equal("invalid blob id", errResp["error"])

	missing := url.PathEscape(ssbd.BlobHash([]byte("missing")))
	r.Equal(http.StatusNotFound, getJSON(t, srv.URL+"/blobs/"+missing, &errResp))

	resp, err = http.Post(srv.URL+"/blobs/add", "text/plain", &bytes.Buffer{})
	r.NoError(err)
	resp.Body.Close()
	r.Equal(http.StatusBadRequest, resp.StatusCode)

	big := bytes.Repeat([]byte("A"), network.MaxBlobSize+1)
	resp, err = http.Post(srv.URL+"/blobs/add", "application/octet-stream", bytes.NewReader(big))
	r.NoError(err)
	r.NoError(json.NewDecoder(resp.Body).Decode(&errResp))
	resp.Body.Close()
	r.Equal(http.StatusRequestEntityTooLarge, resp.StatusCode)
	r.Equal("blob too large", errResp["error"])
	r.EqualValues(network.MaxBlobSize, errResp["limit"])
}

func TestBridgeDisabled(t *testing.T) {
	r := require.New(t)
	bot := newBot(t)
	srv := serve(t, bot)

	var errResp map[string]interface{}
	r.Equal(http.StatusServiceUnavailable, getJSON(t, srv.URL+"/bridge/follows", &errResp))
	r.Equal("bridge disabled", errResp["error"])
	r.Equal(http.StatusServiceUnavailable, postJSON(t, srv.URL+"/bridge/follow", `{}`, &errResp))
}

func TestReplicationOverHTTP(t *testing.T) {
	testutils.SkipOnCI(t)
	r := require.New(t)

	upstream := newBot(t)
	upSrv := serve(t, upstream)

	alice := testutils.KeyPair(t, "alice")
	carol := testutils.KeyPair(t, "carol")

	for i := 0; i < 3; i++ {
		_, err := upstream.Publish(map[string]interface{}{"type": "post", "text": fmt.Sprintf("up %d", i)})
		r.NoError(err)
	}
	_, err := upstream.Publish(map[string]interface{}{"type": "contact", "contact": alice.ID.String(), "following": true})
	r.NoError(err)
	for _, kv := range testutils.MakeChain(t, alice, 2) {
		_, err := upstream.PublishSigned(kv.Value)
		r.NoError(err)
	}
	for _, kv := range testutils.MakeChain(t, carol, 2) {
		_, err := upstream.PublishSigned(kv.Value)
		r.NoError(err)
	}

	downstream := newBot(t, sbot.WithBridge(upSrv.URL+"/", "", time.Second))
	r.NotNil(downstream.Bridge)
	downSrv := serve(t, downstream)

	upID := upstream.Whoami().String()
	r.Eventually(func() bool {
		return downstream.Tracker.Contiguous(upID) == 4 &&
			downstream.Tracker.Contiguous(alice.ID.String()) == 2
	}, 10*time.Second, 50*time.Millisecond)
	r.EqualValues(0, downstream.Tracker.Highest(carol.ID.String()), "carol is not followed")

	var follows struct {
		Followed string   `json:"followed"`
		Follows  []string `json:"follows"`
	}
	r.Equal(http.StatusOK, getJSON(t, downSrv.URL+"/bridge/follows", &follows))
	assert.ElementsMatch(t, []string{upID, alice.ID.String()}, follows.Follows)

	r.Equal(http.StatusOK, postJSON(t, downSrv.URL+"/bridge/follow", fmt.Sprintf(`{"author":%q}`, carol.ID.String()), &follows))
	r.Equal(carol.ID.String(), follows.Followed)
	r.Contains(follows.Follows, carol.ID.String())

	r.Eventually(func() bool {
		return downstream.Tracker.Contiguous(carol.ID.String()) == 2
	}, 10*time.Second, 50*time.Millisecond)

	r.Equal(http.StatusOK, postJSON(t, downSrv.URL+"/bridge/follow", `{}`, &follows))
	r.Equal(upID, follows.Followed, "empty author follows the remote itself")

	var statuses []map[string]interface{}
	r.Equal(http.StatusOK, getJSON(t, downSrv.URL+"/bridge/status", &statuses))
	r.Len(statuses, 3)

	// nothing is fetched twice
	entries, err := downstream.Read()
	r.NoError(err)
	r.Len(entries, 4+2+2)
}
