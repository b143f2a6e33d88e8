// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package network serves the HTTP and websocket API of a node.
package network

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/cors"
	"github.com/ssbc/go-luigi"
	refs "github.com/ssbc/go-ssb-refs"
	"go.mindeco.de/log"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/bridge"
	"github.com/ssbc/go-ssbd/feedlog"
)

// MaxBlobSize is the largest upload /blobs/add accepts.
const MaxBlobSize = 5 * 1024 * 1024

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Node is what the API serves.
type Node interface {
	Whoami() refs.FeedRef

	// Publish signs content as the next message of the node's own feed.
	Publish(content interface{}) (ssbd.KeyValue, error)

	// PublishSigned appends a message that was signed elsewhere. It has to follow its feed.
	PublishSigned(v ssbd.Value) (ssbd.KeyValue, error)

	Read(opts ...feedlog.ReadOption) ([]ssbd.KeyValue, error)

	// Live emits every appended ssbd.KeyValue.
	Live() luigi.Broadcast
}

// Bridge controls replication from a remote.
type Bridge interface {
	Follow(ctx context.Context, author string) (string, error)
	List() []string
	Status() []bridge.FollowStatus
}

// Server is an http.Handler for a Node.
type Server struct {
	node   Node
	blobs  ssbd.BlobStore
	bridge Bridge
	info   log.Logger

	corsOrigins []string
	conns       ConnTracker

	listenAddr atomic.Value // net.Addr

	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l log.Logger) Option {
	return func(s *Server) {
		s.info = l
	}
}

// WithBlobStore enables the /blobs endpoints.
func WithBlobStore(bs ssbd.BlobStore) Option {
	return func(s *Server) {
		s.blobs = bs
	}
}

// WithBridge enables the /bridge endpoints.
func WithBridge(b Bridge) Option {
	return func(s *Server) {
		s.bridge = b
	}
}

// WithConnTracker replaces the default websocket session tracker.
func WithConnTracker(ct ConnTracker) Option {
	return func(s *Server) {
		s.conns = ct
	}
}

// WithCORSOrigins sets the origins browsers may call from. The default allows all of them.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

func New(node Node, opts ...Option) *Server {
	s := &Server{node: node}
	for _, o := range opts {
		o(s)
	}
	if s.info == nil {
		s.info = log.NewNopLogger()
	}
	if s.conns == nil {
		s.conns = NewConnTracker()
	}
	if len(s.corsOrigins) == 0 {
		s.corsOrigins = []string{"*"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
		MaxAge:         600,
	})
	s.handler = c.Handler(http.HandlerFunc(s.route))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.handler.ServeHTTP(w, req)
}

// Serve answers requests on lis until ctx is canceled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.listenAddr.Store(lis.Addr())

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(lis)
	}()
	level.Info(s.info).Log("event", "listening", "addr", lis.Addr().String(), "id", s.node.Whoami().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.conns.CloseAll()
		if err := srv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("network: shutdown failed: %w", err)
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) route(w http.ResponseWriter, req *http.Request) {
	p := req.URL.Path

	if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		switch p {
		case "/sync":
			s.syncSocket(w, req)
		case "/stream":
			s.streamSocket(w, req)
		default:
			notFound(w)
		}
		return
	}

	switch req.Method {
	case http.MethodGet:
		switch {
		case p == "/status":
			s.status(w, req)
		case p == "/feed":
			s.feed(w, req)
		case p == "/log.json":
			s.readAndSend(w, feedlog.Limit(100), feedlog.Reverse(true))
		case strings.HasPrefix(p, "/feeds/"):
			s.feedsOf(w, req, strings.TrimPrefix(p, "/feeds/"))
		case strings.HasPrefix(p, "/blobs/"):
			s.getBlob(w, strings.TrimPrefix(p, "/blobs/"))
		case p == "/bridge/follows":
			s.bridgeFollows(w)
		case p == "/bridge/status":
			s.bridgeStatus(w)
		default:
			notFound(w)
		}

	case http.MethodPost:
		switch {
		case p == "/publish":
			s.publish(w, req)
		case strings.HasPrefix(p, "/feeds/"):
			s.postFeed(w, req, strings.TrimPrefix(p, "/feeds/"))
		case p == "/blobs/add":
			s.addBlob(w, req)
		case p == "/bridge/follow":
			s.bridgeFollow(w, req)
		default:
			notFound(w)
		}

	default:
		notFound(w)
	}
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, "not found")
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func sendError(w http.ResponseWriter, status int, err error) {
	sendJSON(w, status, errorResponse{Error: err.Error()})
}

// parseIntParam returns fallback for missing, malformed and negative values.
func parseIntParam(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func publicKeyString(id refs.FeedRef) string {
	return base64.StdEncoding.EncodeToString(id.PubKey()) + "." + ssbd.CurveEd25519
}

// StatusResponse is the answer of GET /status.
type StatusResponse struct {
	ID     string `json:"id"`
	Public string `json:"public"`
	Curve  string `json:"curve"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

func (s *Server) status(w http.ResponseWriter, req *http.Request) {
	id := s.node.Whoami()

	host, port := req.Host, 0
	if addr, ok := s.listenAddr.Load().(net.Addr); ok {
		host = addr.String()
	}
	if h, p, err := net.SplitHostPort(host); err == nil {
		host = h
		port, _ = strconv.Atoi(p)
	}

	sendJSON(w, http.StatusOK, StatusResponse{
		ID:     id.String(),
		Public: publicKeyString(id),
		Curve:  ssbd.CurveEd25519,
		Host:   host,
		Port:   port,
	})
}

func (s *Server) readAndSend(w http.ResponseWriter, opts ...feedlog.ReadOption) {
	entries, err := s.node.Read(opts...)
	if err != nil {
		level.Error(s.info).Log("event", "read failed", "err", err)
		sendError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []ssbd.KeyValue{}
	}
	sendJSON(w, http.StatusOK, entries)
}

func (s *Server) feed(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	limit := parseIntParam(q.Get("limit"), 100)
	reverse := q.Get("reverse") != "false"
	s.readAndSend(w, feedlog.Limit(limit), feedlog.Reverse(reverse))
}

// feedsOf sends the entries of author above since, in log order.
func (s *Server) feedsOf(w http.ResponseWriter, req *http.Request, author string) {
	since := int64(parseIntParam(req.URL.Query().Get("since"), 0))

	entries, err := s.node.Read(feedlog.Reverse(false))
	if err != nil {
		level.Error(s.info).Log("event", "read failed", "err", err)
		sendError(w, http.StatusInternalServerError, err)
		return
	}

	filtered := []ssbd.KeyValue{}
	for _, kv := range entries {
		if kv.Value.Author == author && kv.Value.Sequence > since {
			filtered = append(filtered, kv)
		}
	}
	sendJSON(w, http.StatusOK, filtered)
}

type publishRequest struct {
	Content jsoniter.RawMessage `json:"content"`
	Msg     *ssbd.Value         `json:"msg"`
}

func decodeBody(w http.ResponseWriter, req *http.Request, v interface{}) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json", Details: err.Error()})
		return false
	}
	return true
}

func (s *Server) publish(w http.ResponseWriter, req *http.Request) {
	var pr publishRequest
	if !decodeBody(w, req, &pr) {
		return
	}

	var (
		kv  ssbd.KeyValue
		err error
	)
	switch {
	case isJSONObject(pr.Content):
		kv, err = s.node.Publish([]byte(pr.Content))
	case pr.Msg != nil:
		kv, err = s.node.PublishSigned(*pr.Msg)
	default:
		sendError(w, http.StatusBadRequest, errors.New("payload must include content or msg"))
		return
	}
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	sendJSON(w, http.StatusOK, kv)
}

// objects and arrays
func isJSONObject(raw jsoniter.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

func (s *Server) postFeed(w http.ResponseWriter, req *http.Request, author string) {
	var pr publishRequest
	if !decodeBody(w, req, &pr) {
		return
	}
	if pr.Msg == nil {
		sendError(w, http.StatusBadRequest, errors.New("missing msg"))
		return
	}
	if pr.Msg.Author != author {
		sendError(w, http.StatusBadRequest, fmt.Errorf("msg author %q doesn't match feed %q", pr.Msg.Author, author))
		return
	}

	kv, err := s.node.PublishSigned(*pr.Msg)
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	sendJSON(w, http.StatusOK, kv)
}
