// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ssbc/go-luigi"
	"go.mindeco.de/log"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-ssbd"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 4,
	WriteBufferSize: 1024 * 4,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
	EnableCompression: false,
}

// WriteTimeout bounds how long a single frame may take to reach a peer.
var WriteTimeout = 10 * time.Second

// wsConn serializes writes, gorilla connections support one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// track registers conn and closes it with a policy violation if its host has too many sessions.
func (s *Server) track(conn *websocket.Conn, req *http.Request) bool {
	if s.conns.OnAccept(req.RemoteAddr, conn) {
		return true
	}
	level.Warn(s.info).Log("event", "too many websocket sessions", "remote", req.RemoteAddr)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return false
}

// SyncFrame is a message on the /sync socket.
type SyncFrame struct {
	Type    string         `json:"type"`
	Entry   *ssbd.KeyValue `json:"entry,omitempty"`
	Msg     *ssbd.Value    `json:"msg,omitempty"`
	Key     string         `json:"key,omitempty"`
	Message string         `json:"message,omitempty"`
}

// syncSocket pushes every new entry to the client and accepts signed messages from it.
func (s *Server) syncSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		level.Warn(s.info).Log("event", "websocket upgrade failed", "err", err, "remote", req.RemoteAddr)
		return
	}
	defer conn.Close()
	if !s.track(conn, req) {
		return
	}
	defer s.conns.OnClose(conn)

	info := log.With(s.info, "remote", req.RemoteAddr, "socket", "sync")
	level.Debug(info).Log("event", "new ws conn")

	wc := &wsConn{conn: conn}

	unregister := s.node.Live().Register(luigi.FuncSink(func(ctx context.Context, v interface{}, err error) error {
		if err != nil {
			return nil
		}
		kv, ok := v.(ssbd.KeyValue)
		if !ok {
			return nil
		}
		if err := wc.send(SyncFrame{Type: "entry", Entry: &kv}); err != nil {
			level.Debug(info).Log("event", "live send failed", "err", err)
			conn.Close()
			return err
		}
		return nil
	}))
	defer unregister()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			level.Debug(info).Log("event", "ws conn closed", "err", err)
			return
		}

		var frame SyncFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			wc.send(SyncFrame{Type: "error", Message: err.Error()})
			continue
		}
		if frame.Type != "appendSigned" || frame.Msg == nil {
			continue
		}

		kv, err := s.node.PublishSigned(*frame.Msg)
		if err != nil {
			wc.send(SyncFrame{Type: "error", Message: err.Error()})
			continue
		}
		wc.send(SyncFrame{Type: "ack", Key: kv.Key.String()})
	}
}

type helloFrame struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Curve  string `json:"curve"`
	Public string `json:"public"`
}

type echoFrame struct {
	Type     string `json:"type"`
	Received string `json:"received"`
}

// streamSocket greets with the node identity and echoes everything back.
func (s *Server) streamSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		level.Warn(s.info).Log("event", "websocket upgrade failed", "err", err, "remote", req.RemoteAddr)
		return
	}
	defer conn.Close()
	if !s.track(conn, req) {
		return
	}
	defer s.conns.OnClose(conn)

	wc := &wsConn{conn: conn}
	id := s.node.Whoami()
	hello := helloFrame{
		Type:   "hello",
		ID:     id.String(),
		Curve:  ssbd.CurveEd25519,
		Public: publicKeyString(id),
	}
	if err := wc.send(hello); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := wc.send(echoFrame{Type: "echo", Received: string(data)}); err != nil {
			return
		}
	}
}
