// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"errors"
	"net/http"
	"strings"
)

var errBridgeDisabled = errors.New("bridge disabled")

type followsResponse struct {
	Followed string   `json:"followed,omitempty"`
	Follows  []string `json:"follows"`
}

func (s *Server) bridgeFollows(w http.ResponseWriter) {
	if s.bridge == nil {
		sendError(w, http.StatusServiceUnavailable, errBridgeDisabled)
		return
	}
	sendJSON(w, http.StatusOK, followsResponse{Follows: s.bridge.List()})
}

func (s *Server) bridgeStatus(w http.ResponseWriter) {
	if s.bridge == nil {
		sendError(w, http.StatusServiceUnavailable, errBridgeDisabled)
		return
	}
	sendJSON(w, http.StatusOK, s.bridge.Status())
}

func (s *Server) bridgeFollow(w http.ResponseWriter, req *http.Request) {
	if s.bridge == nil {
		sendError(w, http.StatusServiceUnavailable, errBridgeDisabled)
		return
	}

	var body struct {
		Author string `json:"author"`
	}
	if !decodeBody(w, req, &body) {
		return
	}

	followed, err := s.bridge.Follow(req.Context(), strings.TrimSpace(body.Author))
	if err != nil {
		sendError(w, http.StatusBadRequest, err)
		return
	}
	sendJSON(w, http.StatusOK, followsResponse{Followed: followed, Follows: s.bridge.List()})
}
