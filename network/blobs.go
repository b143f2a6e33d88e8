// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-ssbd"
)

var errBlobsDisabled = errors.New("blobs disabled")

func (s *Server) addBlob(w http.ResponseWriter, req *http.Request) {
	if s.blobs == nil {
		sendError(w, http.StatusServiceUnavailable, errBlobsDisabled)
		return
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, MaxBlobSize+1))
	if err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "blob upload failed", Details: err.Error()})
		return
	}
	if len(data) == 0 {
		sendError(w, http.StatusBadRequest, errors.New("empty blob"))
		return
	}
	if len(data) > MaxBlobSize {
		sendJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "blob too large", Limit: MaxBlobSize})
		return
	}

	mediaType := req.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	meta, err := s.blobs.Put(bytes.NewReader(data), mediaType)
	if err != nil {
		level.Error(s.info).Log("event", "blob upload failed", "err", err)
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "blob upload failed", Details: err.Error()})
		return
	}
	level.Info(s.info).Log("event", "blob added", "blob", meta.Hash, "size", humanize.Bytes(uint64(meta.Size)), "existed", meta.Existed)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, meta.Hash+"\n")
}

// hash is already unescaped
func (s *Server) getBlob(w http.ResponseWriter, hash string) {
	if s.blobs == nil {
		sendError(w, http.StatusServiceUnavailable, errBlobsDisabled)
		return
	}

	if !ssbd.IsBlobHash(hash) {
		sendError(w, http.StatusBadRequest, errors.New("invalid blob id"))
		return
	}

	meta, err := s.blobs.Meta(hash)
	if err != nil {
		if errors.Is(err, ssbd.ErrNoSuchBlob) {
			sendError(w, http.StatusNotFound, errors.New("blob not found"))
			return
		}
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "blob fetch failed", Details: err.Error()})
		return
	}

	rc, err := s.blobs.Get(hash)
	if err != nil {
		if errors.Is(err, ssbd.ErrNoSuchBlob) {
			sendError(w, http.StatusNotFound, errors.New("blob not found"))
			return
		}
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "blob fetch failed", Details: err.Error()})
		return
	}
	defer rc.Close()

	mediaType := meta.Type
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	h := w.Header()
	h.Set("Content-Type", mediaType)
	h.Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	h.Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}
