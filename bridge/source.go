// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package bridge pulls feeds from a remote peer over its HTTP API and appends them to the local log.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/ssbc/go-ssbd"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -o mock/source.go . Source

// Source is a remote peer that serves signed feed entries.
type Source interface {
	// EntriesSince returns the entries of author with a sequence above since, in log order.
	EntriesSince(ctx context.Context, author string, since int64) ([]RemoteEntry, error)

	// DefaultAuthor returns the identity of the remote itself.
	DefaultAuthor(ctx context.Context) (string, error)
}

// RemoteEntry is one element of the feed listing of a remote.
// Value is nil if the remote sent something without a value.
type RemoteEntry struct {
	Key   string      `json:"key,omitempty"`
	Value *ssbd.Value `json:"value,omitempty"`
}

// ErrDisabled is returned by NormalizeURL when there is no usable bridge address.
var ErrDisabled = errors.New("bridge: disabled")

// NormalizeURL accepts http and https addresses and strips trailing slashes.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrDisabled
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base url %q: %s", ErrDisabled, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrDisabled, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: base url %q has no host", ErrDisabled, raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// HTTPSource talks to the feed API of another node.
type HTTPSource struct {
	base   string
	client *http.Client
}

// NewHTTPSource normalizes base and uses http.DefaultClient if client is nil.
func NewHTTPSource(base string, client *http.Client) (*HTTPSource, error) {
	normalized, err := NormalizeURL(base)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{base: normalized, client: client}, nil
}

func (s *HTTPSource) String() string { return s.base }

func (s *HTTPSource) EntriesSince(ctx context.Context, author string, since int64) ([]RemoteEntry, error) {
	q := url.Values{"since": []string{strconv.FormatInt(since, 10)}}
	u := s.base + "/feeds/" + url.PathEscape(author) + "?" + q.Encode()

	var raw []jsoniter.RawMessage
	if err := s.getJSON(ctx, u, &raw); err != nil {
		return nil, err
	}

	// one broken element shouldn't hide the rest of the feed
	entries := make([]RemoteEntry, 0, len(raw))
	for _, r := range raw {
		var e RemoteEntry
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(r, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *HTTPSource) DefaultAuthor(ctx context.Context) (string, error) {
	var status struct {
		ID string `json:"id"`
	}
	if err := s.getJSON(ctx, s.base+"/status", &status); err != nil {
		return "", err
	}
	if status.ID == "" {
		return "", fmt.Errorf("bridge: remote status has no id")
	}
	return status.ID, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, u string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("bridge: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("bridge: request failed (%d)", resp.StatusCode)
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("bridge: failed to decode response: %w", err)
	}
	return nil
}

var _ Source = (*HTTPSource)(nil)
