// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	cli "github.com/urfave/cli/v2"
)

// daemon talks to the HTTP API of a running go-ssbd.
type daemon struct {
	base   string
	client *http.Client
}

func remote(ctx *cli.Context) (*daemon, bool) {
	addr := strings.TrimRight(ctx.String("addr"), "/")
	if addr == "" {
		return nil, false
	}
	return &daemon{base: addr, client: http.DefaultClient}, true
}

func (d *daemon) do(method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(longctx, method, d.base+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var apiErr struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		if apiErr.Details != "" {
			apiErr.Error += ": " + apiErr.Details
		}
		return nil, fmt.Errorf("%s %s failed (%d): %s", method, path, resp.StatusCode, apiErr.Error)
	}
	return resp, nil
}

func (d *daemon) getJSON(path string, v interface{}) error {
	resp, err := d.do(http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

func (d *daemon) postJSON(path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := d.do(http.MethodPost, path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}
