// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	cli "github.com/urfave/cli/v2"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/blobstore"
)

var blobsCmd = &cli.Command{
	Name:  "blobs",
	Usage: "add and fetch blobs",
	Subcommands: []*cli.Command{
		blobsAddCmd,
		blobsGetCmd,
	},
}

func localBlobs(ctx *cli.Context) (*blobstore.Store, error) {
	bs, err := blobstore.New(ctx.String("repo"), log)
	if err != nil {
		return nil, fmt.Errorf("blobs: failed to open local store: %w", err)
	}
	return bs, nil
}

var blobsAddCmd = &cli.Command{
	Name:      "add",
	Usage:     "add a file to the store, - reads stdin",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "type", Value: "", Usage: "media type of the blob"},
	},
	Action: func(ctx *cli.Context) error {
		fname := ctx.Args().First()
		if fname == "" {
			return errors.New("blobs.add: need a file name or -")
		}

		var r io.Reader = os.Stdin
		if fname != "-" {
			f, err := os.Open(fname)
			if err != nil {
				return fmt.Errorf("blobs.add: failed to open input file: %w", err)
			}
			defer f.Close()
			r = f
		}

		if d, ok := remote(ctx); ok {
			resp, err := d.do(http.MethodPost, "/blobs/add", ctx.String("type"), r)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, err = io.Copy(ctx.App.Writer, resp.Body)
			return err
		}

		bs, err := localBlobs(ctx)
		if err != nil {
			return err
		}
		meta, err := bs.Put(r, ctx.String("type"))
		if err != nil {
			return fmt.Errorf("blobs.add: failed to store blob: %w", err)
		}
		level.Debug(log).Log("event", "blob added", "size", humanize.Bytes(uint64(meta.Size)), "existed", meta.Existed)
		_, err = fmt.Fprintln(ctx.App.Writer, meta.Hash)
		return err
	},
}

var blobsGetCmd = &cli.Command{
	Name:      "get",
	Usage:     "write a blob to stdout",
	ArgsUsage: "<%hash.sha256>",
	Action: func(ctx *cli.Context) error {
		hash := strings.TrimSpace(ctx.Args().First())
		if !ssbd.IsBlobHash(hash) {
			return fmt.Errorf("blobs.get: invalid blob hash %q", hash)
		}

		if d, ok := remote(ctx); ok {
			resp, err := d.do(http.MethodGet, "/blobs/"+url.PathEscape(hash), "", nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, err = io.Copy(ctx.App.Writer, resp.Body)
			return err
		}

		bs, err := localBlobs(ctx)
		if err != nil {
			return err
		}
		rc, err := bs.Get(hash)
		if err != nil {
			return fmt.Errorf("blobs.get: %w", err)
		}
		defer rc.Close()
		_, err = io.Copy(ctx.App.Writer, rc)
		return err
	},
}
