// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"net/url"

	cli "github.com/urfave/cli/v2"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/feedlog"
)

var logCmd = &cli.Command{
	Name:  "log",
	Usage: "print the newest entries of the log",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 100, Usage: "how many entries to print, -1 for all"},
		&cli.BoolFlag{Name: "reverse", Value: true, Usage: "newest first"},
	},
	Action: func(ctx *cli.Context) error {
		var entries []ssbd.KeyValue
		if d, ok := remote(ctx); ok {
			q := url.Values{}
			q.Set("limit", fmt.Sprint(ctx.Int("limit")))
			q.Set("reverse", fmt.Sprint(ctx.Bool("reverse")))
			if err := d.getJSON("/feed?"+q.Encode(), &entries); err != nil {
				return err
			}
		} else {
			bot, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer bot.Close()

			entries, err = bot.Read(feedlog.Limit(ctx.Int("limit")), feedlog.Reverse(ctx.Bool("reverse")))
			if err != nil {
				return err
			}
		}
		return printJSON(ctx.App.Writer, entries)
	},
}

var feedCmd = &cli.Command{
	Name:      "feed",
	Usage:     "print the entries of one author",
	ArgsUsage: "<@author>",
	Flags: []cli.Flag{
		&cli.Int64Flag{Name: "since", Value: 0, Usage: "only entries with a higher sequence"},
	},
	Action: func(ctx *cli.Context) error {
		author := ctx.Args().First()
		if author == "" {
			return fmt.Errorf("feed: need an author")
		}
		since := ctx.Int64("since")

		entries := []ssbd.KeyValue{}
		if d, ok := remote(ctx); ok {
			path := fmt.Sprintf("/feeds/%s?since=%d", url.PathEscape(author), since)
			if err := d.getJSON(path, &entries); err != nil {
				return err
			}
		} else {
			bot, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer bot.Close()

			all, err := bot.Read(feedlog.Reverse(false))
			if err != nil {
				return err
			}
			for _, kv := range all {
				if kv.Value.Author == author && kv.Value.Sequence > since {
					entries = append(entries, kv)
				}
			}
		}
		return printJSON(ctx.App.Writer, entries)
	},
}

var statusCmd = &cli.Command{
	Name:  "status",
	Usage: "print identity and replication progress",
	Action: func(ctx *cli.Context) error {
		if d, ok := remote(ctx); ok {
			var status map[string]interface{}
			if err := d.getJSON("/status", &status); err != nil {
				return err
			}
			return printJSON(ctx.App.Writer, status)
		}

		bot, err := openLocal(ctx)
		if err != nil {
			return err
		}
		defer bot.Close()
		return printJSON(ctx.App.Writer, bot.Status())
	},
}

var followCmd = &cli.Command{
	Name:      "follow",
	Usage:     "tell the bridge of a running daemon to replicate a feed, without argument the upstream itself",
	ArgsUsage: "[@author]",
	Action: func(ctx *cli.Context) error {
		d, ok := remote(ctx)
		if !ok {
			return fmt.Errorf("follow: needs --addr of a running daemon")
		}

		var reply struct {
			Followed string   `json:"followed"`
			Follows  []string `json:"follows"`
		}
		err := d.postJSON("/bridge/follow", map[string]string{"author": ctx.Args().First()}, &reply)
		if err != nil {
			return err
		}
		return printJSON(ctx.App.Writer, reply)
	},
}
