// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	"github.com/ssbc/go-ssbd/feedlog"
	"github.com/ssbc/go-ssbd/graph"
)

var graphCmd = &cli.Command{
	Name:  "graph",
	Usage: "print the follow graph of the local repo in dot format",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "root", Value: "", Usage: "print the feeds reachable from this identity instead"},
		&cli.IntFlag{Name: "hops", Value: graph.DefaultMaxHops},
	},
	Action: func(ctx *cli.Context) error {
		bot, err := openLocal(ctx)
		if err != nil {
			return err
		}
		defer bot.Close()

		entries, err := bot.Read(feedlog.Reverse(false))
		if err != nil {
			return err
		}

		g := graph.New(graph.WithMaxHops(ctx.Int("hops")))
		g.Load(entries)

		if root := ctx.String("root"); root != "" {
			g.SetRoot(root)
			return printJSON(ctx.App.Writer, g.ComputeReachable())
		}

		dot, err := g.MarshalDOT()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(ctx.App.Writer, string(dot))
		return err
	},
}
