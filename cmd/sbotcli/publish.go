// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"strings"

	cli "github.com/urfave/cli/v2"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-ssbd"
)

var publishCmd = &cli.Command{
	Name:      "publish",
	Usage:     "Publish a message, every --key value pair becomes a field of its content",
	ArgsUsage: "--type <type> [--text <text>] [--key value ...]",
	Description: `Publish a message. Flags become keys on the message content, like the classic sbot publish.
Repeated keys turn into lists, a flag without value becomes true.

Examples:

    sbotcli publish --type post --text "hello world"
    sbotcli publish --type about --about @alice.ed25519 --name Alice`,

	SkipFlagParsing: true,
	Action: func(ctx *cli.Context) error {
		content, err := buildContent(ctx.Args().Slice())
		if err != nil {
			return err
		}

		var entry ssbd.KeyValue
		if d, ok := remote(ctx); ok {
			err = d.postJSON("/publish", map[string]interface{}{"content": content}, &entry)
			if err != nil {
				return fmt.Errorf("publish call failed: %w", err)
			}
		} else {
			bot, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer bot.Close()

			entry, err = bot.Publish(content)
			if err != nil {
				return fmt.Errorf("publish failed: %w", err)
			}
		}

		level.Debug(log).Log("event", "published", "type", content["type"], "ref", entry.Key.String())
		return printJSON(ctx.App.Writer, entry)
	},
}

// buildContent turns --key value pairs into a content object.
func buildContent(args []string) (map[string]interface{}, error) {
	content := make(map[string]interface{})
	add := func(key string, value interface{}) {
		switch existing := content[key].(type) {
		case nil:
			content[key] = value
		case []interface{}:
			content[key] = append(existing, value)
		default:
			content[key] = []interface{}{existing, value}
		}
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" || arg == "--" {
			return nil, fmt.Errorf("publish: unexpected argument %q", arg)
		}
		key := strings.TrimLeft(arg, "-")
		if k, v, found := strings.Cut(key, "="); found {
			add(k, v)
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			add(key, args[i+1])
			i++
			continue
		}
		add(key, true)
	}

	if typ, ok := content["type"].(string); !ok || typ == "" {
		return nil, errors.New("publish requires a --type argument")
	}
	return content, nil
}
