// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// sbotcli publishes to and queries a go-ssbd repo, either directly on disk or through a running daemon.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	cli "github.com/urfave/cli/v2"
	kitlog "go.mindeco.de/log"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-ssbd/internal/config"
	"github.com/ssbc/go-ssbd/sbot"
)

// Version and Build are set by ldflags
var (
	Version = "snapshot"
	Build   = ""
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	longctx      context.Context
	shutdownFunc func()

	log kitlog.Logger
)

func init() {
	log = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	log = level.NewFilter(log, level.AllowInfo())
}

var app = cli.App{
	Name:    "sbotcli",
	Usage:   "client for go-ssbd repos and daemons",
	Version: "alpha1",

	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Value: "", Usage: "path to the TOML config file (default: <repo>/config.toml)"},
		&cli.StringFlag{Name: "repo", Aliases: []string{"dir", "d"}, Value: "", Usage: "repo to use when no daemon address is given (default: ~/.ssbd)"},
		&cli.StringFlag{Name: "storage", Value: sbot.StorageFS, Usage: "storage backend of the repo (fs or badger)"},
		&cli.StringFlag{Name: "addr", Value: "", Usage: "base URL of a running go-ssbd, for example http://localhost:8008"},
		&cli.StringFlag{Name: "timeout", Value: "45s", Usage: "pass a duration (like 3s or 5m) after which it times out, empty string to disable"},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"vv"}, Usage: "log debug messages"},
	},

	Before: initClient,
	After: func(*cli.Context) error {
		if shutdownFunc != nil {
			shutdownFunc()
		}
		return nil
	},
	Commands: []*cli.Command{
		publishCmd,
		logCmd,
		feedCmd,
		statusCmd,
		followCmd,
		blobsCmd,
		graphCmd,
	},
}

func main() {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("%s (rev: %s, built: %s)\n", c.App.Version, Version, Build)
	}

	signalc := make(chan os.Signal, 1)
	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-signalc
		level.Warn(log).Log("event", "shutting down", "sig", s)
		if shutdownFunc != nil {
			shutdownFunc()
		}
		time.Sleep(1 * time.Second)
		os.Exit(0)
	}()

	if err := app.Run(os.Args); err != nil {
		level.Error(log).Log("run-failure", err)
		os.Exit(1)
	}
}

// initClient merges flags, environment and config file. Flags win.
func initClient(ctx *cli.Context) error {
	if ctx.Bool("verbose") {
		log = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	}

	repo := ctx.String("repo")
	if repo == "" {
		repo = os.Getenv("SSBD_DIR")
	}
	if repo == "" {
		repo = ".ssbd"
	}
	repo, err := config.ExpandPath(repo)
	if err != nil {
		return err
	}

	configPath := ctx.String("config")
	if configPath == "" {
		configPath = filepath.Join(repo, "config.toml")
	}
	conf, _, err := config.ReadClient(configPath, log)
	if err != nil {
		return err
	}
	if err := config.ReadClientEnvironmentVariables(&conf); err != nil {
		return err
	}

	if conf.Has("repo") && !ctx.IsSet("repo") {
		repo = conf.Repo
	}
	if err := ctx.Set("repo", repo); err != nil {
		return err
	}
	if conf.Has("addr") && !ctx.IsSet("addr") {
		if err := ctx.Set("addr", conf.Addr); err != nil {
			return err
		}
	}
	if conf.Has("timeout") && !ctx.IsSet("timeout") {
		if err := ctx.Set("timeout", conf.Timeout); err != nil {
			return err
		}
	}

	if dstr := ctx.String("timeout"); dstr != "" {
		d, err := time.ParseDuration(dstr)
		if err != nil {
			return err
		}
		longctx, shutdownFunc = context.WithTimeout(context.Background(), d)
	} else {
		longctx, shutdownFunc = context.WithCancel(context.Background())
	}
	return nil
}

// openLocal opens the repo directly. The daemon must not be running on it.
func openLocal(ctx *cli.Context) (*sbot.Sbot, error) {
	bot, err := sbot.New(
		sbot.WithContext(longctx),
		sbot.WithRepoPath(ctx.String("repo")),
		sbot.WithStorageKind(ctx.String("storage")),
		sbot.WithInfo(level.NewFilter(log, level.AllowWarn())),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open repo %s: %w", ctx.String("repo"), err)
	}
	return bot, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
