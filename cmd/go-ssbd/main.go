// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// go-ssbd hosts a feed log over HTTP and replicates feeds from an upstream node.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	kitlog "go.mindeco.de/log"
	"go.mindeco.de/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/ssbc/go-ssbd/internal/config"
	"github.com/ssbc/go-ssbd/network"
	"github.com/ssbc/go-ssbd/sbot"
)

// Version and Build are set by ldflags
var (
	Version = "snapshot"
	Build   = ""

	flagPrintVersion bool
)

var (
	configPath  string
	repoDir     string
	listenHost  string
	listenPort  uint
	storageKind string
	hops        uint
	hmacSec     string

	bridgeURL      string
	bridgeAuthor   string
	bridgeInterval string

	corsOrigins string
	debugAddr   string
	flagRepair  bool

	log kitlog.Logger
)

func checkAndLog(err error) {
	if err != nil {
		level.Error(log).Log("event", "fatal error", "err", err)
		os.Exit(1)
	}
}

func initFlags() {
	log = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	log = kitlog.With(log, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)

	defaultRepo, err := config.ExpandPath(".ssbd")
	checkAndLog(err)

	flag.StringVar(&configPath, "config", "", "path to the TOML config file (default: <repo>/config.toml)")
	flag.StringVar(&repoDir, "repo", defaultRepo, "where to put the log, blobs and the secret")
	flag.StringVar(&listenHost, "host", "127.0.0.1", "address to listen on")
	flag.UintVar(&listenPort, "port", 8008, "port to listen on")
	flag.StringVar(&storageKind, "storage", sbot.StorageFS, "storage backend (fs, memory or badger)")
	flag.UintVar(&hops, "hops", 3, "how many hops of the follow graph are replicated")
	flag.StringVar(&hmacSec, "hmac", "", "if set, sign and verify messages with this base64 HMAC key")

	flag.StringVar(&bridgeURL, "bridge", "", "base URL of the node to replicate from")
	flag.StringVar(&bridgeAuthor, "bridge-author", "", "an additional feed to follow on the bridge")
	flag.StringVar(&bridgeInterval, "bridge-interval", "5s", "how often followed feeds are polled (at least 1s)")

	flag.StringVar(&corsOrigins, "cors", "*", "comma separated list of allowed CORS origins")
	flag.StringVar(&debugAddr, "debuglis", "", "if set, serve prometheus metrics on this address")
	flag.BoolVar(&flagRepair, "repair", false, "rebuild the feed checkpoints from the log before starting")
	flag.BoolVar(&flagPrintVersion, "version", false, "print version number and build date")

	flag.Parse()

	passed := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { passed[f.Name] = true })

	if !passed["repo"] {
		if val := os.Getenv("SSBD_DIR"); val != "" {
			repoDir = val
		}
	}
	if configPath == "" {
		configPath = repoDir + "/config.toml"
	}

	conf, err := config.ReadDaemonConfigAndEnv(configPath, log)
	checkAndLog(err)
	applyConfig(conf, passed)
}

// applyConfig copies values from conf unless the flag was given on the command line.
func applyConfig(conf config.DaemonConfig, passed map[string]bool) {
	if conf.Has("repo") && !passed["repo"] {
		repoDir = conf.Repo
	}
	if conf.Has("host") && !passed["host"] {
		listenHost = conf.Host
	}
	if conf.Has("port") && !passed["port"] {
		listenPort = conf.Port
	}
	if conf.Has("storage") && !passed["storage"] {
		storageKind = conf.Storage
	}
	if conf.Has("hops") && !passed["hops"] {
		hops = conf.Hops
	}
	if conf.Has("hmac") && !passed["hmac"] {
		hmacSec = conf.Hmac
	}
	if conf.Has("bridge-url") && !passed["bridge"] {
		bridgeURL = conf.BridgeURL
	}
	if conf.Has("bridge-author") && !passed["bridge-author"] {
		bridgeAuthor = conf.BridgeAuthor
	}
	if conf.Has("bridge-interval") && !passed["bridge-interval"] {
		bridgeInterval = conf.BridgeInterval
	}
	if conf.Has("cors-origins") && !passed["cors"] {
		corsOrigins = strings.Join(conf.CORSOrigins, ",")
	}
	if conf.Has("debuglis") && !passed["debuglis"] {
		debugAddr = conf.MetricsAddress
	}
	if conf.Has("repair") && !passed["repair"] {
		flagRepair = bool(conf.Repair)
	}
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func runSbot() error {
	initFlags()

	if flagPrintVersion {
		fmt.Fprintf(os.Stderr, "go-ssbd %s (rev: %s)\n", Version, Build)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval, err := config.ParseInterval(bridgeInterval)
	if err != nil {
		return fmt.Errorf("invalid bridge interval %q: %w", bridgeInterval, err)
	}

	opts := []sbot.Option{
		sbot.WithInfo(log),
		sbot.WithContext(ctx),
		sbot.WithRepoPath(repoDir),
		sbot.WithStorageKind(storageKind),
		sbot.WithHops(int(hops)),
		sbot.WithRepair(flagRepair),
		sbot.WithBridge(bridgeURL, bridgeAuthor, interval),
	}
	if hmacSec != "" {
		opts = append(opts, sbot.WithHMACSigning(hmacSec))
	}

	var m *daemonMetrics
	if debugAddr != "" {
		m = newMetrics()
		opts = append(opts, m.sbotOptions()...)
	}

	bot, err := sbot.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to instantiate ssb server: %w", err)
	}
	defer func() {
		if err := bot.Close(); err != nil {
			level.Warn(log).Log("event", "close failed", "err", err)
		}
	}()

	srvOpts := []network.Option{
		network.WithLogger(kitlog.With(log, "unit", "network")),
		network.WithBlobStore(bot.BlobStore),
		network.WithCORSOrigins(splitOrigins(corsOrigins)...),
	}
	if bot.Bridge != nil {
		srvOpts = append(srvOpts, network.WithBridge(bot.Bridge))
	}
	if m != nil {
		srvOpts = append(srvOpts, network.WithConnTracker(m.connTracker()))
	}
	srv := network.New(bot, srvOpts...)

	addr := net.JoinHostPort(listenHost, strconv.FormatUint(uint64(listenPort), 10))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		level.Warn(log).Log("event", "killed", "msg", "received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, lis)
	})
	if m != nil {
		g.Go(func() error {
			return serveMetrics(gctx, debugAddr)
		})
		g.Go(func() error {
			return m.updateRepoStats(gctx, bot)
		})
	}

	st := bot.Status()
	level.Info(log).Log("event", "serving",
		"id", st.ID,
		"addr", addr,
		"repo", repoDir,
		"storage", storageKind,
		"feeds", humanize.Comma(int64(len(st.Feeds))),
		"messages", humanize.Comma(int64(st.KnownKeys)),
		"bridge", bridgeURL,
	)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		level.Info(log).Log("event", "shutdown", "uptime", bot.Uptime().Round(time.Second))
		return nil
	}
	return err
}

func main() {
	if err := runSbot(); err != nil {
		fmt.Fprintf(os.Stderr, "go-ssbd: %s\n", err)
		os.Exit(1)
	}
}
