// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// ssb-keygen creates the secret of a new identity.
package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/internal/config"
)

func check(err error) {
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %s\n", err)
	os.Exit(1)
}

var (
	repoDir   string
	seedB64   string
	printOnly bool
)

func initFlags() {
	defaultRepo, err := config.ExpandPath(".ssbd")
	check(err)

	flag.StringVar(&repoDir, "repo", defaultRepo, "where to store the key")
	flag.StringVar(&seedB64, "seed", "", "base64 encoded 32 byte seed (reproducible and insecure!)")
	flag.BoolVar(&printOnly, "print", false, "print the secret instead of writing it to the repo")

	flag.Parse()
}

func main() {
	initFlags()

	kp, err := generate(seedB64)
	check(err)

	if printOnly {
		check(ssbd.EncodeKeyPair(os.Stdout, kp))
		return
	}

	path := filepath.Join(repoDir, ssbd.SecretFileName)
	check(ssbd.SaveKeyPair(kp, path))
	fmt.Println(kp.ID.String())
}

// generate makes a key pair from seed, a random one if seed is empty.
func generate(seed string) (ssbd.KeyPair, error) {
	var r io.Reader
	if seed != "" {
		raw, err := base64.StdEncoding.DecodeString(seed)
		if err != nil {
			return ssbd.KeyPair{}, fmt.Errorf("invalid seed: %w", err)
		}
		if len(raw) != ed25519.SeedSize {
			return ssbd.KeyPair{}, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(raw))
		}
		r = bytes.NewReader(raw)
	}
	return ssbd.NewKeyPair(r)
}
