// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package message creates and checks classic signed feed messages.
//
// A message is flattened to JSON, pretty printed the way JSON.stringify(msg, null, 2)
// does and then signed. The SHA256 of the same bytes, without the signature, is the key of the message.
package message

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	refs "github.com/ssbc/go-ssb-refs"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/message/legacy"
)

// Canonicalize returns the bytes that are hashed and signed for v.
// The signature is only kept if it is set and dropSignature is false.
func Canonicalize(v ssbd.Value, dropSignature bool) ([]byte, error) {
	if dropSignature {
		v = v.Unsigned()
	}

	flat, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("message: 1st-pass json flattening failed: %w", err)
	}

	pp, err := legacy.PrettyPrint(flat)
	if err != nil {
		return nil, fmt.Errorf("message: canonical encoding failed: %w", err)
	}
	return pp, nil
}

// Hash computes the key of v over its canonical bytes, which are returned as well.
// A signature on v is ignored, so signed and unsigned messages have the same key.
func Hash(v ssbd.Value) (refs.MessageRef, []byte, error) {
	if v.Hash != ssbd.HashAlgoSHA256 {
		return refs.MessageRef{}, nil, fmt.Errorf("%w: %q", ssbd.ErrUnsupportedHash, v.Hash)
	}

	canonical, err := Canonicalize(v, true)
	if err != nil {
		return refs.MessageRef{}, nil, err
	}

	sum := sha256.Sum256(canonical)
	key, err := refs.NewMessageRefFromBytes(sum[:], refs.RefAlgoMessageSSB1)
	if err != nil {
		return refs.MessageRef{}, nil, fmt.Errorf("message: failed to build key: %w", err)
	}
	return key, canonical, nil
}

type options struct {
	hmacKey *[32]byte
}

// Option changes how messages are signed or validated.
type Option func(*options)

// SetHMACKey makes signatures go over the HMAC of the canonical bytes instead of the bytes themselves.
func SetHMACKey(hmackey *[32]byte) Option {
	return func(o *options) {
		o.hmacKey = hmackey
	}
}

func makeOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Sign signs an unsigned message with the key pair of its author.
func Sign(kp ssbd.KeyPair, unsigned ssbd.Value, opts ...Option) (ssbd.Value, error) {
	if unsigned.Author != kp.ID.String() {
		return ssbd.Value{}, fmt.Errorf("message/sign: %w (%s vs %s)", ssbd.ErrAuthorKeyMismatch, unsigned.Author, kp.ID.ShortSigil())
	}
	o := makeOptions(opts)

	canonical, err := Canonicalize(unsigned, true)
	if err != nil {
		return ssbd.Value{}, fmt.Errorf("message/sign: %w", err)
	}

	signed := unsigned
	signed.Signature = legacy.Sign(kp.Private, canonical, o.hmacKey).String()
	return signed, nil
}
