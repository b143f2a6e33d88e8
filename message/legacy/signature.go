// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package legacy

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	refs "github.com/ssbc/go-ssb-refs"
	"golang.org/x/crypto/nacl/auth"
)

// ErrInvalidSignature is returned by Verify if the signature doesn't match the content.
var ErrInvalidSignature = errors.New("ssb/signature: invalid signature")

const signatureSuffix = ".sig.ed25519"

// Signature is a detached ed25519 signature.
type Signature []byte

// NewSignatureFromBase64 parses the tagged form "<base64>.sig.ed25519".
func NewSignatureFromBase64(input string) (Signature, error) {
	// check for and split off the suffix
	if !strings.HasSuffix(input, signatureSuffix) {
		return nil, errors.New("ssb/signature: unexpected suffix")
	}
	b64 := strings.TrimSuffix(input, signatureSuffix)

	// initial check of signature data to make sure it's within reasonable limits, to be checked in detail later due to padding issues
	// this is mainly to avoid decoding a signature that's obviously invalid and huge and filling up RAM in the process
	gotLen := base64.StdEncoding.DecodedLen(len(b64))
	if gotLen < ed25519.SignatureSize {
		return nil, fmt.Errorf("ssb/signature: expected more signature data but only got %d", gotLen)
	}
	if gotLen > ed25519.SignatureSize+2 {
		return nil, fmt.Errorf("ssb/signature: expected less signature data but got a string that could decode to up to %d bytes", gotLen)
	}

	// decode and check lengths
	decoded := make([]byte, gotLen)
	n, err := base64.StdEncoding.Decode(decoded, []byte(b64))
	if err != nil {
		return nil, fmt.Errorf("ssb/signature: invalid base64 data: %w", err)
	}
	decoded = decoded[:n]

	if decodedLen := len(decoded); decodedLen != ed25519.SignatureSize {
		return nil, fmt.Errorf("ssb/signature: decoded data is %d bytes long and should be %d", decodedLen, ed25519.SignatureSize)
	}

	return decoded, nil
}

// String returns the tagged base64 form.
func (s Signature) String() string {
	return base64.StdEncoding.EncodeToString(s) + signatureSuffix
}

// Sign creates a signature over content, which is first passed through the HMAC if a key is given.
func Sign(priv ed25519.PrivateKey, content []byte, hmacKey *[32]byte) Signature {
	return ed25519.Sign(priv, maybeHMAC(content, hmacKey))
}

// Verify checks the signature over content against the key of the feed.
func (s Signature) Verify(content []byte, r refs.FeedRef, hmacKey *[32]byte) error {
	if r.Algo() != refs.RefAlgoFeedSSB1 {
		return fmt.Errorf("ssb/signature: invalid feed algorithm %s", r.Algo())
	}

	if ed25519.Verify(r.PubKey(), maybeHMAC(content, hmacKey), s) {
		return nil
	}

	return ErrInvalidSignature
}

// Equal compares two signatures.
func (s Signature) Equal(o Signature) bool {
	return bytes.Equal(s, o)
}

func maybeHMAC(content []byte, hmacKey *[32]byte) []byte {
	if hmacKey == nil {
		return content
	}
	mac := auth.Sum(content, hmacKey)
	return mac[:]
}
