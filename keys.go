// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package ssbd

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	refs "github.com/ssbc/go-ssb-refs"
	"go.cryptoscope.co/nocomment"
)

// SecretFileName is the name of the key file inside a repo directory.
const SecretFileName = "secret"

// CurveEd25519 is the only supported key curve.
const CurveEd25519 = "ed25519"

// SecretPerms are the file permissions for the secret file.
const SecretPerms = os.FileMode(0600)

// KeyPair is the signing identity of a feed.
type KeyPair struct {
	ID      refs.FeedRef
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// the format of the secret file as defined by the js implementations
type ssbSecret struct {
	Curve   string `json:"curve"`
	Public  string `json:"public"`
	Private string `json:"private"`
	ID      string `json:"id"`
}

// NewKeyPair creates a new ed25519 key pair. If r is not nil, 32 bytes of seed are read from it.
func NewKeyPair(r io.Reader) (KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return KeyPair{}, fmt.Errorf("ssbd: error reading key seed: %w", err)
	}

	return keyPairFromPrivate(ed25519.NewKeyFromSeed(seed))
}

func keyPairFromPrivate(priv ed25519.PrivateKey) (KeyPair, error) {
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return KeyPair{}, fmt.Errorf("ssbd: unexpected public key type")
	}

	id, err := refs.NewFeedRefFromBytes(pub, refs.RefAlgoFeedSSB1)
	if err != nil {
		return KeyPair{}, fmt.Errorf("ssbd: error building feed reference: %w", err)
	}

	return KeyPair{
		ID:      id,
		Public:  pub,
		Private: priv,
	}, nil
}

const secretHeader = `# WARNING: Never show this to anyone.
# WARNING: Never edit it or use it on multiple devices at once.
#
# This is your SECRET, it gives you magical powers. With your secret you can
# sign your messages so that your friends can verify that the messages came
# from you. If anyone learns your secret, they can use it to impersonate you.
#
# If you use this secret on more than one device you will create a fork and
# your friends will stop replicating your content.
#
`

// EncodeKeyPair writes the key pair in the commented secret file format.
func EncodeKeyPair(w io.Writer, kp KeyPair) error {
	var sec = ssbSecret{
		Curve:   CurveEd25519,
		Public:  base64.StdEncoding.EncodeToString(kp.Public) + "." + CurveEd25519,
		Private: base64.StdEncoding.EncodeToString(kp.Private) + "." + CurveEd25519,
		ID:      kp.ID.String(),
	}

	body, err := json.MarshalIndent(sec, "", "  ")
	if err != nil {
		return fmt.Errorf("ssbd: json encoding failed: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(secretHeader)
	buf.Write(body)
	buf.WriteString("\n#\n# The only part of this file that's safe to share is your public name:\n#\n#   ")
	buf.WriteString(sec.ID)
	buf.WriteString("\n")

	_, err = buf.WriteTo(w)
	return err
}

// SaveKeyPair creates path and writes the key pair to it. It fails if the file already exists.
func SaveKeyPair(kp KeyPair, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("ssbd: failed to create folder for keypair: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, SecretPerms)
	if err != nil {
		return fmt.Errorf("ssbd: failed to create file: %w", err)
	}

	if err := EncodeKeyPair(f, kp); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadKeyPair opens fname, ignores any line starting with # and passes it to ParseKeyPair.
// Too open file permissions are corrected to SecretPerms.
func LoadKeyPair(fname string) (KeyPair, error) {
	f, err := os.Open(fname)
	if err != nil {
		return KeyPair{}, fmt.Errorf("ssbd: could not open key file %s: %w", fname, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return KeyPair{}, fmt.Errorf("ssbd: could not stat key file %s: %w", fname, err)
	}
	if info.Mode().Perm() != SecretPerms {
		if err := os.Chmod(fname, SecretPerms); err != nil {
			return KeyPair{}, fmt.Errorf("ssbd: failed to correct permissions of %s: %w", fname, err)
		}
	}

	return ParseKeyPair(nocomment.NewReader(f))
}

// LoadOrCreateKeyPair loads the secret file from the repo directory or creates a new one.
func LoadOrCreateKeyPair(repoDir string) (KeyPair, error) {
	path := filepath.Join(repoDir, SecretFileName)

	kp, err := LoadKeyPair(path)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return KeyPair{}, err
	}

	kp, err = NewKeyPair(nil)
	if err != nil {
		return KeyPair{}, err
	}

	if err := SaveKeyPair(kp, path); err != nil {
		return KeyPair{}, err
	}
	return kp, nil
}

// ParseKeyPair json decodes an object from the reader.
// It expects std base64 encoded data under the `private` and `public` fields.
func ParseKeyPair(r io.Reader) (KeyPair, error) {
	var s ssbSecret
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return KeyPair{}, fmt.Errorf("ssbd: JSON decoding failed: %w", err)
	}

	if s.Curve != "" && s.Curve != CurveEd25519 {
		return KeyPair{}, fmt.Errorf("ssbd: unsupported key curve: %s", s.Curve)
	}

	private, err := base64.StdEncoding.DecodeString(strings.TrimSuffix(s.Private, "."+CurveEd25519))
	if err != nil {
		return KeyPair{}, fmt.Errorf("ssbd: base64 decode of private part failed: %w", err)
	}
	if len(private) != ed25519.PrivateKeySize {
		return KeyPair{}, fmt.Errorf("ssbd: private key has wrong length: %d", len(private))
	}

	kp, err := keyPairFromPrivate(ed25519.PrivateKey(private))
	if err != nil {
		return KeyPair{}, err
	}

	public, err := base64.StdEncoding.DecodeString(strings.TrimSuffix(s.Public, "."+CurveEd25519))
	if err != nil {
		return KeyPair{}, fmt.Errorf("ssbd: base64 decode of public part failed: %w", err)
	}
	if !bytes.Equal(public, kp.Public) {
		return KeyPair{}, fmt.Errorf("ssbd: public key does not belong to private key")
	}

	if s.ID != "" && s.ID != kp.ID.String() {
		return KeyPair{}, fmt.Errorf("ssbd: id %s does not match the key pair", s.ID)
	}

	return kp, nil
}
