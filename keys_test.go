// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package ssbd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveKeyPair(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "secret")

	keys, err := NewKeyPair(nil)
	require.NoError(t, err)
	err = SaveKeyPair(keys, fname)
	require.NoError(t, err)

	stat, err := os.Stat(fname)
	require.NoError(t, err)
	assert.Equal(t, SecretPerms, stat.Mode(), "file permissions")

	err = SaveKeyPair(keys, fname)
	assert.Error(t, err, "should not overwrite an existing secret")
}

func TestLoadKeyPair(t *testing.T) {
	tests := []struct {
		Name                    string
		Perms                   os.FileMode
		HasIncorrectPermissions bool
	}{
		{
			"Success",
			SecretPerms,
			false,
		},
		{
			"Bad file permissions, should be corrected",
			0777,
			true,
		},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			fname := filepath.Join(t.TempDir(), "secret")

			keys, err := NewKeyPair(nil)
			require.NoError(t, err)
			err = SaveKeyPair(keys, fname)
			require.NoError(t, err)

			err = os.Chmod(fname, test.Perms)
			require.NoError(t, err)

			loaded, err := LoadKeyPair(fname)
			require.NoError(t, err)
			assert.Equal(t, keys.ID.String(), loaded.ID.String())
			assert.True(t, keys.Private.Equal(loaded.Private))

			info, err := os.Stat(fname)
			require.NoError(t, err)
			assert.EqualValues(t, SecretPerms, info.Mode().Perm(), "incorrect permissions have not been corrected automatically")
		})
	}
}

func TestKeyPairFromSeed(t *testing.T) {
	r := require.New(t)

	seed := bytes.Repeat([]byte{7}, 32)
	kp1, err := NewKeyPair(bytes.NewReader(seed))
	r.NoError(err)
	kp2, err := NewKeyPair(bytes.NewReader(seed))
	r.NoError(err)

	r.Equal(kp1.ID.String(), kp2.ID.String())
	r.True(strings.HasPrefix(kp1.ID.String(), "@"))
	r.True(strings.HasSuffix(kp1.ID.String(), ".ed25519"))

	_, err = NewKeyPair(bytes.NewReader([]byte{1, 2, 3}))
	r.Error(err, "short seed")
}

func TestParseKeyPairWithComments(t *testing.T) {
	r := require.New(t)

	kp, err := NewKeyPair(nil)
	r.NoError(err)

	var buf bytes.Buffer
	r.NoError(EncodeKeyPair(&buf, kp))
	r.True(strings.HasPrefix(buf.String(), "# WARNING"))
	r.Contains(buf.String(), "#   "+kp.ID.String())

	dir := t.TempDir()
	r.NoError(os.WriteFile(filepath.Join(dir, SecretFileName), buf.Bytes(), SecretPerms))

	loaded, err := LoadOrCreateKeyPair(dir)
	r.NoError(err)
	r.Equal(kp.ID.String(), loaded.ID.String())
}

func TestLoadOrCreateKeyPair(t *testing.T) {
	r := require.New(t)
	dir := filepath.Join(t.TempDir(), "repo")

	created, err := LoadOrCreateKeyPair(dir)
	r.NoError(err)

	loaded, err := LoadOrCreateKeyPair(dir)
	r.NoError(err)
	r.Equal(created.ID.String(), loaded.ID.String())
}

func TestParseKeyPairMismatch(t *testing.T) {
	r := require.New(t)

	kp1, err := NewKeyPair(nil)
	r.NoError(err)
	kp2, err := NewKeyPair(nil)
	r.NoError(err)

	var buf bytes.Buffer
	r.NoError(EncodeKeyPair(&buf, kp1))

	broken := strings.Replace(buf.String(), kp1.ID.String(), kp2.ID.String(), -1)
	_, err = loadKeyPairFromString(broken)
	r.Error(err)
}

func loadKeyPairFromString(s string) (KeyPair, error) {
	f, err := os.CreateTemp("", "secret")
	if err != nil {
		return KeyPair{}, err
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(s); err != nil {
		return KeyPair{}, err
	}
	f.Close()
	return LoadKeyPair(f.Name())
}
