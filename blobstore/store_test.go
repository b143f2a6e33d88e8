// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ssbc/go-luigi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/internal/testutils"
)

func TestStore(t *testing.T) {
	blobs := map[string]string{
		"%ZR3jMW+ifnTWqd5hnrrGjjt4HpUn/dAMXvcUOx+lgbY=.sha256": "omg",
		"%8Ap4f3SSqV4WW0cHAvT+k3NYP73AJbLIvfAmLMSPz/Q=.sha256": "wat",
		"%47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=.sha256": "",
	}

	r := require.New(t)
	store, err := New(t.TempDir(), testutils.NewTestLogger(t))
	r.NoError(err)

	var notified []ssbd.BlobStoreNotification
	done := store.Changes().Register(luigi.FuncSink(func(ctx context.Context, v interface{}, err error) error {
		if err != nil {
			return nil
		}
		notified = append(notified, v.(ssbd.BlobStoreNotification))
		return nil
	}))
	defer done()

	for hash, content := range blobs {
		r.Equal(hash, ssbd.BlobHash([]byte(content)))

		meta, err := store.Put(strings.NewReader(content), "text/plain")
		r.NoError(err, "put %q", content)
		r.Equal(hash, meta.Hash)
		r.EqualValues(len(content), meta.Size)
		r.False(meta.Existed)

		rc, err := store.Get(hash)
		r.NoError(err)
		got, err := io.ReadAll(rc)
		r.NoError(err)
		r.NoError(rc.Close())
		r.Equal(content, string(got))

		stored, err := store.Meta(hash)
		r.NoError(err)
		r.Equal("text/plain", stored.Type)
		r.EqualValues(len(content), stored.Size)
	}

	r.Len(notified, len(blobs))
	for _, n := range notified {
		assert.Equal(t, ssbd.BlobStoreOpPut, n.Op)
		_, has := blobs[n.Meta.Hash]
		assert.True(t, has, "unexpected notification: %s", n)
	}
}

func TestStoreExisting(t *testing.T) {
	r := require.New(t)
	store, err := New(t.TempDir(), nil)
	r.NoError(err)

	first, err := store.Put(bytes.NewReader([]byte("hello")), "")
	r.NoError(err)
	r.False(first.Existed)

	meta, err := store.Meta(first.Hash)
	r.NoError(err)
	r.Equal("", meta.Type)

	again, err := store.Put(bytes.NewReader([]byte("hello")), "")
	r.NoError(err)
	r.True(again.Existed)
	r.Equal(first.Hash, again.Hash)

	_, err = store.Put(bytes.NewReader([]byte("hello")), "text/x-greeting")
	r.NoError(err)
	meta, err = store.Meta(first.Hash)
	r.NoError(err)
	r.Equal("text/x-greeting", meta.Type, "type gets updated")

	// no leftovers from the temporary files
	files, err := os.ReadDir(store.basePath)
	r.NoError(err)
	var names []string
	for _, f := range files {
		names = append(names, f.Name())
	}
	r.Len(names, 2, "blob and metadata: %v", names)
}

func TestStoreMissing(t *testing.T) {
	r := require.New(t)
	store, err := New(t.TempDir(), nil)
	r.NoError(err)

	missing := ssbd.BlobHash([]byte("not stored"))

	_, err = store.Get(missing)
	r.ErrorIs(err, ssbd.ErrNoSuchBlob)

	_, err = store.Meta(missing)
	r.ErrorIs(err, ssbd.ErrNoSuchBlob)

	for _, bad := range []string{
		"",
		"%short.sha256",
		"&ZR3jMW+ifnTWqd5hnrrGjjt4HpUn/dAMXvcUOx+lgbY=.sha256",
		"%ZR3jMW+ifnTWqd5hnrrGjjt4HpUn/dAMXvcUOx+lgbY=.sha512",
		"%../../../../../etc/passwd/aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.sha256",
	} {
		_, err = store.Get(bad)
		assert.ErrorIs(t, err, ErrInvalidHash, "hash %q", bad)
	}
}

func TestStoreMetaWithoutSidecar(t *testing.T) {
	r := require.New(t)
	store, err := New(t.TempDir(), nil)
	r.NoError(err)

	meta, err := store.Put(strings.NewReader("sidecar"), "text/plain")
	r.NoError(err)

	p, err := store.getPath(meta.Hash)
	r.NoError(err)
	r.NoError(os.Remove(p + ".json"))

	got, err := store.Meta(meta.Hash)
	r.NoError(err)
	r.Equal("", got.Type)
	r.EqualValues(7, got.Size)
	r.Equal(filepath.Join(store.basePath, filepath.Base(p)), p)
}
