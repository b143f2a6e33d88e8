// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package blobstore keeps content addressed binary blobs in a directory.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ssbc/go-luigi"
	"go.mindeco.de/log"
	"go.mindeco.de/log/level"

	"github.com/ssbc/go-ssbd"
)

// DirName is the directory inside the repo that holds the blobs.
const DirName = "blobs"

// ErrInvalidHash is returned for references that don't look like blob hashes.
var ErrInvalidHash = errors.New("blobstore: invalid blob hash")

// Store is a filesystem backed ssbd.BlobStore.
type Store struct {
	basePath string
	info     log.Logger

	sink  luigi.Sink
	bcast luigi.Broadcast
}

var _ ssbd.BlobStore = (*Store)(nil)

// New creates <repo>/blobs if needed.
func New(repo string, info log.Logger) (*Store, error) {
	basePath := filepath.Join(repo, DirName)
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("blobstore: error making dir for blobs: %w", err)
	}
	if info == nil {
		info = log.NewNopLogger()
	}

	sink, bcast := luigi.NewBroadcast()
	return &Store{
		basePath: basePath,
		info:     info,

		sink:  sink,
		bcast: bcast,
	}, nil
}

// slug turns %<b64>.sha256 into the url safe base64 part, used as file name
func slug(hash string) (string, error) {
	if !ssbd.IsBlobHash(hash) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	b64 := strings.TrimSuffix(strings.TrimPrefix(hash, "%"), ".sha256")
	b64 = strings.ReplaceAll(b64, "+", "-")
	return strings.ReplaceAll(b64, "/", "_"), nil
}

func (store *Store) getPath(hash string) (string, error) {
	s, err := slug(hash)
	if err != nil {
		return "", err
	}
	return filepath.Join(store.basePath, s), nil
}

// Put stores blob and writes its metadata.
// Existing blobs are kept, their media type is updated if a new one is given.
func (store *Store) Put(blob io.Reader, mediaType string) (ssbd.BlobMeta, error) {
	f, err := os.CreateTemp(store.basePath, ".put-*")
	if err != nil {
		return ssbd.BlobMeta{}, fmt.Errorf("blobstore: error creating tmp file: %w", err)
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)

	h := sha256.New()
	n, err := io.Copy(f, io.TeeReader(blob, h))
	if err != nil {
		f.Close()
		return ssbd.BlobMeta{}, fmt.Errorf("blobstore: error copying: %w", err)
	}
	if err := f.Close(); err != nil {
		return ssbd.BlobMeta{}, fmt.Errorf("blobstore: error closing tmp file: %w", err)
	}

	meta := ssbd.BlobMeta{
		Hash: "%" + base64.StdEncoding.EncodeToString(h.Sum(nil)) + ".sha256",
		Type: mediaType,
		Size: n,
	}

	finalPath, err := store.getPath(meta.Hash)
	if err != nil {
		return ssbd.BlobMeta{}, err
	}

	_, err = os.Stat(finalPath)
	switch {
	case err == nil:
		meta.Existed = true
	case errors.Is(err, os.ErrNotExist):
		if err := os.Rename(tmpPath, finalPath); err != nil {
			return ssbd.BlobMeta{}, fmt.Errorf("blobstore: error moving blob from temp path %q to final path %q: %w", tmpPath, finalPath, err)
		}
	default:
		return ssbd.BlobMeta{}, fmt.Errorf("blobstore: error checking for blob: %w", err)
	}

	if mediaType != "" || !meta.Existed {
		if err := store.writeMeta(finalPath, meta); err != nil {
			level.Warn(store.info).Log("event", "failed to persist blob metadata", "blob", meta.Hash, "err", err)
		}
	}

	if meta.Existed {
		return meta, nil
	}

	level.Debug(store.info).Log("event", "blob stored", "blob", meta.Hash, "size", humanize.Bytes(uint64(n)))
	err = store.sink.Pour(context.TODO(), ssbd.BlobStoreNotification{
		Op:   ssbd.BlobStoreOpPut,
		Meta: meta,
	})
	if err != nil {
		level.Warn(store.info).Log("event", "blob notification failed", "err", err)
	}
	return meta, nil
}

type metaFile struct {
	Type string `json:"type,omitempty"`
	Size int64  `json:"size"`
}

func (store *Store) writeMeta(blobPath string, meta ssbd.BlobMeta) error {
	data, err := json.Marshal(metaFile{Type: meta.Type, Size: meta.Size})
	if err != nil {
		return err
	}

	tmp := blobPath + ".json.tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, blobPath+".json")
}

// Get opens the blob with hash. It returns ssbd.ErrNoSuchBlob if it isn't stored.
func (store *Store) Get(hash string) (io.ReadCloser, error) {
	blobPath, err := store.getPath(hash)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(blobPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ssbd.ErrNoSuchBlob
		}
		return nil, fmt.Errorf("blobstore: error opening blob: %w", err)
	}
	return f, nil
}

// Meta returns the stored metadata of hash.
// Blobs without a metadata file report their size and no type.
func (store *Store) Meta(hash string) (ssbd.BlobMeta, error) {
	blobPath, err := store.getPath(hash)
	if err != nil {
		return ssbd.BlobMeta{}, err
	}

	fi, err := os.Stat(blobPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ssbd.BlobMeta{}, ssbd.ErrNoSuchBlob
		}
		return ssbd.BlobMeta{}, fmt.Errorf("blobstore: error checking for blob: %w", err)
	}

	meta := ssbd.BlobMeta{Hash: hash, Size: fi.Size(), Existed: true}

	data, err := os.ReadFile(blobPath + ".json")
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			level.Warn(store.info).Log("event", "failed to read blob metadata", "blob", hash, "err", err)
		}
		return meta, nil
	}

	var mf metaFile
	if err := json.Unmarshal(data, &mf); err != nil {
		level.Warn(store.info).Log("event", "failed to read blob metadata", "blob", hash, "err", err)
		return meta, nil
	}
	meta.Type = mf.Type
	return meta, nil
}

// Changes emits a ssbd.BlobStoreNotification for every new blob.
func (store *Store) Changes() luigi.Broadcast {
	return store.bcast
}
