// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package ssbd

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/ssbc/go-luigi"
)

const (
	// BlobStoreOpPut is used in put notifications
	BlobStoreOpPut BlobStoreOp = "put"
)

// ErrNoSuchBlob is returned if the requested blob isn't available
var ErrNoSuchBlob = errors.New("ssbd: no such blob")

var blobHashRegexp = regexp.MustCompile(`^%[A-Za-z0-9+/=]{42,}\.sha256$`)

// IsBlobHash checks that s looks like a blob reference.
func IsBlobHash(s string) bool {
	return blobHashRegexp.MatchString(s)
}

// BlobHash returns the reference of data.
func BlobHash(data []byte) string {
	sum := sha256.Sum256(data)
	return "%" + base64.StdEncoding.EncodeToString(sum[:]) + ".sha256"
}

// BlobMeta describes a stored blob.
type BlobMeta struct {
	Hash    string `json:"hash"`
	Type    string `json:"type,omitempty"`
	Size    int64  `json:"size"`
	Existed bool   `json:"existed"`
}

// BlobStore is the interface of our blob store
type BlobStore interface {
	// Put stores the data in the reader and returns its metadata.
	Put(blob io.Reader, mediaType string) (BlobMeta, error)

	// Get returns a reader of the blob with given hash.
	Get(hash string) (io.ReadCloser, error)

	// Meta returns the stored metadata of the blob with given hash.
	Meta(hash string) (BlobMeta, error)

	// Changes returns a broadcast that emits put notifications.
	Changes() luigi.Broadcast
}

// BlobStoreNotification contains info on a single change of the blob store.
type BlobStoreNotification struct {
	Op   BlobStoreOp
	Meta BlobMeta
}

func (bn BlobStoreNotification) String() string {
	return fmt.Sprintf("%s: %s (%d bytes)", bn.Op, bn.Meta.Hash, bn.Meta.Size)
}

// BlobStoreOp says whether a blob was added or removed
type BlobStoreOp string

func (op BlobStoreOp) String() string {
	return string(op)
}
