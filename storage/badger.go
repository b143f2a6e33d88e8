// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/ssbc/go-ssbd"
)

// Badger keeps files in a badger database.
// Every write or append becomes its own chunk key so appends don't rewrite the whole file:
//
//	<location>/<name>\x00<uint64 chunk number>
type Badger struct {
	// appends read the last chunk number, this keeps them ordered
	mu sync.Mutex

	db *badger.DB
}

var _ ssbd.Storage = (*Badger)(nil)

func badgerOpts(dbPath string) badger.Options {
	return badger.DefaultOptions(dbPath).
		WithMemTableSize(1 << 25).
		WithValueLogFileSize(1 << 25).
		WithNumMemtables(4).
		WithNumCompactors(2).
		WithLogger(nil)
}

// OpenBadger opens (or creates) the database in dir.
// An empty dir keeps the database in memory.
func OpenBadger(dir string) (*Badger, error) {
	opts := badgerOpts(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage/badger: failed to open database: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func chunkPrefix(location, name string) []byte {
	if location == "" {
		location = "default"
	}
	return []byte(location + "/" + name + "\x00")
}

func chunkKey(prefix []byte, n uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], n)
	return k
}

func (b *Badger) ReadFile(location, name string) ([]byte, error) {
	prefix := chunkPrefix(location, name)

	var (
		buf   bytes.Buffer
		found bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: true,
			PrefetchSize:   100,
			Prefix:         prefix,
		})
		defer iter.Close()

		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			found = true
			err := iter.Item().Value(func(v []byte) error {
				buf.Write(v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage/badger: failed to read %s: %w", name, err)
	}
	if !found {
		return nil, fmt.Errorf("storage/badger: %s: %w", name, ssbd.ErrNoSuchFile)
	}
	return buf.Bytes(), nil
}

// WriteFile drops all chunks of the file and stores data as the first one.
func (b *Badger) WriteFile(location, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prefix := chunkPrefix(location, name)

	err := b.db.Update(func(txn *badger.Txn) error {
		var old [][]byte
		iter := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			old = append(old, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, k := range old {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Set(chunkKey(prefix, 0), data)
	})
	if err != nil {
		return fmt.Errorf("storage/badger: failed to write %s: %w", name, err)
	}
	return nil
}

func (b *Badger) AppendFile(location, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prefix := chunkPrefix(location, name)

	err := b.db.Update(func(txn *badger.Txn) error {
		next, err := nextChunk(txn, prefix)
		if err != nil {
			return err
		}
		return txn.Set(chunkKey(prefix, next), data)
	})
	if err != nil {
		return fmt.Errorf("storage/badger: failed to append to %s: %w", name, err)
	}
	return nil
}

func nextChunk(txn *badger.Txn, prefix []byte) (uint64, error) {
	iter := txn.NewIterator(badger.IteratorOptions{
		Prefix:  prefix,
		Reverse: true,
	})
	defer iter.Close()

	// seek to the largest possible key of this file
	iter.Seek(chunkKey(prefix, ^uint64(0)))
	if !iter.ValidForPrefix(prefix) {
		return 0, nil
	}

	k := iter.Item().Key()
	if len(k) != len(prefix)+8 {
		return 0, errors.New("storage/badger: malformed chunk key")
	}
	return binary.BigEndian.Uint64(k[len(prefix):]) + 1, nil
}
