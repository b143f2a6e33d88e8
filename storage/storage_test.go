// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package storage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssbc/go-ssbd"
)

type makeStorage func(t *testing.T) ssbd.Storage

func allStorages() map[string]makeStorage {
	return map[string]makeStorage{
		"fs": func(t *testing.T) ssbd.Storage {
			return NewFS(t.TempDir())
		},
		"memory": func(t *testing.T) ssbd.Storage {
			return NewMemory()
		},
		"badger": func(t *testing.T) ssbd.Storage {
			b, err := OpenBadger(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return b
		},
		"badger-inmem": func(t *testing.T) ssbd.Storage {
			b, err := OpenBadger("")
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return b
		},
	}
}

func TestStorage(t *testing.T) {
	for name, mk := range allStorages() {
		t.Run(name, func(t *testing.T) {
			t.Run("missing", func(t *testing.T) {
				s := mk(t)
				_, err := s.ReadFile("loc", "nope")
				require.ErrorIs(t, err, ssbd.ErrNoSuchFile)
			})

			t.Run("write and read", func(t *testing.T) {
				r := require.New(t)
				s := mk(t)

				r.NoError(s.WriteFile("loc", "a", []byte("hello")))
				got, err := s.ReadFile("loc", "a")
				r.NoError(err)
				r.Equal("hello", string(got))

				r.NoError(s.WriteFile("loc", "a", []byte("bye")))
				got, err = s.ReadFile("loc", "a")
				r.NoError(err)
				r.Equal("bye", string(got), "write should replace")

				_, err = s.ReadFile("other", "a")
				r.ErrorIs(err, ssbd.ErrNoSuchFile, "locations are separate")
			})

			t.Run("append", func(t *testing.T) {
				r := require.New(t)
				s := mk(t)

				for i := 0; i < 5; i++ {
					r.NoError(s.AppendFile("loc", "log", []byte(fmt.Sprintf("line %d\n", i))))
				}
				got, err := s.ReadFile("loc", "log")
				r.NoError(err)
				r.Equal("line 0\nline 1\nline 2\nline 3\nline 4\n", string(got))

				r.NoError(s.WriteFile("loc", "log", []byte("reset\n")))
				r.NoError(s.AppendFile("loc", "log", []byte("more\n")))
				got, err = s.ReadFile("loc", "log")
				r.NoError(err)
				r.Equal("reset\nmore\n", string(got))

				_, err = s.ReadFile("loc", "log.meta")
				r.ErrorIs(err, ssbd.ErrNoSuchFile, "names sharing a prefix are separate")
			})

			t.Run("concurrent appends", func(t *testing.T) {
				r := require.New(t)
				s := mk(t)

				var wg sync.WaitGroup
				for i := 0; i < 20; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						s.AppendFile("loc", "log", []byte("x"))
					}()
				}
				wg.Wait()

				got, err := s.ReadFile("loc", "log")
				r.NoError(err)
				r.Len(got, 20)
			})
		})
	}
}
