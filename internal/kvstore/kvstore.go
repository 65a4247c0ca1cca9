// Package kvstore implements the key-value backend contract (base §6)
// over go.etcd.io/bbolt: one top-level bbolt bucket per logical
// bucket, values up to several MB, ASCII keys.
package kvstore

import (
	"context"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/stackdump/cim/pkg/cimerr"
)

// Store is a bbolt-backed KV store. One *bolt.DB may be shared by
// every Store opened against it; Close closes the underlying file.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, &cimerr.StorageError{Kind: cimerr.Unavailable, Detail: err.Error()}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

// Put writes value under (bucket, key), creating bucket if needed.
func (s *Store) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return &cimerr.StorageError{Kind: cimerr.Unavailable, Detail: err.Error()}
		}
		return b.Put([]byte(key), value)
	})
}

// Get returns the value stored under (bucket, key), or NotFoundError.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return &cimerr.NotFoundError{Key: bucket + "/" + key}
		}
		v := b.Get([]byte(key))
		if v == nil {
			return &cimerr.NotFoundError{Key: bucket + "/" + key}
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes (bucket, key); deleting an absent key or bucket is a no-op.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// List returns keys in bucket with the given prefix, sorted ascending.
// A missing bucket yields an empty list.
func (s *Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		prefixBytes := []byte(prefix)
		for k, _ := c.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
