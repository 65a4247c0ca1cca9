// Package blobbackend is a filesystem-backed implementation of the
// object-store backend contract (base §6), adapted from the teacher's
// internal/store.FSStore: one directory per bucket, sanitized path
// components to block traversal, and CID/key strings as filenames.
package blobbackend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stackdump/cim/pkg/cimerr"
)

// Info describes a stored key's size and timestamps.
type Info struct {
	Size     int64
	Created  time.Time
	Modified time.Time
}

// FSBackend stores one file per (bucket, key) under base/bucket/key.
type FSBackend struct {
	base string
	mu   sync.Mutex
}

// NewFSBackend returns a backend rooted at base. base is created lazily
// by CreateBucket/Put, not by this constructor.
func NewFSBackend(base string) *FSBackend {
	return &FSBackend{base: base}
}

// sanitizePathComponent rejects empty strings, path separators, and
// parent-directory references so bucket/key names can't escape base.
func sanitizePathComponent(component string) (string, error) {
	if component == "" {
		return "", fmt.Errorf("blobbackend: path component cannot be empty")
	}
	if strings.ContainsAny(component, "/\\") || strings.Contains(component, "..") || component == "." {
		return "", fmt.Errorf("blobbackend: invalid path component: %s", component)
	}
	cleaned := filepath.Clean(component)
	if cleaned != component {
		return "", fmt.Errorf("blobbackend: path component contains invalid characters: %s", component)
	}
	return cleaned, nil
}

func (b *FSBackend) bucketDir(bucket string) (string, error) {
	clean, err := sanitizePathComponent(bucket)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.base, clean), nil
}

func (b *FSBackend) objectPath(bucket, key string) (string, error) {
	dir, err := b.bucketDir(bucket)
	if err != nil {
		return "", err
	}
	cleanKey, err := sanitizePathComponent(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cleanKey), nil
}

// CreateBucket idempotently ensures bucket's directory exists.
func (b *FSBackend) CreateBucket(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := b.bucketDir(name)
	if err != nil {
		return &cimerr.StorageError{Kind: cimerr.Fatal, Detail: err.Error()}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &cimerr.StorageError{Kind: cimerr.Unavailable, Detail: err.Error()}
	}
	return nil
}

// Put writes data under bucket/key, creating bucket's directory if needed.
func (b *FSBackend) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	dir, err := b.bucketDir(bucket)
	if err != nil {
		return &cimerr.StorageError{Kind: cimerr.Fatal, Detail: err.Error()}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &cimerr.StorageError{Kind: cimerr.Unavailable, Detail: err.Error()}
	}
	path, err := b.objectPath(bucket, key)
	if err != nil {
		return &cimerr.StorageError{Kind: cimerr.Fatal, Detail: err.Error()}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &cimerr.StorageError{Kind: cimerr.Unavailable, Detail: err.Error()}
	}
	return nil
}

// Get reads bucket/key, failing with NotFoundError if absent.
func (b *FSBackend) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.objectPath(bucket, key)
	if err != nil {
		return nil, &cimerr.StorageError{Kind: cimerr.Fatal, Detail: err.Error()}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &cimerr.NotFoundError{Key: bucket + "/" + key}
		}
		return nil, &cimerr.StorageError{Kind: cimerr.Transient, Detail: err.Error()}
	}
	return data, nil
}

// Delete removes bucket/key; deleting an absent key is not an error.
func (b *FSBackend) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	path, err := b.objectPath(bucket, key)
	if err != nil {
		return &cimerr.StorageError{Kind: cimerr.Fatal, Detail: err.Error()}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &cimerr.StorageError{Kind: cimerr.Unavailable, Detail: err.Error()}
	}
	return nil
}

// Exists reports whether bucket/key has a stored value.
func (b *FSBackend) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := b.objectPath(bucket, key)
	if err != nil {
		return false, &cimerr.StorageError{Kind: cimerr.Fatal, Detail: err.Error()}
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &cimerr.StorageError{Kind: cimerr.Transient, Detail: err.Error()}
}

// List returns the keys in bucket whose names start with prefix,
// sorted lexicographically. A missing bucket yields an empty list.
func (b *FSBackend) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := b.bucketDir(bucket)
	if err != nil {
		return nil, &cimerr.StorageError{Kind: cimerr.Fatal, Detail: err.Error()}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &cimerr.StorageError{Kind: cimerr.Transient, Detail: err.Error()}
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Info reports size and timestamps for bucket/key.
func (b *FSBackend) Info(ctx context.Context, bucket, key string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	path, err := b.objectPath(bucket, key)
	if err != nil {
		return Info{}, &cimerr.StorageError{Kind: cimerr.Fatal, Detail: err.Error()}
	}
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, &cimerr.NotFoundError{Key: bucket + "/" + key}
		}
		return Info{}, &cimerr.StorageError{Kind: cimerr.Transient, Detail: err.Error()}
	}
	return Info{Size: stat.Size(), Created: stat.ModTime(), Modified: stat.ModTime()}, nil
}
