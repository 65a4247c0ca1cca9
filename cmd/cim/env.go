package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/stackdump/cim/internal/blobbackend"
	"github.com/stackdump/cim/internal/kvstore"
	"github.com/stackdump/cim/internal/objectstore"
	"github.com/stackdump/cim/internal/search"
	"github.com/stackdump/cim/pkg/cimerr"
)

// cimEnv bundles the on-disk components a single storeDir holds: the
// object store, the chain's blob backend, and the search index's KV
// persistence tier.
type cimEnv struct {
	objects *objectstore.Store
	chainBE *blobbackend.FSBackend
	kv      *kvstore.Store
}

func openEnv(storeDir string) (*cimEnv, error) {
	objectsDir := filepath.Join(storeDir, "objects")
	chainDir := filepath.Join(storeDir, "chain")
	indexPath := filepath.Join(storeDir, "index.db")

	kv, err := kvstore.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &cimEnv{
		objects: objectstore.New(blobbackend.NewFSBackend(objectsDir)),
		chainBE: blobbackend.NewFSBackend(chainDir),
		kv:      kv,
	}, nil
}

func (e *cimEnv) close() {
	_ = e.kv.Close()
}

// loadIndex rebuilds the search index, treating a not-yet-persisted
// index (a brand new store directory) as an empty index rather than
// an error.
func (e *cimEnv) loadIndex() (*search.Index, error) {
	idx, err := search.Load(bgCtx, search.NewPersister(e.kv))
	var notFound *cimerr.NotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return idx, err
	}
	return idx, nil
}

func (e *cimEnv) persistIndex(idx *search.Index) error {
	return search.NewPersister(e.kv).Persist(bgCtx, idx)
}
