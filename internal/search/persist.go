package search

import (
	"context"
	"fmt"

	"github.com/stackdump/cim/internal/dagcbor"
	"github.com/stackdump/cim/internal/logger"
	"github.com/stackdump/cim/pkg/cimerr"
)

const (
	textIndexBucket     = "text_index_v1"
	tagIndexBucket      = "tag_index_v1"
	typeIndexBucket     = "type_index_v1"
	metadataCacheBucket = "metadata_cache_v1"
	persistKey          = "data"
)

// KVBackend is the key-value backend contract (base §6) a Persister
// writes index snapshots to; internal/kvstore.Store satisfies it.
type KVBackend interface {
	Put(ctx context.Context, bucket, key string, value []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// payload is the exact shape written to each bucket: either a plain
// DAG-CBOR-encoded snapshot, or one wrapped in an EncryptedEnvelope.
// Writing this wrapper unconditionally means Load never has to guess
// the format in effect when a given snapshot was persisted.
type payload struct {
	Encrypted bool              `cbor:"encrypted"`
	Envelope  EncryptedEnvelope `cbor:"envelope,omitempty"`
	Plain     []byte            `cbor:"plain,omitempty"`
}

// Persister saves and loads an Index against a KVBackend, optionally
// wrapping each snapshot in AEAD encryption.
type Persister struct {
	kv   KVBackend
	key  []byte
	algo AEADAlgorithm
	log  logger.Logger
}

// NewPersister returns a Persister with no encryption configured.
func NewPersister(kv KVBackend) *Persister { return &Persister{kv: kv, log: logger.NopLogger{}} }

// WithLogger overrides the default NopLogger so persistence and
// degraded-load events are reported through the caller's logging
// pipeline.
func (p *Persister) WithLogger(l logger.Logger) *Persister {
	p.log = l
	return p
}

// WithEncryption enables at-rest AEAD wrapping for subsequent Persist calls.
func (p *Persister) WithEncryption(key []byte, algo AEADAlgorithm) *Persister {
	p.key = key
	p.algo = algo
	return p
}

func (p *Persister) writeSnapshot(ctx context.Context, bucket string, snapshot any) error {
	plain, err := dagcbor.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("search: encode %s: %w", bucket, err)
	}
	var pl payload
	if p.key != nil {
		env, err := Wrap(plain, p.key, p.algo, []byte(bucket))
		if err != nil {
			return fmt.Errorf("search: encrypt %s: %w", bucket, err)
		}
		pl = payload{Encrypted: true, Envelope: env}
	} else {
		pl = payload{Plain: plain}
	}
	encoded, err := dagcbor.Marshal(pl)
	if err != nil {
		return fmt.Errorf("search: encode payload for %s: %w", bucket, err)
	}
	return p.kv.Put(ctx, bucket, persistKey, encoded)
}

func (p *Persister) readSnapshot(ctx context.Context, bucket string, out any) error {
	raw, err := p.kv.Get(ctx, bucket, persistKey)
	if err != nil {
		return err
	}
	var pl payload
	if err := dagcbor.Unmarshal(raw, &pl); err != nil {
		return fmt.Errorf("search: decode payload for %s: %w", bucket, err)
	}
	plain := pl.Plain
	if pl.Encrypted {
		if p.key == nil {
			return &cimerr.KeyRotationError{Detail: fmt.Sprintf("%s is encrypted but no key is configured", bucket)}
		}
		decrypted, err := Unwrap(pl.Envelope, p.key)
		if err != nil {
			return err
		}
		plain = decrypted
	}
	return dagcbor.Unmarshal(plain, out)
}

// Persist serializes every index to DAG-CBOR and writes one snapshot
// per dedicated bucket.
func (p *Persister) Persist(ctx context.Context, idx *Index) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := p.writeSnapshot(ctx, textIndexBucket, toStringSlices(idx.inverted)); err != nil {
		return err
	}
	if err := p.writeSnapshot(ctx, tagIndexBucket, toStringSlices(idx.tags)); err != nil {
		return err
	}
	if err := p.writeSnapshot(ctx, typeIndexBucket, toStringSlices(idx.types)); err != nil {
		return err
	}
	if err := p.writeSnapshot(ctx, metadataCacheBucket, idx.meta); err != nil {
		return err
	}
	p.log.LogInfo(fmt.Sprintf("search: persisted index (%d cached entries)", len(idx.meta)))
	return nil
}

// Load rebuilds an Index from its persisted snapshots. A missing or
// corrupted snapshot degrades to an empty index for that component
// rather than propagating a decode failure into a half-built index;
// callers should log the returned error themselves.
func Load(ctx context.Context, p *Persister) (*Index, error) {
	idx := New()

	var inverted, tags, types map[string][]string
	var meta map[string]Metadata

	var firstErr error
	if err := p.readSnapshot(ctx, textIndexBucket, &inverted); err != nil {
		p.log.LogError("search: degrading text index to empty", err)
		firstErr = firstNonNil(firstErr, err)
	}
	if err := p.readSnapshot(ctx, tagIndexBucket, &tags); err != nil {
		p.log.LogError("search: degrading tag index to empty", err)
		firstErr = firstNonNil(firstErr, err)
	}
	if err := p.readSnapshot(ctx, typeIndexBucket, &types); err != nil {
		p.log.LogError("search: degrading type index to empty", err)
		firstErr = firstNonNil(firstErr, err)
	}
	if err := p.readSnapshot(ctx, metadataCacheBucket, &meta); err != nil {
		p.log.LogError("search: degrading metadata cache to empty", err)
		firstErr = firstNonNil(firstErr, err)
	}

	idx.inverted = fromStringSlices(inverted)
	idx.tags = fromStringSlices(tags)
	idx.types = fromStringSlices(types)
	if meta != nil {
		idx.meta = meta
	}
	return idx, firstErr
}

func firstNonNil(a, b error) error {
	if a != nil {
		return a
	}
	return b
}

func toStringSlices(m map[string]map[string]bool) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, set := range m {
		cids := make([]string, 0, len(set))
		for cid := range set {
			cids = append(cids, cid)
		}
		out[k] = cids
	}
	return out
}

func fromStringSlices(m map[string][]string) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(m))
	for k, cids := range m {
		set := make(map[string]bool, len(cids))
		for _, cid := range cids {
			set[cid] = true
		}
		out[k] = set
	}
	return out
}
