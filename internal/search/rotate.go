package search

import (
	"context"
	"fmt"

	"github.com/stackdump/cim/internal/dagcbor"
)

// RotateKeys re-encrypts every persisted index snapshot from oldKey to
// newKey under algo. Snapshots already wrapped under newKey are
// detected by KeyIDHash and skipped, so a rotation interrupted midway
// can simply be re-run.
func RotateKeys(ctx context.Context, p *Persister, oldKey, newKey []byte, algo AEADAlgorithm) error {
	newKeyID := keyIDHash(newKey)
	for _, bucket := range []string{textIndexBucket, tagIndexBucket, typeIndexBucket, metadataCacheBucket} {
		if err := rotateBucket(ctx, p, bucket, oldKey, newKey, algo, newKeyID); err != nil {
			return fmt.Errorf("search: rotate %s: %w", bucket, err)
		}
	}
	return nil
}

func rotateBucket(ctx context.Context, p *Persister, bucket string, oldKey, newKey []byte, algo AEADAlgorithm, newKeyID string) error {
	raw, err := p.kv.Get(ctx, bucket, persistKey)
	if err != nil {
		return err
	}
	var pl payload
	if err := dagcbor.Unmarshal(raw, &pl); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if !pl.Encrypted {
		// Nothing to rotate; a plaintext snapshot has no key to replace.
		return nil
	}
	if pl.Envelope.KeyIDHash == newKeyID {
		// Already rotated in a prior, interrupted run.
		return nil
	}

	plaintext, err := Unwrap(pl.Envelope, oldKey)
	if err != nil {
		return err
	}
	env, err := Wrap(plaintext, newKey, algo, pl.Envelope.AAD)
	if err != nil {
		return err
	}
	encoded, err := dagcbor.Marshal(payload{Encrypted: true, Envelope: env})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return p.kv.Put(ctx, bucket, persistKey, encoded)
}
