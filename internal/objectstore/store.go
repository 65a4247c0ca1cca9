// Package objectstore implements the CID-keyed object store layer
// (base §4.E): compression, an LRU cache, dedup, domain partitioning,
// and bounded-parallelism batch operations over a blob backend.
package objectstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	gocid "github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/stackdump/cim/internal/blobbackend"
	"github.com/stackdump/cim/internal/logger"
	"github.com/stackdump/cim/pkg/cidkit"
	"github.com/stackdump/cim/pkg/cimerr"
	"github.com/stackdump/cim/pkg/codec"
	"github.com/stackdump/cim/pkg/envelope"
)

const (
	defaultCompressionThresholdBytes = 1024
	defaultCacheEntries              = 1000
	defaultBatchConcurrency          = 10
	defaultBucket                    = "objects"

	// blobFormatVersion is the persisted blob header's format_version
	// (base §6); readers must reject any other value.
	blobFormatVersion uint8 = 1

	flagCompressed byte = 1 << 0
	flagEncrypted  byte = 1 << 1

	compressionNone = 0
	compressionZstd = 1

	encryptionNoneCode = 0
	encryptionAESGCM   = 1
)

const keyIDHashLen = 32

// Backend is the object-store backend contract (base §6).
type Backend interface {
	CreateBucket(ctx context.Context, name string) error
	Put(ctx context.Context, bucket, key string, data []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Info(ctx context.Context, bucket, key string) (blobbackend.Info, error)
}

// ObjectInfo is returned by Info: size, creation time, and whether the
// stored form was compressed.
type ObjectInfo struct {
	Size       int64
	Created    time.Time
	Compressed bool
}

// blobHeader precedes every stored payload and records everything
// needed to reverse compression/encryption without touching the CID,
// which is always computed over plaintext canonical bytes. Its wire
// form is the byte-exact, big-endian layout of base §6:
//
//	[1]  format_version
//	[1]  flags: bit0=compressed, bit1=encrypted
//	[8]  plaintext_size (uint64)
//	[1]  compression_algo (0=none, 1=zstd)
//	[4]  compressed_size (uint32, 0 if not compressed)
//	[1]  encryption_algo (0=none, 1=AES-256-GCM)
//	[1]  nonce_len
//	[N]  nonce
//	[32] key_id_hash (zeroed if not encrypted)
//	[2]  content_type_tag (uint16 codec-code suffix)
//	[..] payload
type blobHeader struct {
	PlaintextSize  int64
	Compressed     bool
	CompressedSize uint32
	Encrypted      bool
	Nonce          []byte
	KeyIDHash      [keyIDHashLen]byte
	ContentTypeTag uint16
}

// keyIDHash hashes a key identifier into the header's fixed-width
// key_id_hash field; an empty keyID (unencrypted blobs) hashes to the
// zero value expected by readers.
func keyIDHash(keyID string) [keyIDHashLen]byte {
	var out [keyIDHashLen]byte
	if keyID == "" {
		return out
	}
	return sha256.Sum256([]byte(keyID))
}

// marshalBlob encodes header and payload into the persisted blob wire
// form described above.
func marshalBlob(h blobHeader, payload []byte) []byte {
	var flags byte
	if h.Compressed {
		flags |= flagCompressed
	}
	if h.Encrypted {
		flags |= flagEncrypted
	}
	compressionAlgo := byte(compressionNone)
	if h.Compressed {
		compressionAlgo = compressionZstd
	}
	encryptionAlgo := byte(encryptionNoneCode)
	if h.Encrypted {
		encryptionAlgo = encryptionAESGCM
	}

	buf := make([]byte, 0, 1+1+8+1+4+1+1+len(h.Nonce)+keyIDHashLen+2+len(payload))
	buf = append(buf, blobFormatVersion, flags)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], uint64(h.PlaintextSize))
	buf = append(buf, u64[:]...)
	buf = append(buf, compressionAlgo)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], h.CompressedSize)
	buf = append(buf, u32[:]...)
	buf = append(buf, encryptionAlgo)
	buf = append(buf, byte(len(h.Nonce)))
	buf = append(buf, h.Nonce...)
	buf = append(buf, h.KeyIDHash[:]...)
	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], h.ContentTypeTag)
	buf = append(buf, u16[:]...)
	buf = append(buf, payload...)
	return buf
}

// unmarshalBlob decodes a persisted blob, rejecting any format_version
// other than the one this package writes (base §6: "Readers MUST
// reject unknown format_version").
func unmarshalBlob(raw []byte) (blobHeader, []byte, error) {
	const minLen = 1 + 1 + 8 + 1 + 4 + 1 + 1 + keyIDHashLen + 2
	if len(raw) < 1 {
		return blobHeader{}, nil, &cimerr.StorageError{Kind: cimerr.Fatal, Detail: "empty blob"}
	}
	version := raw[0]
	if version != blobFormatVersion {
		return blobHeader{}, nil, &cimerr.FormatMismatchError{Format: fmt.Sprintf("blob format_version %d", version)}
	}
	if len(raw) < minLen {
		return blobHeader{}, nil, &cimerr.StorageError{Kind: cimerr.Fatal, Detail: "truncated blob header"}
	}

	off := 1
	flags := raw[off]
	off++
	plaintextSize := binary.BigEndian.Uint64(raw[off : off+8])
	off += 8
	compressionAlgo := raw[off]
	off++
	compressedSize := binary.BigEndian.Uint32(raw[off : off+4])
	off += 4
	encryptionAlgo := raw[off]
	off++
	nonceLen := int(raw[off])
	off++
	if len(raw) < off+nonceLen+keyIDHashLen+2 {
		return blobHeader{}, nil, &cimerr.StorageError{Kind: cimerr.Fatal, Detail: "truncated blob header"}
	}
	nonce := append([]byte(nil), raw[off:off+nonceLen]...)
	off += nonceLen
	var keyHash [keyIDHashLen]byte
	copy(keyHash[:], raw[off:off+keyIDHashLen])
	off += keyIDHashLen
	contentTypeTag := binary.BigEndian.Uint16(raw[off : off+2])
	off += 2

	h := blobHeader{
		PlaintextSize:  int64(plaintextSize),
		Compressed:     flags&flagCompressed != 0,
		CompressedSize: compressedSize,
		Encrypted:      flags&flagEncrypted != 0,
		Nonce:          nonce,
		KeyIDHash:      keyHash,
		ContentTypeTag: contentTypeTag,
	}
	if h.Compressed && compressionAlgo != compressionZstd {
		return blobHeader{}, nil, &cimerr.StorageError{Kind: cimerr.Fatal, Detail: fmt.Sprintf("unsupported compression_algo %d", compressionAlgo)}
	}
	if h.Encrypted && encryptionAlgo != encryptionAESGCM {
		return blobHeader{}, nil, &cimerr.StorageError{Kind: cimerr.Fatal, Detail: fmt.Sprintf("unsupported encryption_algo %d", encryptionAlgo)}
	}
	return h, raw[off:], nil
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithCompressionThreshold overrides the default 1 KiB threshold at or
// above which payloads are zstd-compressed.
func WithCompressionThreshold(n int) Option {
	return func(s *Store) { s.compressionThreshold = n }
}

// WithCacheSize overrides the default 1,000-entry LRU cache capacity.
func WithCacheSize(n int) Option {
	return func(s *Store) {
		cache, err := lru.New[string, []byte](n)
		if err == nil {
			s.cache = cache
		}
	}
}

// WithBatchConcurrency overrides the default bound of 10 concurrent
// batch operations.
func WithBatchConcurrency(n int64) Option {
	return func(s *Store) { s.batchConcurrency = n }
}

// WithEncryptionKey enables AES-256-GCM-at-rest for every subsequent
// write. key must be 32 bytes. keyID is a short identifier recorded
// in each blob's header for rotation detection.
func WithEncryptionKey(key []byte, keyID string) Option {
	return func(s *Store) {
		s.encKey = key
		s.encKeyID = keyID
	}
}

// WithLogger overrides the default NopLogger so writes, dedup hits,
// and integrity failures are reported through the caller's logging
// pipeline.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Store is the object store described by base §4.E.
type Store struct {
	backend              Backend
	partitioner          *Partitioner
	cache                *lru.Cache[string, []byte]
	compressionThreshold int
	batchConcurrency     int64
	encKey               []byte
	encKeyID             string
	log                  logger.Logger

	bucketsMu sync.Mutex
	buckets   map[string]bool
}

// New constructs a Store with base §4.E's defaults, applying opts.
func New(backend Backend, opts ...Option) *Store {
	cache, _ := lru.New[string, []byte](defaultCacheEntries)
	s := &Store{
		backend:              backend,
		partitioner:          NewPartitioner(),
		cache:                cache,
		compressionThreshold: defaultCompressionThresholdBytes,
		batchConcurrency:     defaultBatchConcurrency,
		buckets:              map[string]bool{defaultBucket: true},
		log:                  logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Partitioner exposes the partitioner so callers can call UpdateStrategy.
func (s *Store) Partitioner() *Partitioner { return s.partitioner }

func (s *Store) trackBucket(ctx context.Context, bucket string) error {
	s.bucketsMu.Lock()
	known := s.buckets[bucket]
	if !known {
		s.buckets[bucket] = true
	}
	s.bucketsMu.Unlock()
	if known {
		return nil
	}
	return s.backend.CreateBucket(ctx, bucket)
}

func (s *Store) knownBuckets() []string {
	s.bucketsMu.Lock()
	defer s.bucketsMu.Unlock()
	out := make([]string, 0, len(s.buckets))
	for b := range s.buckets {
		out = append(out, b)
	}
	return out
}

var zstdEncoder, _ = zstd.NewWriter(nil)
var zstdDecoder, _ = zstd.NewReader(nil)

// putToBucket runs the base §4.E write pipeline: CID, cache check,
// dedup check, optional compression, optional encryption, store.
func (s *Store) putToBucket(ctx context.Context, bucket string, codecCode uint64, plaintext []byte) (gocid.Cid, bool, error) {
	cid, err := cidkit.Build(codecCode, cidkit.SHA256, plaintext)
	if err != nil {
		return gocid.Undef, false, fmt.Errorf("objectstore: build cid: %w", err)
	}
	cidStr, err := cidkit.StringForm(cid)
	if err != nil {
		return gocid.Undef, false, fmt.Errorf("objectstore: cid string form: %w", err)
	}

	if _, ok := s.cache.Get(cidStr); ok {
		return cid, true, nil
	}

	if err := s.trackBucket(ctx, bucket); err != nil {
		return gocid.Undef, false, &cimerr.StorageError{Kind: cimerr.Unavailable, Detail: err.Error()}
	}

	exists, err := s.backend.Exists(ctx, bucket, cidStr)
	if err != nil {
		return gocid.Undef, false, err
	}
	if exists {
		s.cache.Add(cidStr, plaintext)
		return cid, true, nil
	}

	header := blobHeader{PlaintextSize: int64(len(plaintext)), ContentTypeTag: uint16(codecCode & 0xFFFF)}
	payload := plaintext
	if len(payload) >= s.compressionThreshold {
		payload = zstdEncoder.EncodeAll(payload, nil)
		header.Compressed = true
		header.CompressedSize = uint32(len(payload))
	}
	if s.encKey != nil {
		encrypted, nonce, err := s.encrypt(payload)
		if err != nil {
			return gocid.Undef, false, fmt.Errorf("objectstore: encrypt: %w", err)
		}
		payload = encrypted
		header.Encrypted = true
		header.Nonce = nonce
		header.KeyIDHash = keyIDHash(s.encKeyID)
	}

	blob := marshalBlob(header, payload)
	if err := s.backend.Put(ctx, bucket, cidStr, blob); err != nil {
		return gocid.Undef, false, err
	}
	s.cache.Add(cidStr, plaintext)
	s.log.LogInfo(fmt.Sprintf("objectstore: stored %s in bucket %s (%d bytes)", cidStr, bucket, len(plaintext)))
	return cid, false, nil
}

// getFromBucket runs the base §4.E read pipeline: cache, fetch,
// decrypt, decompress, recompute and verify the CID.
func (s *Store) getFromBucket(ctx context.Context, bucket string, cid gocid.Cid) ([]byte, error) {
	cidStr, err := cidkit.StringForm(cid)
	if err != nil {
		return nil, fmt.Errorf("objectstore: cid string form: %w", err)
	}
	if cached, ok := s.cache.Get(cidStr); ok {
		return cached, nil
	}

	raw, err := s.backend.Get(ctx, bucket, cidStr)
	if err != nil {
		return nil, err
	}
	header, payload, err := unmarshalBlob(raw)
	if err != nil {
		return nil, err
	}

	if header.Encrypted {
		plain, err := s.decrypt(payload, header.Nonce)
		if err != nil {
			return nil, &cimerr.DecryptionError{KeyIDHash: fmt.Sprintf("%x", header.KeyIDHash)}
		}
		payload = plain
	}
	if header.Compressed {
		decompressed, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("objectstore: decompress: %w", err)
		}
		payload = decompressed
	}

	ok, err := cidkit.Verify(cid, payload)
	if err != nil {
		return nil, fmt.Errorf("objectstore: recompute cid: %w", err)
	}
	if !ok {
		recomputed, _ := cidkit.Build(cid.Type(), cidkit.SHA256, payload)
		recomputedStr, _ := cidkit.StringForm(recomputed)
		mismatchErr := &cimerr.CidMismatchError{Expected: cidStr, Actual: recomputedStr}
		s.log.LogError("objectstore: integrity check failed", mismatchErr)
		return nil, mismatchErr
	}

	s.cache.Add(cidStr, payload)
	return payload, nil
}

func (s *Store) encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func (s *Store) decrypt(ciphertext, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// PutRaw stores data under the raw codec and returns its CID.
func (s *Store) PutRaw(ctx context.Context, data []byte) (gocid.Cid, error) {
	cid, _, err := s.putToBucket(ctx, defaultBucket, codec.CodeRaw, data)
	return cid, err
}

// GetRaw retrieves the plaintext bytes stored under cid.
func (s *Store) GetRaw(ctx context.Context, cid gocid.Cid) ([]byte, error) {
	return s.getFromBucket(ctx, defaultBucket, cid)
}

// PutTyped stores a typed envelope's canonical bytes under the
// envelope's own codec code.
func (s *Store) PutTyped(ctx context.Context, env envelope.Envelope) (gocid.Cid, error) {
	canonical, err := env.CanonicalBytes()
	if err != nil {
		return gocid.Undef, fmt.Errorf("objectstore: canonicalize: %w", err)
	}
	cid, _, err := s.putToBucket(ctx, defaultBucket, env.CodecCode(), canonical)
	return cid, err
}

// GetTyped retrieves canonical bytes for cid and verifies that cid's
// own embedded codec (recorded at Put time and recomputed on every
// read via cidkit.Verify) matches the codec expectedType is always
// stored under, rather than trusting a separate stored tag.
func (s *Store) GetTyped(ctx context.Context, cid gocid.Cid, expectedType envelope.ContentType) ([]byte, error) {
	if wantCode, ok := envelope.CodecCodeForType(expectedType); ok && cid.Type() != wantCode {
		return nil, &cimerr.FormatMismatchError{Format: string(expectedType)}
	}
	return s.getFromBucket(ctx, defaultBucket, cid)
}

// PutWithDomain routes data to a partition selected from hints and
// stores it there, returning the CID and the chosen domain.
func (s *Store) PutWithDomain(ctx context.Context, data []byte, hints Hints) (gocid.Cid, Domain, error) {
	domain := s.partitioner.Select(hints)
	cid, _, err := s.putToBucket(ctx, BucketName(domain), codec.CodeRaw, data)
	return cid, domain, err
}

// GetFromDomain retrieves bytes stored in a specific domain's bucket.
func (s *Store) GetFromDomain(ctx context.Context, cid gocid.Cid, domain Domain) ([]byte, error) {
	return s.getFromBucket(ctx, BucketName(domain), cid)
}

// ListDomain lists the CID strings stored in domain's bucket.
func (s *Store) ListDomain(ctx context.Context, domain Domain) ([]string, error) {
	return s.backend.List(ctx, BucketName(domain), "")
}

// ListByContentType scans every bucket this Store has written to and
// returns the CID strings whose own codec (the CID's embedded type, not
// a separately stored tag) matches contentType. This is a
// correctness-first, not performance-first, implementation: it parses
// one CID per candidate key.
func (s *Store) ListByContentType(ctx context.Context, contentType envelope.ContentType, prefix string) ([]string, error) {
	wantCode, ok := envelope.CodecCodeForType(contentType)
	if !ok {
		return nil, &cimerr.InvalidContentError{Detail: "content type has no fixed codec code"}
	}
	var matches []string
	for _, bucket := range s.knownBuckets() {
		keys, err := s.backend.List(ctx, bucket, prefix)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			cid, err := cidkit.ParseAny(key)
			if err != nil {
				continue
			}
			if cid.Type() == wantCode {
				matches = append(matches, key)
			}
		}
	}
	return matches, nil
}

// Info reports size, creation time, and compression state for cid,
// searching every bucket this Store knows about.
func (s *Store) Info(ctx context.Context, cid gocid.Cid) (ObjectInfo, error) {
	cidStr, err := cidkit.StringForm(cid)
	if err != nil {
		return ObjectInfo{}, err
	}
	for _, bucket := range s.knownBuckets() {
		backendInfo, err := s.backend.Info(ctx, bucket, cidStr)
		if err != nil {
			continue
		}
		raw, err := s.backend.Get(ctx, bucket, cidStr)
		compressed := false
		if err == nil {
			if header, _, err := unmarshalBlob(raw); err == nil {
				compressed = header.Compressed
			}
		}
		return ObjectInfo{Size: backendInfo.Size, Created: backendInfo.Created, Compressed: compressed}, nil
	}
	return ObjectInfo{}, &cimerr.NotFoundError{Key: cidStr}
}

// Delete best-effort removes cid from every bucket this Store knows about.
func (s *Store) Delete(ctx context.Context, cid gocid.Cid) error {
	cidStr, err := cidkit.StringForm(cid)
	if err != nil {
		return err
	}
	s.cache.Remove(cidStr)
	for _, bucket := range s.knownBuckets() {
		_ = s.backend.Delete(ctx, bucket, cidStr)
	}
	return nil
}

// PutBatch stores items with bounded parallelism (WithBatchConcurrency,
// default 10), preserving input order and partial success: one item's
// failure does not fail the others.
func (s *Store) PutBatch(ctx context.Context, items [][]byte) ([]gocid.Cid, []error) {
	results := make([]gocid.Cid, len(items))
	errs := make([]error, len(items))
	sem := semaphore.NewWeighted(s.batchConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				errs[i] = &cimerr.CancelledError{Op: "put_batch"}
				return nil
			}
			defer sem.Release(1)
			cid, err := s.PutRaw(gctx, item)
			results[i] = cid
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

// GetBatch retrieves cids with bounded parallelism, preserving input
// order; a missing entry yields a nil slot with no error fanned out to
// the caller's other results.
func (s *Store) GetBatch(ctx context.Context, cids []gocid.Cid) ([][]byte, []error) {
	results := make([][]byte, len(cids))
	errs := make([]error, len(cids))
	sem := semaphore.NewWeighted(s.batchConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i, cid := range cids {
		i, cid := i, cid
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				errs[i] = &cimerr.CancelledError{Op: "get_batch"}
				return nil
			}
			defer sem.Release(1)
			data, err := s.GetRaw(gctx, cid)
			results[i] = data
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}
