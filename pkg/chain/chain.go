// Package chain implements append-only, cryptographically linked
// content chains (base §4.D): any typed envelope may be appended, each
// item's CID committing to its predecessor, sequence, and timestamp.
package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocid "github.com/ipfs/go-cid"

	"github.com/stackdump/cim/internal/dagcbor"
	"github.com/stackdump/cim/internal/logger"
	"github.com/stackdump/cim/pkg/cidkit"
	"github.com/stackdump/cim/pkg/cimerr"
	"github.com/stackdump/cim/pkg/codec"
	"github.com/stackdump/cim/pkg/envelope"
)

// Backend is the minimal blob put/get surface a chain needs to save
// and load itself; internal/blobbackend satisfies it.
type Backend interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

const (
	itemsBucket = "chain_items"
	metaBucket  = "chain_meta"
	headKey     = "__head"

	// chainSchema is the head marker's schema field (base §6); LoadHead
	// rejects a marker carrying any other value. Load starts from a head
	// CID and never reads the marker.
	chainSchema uint32 = 1
)

// Signer signs a chain head's raw CID bytes, e.g. internal/chainsig.Signer.
type Signer interface {
	SignHeadCID(headCIDBytes []byte) (string, error)
}

// Item is one position in a chain.
type Item struct {
	CID             gocid.Cid
	PreviousCID     *gocid.Cid // nil at sequence 0
	Sequence        uint64
	Timestamp       int64 // unix milliseconds
	ContentCodec    uint64
	ContentType     string
	ContentCanonical []byte
	Signature       string // set by Append when the chain has a Signer; Load restores the persisted value
}

// record is the shape hashed to produce Item.CID (always with Signature
// empty, so a signature never enters the CID) and the shape persisted
// per item.
type record struct {
	PreviousCID string `cbor:"previous_cid"`
	Sequence    uint64 `cbor:"sequence"`
	Timestamp   int64  `cbor:"timestamp"`
	ContentCodec uint64 `cbor:"content_codec"`
	ContentType string `cbor:"content_type"`
	Content     []byte `cbor:"content"`
	Signature   string `cbor:"signature,omitempty"`
}

// headMarker is the small record stored under metaBucket/headKey.
type headMarker struct {
	HeadCID string `cbor:"head_cid"`
	Length  uint64 `cbor:"length"`
	Schema  uint32 `cbor:"schema"`
}

// Chain is a single writer-serialized append-only sequence.
type Chain struct {
	mu     sync.Mutex
	items  []Item
	byCID  map[string]int
	signer Signer
	log    logger.Logger
}

// New returns an empty chain. signer may be nil.
func New(signer Signer) *Chain {
	return &Chain{byCID: make(map[string]int), signer: signer, log: logger.NopLogger{}}
}

// SetLogger overrides the default NopLogger so sequence and linkage
// validation failures and saves are reported through the caller's
// logging pipeline. Append logs nothing.
func (c *Chain) SetLogger(l logger.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = l
}

// Append computes the next item's CID over (previous_cid, sequence,
// timestamp, canonical_bytes(content)) and adds it to the chain.
func (c *Chain) Append(content envelope.Envelope) (Item, error) {
	canonical, err := content.CanonicalBytes()
	if err != nil {
		return Item{}, fmt.Errorf("chain: canonicalize content: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	seq := uint64(len(c.items))
	var prevStr string
	var prevPtr *gocid.Cid
	if seq > 0 {
		prev := c.items[seq-1].CID
		prevPtr = &prev
		prevStr = prev.String()
	}

	ts := time.Now().UnixMilli()
	rec := record{
		PreviousCID:  prevStr,
		Sequence:     seq,
		Timestamp:    ts,
		ContentCodec: content.CodecCode(),
		ContentType:  string(content.ContentType()),
		Content:      canonical,
	}
	recBytes, err := dagcbor.Marshal(rec)
	if err != nil {
		return Item{}, fmt.Errorf("chain: encode item record: %w", err)
	}
	cid, err := cidkit.Build(codec.CodeDagCBOR, cidkit.SHA256, recBytes)
	if err != nil {
		return Item{}, fmt.Errorf("chain: build cid: %w", err)
	}

	item := Item{
		CID:              cid,
		PreviousCID:      prevPtr,
		Sequence:         seq,
		Timestamp:        ts,
		ContentCodec:     rec.ContentCodec,
		ContentType:      rec.ContentType,
		ContentCanonical: canonical,
	}
	if c.signer != nil {
		sig, err := c.signer.SignHeadCID(cid.Bytes())
		if err != nil {
			return Item{}, fmt.Errorf("chain: sign head: %w", err)
		}
		item.Signature = sig
	}

	c.items = append(c.items, item)
	c.byCID[cid.String()] = int(seq)
	return item, nil
}

// Validate walks the full sequence checking linkage, sequence
// numbering, and recomputed CIDs, failing at the first violation.
func (c *Chain) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked()
}

func (c *Chain) validateLocked() error {
	var prevStr string
	for i, item := range c.items {
		if item.Sequence != uint64(i) {
			err := &cimerr.ChainValidationError{Sequence: uint64(i), Expected: fmt.Sprint(i), Actual: fmt.Sprint(item.Sequence)}
			c.log.LogError("chain: validation failed", err)
			return err
		}
		gotPrev := ""
		if item.PreviousCID != nil {
			gotPrev = item.PreviousCID.String()
		}
		if gotPrev != prevStr {
			err := &cimerr.ChainValidationError{Sequence: uint64(i), Expected: prevStr, Actual: gotPrev}
			c.log.LogError("chain: validation failed", err)
			return err
		}
		rec := record{
			PreviousCID:  gotPrev,
			Sequence:     item.Sequence,
			Timestamp:    item.Timestamp,
			ContentCodec: item.ContentCodec,
			ContentType:  item.ContentType,
			Content:      item.ContentCanonical,
		}
		recBytes, err := dagcbor.Marshal(rec)
		if err != nil {
			return &cimerr.ChainValidationError{Sequence: uint64(i), Expected: item.CID.String(), Actual: "re-encode failed"}
		}
		recomputed, err := cidkit.Build(codec.CodeDagCBOR, cidkit.SHA256, recBytes)
		if err != nil || !recomputed.Equals(item.CID) {
			actual := "build failed"
			if err == nil {
				actual = recomputed.String()
			}
			return &cimerr.ChainValidationError{Sequence: uint64(i), Expected: item.CID.String(), Actual: actual}
		}
		prevStr = item.CID.String()
	}
	return nil
}

// Head returns the last item, or false on an empty chain.
func (c *Chain) Head() (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return Item{}, false
	}
	return c.items[len(c.items)-1], true
}

// Tail returns the first (genesis) item, or false on an empty chain.
func (c *Chain) Tail() (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return Item{}, false
	}
	return c.items[0], true
}

// FindByCID returns the item with the given CID.
func (c *Chain) FindByCID(cid gocid.Cid) (Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.byCID[cid.String()]
	if !ok {
		return Item{}, &cimerr.NotFoundError{Key: cid.String()}
	}
	return c.items[idx], nil
}

// ItemsSince returns the exclusive suffix of items after cid.
func (c *Chain) ItemsSince(cid gocid.Cid) ([]Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.byCID[cid.String()]
	if !ok {
		return nil, &cimerr.NotFoundError{Key: cid.String()}
	}
	out := make([]Item, len(c.items)-idx-1)
	copy(out, c.items[idx+1:])
	return out, nil
}

// Len reports the number of items.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Save encodes each item as a DAG-CBOR blob in insertion order, writes
// a head marker, and returns the head CID.
func (c *Chain) Save(ctx context.Context, backend Backend) (gocid.Cid, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return gocid.Undef, &cimerr.ChainLoadError{Detail: "cannot save an empty chain"}
	}
	for _, item := range c.items {
		prevStr := ""
		if item.PreviousCID != nil {
			prevStr = item.PreviousCID.String()
		}
		rec := record{
			PreviousCID:  prevStr,
			Sequence:     item.Sequence,
			Timestamp:    item.Timestamp,
			ContentCodec: item.ContentCodec,
			ContentType:  item.ContentType,
			Content:      item.ContentCanonical,
			Signature:    item.Signature,
		}
		recBytes, err := dagcbor.Marshal(rec)
		if err != nil {
			return gocid.Undef, fmt.Errorf("chain: encode item %d: %w", item.Sequence, err)
		}
		if err := backend.Put(ctx, itemsBucket, item.CID.String(), recBytes); err != nil {
			return gocid.Undef, fmt.Errorf("chain: save item %d: %w", item.Sequence, err)
		}
	}
	head := c.items[len(c.items)-1]
	markerBytes, err := dagcbor.Marshal(headMarker{HeadCID: head.CID.String(), Length: uint64(len(c.items)), Schema: chainSchema})
	if err != nil {
		return gocid.Undef, fmt.Errorf("chain: encode head marker: %w", err)
	}
	if err := backend.Put(ctx, metaBucket, headKey, markerBytes); err != nil {
		return gocid.Undef, fmt.Errorf("chain: save head marker: %w", err)
	}
	c.log.LogInfo(fmt.Sprintf("chain: saved %d items, head %s", len(c.items), head.CID.String()))
	return head.CID, nil
}

// Load walks backwards from headCID following previous_cid until
// empty, reverses, reconstructs the chain, and validates it.
func Load(ctx context.Context, backend Backend, signer Signer, headCID gocid.Cid) (*Chain, error) {
	var reversed []record
	cursor := headCID.String()
	for cursor != "" {
		raw, err := backend.Get(ctx, itemsBucket, cursor)
		if err != nil {
			return nil, &cimerr.ChainLoadError{HeadCID: headCID.String(), Detail: fmt.Sprintf("missing item %s: %v", cursor, err)}
		}
		var rec record
		if err := dagcbor.Unmarshal(raw, &rec); err != nil {
			return nil, &cimerr.ChainLoadError{HeadCID: headCID.String(), Detail: fmt.Sprintf("decode item %s: %v", cursor, err)}
		}
		reversed = append(reversed, rec)
		cursor = rec.PreviousCID
	}

	c := New(signer)
	c.items = make([]Item, len(reversed))
	c.byCID = make(map[string]int, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		rec := reversed[i]
		pos := len(reversed) - 1 - i
		hashed := rec
		hashed.Signature = ""
		recBytes, err := dagcbor.Marshal(hashed)
		if err != nil {
			return nil, &cimerr.ChainLoadError{HeadCID: headCID.String(), Detail: fmt.Sprintf("re-encode item at position %d: %v", pos, err)}
		}
		cid, err := cidkit.Build(codec.CodeDagCBOR, cidkit.SHA256, recBytes)
		if err != nil {
			return nil, &cimerr.ChainLoadError{HeadCID: headCID.String(), Detail: fmt.Sprintf("rebuild cid at position %d: %v", pos, err)}
		}
		var prevPtr *gocid.Cid
		if rec.PreviousCID != "" {
			prev, err := cidkit.ParseAny(rec.PreviousCID)
			if err != nil {
				return nil, &cimerr.ChainLoadError{HeadCID: headCID.String(), Detail: fmt.Sprintf("parse previous cid at position %d: %v", pos, err)}
			}
			prevPtr = &prev
		}
		c.items[pos] = Item{
			CID:              cid,
			PreviousCID:      prevPtr,
			Sequence:         rec.Sequence,
			Timestamp:        rec.Timestamp,
			ContentCodec:     rec.ContentCodec,
			ContentType:      rec.ContentType,
			ContentCanonical: rec.Content,
			Signature:        rec.Signature,
		}
		c.byCID[cid.String()] = pos
	}

	if err := c.validateLocked(); err != nil {
		return nil, &cimerr.ChainLoadError{HeadCID: headCID.String(), Detail: err.Error()}
	}
	return c, nil
}

// LoadHead reads the head marker Save wrote and loads the chain it
// points to, rejecting any marker whose schema this package doesn't
// recognize.
func LoadHead(ctx context.Context, backend Backend, signer Signer) (*Chain, error) {
	raw, err := backend.Get(ctx, metaBucket, headKey)
	if err != nil {
		return nil, &cimerr.ChainLoadError{Detail: fmt.Sprintf("read head marker: %v", err)}
	}
	var marker headMarker
	if err := dagcbor.Unmarshal(raw, &marker); err != nil {
		return nil, &cimerr.ChainLoadError{Detail: fmt.Sprintf("decode head marker: %v", err)}
	}
	if marker.Schema != chainSchema {
		return nil, &cimerr.ChainLoadError{Detail: fmt.Sprintf("unsupported head marker schema %d", marker.Schema)}
	}
	headCID, err := cidkit.ParseAny(marker.HeadCID)
	if err != nil {
		return nil, &cimerr.ChainLoadError{Detail: fmt.Sprintf("parse head cid: %v", err)}
	}
	c, err := Load(ctx, backend, signer, headCID)
	if err != nil {
		return nil, err
	}
	if c.Len() != int(marker.Length) {
		return nil, &cimerr.ChainLoadError{HeadCID: headCID.String(), Detail: fmt.Sprintf("length mismatch: marker says %d, loaded %d", marker.Length, c.Len())}
	}
	return c, nil
}
