package chain

import (
	"context"
	"sync"
	"testing"

	"github.com/stackdump/cim/internal/dagcbor"
	"github.com/stackdump/cim/pkg/envelope"
)

// memBackend is an in-memory Backend for tests.
type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemBackend() *memBackend { return &memBackend{data: make(map[string][]byte)} }

func (m *memBackend) Put(_ context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[bucket+"/"+key] = append([]byte(nil), data...)
	return nil
}

func (m *memBackend) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[bucket+"/"+key]
	if !ok {
		return nil, errNotFound{bucket, key}
	}
	return v, nil
}

type errNotFound struct{ bucket, key string }

func (e errNotFound) Error() string { return "not found: " + e.bucket + "/" + e.key }

func textEvent(eventType string) envelope.Event {
	return envelope.Event{EventType: eventType, AggregateID: "agg-1", Data: map[string]any{"n": 1}}
}

func TestAppend_GenesisHasEmptyPrevious(t *testing.T) {
	c := New(nil)
	item, err := c.Append(textEvent("Created"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if item.PreviousCID != nil {
		t.Errorf("expected genesis item to have nil PreviousCID, got %v", item.PreviousCID)
	}
	if item.Sequence != 0 {
		t.Errorf("expected sequence 0, got %d", item.Sequence)
	}
}

func TestAppend_LinksToPriorCID(t *testing.T) {
	c := New(nil)
	first, err := c.Append(textEvent("Created"))
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	second, err := c.Append(textEvent("Updated"))
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second.PreviousCID == nil || !second.PreviousCID.Equals(first.CID) {
		t.Errorf("expected second item's PreviousCID to equal first item's CID")
	}
}

func TestValidate_PassesForWellFormedChain(t *testing.T) {
	c := New(nil)
	for i := 0; i < 5; i++ {
		if _, err := c.Append(textEvent("E")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := c.Validate(); err != nil {
		t.Errorf("expected valid chain, got %v", err)
	}
}

func TestValidate_DetectsTamperedCID(t *testing.T) {
	c := New(nil)
	if _, err := c.Append(textEvent("A")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := c.Append(textEvent("B")); err != nil {
		t.Fatalf("append: %v", err)
	}
	c.items[1].ContentType = "tampered"
	if err := c.Validate(); err == nil {
		t.Error("expected Validate to detect the tampered item")
	}
}

func TestFindByCIDAndItemsSince(t *testing.T) {
	c := New(nil)
	a, _ := c.Append(textEvent("A"))
	_, _ = c.Append(textEvent("B"))
	_, _ = c.Append(textEvent("C"))

	found, err := c.FindByCID(a.CID)
	if err != nil {
		t.Fatalf("FindByCID: %v", err)
	}
	if found.Sequence != 0 {
		t.Errorf("expected to find genesis item, got sequence %d", found.Sequence)
	}

	since, err := c.ItemsSince(a.CID)
	if err != nil {
		t.Fatalf("ItemsSince: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("expected 2 items after genesis, got %d", len(since))
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()

	c := New(nil)
	for i := 0; i < 3; i++ {
		if _, err := c.Append(textEvent("E")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	headCID, err := c.Save(ctx, backend)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(ctx, backend, nil, headCID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != 3 {
		t.Errorf("expected 3 loaded items, got %d", loaded.Len())
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("expected loaded chain to validate, got %v", err)
	}
}

func TestSaveAndLoadHead_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()

	c := New(nil)
	for i := 0; i < 3; i++ {
		if _, err := c.Append(textEvent("E")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if _, err := c.Save(ctx, backend); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadHead(ctx, backend, nil)
	if err != nil {
		t.Fatalf("LoadHead: %v", err)
	}
	if loaded.Len() != 3 {
		t.Errorf("expected 3 loaded items, got %d", loaded.Len())
	}
}

func TestLoadHead_RejectsUnknownSchema(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()

	c := New(nil)
	if _, err := c.Append(textEvent("A")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := c.Save(ctx, backend); err != nil {
		t.Fatalf("Save: %v", err)
	}

	marker, err := backend.Get(ctx, metaBucket, headKey)
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	var m headMarker
	if err := dagcbor.Unmarshal(marker, &m); err != nil {
		t.Fatalf("decode marker: %v", err)
	}
	m.Schema = 99
	tampered, err := dagcbor.Marshal(m)
	if err != nil {
		t.Fatalf("re-encode marker: %v", err)
	}
	if err := backend.Put(ctx, metaBucket, headKey, tampered); err != nil {
		t.Fatalf("put marker: %v", err)
	}

	if _, err := LoadHead(ctx, backend, nil); err == nil {
		t.Error("expected LoadHead to reject an unrecognized schema")
	}
}

func TestLoad_MissingItemFails(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	c := New(nil)
	head, err := c.Append(textEvent("A"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	// Never saved: backend has nothing.
	if _, err := Load(ctx, backend, nil, head.CID); err == nil {
		t.Error("expected Load to fail against an empty backend")
	}
}
