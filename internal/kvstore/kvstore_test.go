package kvstore

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.bbolt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, "text_index_v1", "tok:hello", []byte("cid-bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "text_index_v1", "tok:hello")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "cid-bytes" {
		t.Errorf("expected %q, got %q", "cid-bytes", got)
	}
}

func TestGet_MissingBucketOrKeyIsNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.Get(ctx, "nope", "k"); err == nil {
		t.Error("expected NotFoundError for missing bucket")
	}
	if err := s.Put(ctx, "b", "k1", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Get(ctx, "b", "k2"); err == nil {
		t.Error("expected NotFoundError for missing key")
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, "b", "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, "b", "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "b", "k"); err == nil {
		t.Error("expected key gone after delete")
	}
}

func TestList_FiltersByPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, k := range []string{"tag:a", "tag:b", "type:c"} {
		if err := s.Put(ctx, "b", k, []byte("v")); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}
	keys, err := s.List(ctx, "b", "tag:")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 tag: keys, got %v", keys)
	}
}
