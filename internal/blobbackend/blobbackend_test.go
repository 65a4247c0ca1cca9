package blobbackend

import (
	"context"
	"testing"
)

func TestPutGet_RoundTrip(t *testing.T) {
	b := NewFSBackend(t.TempDir())
	ctx := context.Background()

	if err := b.Put(ctx, "objects", "abc123", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := b.Get(ctx, "objects", "abc123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
}

func TestGet_MissingKeyIsNotFound(t *testing.T) {
	b := NewFSBackend(t.TempDir())
	if _, err := b.Get(context.Background(), "objects", "nope"); err == nil {
		t.Error("expected NotFoundError for a missing key")
	}
}

func TestPut_RejectsPathTraversal(t *testing.T) {
	b := NewFSBackend(t.TempDir())
	ctx := context.Background()
	cases := []string{"../escape", "a/b", "..", "."}
	for _, key := range cases {
		if err := b.Put(ctx, "objects", key, []byte("x")); err == nil {
			t.Errorf("expected Put to reject key %q", key)
		}
	}
}

func TestExists(t *testing.T) {
	b := NewFSBackend(t.TempDir())
	ctx := context.Background()
	if ok, _ := b.Exists(ctx, "objects", "k"); ok {
		t.Error("expected Exists false before Put")
	}
	if err := b.Put(ctx, "objects", "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := b.Exists(ctx, "objects", "k"); err != nil || !ok {
		t.Errorf("expected Exists true after Put, got ok=%v err=%v", ok, err)
	}
}

func TestDelete(t *testing.T) {
	b := NewFSBackend(t.TempDir())
	ctx := context.Background()
	if err := b.Put(ctx, "objects", "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Delete(ctx, "objects", "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := b.Exists(ctx, "objects", "k"); ok {
		t.Error("expected key gone after Delete")
	}
	if err := b.Delete(ctx, "objects", "k"); err != nil {
		t.Errorf("expected deleting an absent key to be a no-op, got %v", err)
	}
}

func TestList_FiltersByPrefixAndSorts(t *testing.T) {
	b := NewFSBackend(t.TempDir())
	ctx := context.Background()
	for _, k := range []string{"bafy3", "bafy1", "bafy2", "other"} {
		if err := b.Put(ctx, "objects", k, []byte("x")); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}
	keys, err := b.List(ctx, "objects", "bafy")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"bafy1", "bafy2", "bafy3"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("expected %v, got %v", want, keys)
			break
		}
	}
}

func TestInfo_ReportsSize(t *testing.T) {
	b := NewFSBackend(t.TempDir())
	ctx := context.Background()
	if err := b.Put(ctx, "objects", "k", []byte("hello world")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	info, err := b.Info(ctx, "objects", "k")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Size != int64(len("hello world")) {
		t.Errorf("expected size %d, got %d", len("hello world"), info.Size)
	}
}

func TestList_EmptyBucketIsNotAnError(t *testing.T) {
	b := NewFSBackend(t.TempDir())
	keys, err := b.List(context.Background(), "never-created", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}
