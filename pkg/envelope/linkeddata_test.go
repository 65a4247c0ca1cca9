package envelope

import "testing"

func TestLinkedData_CanonicalBytesStableUnderKeyReordering(t *testing.T) {
	a, err := NewLinkedData([]byte(`{
		"@context": {"name": "http://schema.org/name"},
		"@id": "http://example.org/alice",
		"name": "Alice"
	}`))
	if err != nil {
		t.Fatalf("NewLinkedData a: %v", err)
	}
	b, err := NewLinkedData([]byte(`{
		"name": "Alice",
		"@id": "http://example.org/alice",
		"@context": {"name": "http://schema.org/name"}
	}`))
	if err != nil {
		t.Fatalf("NewLinkedData b: %v", err)
	}

	ba, err := a.CanonicalBytes()
	if err != nil {
		t.Fatalf("a.CanonicalBytes: %v", err)
	}
	bb, err := b.CanonicalBytes()
	if err != nil {
		t.Fatalf("b.CanonicalBytes: %v", err)
	}
	if string(ba) != string(bb) {
		t.Errorf("expected identical N-Quads regardless of key order, got %q vs %q", ba, bb)
	}
	if len(ba) == 0 {
		t.Error("expected non-empty N-Quads output")
	}
}

func TestLinkedData_ContentTypeAndCodec(t *testing.T) {
	l := LinkedData{Doc: map[string]any{"@id": "http://example.org/x"}}
	if l.ContentType() != TypeLinkedData {
		t.Errorf("expected TypeLinkedData, got %s", l.ContentType())
	}
	if l.CodecCode() != linkedDataCodecCode {
		t.Errorf("expected fixed linked-data codec code, got %#x", l.CodecCode())
	}
}

func TestNewLinkedData_RejectsInvalidJSON(t *testing.T) {
	if _, err := NewLinkedData([]byte("not json")); err == nil {
		t.Error("expected parse error for invalid JSON")
	}
}
