package codec

import "testing"

func TestDefault_LookupBuiltins(t *testing.T) {
	r := Default()
	for _, code := range []uint64{CodeRaw, CodeDagCBOR, CodeDagJSON, CodePlainJSN, CodePlainCBR} {
		if _, err := r.Lookup(code); err != nil {
			t.Errorf("expected builtin code 0x%x to be registered: %v", code, err)
		}
	}
}

func TestLookup_UnknownCode(t *testing.T) {
	r := Default()
	if _, err := r.Lookup(0xdeadbeef); err == nil {
		t.Error("expected CodecUnknown for an unregistered code")
	}
}

func TestRegister_AfterFreezeFails(t *testing.T) {
	r := Default()
	if err := r.Register(rawHandler{code: 0x99}); err == nil {
		t.Error("expected Register to fail after Freeze")
	}
}

func TestRegister_ConflictBeforeFreeze(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(rawHandler{code: 0x55}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(mediaHandler{code: 0x55}); err == nil {
		t.Error("expected CodecConflict for a different handler on the same code")
	}
}

func TestRawHandler_RoundTrip(t *testing.T) {
	r := Default()
	h, err := r.Lookup(CodeRaw)
	if err != nil {
		t.Fatalf("lookup raw: %v", err)
	}
	encoded, err := h.Encode([]byte("payload"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out []byte
	if err := h.Decode(encoded, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "payload" {
		t.Errorf("expected round-tripped payload, got %q", out)
	}
}

func TestDagCBORHandler_RoundTrip(t *testing.T) {
	r := Default()
	h, err := r.Lookup(CodeDagCBOR)
	if err != nil {
		t.Fatalf("lookup dag-cbor: %v", err)
	}
	in := map[string]any{"event_type": "UserCreated", "aggregate_id": "u1"}
	encoded, err := h.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out map[string]any
	if err := h.Decode(encoded, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["event_type"] != in["event_type"] {
		t.Errorf("round-trip mismatch: %v", out)
	}
}

func TestNewDomainJSONHandler_RejectsOutOfRange(t *testing.T) {
	if _, err := NewDomainJSONHandler(0x55); err == nil {
		t.Error("expected out-of-range domain code to be rejected")
	}
	if _, err := NewDomainJSONHandler(DomainJSONStart + 1); err != nil {
		t.Errorf("expected in-range domain code to succeed: %v", err)
	}
}
