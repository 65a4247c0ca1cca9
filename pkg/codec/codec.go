// Package codec implements the process-wide codec registry of base
// §4.B: a map from numeric codec code to encode/decode behavior.
// Default builds a frozen registry holding the built-in raw, DAG-CBOR,
// DAG-JSON, plain JSON/CBOR and media codecs. It registers no domain
// JSON codec (0x340000-0x34FFFF); NewDomainJSONHandler builds one for a
// registry created with NewRegistry.
package codec

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"

	"github.com/stackdump/cim/internal/dagcbor"
	"github.com/stackdump/cim/internal/dagjson"
	"github.com/stackdump/cim/pkg/cimerr"
)

// Reserved codec codes, per base §3.
const (
	CodeRaw      uint64 = 0x55
	CodeDagCBOR  uint64 = 0x71
	CodeDagJSON  uint64 = 0x0129
	CodeDagPB    uint64 = 0x70
	CodePlainCBR uint64 = 0x51
	CodePlainJSN uint64 = 0x0200

	CoreRangeStart      uint64 = 0x300000
	CoreRangeEnd        uint64 = 0x30FFFF
	DocLegacyRangeStart uint64 = 0x310000
	DocLegacyRangeEnd   uint64 = 0x31FFFF
	MediaLegacyStart    uint64 = 0x320000
	MediaLegacyEnd      uint64 = 0x32FFFF
	CustomRangeStart    uint64 = 0x330000
	CustomRangeEnd      uint64 = 0x3FFFFF
	DomainJSONStart     uint64 = 0x340000
	DomainJSONEnd       uint64 = 0x34FFFF

	DocumentRangeStart uint64 = 0x600000
	DocumentRangeEnd   uint64 = 0x60FFFF
	ImageRangeStart    uint64 = 0x610000
	ImageRangeEnd      uint64 = 0x61FFFF
	AudioRangeStart    uint64 = 0x620000
	AudioRangeEnd      uint64 = 0x62FFFF
	VideoRangeStart    uint64 = 0x630000
	VideoRangeEnd      uint64 = 0x63FFFF
)

// Handler encodes and decodes values for one codec code. For opaque
// (binary/media) codecs, Encode and Decode are identity on bytes.
type Handler interface {
	Code() uint64
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

// Registry is a process-wide, freeze-once map from codec code to Handler.
type Registry struct {
	mu       sync.Mutex
	pending  map[uint64]Handler
	frozen   atomic.Bool
	snapshot atomic.Pointer[map[uint64]Handler]
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[uint64]Handler)}
}

// Register adds handler under its own Code(). Before Freeze, repeated
// registration of the same code with an equal handler is a no-op;
// registering a *different* handler for an already-present code fails
// with CodecConflict. After Freeze, Register always fails.
func (r *Registry) Register(handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return &cimerr.CodecConflictError{Code: handler.Code()}
	}
	if existing, ok := r.pending[handler.Code()]; ok && existing != handler {
		return &cimerr.CodecConflictError{Code: handler.Code()}
	}
	r.pending[handler.Code()] = handler
	return nil
}

// Freeze takes an immutable snapshot of the registered handlers;
// Lookup thereafter is lock-free.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[uint64]Handler, len(r.pending))
	for k, v := range r.pending {
		snap[k] = v
	}
	r.snapshot.Store(&snap)
	r.frozen.Store(true)
}

// Lookup returns the handler registered for code, or CodecUnknown.
func (r *Registry) Lookup(code uint64) (Handler, error) {
	if snap := r.snapshot.Load(); snap != nil {
		if h, ok := (*snap)[code]; ok {
			return h, nil
		}
		return nil, &cimerr.CodecUnknownError{Code: code}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.pending[code]; ok {
		return h, nil
	}
	return nil, &cimerr.CodecUnknownError{Code: code}
}

// rawHandler is the identity codec used for 0x55 and for binary media
// formats: encode/decode are no-ops over []byte.
type rawHandler struct{ code uint64 }

func (h rawHandler) Code() uint64 { return h.code }
func (h rawHandler) Encode(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, &cimerr.InvalidContentError{Detail: "raw codec requires []byte"}
	}
	return b, nil
}
func (h rawHandler) Decode(data []byte, out any) error {
	ptr, ok := out.(*[]byte)
	if !ok {
		return &cimerr.InvalidContentError{Detail: "raw codec requires *[]byte output"}
	}
	*ptr = append([]byte(nil), data...)
	return nil
}

// dagCBORHandler implements deterministic DAG-CBOR encoding (internal/dagcbor).
type dagCBORHandler struct{}

func (dagCBORHandler) Code() uint64                  { return CodeDagCBOR }
func (dagCBORHandler) Encode(v any) ([]byte, error)  { return dagcbor.Marshal(v) }
func (dagCBORHandler) Decode(data []byte, out any) error { return dagcbor.Unmarshal(data, out) }

// dagJSONHandler implements canonical DAG-JSON encoding (internal/dagjson).
type dagJSONHandler struct{}

func (dagJSONHandler) Code() uint64                  { return CodeDagJSON }
func (dagJSONHandler) Encode(v any) ([]byte, error)  { return dagjson.Marshal(v) }
func (dagJSONHandler) Decode(data []byte, out any) error { return dagjson.Unmarshal(data, out) }

// plainCBORHandler is non-canonical CBOR for callers that don't need determinism.
type plainCBORHandler struct{}

func (plainCBORHandler) Code() uint64                   { return CodePlainCBR }
func (plainCBORHandler) Encode(v any) ([]byte, error)   { return cbor.Marshal(v) }
func (plainCBORHandler) Decode(data []byte, out any) error { return cbor.Unmarshal(data, out) }

// plainJSONHandler is non-canonical JSON.
type plainJSONHandler struct{}

func (plainJSONHandler) Code() uint64                   { return CodePlainJSN }
func (plainJSONHandler) Encode(v any) ([]byte, error)   { return json.Marshal(v) }
func (plainJSONHandler) Decode(data []byte, out any) error { return json.Unmarshal(data, out) }

// domainJSONHandler backs the 0x340000-0x34FFFF sub-range: DAG-JSON
// encoding of declared domain shapes, keyed by a distinct sub-code so
// multiple domain schemas can coexist.
type domainJSONHandler struct{ code uint64 }

func (h domainJSONHandler) Code() uint64                  { return h.code }
func (h domainJSONHandler) Encode(v any) ([]byte, error)  { return dagjson.Marshal(v) }
func (h domainJSONHandler) Decode(data []byte, out any) error { return dagjson.Unmarshal(data, out) }

// NewDomainJSONHandler returns a DAG-JSON handler for a domain
// sub-type. code must fall within [DomainJSONStart, DomainJSONEnd].
func NewDomainJSONHandler(code uint64) (Handler, error) {
	if code < DomainJSONStart || code > DomainJSONEnd {
		return nil, &cimerr.InvalidContentError{Detail: "domain JSON code out of range"}
	}
	return domainJSONHandler{code: code}, nil
}

// mediaHandler backs the reserved document/image/audio/video ranges:
// identity on the raw payload, with magic-byte verification performed
// by pkg/envelope before the bytes ever reach the codec.
type mediaHandler struct{ code uint64 }

func (h mediaHandler) Code() uint64 { return h.code }
func (h mediaHandler) Encode(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, &cimerr.InvalidContentError{Detail: "media codec requires []byte"}
	}
	return b, nil
}
func (h mediaHandler) Decode(data []byte, out any) error {
	ptr, ok := out.(*[]byte)
	if !ok {
		return &cimerr.InvalidContentError{Detail: "media codec requires *[]byte output"}
	}
	*ptr = append([]byte(nil), data...)
	return nil
}

// NewMediaHandler returns an identity handler for a code in one of
// the document/image/audio/video reserved ranges.
func NewMediaHandler(code uint64) Handler { return mediaHandler{code: code} }

// Default returns a frozen registry with every built-in codec from
// base §4.B registered: raw, DAG-CBOR, DAG-JSON, plain JSON, plain
// CBOR, and an identity handler for each reserved document/image/
// audio/video code.
func Default() *Registry {
	r := NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.Register(rawHandler{code: CodeRaw}))
	must(r.Register(dagCBORHandler{}))
	must(r.Register(dagJSONHandler{}))
	must(r.Register(plainJSONHandler{}))
	must(r.Register(plainCBORHandler{}))

	for _, code := range builtinMediaCodes() {
		must(r.Register(NewMediaHandler(code)))
	}
	r.Freeze()
	return r
}

// builtinMediaCodes enumerates the per-format offsets fixed by base §3
// (documents 0x1..0x4, and one slot per image/audio/video format).
func builtinMediaCodes() []uint64 {
	codes := make([]uint64, 0, 20)
	for offset := uint64(1); offset <= 4; offset++ {
		codes = append(codes, DocumentRangeStart+offset)
	}
	for offset := uint64(1); offset <= 4; offset++ { // JPEG, PNG, GIF, WebP
		codes = append(codes, ImageRangeStart+offset)
	}
	for offset := uint64(1); offset <= 5; offset++ { // MP3, WAV, FLAC, AAC, OGG
		codes = append(codes, AudioRangeStart+offset)
	}
	for offset := uint64(1); offset <= 4; offset++ { // MP4, MOV, MKV, AVI
		codes = append(codes, VideoRangeStart+offset)
	}
	return codes
}
