package envelope

import "github.com/stackdump/cim/pkg/cimerr"

// Custom wraps a caller-defined format outside the built-in document/
// image/audio/video/event set. Code must fall within the custom codec
// range (0x330000-0x3FFFFF per base §3); CanonicalFn, if set,
// overrides the default full-payload canonicalization (e.g. to drop a
// caller-specific transient field before hashing).
type Custom struct {
	Code       uint64
	Payload    []byte
	CanonicalFn func([]byte) ([]byte, error)
}

var _ Envelope = Custom{}

func (c Custom) ContentType() ContentType { return TypeCustom }
func (c Custom) CodecCode() uint64        { return c.Code }

func (c Custom) CanonicalBytes() ([]byte, error) {
	if c.CanonicalFn != nil {
		return c.CanonicalFn(c.Payload)
	}
	return c.Payload, nil
}

// NewCustom validates the code range and wraps payload.
func NewCustom(code uint64, payload []byte, canonicalFn func([]byte) ([]byte, error)) (Custom, error) {
	const rangeStart, rangeEnd = 0x330000, 0x3FFFFF
	if code < rangeStart || code > rangeEnd {
		return Custom{}, &cimerr.InvalidContentError{Detail: "custom codec code out of range"}
	}
	return Custom{Code: code, Payload: payload, CanonicalFn: canonicalFn}, nil
}
