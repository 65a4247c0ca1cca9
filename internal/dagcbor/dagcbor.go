// Package dagcbor implements the deterministic CBOR encoding required
// by base §4.B: map keys sorted by byte length then lexicographic
// order, integers in shortest form, and an IPLD-style link tag (42)
// wrapping a CID's bytes. NaN and ±Infinity floats are not rejected;
// they are encoded in one fixed half-precision form each.
package dagcbor

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	gocid "github.com/ipfs/go-cid"
)

// linkTag is the CBOR tag IPLD reserves for embedded links (a CID).
const linkTag = 42

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	// CoreDetEncOptions implements RFC 8949's "Core Deterministic
	// Encoding Requirements": map keys sorted by length-then-bytewise,
	// integers in shortest form, floats in shortest form with NaN and
	// Inf converted to fixed half-precision values (not rejected).
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano

	tags := cbor.NewTagSet()
	if err := tags.Add(
		cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired},
		reflect.TypeOf(cidLink{}),
		linkTag,
	); err != nil {
		panic(fmt.Sprintf("dagcbor: register link tag: %v", err))
	}

	var err error
	encMode, err = opts.EncModeWithTags(tags)
	if err != nil {
		panic(fmt.Sprintf("dagcbor: build encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecModeWithTags(tags)
	if err != nil {
		panic(fmt.Sprintf("dagcbor: build decoder: %v", err))
	}
}

// cidLink is the wire shape of an IPLD link: tag 42 wrapping a
// multibase-prefixed CID byte string (leading 0x00 per the IPLD spec,
// since CBOR byte strings have no implicit base).
type cidLink struct {
	_    struct{} `cbor:",toarray"`
	Data []byte
}

// Marshal encodes v as deterministic DAG-CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes DAG-CBOR bytes into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodeLink produces the DAG-CBOR bytes for a bare CID link.
func EncodeLink(c gocid.Cid) ([]byte, error) {
	raw := append([]byte{0x00}, c.Bytes()...)
	return encMode.Marshal(cidLink{Data: raw})
}

// DecodeLink recovers a CID from DAG-CBOR link bytes produced by EncodeLink.
func DecodeLink(data []byte) (gocid.Cid, error) {
	var link cidLink
	if err := decMode.Unmarshal(data, &link); err != nil {
		return gocid.Undef, err
	}
	if len(link.Data) == 0 || link.Data[0] != 0x00 {
		return gocid.Undef, fmt.Errorf("dagcbor: link missing multibase-identity prefix")
	}
	return gocid.Cast(link.Data[1:])
}
