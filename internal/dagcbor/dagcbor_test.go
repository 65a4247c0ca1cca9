package dagcbor

import (
	"bytes"
	"testing"

	gocid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

func TestMarshal_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 1, "aa": 2, "a": 3}
	b := map[string]any{"a": 3, "b": 1, "aa": 2}

	encA, err := Marshal(a)
	if err != nil {
		t.Fatalf("Marshal a: %v", err)
	}
	encB, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal b: %v", err)
	}
	if !bytes.Equal(encA, encB) {
		t.Errorf("expected identical bytes regardless of map construction order")
	}
}

func TestLinkRoundTrip(t *testing.T) {
	digest, err := mh.Sum([]byte("linked content"), mh.SHA2_256, -1)
	if err != nil {
		t.Fatalf("mh.Sum: %v", err)
	}
	c := gocid.NewCidV1(gocid.DagCBOR, digest)

	encoded, err := EncodeLink(c)
	if err != nil {
		t.Fatalf("EncodeLink: %v", err)
	}
	decoded, err := DecodeLink(encoded)
	if err != nil {
		t.Fatalf("DecodeLink: %v", err)
	}
	if !decoded.Equals(c) {
		t.Errorf("expected round-tripped CID to equal original: %s vs %s", decoded, c)
	}
}
