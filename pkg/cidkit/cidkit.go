// Package cidkit computes self-describing content identifiers (CIDs)
// from canonical byte forms and verifies them on read.
//
// A CID is (version, codec_code, multihash). cidkit never inspects the
// content itself; canonicalization is the caller's responsibility via
// the CanonicalBytes method of the Envelope interface in pkg/envelope.
package cidkit

import (
	"crypto/sha256"
	"crypto/sha512"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	mh "github.com/multiformats/go-multihash"
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"

	"github.com/stackdump/cim/pkg/cimerr"
)

// HashAlgorithm selects the digest function used to build a CID.
// The default is SHA256; SHA512, SHA3256, and BLAKE3256 are accepted.
type HashAlgorithm int

const (
	SHA256 HashAlgorithm = iota
	SHA512
	SHA3256
	BLAKE3256
)

// multihash codes for each supported algorithm.
var mhCode = map[HashAlgorithm]uint64{
	SHA256:    mh.SHA2_256,
	SHA512:    mh.SHA2_512,
	SHA3256:   mh.SHA3_256,
	BLAKE3256: mh.BLAKE3,
}

func digest(algo HashAlgorithm, plaintext []byte) ([]byte, error) {
	switch algo {
	case SHA256:
		sum := sha256.Sum256(plaintext)
		return sum[:], nil
	case SHA512:
		sum := sha512.Sum512(plaintext)
		return sum[:], nil
	case SHA3256:
		sum := sha3.Sum256(plaintext)
		return sum[:], nil
	case BLAKE3256:
		sum := blake3.Sum256(plaintext)
		return sum[:], nil
	default:
		return nil, &cimerr.CanonicalizationError{Detail: "unknown hash algorithm"}
	}
}

// Build computes a CIDv1 over plaintext using codec as the encoding tag
// and algo as the digest function. plaintext must already be the
// canonical byte form of the value being addressed (§4.A step 1).
func Build(codec uint64, algo HashAlgorithm, plaintext []byte) (gocid.Cid, error) {
	sum, err := digest(algo, plaintext)
	if err != nil {
		return gocid.Undef, err
	}
	code, ok := mhCode[algo]
	if !ok {
		return gocid.Undef, &cimerr.CanonicalizationError{Detail: "unsupported hash algorithm"}
	}
	digestMH, err := mh.Encode(sum, code)
	if err != nil {
		return gocid.Undef, &cimerr.CanonicalizationError{Detail: "multihash encode: " + err.Error()}
	}
	return gocid.NewCidV1(codec, digestMH), nil
}

// Verify recomputes a CID from bytes using the codec and hash algorithm
// recorded in the CID itself, returning true iff the recomputed CID
// equals c bytewise.
func Verify(c gocid.Cid, plaintext []byte) (bool, error) {
	decoded, err := mh.Decode(c.Hash())
	if err != nil {
		return false, &cimerr.CanonicalizationError{Detail: "decode multihash: " + err.Error()}
	}
	algo, ok := algorithmForCode(decoded.Code)
	if !ok {
		return false, &cimerr.CanonicalizationError{Detail: "unrecognized multihash code"}
	}
	recomputed, err := Build(c.Type(), algo, plaintext)
	if err != nil {
		return false, err
	}
	return recomputed.Equals(c), nil
}

func algorithmForCode(code uint64) (HashAlgorithm, bool) {
	for algo, c := range mhCode {
		if c == code {
			return algo, true
		}
	}
	return 0, false
}

// StringForm renders c in canonical base32 multibase form, lowercase,
// per base §6 "CID string form".
func StringForm(c gocid.Cid) (string, error) {
	return c.StringOfBase(multibase.Base32)
}

// ParseAny decodes a CID string in any accepted multibase encoding
// (base32, base58btc, base64) to the same binary CID.
func ParseAny(s string) (gocid.Cid, error) {
	c, err := gocid.Decode(s)
	if err != nil {
		return gocid.Undef, &cimerr.CanonicalizationError{Detail: "parse cid: " + err.Error()}
	}
	return c, nil
}
