package envelope

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	ld "github.com/piprate/json-gold/ld"

	"github.com/stackdump/cim/pkg/cimerr"
)

// linkedDataCodecCode is the fixed code for JSON-LD envelopes, in the
// domain-JSON sub-type range (0x340000-0x34FFFF) alongside Event's
// 0x340001. The canonical form (URDNA2015 N-Quads) is the same shape
// regardless of the source document's own @context, so there is a
// single code rather than one per document flavor.
const linkedDataCodecCode uint64 = 0x340002

// LinkedData wraps a JSON-LD document. CanonicalBytes normalizes it to
// RDF N-Quads via URDNA2015 so that two JSON-LD documents expressing
// the same graph in different key order or context framing hash to
// the same CID.
type LinkedData struct {
	Doc any
}

var _ Envelope = LinkedData{}

func (LinkedData) ContentType() ContentType { return TypeLinkedData }
func (LinkedData) CodecCode() uint64        { return linkedDataCodecCode }

var (
	ldLoader     ld.DocumentLoader
	ldLoaderOnce sync.Once
)

func cachingLoader() ld.DocumentLoader {
	ldLoaderOnce.Do(func() {
		ldLoader = ld.NewCachingDocumentLoader(ld.NewDefaultDocumentLoader(http.DefaultClient))
	})
	return ldLoader
}

// CanonicalBytes normalizes Doc to URDNA2015 N-Quads.
func (l LinkedData) CanonicalBytes() ([]byte, error) {
	opts := ld.NewJsonLdOptions("")
	opts.Format = "application/n-quads"
	opts.Algorithm = "URDNA2015"
	opts.DocumentLoader = cachingLoader()

	proc := ld.NewJsonLdProcessor()
	normalized, err := proc.Normalize(l.Doc, opts)
	if err != nil {
		return nil, &cimerr.CanonicalizationError{Detail: "jsonld normalize: " + err.Error()}
	}
	nq, ok := normalized.(string)
	if !ok {
		return nil, &cimerr.CanonicalizationError{Detail: "jsonld normalize: unexpected output type"}
	}
	return []byte(nq), nil
}

// NewLinkedData parses raw JSON-LD bytes into a LinkedData envelope.
// It does not normalize eagerly; normalization happens lazily in
// CanonicalBytes so a malformed document only fails when hashed.
func NewLinkedData(raw []byte) (LinkedData, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return LinkedData{}, fmt.Errorf("envelope: parse jsonld: %w", err)
	}
	return LinkedData{Doc: doc}, nil
}
