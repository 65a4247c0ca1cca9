// Package dagjson implements canonical JSON encoding for the DAG-JSON
// codec: object keys sorted lexicographically, no insignificant
// whitespace in the hashed form, and IPLD link objects of the shape
// {"/": "<cid>"}.
//
// The key-sorting walk here generalizes the teacher's pkg/canonical
// (which only sorted plain maps) to also rewrite embedded CIDs into
// link objects.
package dagjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	gocid "github.com/ipfs/go-cid"

	"github.com/stackdump/cim/pkg/cidkit"
)

// Link is the Go-side representation of an IPLD link value; passing a
// Link to Marshal produces {"/": "<cid>"}. Link has no JSON methods of
// its own, so Unmarshal does not decode such an object back into a Link.
type Link struct {
	CID gocid.Cid
}

// Marshal returns the canonical JSON encoding of v: sorted keys, no
// insignificant whitespace. Pretty-printing for human display is a
// distinct, non-hashed operation (see Pretty).
func Marshal(v any) ([]byte, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	return marshalCanonical(generic)
}

// Pretty renders v with indentation for human output. Never used to
// compute a CID.
func Pretty(v any) ([]byte, error) {
	canon, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, canon, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes canonical or pretty-printed DAG-JSON into v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// toGeneric round-trips v through encoding/json to obtain a
// map[string]interface{}/[]interface{} tree. Only a top-level Link is
// replaced by its {"/": cid} object form; a Link nested inside v is
// encoded by encoding/json as {"CID": {"/": cid}}.
func toGeneric(v any) (any, error) {
	if link, ok := v.(Link); ok {
		s, err := cidkit.StringForm(link.CID)
		if err != nil {
			return nil, fmt.Errorf("dagjson: encode link: %w", err)
		}
		return map[string]any{"/": s}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := bytes.NewBufferString("{")
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(",")
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(keyJSON)
			buf.WriteString(":")

			valJSON, err := marshalCanonical(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valJSON)
		}
		buf.WriteString("}")
		return buf.Bytes(), nil

	case []any:
		buf := bytes.NewBufferString("[")
		for i, item := range val {
			if i > 0 {
				buf.WriteString(",")
			}
			itemJSON, err := marshalCanonical(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemJSON)
		}
		buf.WriteString("]")
		return buf.Bytes(), nil

	default:
		return json.Marshal(v)
	}
}
