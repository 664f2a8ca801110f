package crypto

import (
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// JCSCanonicalizer canonicalizes documents with the JSON Canonicalization Scheme (RFC 8785).
// It stands in for RDF dataset canonicalization: both produce a key-order independent byte form.
type JCSCanonicalizer struct{}

func NewJCSCanonicalizer() JCSCanonicalizer { return JCSCanonicalizer{} }

// Canonicalize marshals v and transforms the result to its canonical form.
func (JCSCanonicalizer) Canonicalize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
