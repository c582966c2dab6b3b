package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// Fingerprint is the normalized cache key for a query. Equal fingerprints
// are always derived identically regardless of user identity: the retrieval
// scope, not the caller, determines the answer for shared content.
type Fingerprint struct {
	Scope        string
	Query        string // normalized
	TopK         int
	ScoreFloor   float64
	ModelVersion string
}

// NewFingerprint normalizes the query text and builds a fingerprint.
func NewFingerprint(scope, query string, topK int, scoreFloor float64, modelVersion string) Fingerprint {
	return Fingerprint{
		Scope:        scope,
		Query:        NormalizeQuery(query),
		TopK:         topK,
		ScoreFloor:   scoreFloor,
		ModelVersion: modelVersion,
	}
}

// Key returns the stable cache key: sha256 over the fingerprint fields with
// unambiguous separators.
func (f Fingerprint) Key() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%.4f\x00%s", f.Scope, f.Query, f.TopK, f.ScoreFloor, f.ModelVersion)
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeQuery lowercases the query and collapses runs of whitespace so
// trivially different phrasings of the same question share a cache entry.
func NormalizeQuery(q string) string {
	var b strings.Builder
	b.Grow(len(q))
	space := false
	for _, r := range strings.TrimSpace(q) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
