// Package cache implements the four-tier answer resolution ladder: exact
// cache, semantic cache, retrieval with the small model, retrieval with the
// large model. The router always takes the cheapest tier able to answer.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Tier identifies which rung of the ladder produced an answer.
type Tier int

const (
	TierExact Tier = iota
	TierSemantic
	TierRAGSmall
	TierRAGLarge
)

// String returns the wire name of the tier.
func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierSemantic:
		return "semantic"
	case TierRAGSmall:
		return "rag-small"
	case TierRAGLarge:
		return "rag-large"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier maps a wire name back to a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "exact":
		return TierExact, nil
	case "semantic":
		return TierSemantic, nil
	case "rag-small":
		return TierRAGSmall, nil
	case "rag-large":
		return TierRAGLarge, nil
	default:
		return TierExact, fmt.Errorf("unknown tier: %q", s)
	}
}

// Cached reports whether the tier serves stored answers without generation.
func (t Tier) Cached() bool {
	return t == TierExact || t == TierSemantic
}

// NormalizeQuery canonicalizes text for exact-match keying: lowercased,
// whitespace collapsed, trailing punctuation dropped.
func NormalizeQuery(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.TrimRight(text, "?!. ")
	return strings.Join(strings.Fields(text), " ")
}

// QueryHash returns the exact-cache hash of a normalized query.
func QueryHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(text)))
	return hex.EncodeToString(sum[:])
}
