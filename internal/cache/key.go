package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key identifies one transform variant in both cache tiers.
type Key struct {
	// Variant is the canonical relative path of the variant, e.g.
	// "a/b.jpg@300w_200h.webp". It doubles as the persistent-tier
	// file path relative to the cache root.
	Variant string
	// Source is the relative path of the original image.
	Source string
	// Digest is a stable hash of the variant path. It indexes the fast
	// tier and is served as the entity tag.
	Digest string
}

// NewKey derives the cache key for a variant path.
func NewKey(variant, source string) Key {
	sum := sha256.Sum256([]byte(variant))
	return Key{
		Variant: variant,
		Source:  source,
		Digest:  hex.EncodeToString(sum[:])[:32],
	}
}
