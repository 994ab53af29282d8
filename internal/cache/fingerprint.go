// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint hashes the given parts into a single cache key using
// SHA-256. Earlier revisions of this cache hashed with MD5; SHA-256
// is used here so the fingerprint space is collision-resistant even
// as the cache is shared across more call sites (embeddings, and
// potentially full responses).
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0}) // separator so ("ab","c") != ("a","bc")
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EmbeddingKey builds the fingerprint used to cache a query embedding,
// keyed by the text plus the provider/model that will produce it so
// switching providers never serves a stale vector.
func EmbeddingKey(text, provider, model string) string {
	return Fingerprint("embedding", strings.TrimSpace(text), provider, model)
}
