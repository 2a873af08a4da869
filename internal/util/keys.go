package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// maxRawKey bounds the user part of a storage key. Longer keys (typically URLs with
// query strings) are replaced by a hash so every backend accepts them.
const maxRawKey = 200

// StorageKey returns the residency key for an asset: res:<ns>:<key>, or
// res#<ns>:<hex digest> for keys longer than maxRawKey. The two prefixes keep a
// short key from ever landing on a hashed one.
func StorageKey(ns, key string) string {
	if len(key) > maxRawKey {
		sum := sha256.Sum256([]byte(key))
		return "res#" + ns + ":" + hex.EncodeToString(sum[:16])
	}
	return "res:" + ns + ":" + key
}

// Redact returns a short stable digest of k for logs and metrics.
func Redact(k string) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}
