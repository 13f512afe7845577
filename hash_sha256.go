package main

import (
	"encoding/hex"

	simdsha "github.com/minio/sha256-simd"
)

// payloadDigest is the hex SHA-256 of a downloaded payload. Persistence
// compares digests to skip rewriting blobs that did not change.
func payloadDigest(b []byte) string {
	sum := simdsha.Sum256(b)
	return hex.EncodeToString(sum[:])
}
