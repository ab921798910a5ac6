// Package checksum provides the sha256 helpers used to fingerprint findings,
// hash file content before a recipe mutates it, and attest session reports.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Bytes returns the digest of data as "sha256:<hex>". The prefix makes
// the algorithm explicit everywhere a digest is persisted.
func SHA256Bytes(data []byte) string {
	return "sha256:" + SHA256Hex(data)
}

// SHA256String is SHA256Bytes over a string.
func SHA256String(s string) string {
	return SHA256Bytes([]byte(s))
}

// SHA256Hex returns the bare 64-char hex digest with no prefix, used where a
// fixed-length hex string is needed, such as truncated fingerprint tiers.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
