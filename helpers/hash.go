package helpers

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// HashContent returns the lowercase hex BLAKE3 digest of the given bytes.
// Used to fingerprint raw message payloads at delivery time.
func HashContent(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
