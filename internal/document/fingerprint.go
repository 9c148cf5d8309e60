package document

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint is a short content hash used to log what changed and to skip
// writes that would not change anything.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
