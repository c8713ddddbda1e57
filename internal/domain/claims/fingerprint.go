package claims

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint identifies one real-world instance of a repeatable fact across
// re-observations: fields are lowercased and whitespace-collapsed, joined
// with "|", hashed, and truncated to 32 hex chars.
func Fingerprint(fields ...string) string {
	norm := make([]string, len(fields))
	for i, f := range fields {
		norm[i] = strings.Join(strings.Fields(strings.ToLower(f)), " ")
	}
	sum := sha256.Sum256([]byte(strings.Join(norm, "|")))
	return hex.EncodeToString(sum[:])[:32]
}
