package privacy

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashIP computes the salted one-way hash persisted in place of a caller IP.
// The raw IP never leaves this function. An empty IP yields an empty hash
// rather than an error.
func HashIP(salt, ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(salt + ":" + ip))
	return hex.EncodeToString(sum[:])
}
