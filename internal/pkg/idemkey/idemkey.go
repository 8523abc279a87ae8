// Package idemkey derives payment idempotency keys from stable session
// state, never from per-request randomness, so that a client retry
// after a network drop reuses the same key and the gateway collapses
// duplicates server-side.
package idemkey

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Derive produces the idempotency key for a capture of the given
// session at the given version. The version is the one observed when
// the session entered awaiting_payment; a later checkout sees a higher
// version and therefore a fresh key.
func Derive(secret, sessionID string, version int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s:%d", sessionID, version)
	return hex.EncodeToString(mac.Sum(nil))
}
