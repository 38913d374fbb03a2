package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// Digest returns base64(HMAC-SHA256(secret, payload)).
func Digest(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest and compares it with signature. Lengths are
// compared first; equal-length values are compared in constant time.
func Verify(payload []byte, secret string, signature string) bool {
	expected := []byte(Digest(payload, secret))
	actual := []byte(signature)
	if len(expected) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare(expected, actual) == 1
}

// ContentHash is the hex SHA-256 fingerprint of a payload.
func ContentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
