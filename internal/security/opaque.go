package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// SecretBytes is the entropy of every opaque secret: login tickets, refresh tokens, reset tokens.
const SecretBytes = 32

// NewSecret returns SecretBytes of crypto/rand entropy, base64url-encoded without padding.
func NewSecret() (string, error) {
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSecret returns a SHA-256 hash of the secret, hex-encoded.
// Refresh and reset secrets are persisted and looked up only by this value.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// SecretHashEqual performs constant-time comparison of the provided secret's hash
// with the stored hash. Returns true only if they match. An empty secret never matches.
func SecretHashEqual(providedSecret, storedHash string) bool {
	if providedSecret == "" {
		return false
	}
	providedHash := HashSecret(providedSecret)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
