package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"time"
)

// Claims minted by NewTestTokenProvider carry these values.
const (
	TestIssuer   = "test-issuer"
	TestAudience = "test-audience"
)

// NewTestTokenProvider returns an ES256 TokenProvider over a fresh in-memory P-256 key with a 15m access TTL.
// Every call gets its own key, so tokens from one provider never verify against another.
// For tests in other packages; production keys come from LoadKeyPair.
func NewTestTokenProvider() (*TokenProvider, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(key, &key.PublicKey, TestIssuer, TestAudience, 15*time.Minute), nil
}
