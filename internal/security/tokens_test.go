package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSubject = AccessSubject{UserID: "u1", Email: "a@x.com", CompanyID: "C1", Role: "ADMIN"}

func TestTokenProvider_IssueAndParse(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, issued, err := p.IssueAccess(testSubject)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" || issued.ID == "" {
		t.Fatal("token or jti empty")
	}
	if issued.ExpiresAt.Time.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	claims, err := p.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID() != "u1" || claims.Email != "a@x.com" || claims.CompanyID != "C1" || claims.Role != "ADMIN" {
		t.Errorf("Parse: got %+v", claims)
	}
}

func TestTokenProvider_IssueRejectsIncompleteSubject(t *testing.T) {
	p, _ := NewTestTokenProvider()
	sub := testSubject
	sub.Role = ""
	if _, _, err := p.IssueAccess(sub); err != ErrInvalidToken {
		t.Errorf("IssueAccess without role: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ParseInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, err := p.IssueAccess(testSubject)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	testCases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "invalid-token"},
		{"bad signature", tampered},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.Parse(tc.token); err != ErrInvalidToken {
				t.Errorf("Parse: want ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestTokenProvider_ParseExpired(t *testing.T) {
	p, _ := NewTestTokenProvider()
	issuedAt := time.Now().Add(-time.Hour)
	p.WithClock(func() time.Time { return issuedAt })
	token, _, err := p.IssueAccess(testSubject)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	p.WithClock(time.Now)
	if _, err := p.Parse(token); err != ErrInvalidToken {
		t.Errorf("Parse expired: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ParseWrongAudience(t *testing.T) {
	p, _ := NewTestTokenProvider()
	token, _, err := p.IssueAccess(testSubject)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	other := NewTokenProvider(p.privateKey, p.publicKey, "test-issuer", "other-audience", time.Minute)
	if _, err := other.Parse(token); err != ErrInvalidToken {
		t.Errorf("Parse with wrong audience: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ParseMissingClaims(t *testing.T) {
	p, _ := NewTestTokenProvider()
	now := time.Now()
	partial := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "test-issuer",
			Audience:  jwt.ClaimStrings{"test-audience"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Email: "a@x.com",
	}
	token, err := p.sign(partial)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := p.Parse(token); err != ErrInvalidToken {
		t.Errorf("Parse without company/role: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_RejectsOtherSigningKey(t *testing.T) {
	p, _ := NewTestTokenProvider()
	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	forger := NewTokenProvider(ec, &ec.PublicKey, "test-issuer", "test-audience", time.Minute)
	token, _, err := forger.IssueAccess(testSubject)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.Parse(token); err != ErrInvalidToken {
		t.Errorf("Parse foreign token: want ErrInvalidToken, got %v", err)
	}
	if _, err := forger.Parse(token); err != nil {
		t.Errorf("ES256 round trip: %v", err)
	}
}

func TestTokenProvider_RS256(t *testing.T) {
	signer, pub, err := LoadKeyPair(testPrivateKeyPEM, testPublicKeyPEM)
	if err != nil {
		t.Fatalf("LoadKeyPair: %v", err)
	}
	p := NewTokenProvider(signer, pub, TestIssuer, TestAudience, time.Minute)
	token, _, err := p.IssueAccess(testSubject)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	unverified, _, err := jwt.NewParser().ParseUnverified(token, &AccessClaims{})
	if err != nil || unverified.Method.Alg() != "RS256" {
		t.Fatalf("signing method = %v, %v; want RS256", unverified, err)
	}
	claims, err := p.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.CompanyID != "C1" || claims.Role != "ADMIN" {
		t.Errorf("claims = %+v", claims)
	}
}
