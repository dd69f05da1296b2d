package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, badly signed, or missing a required claim.
	ErrInvalidToken = errors.New("invalid token")
)

// AccessClaims holds JWT claims for the company-scoped access token.
// Subject is the user id; every field below is required.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
}

// UserID returns the subject claim.
func (c *AccessClaims) UserID() string {
	return c.Subject
}

func (c *AccessClaims) complete() bool {
	return c.Subject != "" && c.Email != "" && c.CompanyID != "" && c.Role != ""
}

// AccessSubject is the identity an access token is minted for.
type AccessSubject struct {
	UserID    string
	Email     string
	CompanyID string
	Role      string
}

// TokenProvider issues and validates JWT access tokens using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on Parse.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for iat/exp and expiry checks. Returns p.
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	if now != nil {
		p.now = now
	}
	return p
}

// IssueAccess issues a short-lived access JWT for the subject.
// Returns the signed token and the claims it carries.
func (p *TokenProvider) IssueAccess(sub AccessSubject) (string, *AccessClaims, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", nil, err
	}
	now := p.now().UTC()
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   sub.UserID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.accessTTL)),
		},
		Email:     sub.Email,
		CompanyID: sub.CompanyID,
		Role:      sub.Role,
	}
	if !claims.complete() {
		return "", nil, ErrInvalidToken
	}
	token, err := p.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// Parse validates the access token (signature, exp, iss, aud, required claims) and returns its claims.
// Any failure yields ErrInvalidToken.
func (p *TokenProvider) Parse(tokenString string) (*AccessClaims, error) {
	alg := KeyAlg(p.publicKey)
	if tokenString == "" || alg == "" {
		return nil, ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	claims := &AccessClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.complete() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AccessTTL returns the configured access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration {
	return p.accessTTL
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
