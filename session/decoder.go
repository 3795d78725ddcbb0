package session

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/upb/corbado-session-sdk/jwks"
)

// AllowedAlgorithm is the only signing algorithm accepted for session tokens.
const AllowedAlgorithm = "RS256"

// TokenHeader holds the header fields needed to pick a verification key.
type TokenHeader struct {
	Algorithm string
	KeyID     string
	Type      string
}

// TokenClaims are the claims of a verified token.
type TokenClaims struct {
	Issuer    string
	Subject   string
	FullName  string
	IssuedAt  time.Time
	NotBefore time.Time
	ExpiresAt time.Time
}

// sessionClaims is the wire form of the payload.
type sessionClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

type rawHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Typ string `json:"typ"`
}

// segmentDecoder decodes base64url segments the same way the verifier does.
var segmentDecoder = jwt.NewParser()

// ParseHeader checks the compact structure of token and decodes its header. The payload is
// decoded but not interpreted, and nothing is trusted yet.
func ParseHeader(token string) (TokenHeader, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return TokenHeader{}, newValidationError(KindMalformedToken,
			fmt.Sprintf("token must have 3 segments, got %d", len(parts)), nil)
	}

	segments := make([][]byte, len(parts))
	for i, part := range parts {
		decoded, err := segmentDecoder.DecodeSegment(part)
		if err != nil {
			return TokenHeader{}, newValidationError(KindMalformedToken,
				fmt.Sprintf("segment %d is not valid base64url", i+1), err)
		}
		segments[i] = decoded
	}

	var header rawHeader
	if err := json.Unmarshal(segments[0], &header); err != nil {
		return TokenHeader{}, newValidationError(KindMalformedToken, "header is not a JSON object", err)
	}
	if header.Alg == "" {
		return TokenHeader{}, newValidationError(KindMalformedToken, "header has no alg", nil)
	}
	if header.Kid == "" {
		return TokenHeader{}, newValidationError(KindMalformedToken, "header has no kid", nil)
	}

	return TokenHeader{Algorithm: header.Alg, KeyID: header.Kid, Type: header.Typ}, nil
}

// checkAlgorithm rejects every algorithm except RS256, including "none" and HMAC variants.
func checkAlgorithm(header TokenHeader) error {
	if header.Algorithm != AllowedAlgorithm {
		return newValidationError(KindUnsupportedAlgorithm,
			fmt.Sprintf("algorithm %q is not allowed, expected %s", header.Algorithm, AllowedAlgorithm), nil)
	}
	return nil
}

// Verifier checks signature and time claims.
type Verifier struct {
	leeway time.Duration
	now    func() time.Time
}

// NewVerifier creates a verifier tolerating leeway of clock skew on exp and nbf.
func NewVerifier(leeway time.Duration, now func() time.Time) (*Verifier, error) {
	if leeway < 0 {
		return nil, fmt.Errorf("clock skew must be non-negative, got %s", leeway)
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{leeway: leeway, now: now}, nil
}

// Verify checks the token signature against key, then exp and nbf. The returned claims
// are trusted.
func (v *Verifier) Verify(token string, key *jwks.VerificationKey) (*TokenClaims, error) {
	if key == nil {
		return nil, newValidationError(KindKeyResolution, "no verification key", nil)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{AllowedAlgorithm}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)

	claims := &sessionClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		if err := checkKeyUsage(key); err != nil {
			return nil, err
		}
		publicKey, ok := key.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("key %q is %T, not an RSA public key", key.KeyID, key.PublicKey)
		}
		return publicKey, nil
	})
	if err != nil {
		return nil, classifyVerifyError(err)
	}

	if claims.Subject == "" {
		return nil, newValidationError(KindMalformedToken, "token has no subject", nil)
	}

	return &TokenClaims{
		Issuer:    claims.Issuer,
		Subject:   claims.Subject,
		FullName:  claims.Name,
		IssuedAt:  numericTime(claims.IssuedAt),
		NotBefore: numericTime(claims.NotBefore),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

// checkKeyUsage rejects keys published for another algorithm or for encryption.
func checkKeyUsage(key *jwks.VerificationKey) error {
	if key.Algorithm != "" && key.Algorithm != AllowedAlgorithm {
		return fmt.Errorf("key %q is published for %s, not %s", key.KeyID, key.Algorithm, AllowedAlgorithm)
	}
	if key.Use != "" && key.Use != "sig" {
		return fmt.Errorf("key %q is published for use %q, not signing", key.KeyID, key.Use)
	}
	return nil
}

// classifyVerifyError maps golang-jwt errors to rejection kinds.
func classifyVerifyError(err error) *ValidationError {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newValidationError(KindMalformedToken, "token could not be decoded", err)
	case errors.Is(err, jwt.ErrTokenUnverifiable), errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return newValidationError(KindSignatureInvalid, "signature verification failed", err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return newValidationError(KindMalformedToken, "token has no expiry", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newValidationError(KindTokenExpired, "token has expired", err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return newValidationError(KindTokenNotYetValid, "token is not valid yet", err)
	default:
		return newValidationError(KindMalformedToken, "token claims are invalid", err)
	}
}

func numericTime(date *jwt.NumericDate) time.Time {
	if date == nil {
		return time.Time{}
	}
	return date.Time
}
