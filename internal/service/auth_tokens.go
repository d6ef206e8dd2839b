package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// ============================================================
// Bearer tokens for /v1 (HS256)
// ============================================================

// TokenClaims are the claims carried by API access tokens.
type TokenClaims struct {
	Sub    string `json:"sub"`
	Tenant string `json:"tenant,omitempty"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// TokenValidator signs and validates HS256 access tokens.
type TokenValidator struct {
	secret []byte
	issuer string
}

// NewTokenValidator creates a validator for secret. An empty issuer skips the issuer check.
func NewTokenValidator(secret, issuer string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret), issuer: issuer}
}

// Sign issues an access token for subject, optionally scoped to a tenant.
func (v *TokenValidator) Sign(subject, tenant string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", &domain.ErrValidation{Field: "subject", Message: "required"}
	}
	now := time.Now()
	claims := TokenClaims{
		Sub:    subject,
		Tenant: tenant,
		Type:   "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    v.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// ValidateAccessToken parses tokenString and checks signature, expiry, issuer and type.
func (v *TokenValidator) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}
	return claims, nil
}
