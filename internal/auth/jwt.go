// Package auth verifies tokens issued by the platform's session
// service. Token issuance lives outside this server; connections carry
// a signed identity that is validated before they reach the chat core.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pulsechat/pulse-server/internal/core"
)

// Claims represents the JWT claims carried by a platform session token.
type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// Verifier validates session tokens and produces a trusted identity.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewVerifier builds a token verifier.
func NewVerifier(secret []byte, issuer, audience string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer, audience: audience}
}

// Verify parses and validates a token, returning the identity it carries.
func (v *Verifier) Verify(tokenString string) (core.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return core.Identity{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return core.Identity{}, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == "" {
		return core.Identity{}, fmt.Errorf("token missing user id")
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return core.Identity{}, fmt.Errorf("invalid issuer")
	}
	if v.audience != "" {
		valid := false
		for _, aud := range claims.Audience {
			if aud == v.audience {
				valid = true
				break
			}
		}
		if !valid {
			return core.Identity{}, fmt.Errorf("invalid audience")
		}
	}

	return core.Identity{ID: claims.UserID, DisplayName: claims.DisplayName}, nil
}

// Sign mints a token the verifier accepts. Intended for tests and local
// development; production tokens come from the platform session service.
func Sign(secret []byte, issuer, audience string, id core.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      id.ID,
		DisplayName: id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
