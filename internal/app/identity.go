package app

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Identity is the caller of a command. Hosts authenticate with a signed
// token; participants assert a stable client-chosen id. Session logic only
// ever looks at Subject and Host.
type Identity interface {
	Subject() string
	Host() bool
}

// ClaimedIdentity is a client-asserted participant identity.
type ClaimedIdentity struct {
	ID string
}

func (c ClaimedIdentity) Subject() string { return c.ID }
func (c ClaimedIdentity) Host() bool      { return false }

// TokenIdentity is a host identity proven by a verified token.
type TokenIdentity struct {
	subject string
}

func (t TokenIdentity) Subject() string { return t.subject }
func (t TokenIdentity) Host() bool      { return true }

// TokenVerifier issues and verifies HMAC-signed host tokens.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses a host token and returns the identity it proves.
func (v *TokenVerifier) Verify(token string) (TokenIdentity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return TokenIdentity{}, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return TokenIdentity{}, fmt.Errorf("invalid host token")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return TokenIdentity{}, fmt.Errorf("host token missing subject")
	}
	return TokenIdentity{subject: sub}, nil
}

// Issue mints a host token for subject, valid for ttl.
func (v *TokenVerifier) Issue(subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
