// Package auth verifies bearer tokens and extracts the caller's user id.
package auth

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atharvakonge/portfolio-ai/internal/models"
)

var (
	ErrMissingToken         = errors.New("missing bearer token")
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidSigningMethod = errors.New("invalid signing method")
	ErrMissingSubject       = errors.New("token has no subject")
)

// Verifier checks HS256 tokens signed with a shared secret. The token's
// subject is the user id.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Verify returns the user id carried by tokenString.
func (v *Verifier) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningMethod
		}
		return v.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" || utf8.RuneCountInString(sub) > models.MaxUserIDLength {
		return "", ErrMissingSubject
	}
	return sub, nil
}

// Issue signs a token for userID. The service never mints tokens over
// HTTP; this exists for tests and local tooling.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
