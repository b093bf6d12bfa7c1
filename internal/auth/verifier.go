// Package auth verifies bearer tokens issued by the identity service.
// This service never issues tokens itself; it only checks signatures and
// standard claims on requests that mutate proposal sessions.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrUnauthorized marks any token failure. Callers get no detail about
// which check failed.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Verifier validates HS256 bearer tokens against a shared secret.
type Verifier struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

func (v Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// ParseToken validates a token string and returns its subject.
func (v Verifier) ParseToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", ErrUnauthorized
	}
	if len(v.Secret) == 0 {
		return "", errors.New("auth: verifier secret not configured")
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	// The algorithm is pinned; a token asking for a different one is
	// rejected before any key material is touched.
	if algorithm != jwa.HS256 {
		return "", fmt.Errorf("%w: unexpected algorithm %s", ErrUnauthorized, algorithm)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(jwa.HS256, v.Secret))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if err := v.validateClaims(parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return parsed.Subject(), nil
}

func (v Verifier) validateClaims(tok jwt.Token) error {
	now := v.now()
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	return jwt.Validate(tok, options...)
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("token contains no signatures")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" {
		return "", errors.New("token missing algorithm")
	}
	return alg, nil
}
