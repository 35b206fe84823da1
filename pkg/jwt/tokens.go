package jwt

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the token lifetime used when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

const issuer = "studi-bareng"

var (
	// ErrEmptySecret is returned when the signing secret is not configured.
	ErrEmptySecret = errors.New("jwt: signing secret is empty")
	// ErrMalformed means the token could not be parsed at all.
	ErrMalformed = errors.New("jwt: token malformed")
	// ErrInvalid means the token parsed but failed signature or claim checks.
	ErrInvalid = errors.New("jwt: token invalid")
	// ErrExpired means the token is authentic but past its expiry.
	ErrExpired = errors.New("jwt: token expired")
)

// Claims defines JWT payload.
type Claims struct {
	UserID          string `json:"id"`
	Email           string `json:"email"`
	VerificationTag string `json:"token"`
	jwtlib.RegisteredClaims
}

// Codec signs and verifies HS256 tokens with a single secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec returns a Codec. A non-positive ttl falls back to DefaultTTL.
func NewCodec(secret string, ttl time.Duration) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL reports the lifetime of issued tokens.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a token carrying the identity claims.
func (c *Codec) Issue(userID, email, tag string) (string, error) {
	now := c.now()
	claims := Claims{
		UserID:          userID,
		Email:           email,
		VerificationTag: tag,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(c.ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify validates signature and expiry and returns the claims.
// Failures are reported as ErrMalformed, ErrInvalid or ErrExpired.
func (c *Codec) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMalformed
	}
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.UserID == "" || claims.VerificationTag == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwtlib.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrInvalid
	}
}
