package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "caixa"

var (
	// ErrInvalidToken covers every rejection reason: malformed, bad
	// signature, expired or revoked.
	ErrInvalidToken  = errors.New("invalid session token")
	ErrMissingSecret = errors.New("session signing secret is required")
)

// RevocationList is an optional denylist of token IDs. A zero until keeps
// the entry indefinitely.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type Claims struct {
	Username  string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasExpiry is false for tokens issued with no lifetime.
func (c Claims) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

type TokenCodec struct {
	secret  []byte
	ttl     time.Duration
	revoked RevocationList
	now     func() time.Time
}

// NewTokenCodec builds an HS256 codec. A ttl of zero issues tokens without
// an expiry claim.
func NewTokenCodec(secret string, ttl time.Duration) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	if ttl < 0 {
		ttl = 0
	}
	return &TokenCodec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithRevocationList makes Validate consult list.
func (c *TokenCodec) WithRevocationList(list RevocationList) *TokenCodec {
	c.revoked = list
	return c
}

func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

func (c *TokenCodec) Issue(username string) (string, Claims, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", Claims{}, errors.New("token subject required")
	}

	now := c.now().UTC().Truncate(time.Second)
	claims := Claims{
		Username: username,
		TokenID:  uuid.NewString(),
		IssuedAt: now,
	}
	registered := jwtlib.RegisteredClaims{
		Subject:  username,
		ID:       claims.TokenID,
		Issuer:   tokenIssuer,
		IssuedAt: jwtlib.NewNumericDate(now),
	}
	if c.ttl > 0 {
		claims.ExpiresAt = now.Add(c.ttl)
		registered.ExpiresAt = jwtlib.NewNumericDate(claims.ExpiresAt)
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, registered)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, claims, nil
}

func (c *TokenCodec) Validate(ctx context.Context, tokenStr string) (Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return Claims{}, ErrInvalidToken
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithTimeFunc(c.now),
	}
	if c.ttl > 0 {
		opts = append(opts, jwtlib.WithExpirationRequired())
	}

	registered := &jwtlib.RegisteredClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, registered, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if registered.Subject == "" || registered.ID == "" {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{
		Username: registered.Subject,
		TokenID:  registered.ID,
	}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time.UTC()
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time.UTC()
	}

	if c.revoked != nil {
		revoked, err := c.revoked.IsRevoked(ctx, claims.TokenID)
		if err != nil || revoked {
			return Claims{}, ErrInvalidToken
		}
	}
	return claims, nil
}
