package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/store"
)

// ErrInvalidCredentials is returned for unknown users, wrong passwords and
// inactive accounts alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

type UserStore interface {
	FindUser(ctx context.Context, username string) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// MaxAge is the cookie lifetime in seconds; zero means a browser-session cookie.
func (s Session) MaxAge(now time.Time) int {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	secs := int(s.ExpiresAt.Sub(now).Seconds())
	if secs < 1 {
		return -1
	}
	return secs
}

type AuthManager struct {
	codec   *TokenCodec
	users   UserStore
	revoked RevocationList
	dummy   string
}

func NewAuthManager(codec *TokenCodec, users UserStore, revoked RevocationList) *AuthManager {
	if revoked != nil {
		codec.WithRevocationList(revoked)
	}
	return &AuthManager{
		codec:   codec,
		users:   users,
		revoked: revoked,
		dummy:   dummyHash(),
	}
}

func (a *AuthManager) Codec() *TokenCodec {
	return a.codec
}

// Login always performs exactly one slow hash comparison, whether or not the
// username exists.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (Session, error) {
	username := normalizeUsername(req.Username)

	var user *domain.UserAccount
	if username != "" {
		found, err := a.users.FindUser(ctx, username)
		switch {
		case err == nil:
			user = found
		case errors.Is(err, store.ErrNotFound):
		default:
			return Session{}, fmt.Errorf("lookup user: %w", err)
		}
	}

	stored := a.dummy
	if user != nil {
		stored = user.Password
	}
	valid := VerifyPassword(stored, req.Password)
	if user == nil || !valid || !user.Active {
		return Session{}, ErrInvalidCredentials
	}

	if !isBcryptHash(user.Password) {
		a.upgradeHash(ctx, user.Username, req.Password)
	}

	token, claims, err := a.codec.Issue(user.Username)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Resolve maps a presented token to an actor. Any failure is anonymous.
func (a *AuthManager) Resolve(ctx context.Context, token string) (domain.Actor, bool) {
	claims, err := a.codec.Validate(ctx, token)
	if err != nil {
		return domain.Actor{}, false
	}
	return domain.Actor{Username: claims.Username}, true
}

// Logout denylists the token when a revocation list is configured. Without
// one, an already-issued token stays valid until it expires.
func (a *AuthManager) Logout(ctx context.Context, token string) error {
	if a.revoked == nil {
		return nil
	}
	claims, err := a.codec.Validate(ctx, token)
	if err != nil {
		return nil
	}
	// A token with no expiry is denylisted with a zero until, which the
	// lists keep forever.
	return a.revoked.Revoke(ctx, claims.TokenID, claims.ExpiresAt)
}

// upgradeHash rewrites legacy pbkdf2 hashes as bcrypt after a successful
// login. Failure only costs another upgrade attempt next time.
func (a *AuthManager) upgradeHash(ctx context.Context, username string, password string) {
	hashed, err := HashPassword(password)
	if err != nil {
		return
	}
	if err := a.users.UpdateUserPassword(ctx, username, hashed); err != nil {
		log.Warn().Err(err).Str("username", username).Msg("password hash upgrade failed")
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
