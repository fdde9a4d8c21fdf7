// Package auth implements password verification against a UserStorer and
// HS256 JWT minting/parsing. Request authorization (the bearer-check
// middleware) lives in internal/server, in the shape of an admin auth
// middleware; this package only handles credentials and tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/flowloom/loom/internal/service"
)

// ErrInvalidCredentials is returned by Authenticate when the username is
// unknown or the password does not match the stored hash. It is
// deliberately identical for both cases to avoid leaking which one failed.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrInvalidToken is returned by CurrentUser when a token is malformed,
// expired, or signed with an unexpected algorithm, or when the user it
// names no longer exists.
var ErrInvalidToken = errors.New("invalid or expired token")

// Service authenticates users and mints/verifies JWTs scoped to them.
type Service struct {
	users   service.UserStorer
	secret  []byte
	expiry  time.Duration
	nowFunc func() time.Time
}

// Option configures a Service beyond its required collaborators.
type Option func(*Service)

// WithNow overrides the clock used for token issuance and expiry, for
// tests that need deterministic timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.nowFunc = now }
}

// New builds a Service backed by users, signing tokens with secret and
// expiring them after expiry.
func New(users service.UserStorer, secret string, expiry time.Duration, opts ...Option) *Service {
	s := &Service{
		users:   users,
		secret:  []byte(secret),
		expiry:  expiry,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashPassword bcrypt-hashes a plaintext password for storage on User.PasswordHash.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// claims is the JWT payload: standard registered claims plus the user ID,
// since the registered "sub" claim already carries the username.
type claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// Authenticate verifies username/password against the user store and, on
// success, mints a signed JWT for that user.
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, *service.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return "", nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.mint(user)
	if err != nil {
		return "", nil, fmt.Errorf("mint token: %w", err)
	}

	return token, user, nil
}

// mint builds and signs a JWT for user, valid for s.expiry.
func (s *Service) mint(user *service.User) (string, error) {
	now := s.nowFunc()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		UserID: user.ID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(s.secret)
}

// CurrentUser parses and verifies tokenString, then loads the user named
// by its "uid" claim from the store. It returns ErrInvalidToken for any
// signature, expiry, or algorithm mismatch and when no user has that ID,
// and a wrapped lookup error if the store itself fails.
func (s *Service) CurrentUser(ctx context.Context, tokenString string) (*service.User, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetUser(ctx, c.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	return user, nil
}
