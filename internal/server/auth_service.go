package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	internalauth "assetd/internal/auth"
	"assetd/internal/store"
)

const (
	sessionCookieName  = "assetd_session"
	authTypeBearer     = "bearer"
	authTypeSession    = "session"
	authTypeAdminToken = "admin_token"
)

var defaultSessionTTL = 24 * time.Hour

var errInvalidCredentials = errors.New("invalid credentials")

// AuthService encapsulates login and user provisioning backed by the store.
type AuthService struct {
	store      store.AuthStore
	sessionTTL time.Duration
}

type authLoginResult struct {
	User      *store.AuthUser
	Token     string
	ExpiresAt time.Time
}

func NewAuthService(authStore store.AuthStore) *AuthService {
	if authStore == nil {
		return nil
	}
	return &AuthService{store: authStore, sessionTTL: defaultSessionTTL}
}

// credentialError marks a malformed username, password or role. Handlers map
// it to 400 while errInvalidCredentials stays 401.
type credentialError struct{ err error }

func (e credentialError) Error() string { return e.err.Error() }
func (e credentialError) Unwrap() error { return e.err }

func isCredentialError(err error) bool {
	var ce credentialError
	return errors.As(err, &ce)
}

func username(raw string) (string, error) {
	normalized, err := internalauth.NormalizeUsername(raw)
	if err != nil {
		return "", credentialError{err}
	}
	return normalized, nil
}

// Login checks the password and opens a session. Unknown, disabled and
// wrong-password accounts all fail with errInvalidCredentials.
func (a *AuthService) Login(ctx context.Context, rawUsername, password string, now time.Time) (*authLoginResult, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("auth store is required")
	}
	name, err := username(rawUsername)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(password) == "" {
		return nil, credentialError{errors.New("password is required")}
	}

	user, err := a.store.GetUserByUsername(ctx, name)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Disabled || !internalauth.VerifyPassword(user.PasswordHash, password) {
		return nil, errInvalidCredentials
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, err
	}
	result := &authLoginResult{User: user, Token: token, ExpiresAt: now.Add(a.sessionTTL)}
	if err := a.store.CreateSession(ctx, user.ID, hashSessionToken(token), result.ExpiresAt, now); err != nil {
		return nil, err
	}
	return result, nil
}

// AuthenticateSessionToken returns nil for unknown, expired or revoked tokens.
func (a *AuthService) AuthenticateSessionToken(ctx context.Context, token string, now time.Time) (*store.AuthUser, error) {
	token = strings.TrimSpace(token)
	if a == nil || a.store == nil || token == "" {
		return nil, nil
	}
	return a.store.GetUserBySessionTokenHash(ctx, hashSessionToken(token), now)
}

func (a *AuthService) RevokeSessionToken(ctx context.Context, token string, now time.Time) error {
	token = strings.TrimSpace(token)
	if a == nil || a.store == nil || token == "" {
		return nil
	}
	return a.store.RevokeSessionByTokenHash(ctx, hashSessionToken(token), now)
}

// CreateUser validates credentials, hashes the password and stores the user.
func (a *AuthService) CreateUser(ctx context.Context, rawUsername, password, role string, now time.Time) (*store.AuthUser, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("auth store is required")
	}
	name, err := username(rawUsername)
	if err != nil {
		return nil, err
	}
	if role, err = internalauth.NormalizeRole(role); err != nil {
		return nil, credentialError{err}
	}
	hash, err := internalauth.HashPassword(password)
	if err != nil {
		return nil, credentialError{err}
	}
	return a.store.CreateUser(ctx, name, hash, role, now)
}

func (a *AuthService) ListUsers(ctx context.Context) ([]store.AuthUser, error) {
	return a.store.ListUsers(ctx)
}

// SetUserDisabled returns nil when the user does not exist.
func (a *AuthService) SetUserDisabled(ctx context.Context, rawUsername string, disabled bool, now time.Time) (*store.AuthUser, error) {
	name, err := username(rawUsername)
	if err != nil {
		return nil, err
	}
	return a.store.SetUserDisabled(ctx, name, disabled, now)
}

func (a *AuthService) DeleteUser(ctx context.Context, rawUsername string) (bool, error) {
	name, err := username(rawUsername)
	if err != nil {
		return false, err
	}
	return a.store.DeleteUser(ctx, name)
}

func hashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
