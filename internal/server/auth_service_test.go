package server

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	internalauth "assetd/internal/auth"
	"assetd/internal/store"
)

func TestAuthServiceLoginIssuesHashedSession(t *testing.T) {
	fake := newFakeAuthStore()
	fake.addUser(t, "alice", "password-123", store.UserRoleMember)
	svc := NewAuthService(fake)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	result, err := svc.Login(context.Background(), " Alice ", "password-123", now)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected session token")
	}
	if !result.ExpiresAt.Equal(now.Add(defaultSessionTTL)) {
		t.Fatalf("unexpected expiry %s", result.ExpiresAt)
	}
	if _, ok := fake.sessions[result.Token]; ok {
		t.Fatal("raw session token must not be persisted")
	}
	if _, ok := fake.sessions[hashSessionToken(result.Token)]; !ok {
		t.Fatal("expected hashed session token to be persisted")
	}

	user, err := svc.AuthenticateSessionToken(context.Background(), result.Token, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user == nil || user.Username != "alice" {
		t.Fatalf("unexpected session user %+v", user)
	}

	expired, err := svc.AuthenticateSessionToken(context.Background(), result.Token, now.Add(defaultSessionTTL+time.Second))
	if err != nil {
		t.Fatalf("authenticate expired: %v", err)
	}
	if expired != nil {
		t.Fatal("expected expired session to be rejected")
	}

	if err := svc.RevokeSessionToken(context.Background(), result.Token, now.Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := svc.AuthenticateSessionToken(context.Background(), result.Token, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("authenticate revoked: %v", err)
	}
	if revoked != nil {
		t.Fatal("expected revoked session to be rejected")
	}
}

func TestAuthServiceLoginRejections(t *testing.T) {
	fake := newFakeAuthStore()
	fake.addUser(t, "alice", "password-123", store.UserRoleMember)
	fake.addUser(t, "bob", "password-123", store.UserRoleMember)
	fake.users["bob"].Disabled = true
	svc := NewAuthService(fake)
	now := time.Now().UTC()

	cases := []struct {
		name     string
		username string
		password string
		invalid  bool
	}{
		{name: "wrong password", username: "alice", password: "password-999", invalid: true},
		{name: "unknown user", username: "carol", password: "password-123", invalid: true},
		{name: "disabled user", username: "bob", password: "password-123", invalid: true},
		{name: "empty password", username: "alice", password: "  "},
		{name: "invalid username", username: "no spaces allowed", password: "password-123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := svc.Login(context.Background(), tc.username, tc.password, now)
			if err == nil {
				t.Fatalf("expected login error, got %+v", result)
			}
			if got := errors.Is(err, errInvalidCredentials); got != tc.invalid {
				t.Fatalf("errInvalidCredentials=%v, want %v (%v)", got, tc.invalid, err)
			}
		})
	}
	if len(fake.sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(fake.sessions))
	}
}

func TestAuthServiceCreateUserNormalizes(t *testing.T) {
	fake := newFakeAuthStore()
	svc := NewAuthService(fake)
	now := time.Now().UTC()

	user, err := svc.CreateUser(context.Background(), "  Dana.Ops ", "password-123", store.UserRoleAdmin, now)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Username != "dana.ops" || user.Role != store.UserRoleAdmin {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.PasswordHash == "password-123" || !internalauth.VerifyPassword(user.PasswordHash, "password-123") {
		t.Fatal("expected bcrypt password hash")
	}

	if _, err := svc.CreateUser(context.Background(), "eve", "short", store.UserRoleMember, now); err == nil {
		t.Fatal("expected short password to be rejected")
	}
	if _, err := svc.CreateUser(context.Background(), "-eve", "password-123", store.UserRoleMember, now); err == nil {
		t.Fatal("expected invalid username to be rejected")
	}
	if len(fake.users) != 1 {
		t.Fatalf("expected one stored user, got %d", len(fake.users))
	}

	disabled, err := svc.SetUserDisabled(context.Background(), "DANA.OPS", true, now)
	if err != nil {
		t.Fatalf("disable: %v", err)
	}
	if disabled == nil || !disabled.Disabled {
		t.Fatalf("expected disabled user, got %+v", disabled)
	}

	deleted, err := svc.DeleteUser(context.Background(), "dana.ops")
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = svc.DeleteUser(context.Background(), "dana.ops")
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
}

func TestNewAuthServiceNilStore(t *testing.T) {
	if svc := NewAuthService(nil); svc != nil {
		t.Fatal("expected nil service without a store")
	}
	var svc *AuthService
	user, err := svc.AuthenticateSessionToken(context.Background(), "token", time.Now())
	if err != nil || user != nil {
		t.Fatalf("expected nil user and error, got %+v %v", user, err)
	}
}

type fakeSession struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

type fakeAuthStore struct {
	users    map[string]*store.AuthUser
	sessions map[string]*fakeSession
	nextID   int
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		users:    map[string]*store.AuthUser{},
		sessions: map[string]*fakeSession{},
	}
}

func (f *fakeAuthStore) addUser(t *testing.T, username, password, role string) {
	t.Helper()
	hash, err := internalauth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := f.CreateUser(context.Background(), username, hash, role, time.Now().UTC()); err != nil {
		t.Fatalf("add user: %v", err)
	}
}

func (f *fakeAuthStore) CountEnabledUsers(context.Context) (int, error) {
	count := 0
	for _, user := range f.users {
		if !user.Disabled {
			count++
		}
	}
	return count, nil
}

func (f *fakeAuthStore) CreateAdminUser(ctx context.Context, username, passwordHash string, now time.Time) (*store.AuthUser, error) {
	return f.CreateUser(ctx, username, passwordHash, store.UserRoleAdmin, now)
}

func (f *fakeAuthStore) CreateUser(_ context.Context, username, passwordHash, role string, now time.Time) (*store.AuthUser, error) {
	if _, exists := f.users[username]; exists {
		return nil, errors.New("UNIQUE constraint failed: users.username")
	}
	f.nextID++
	user := &store.AuthUser{
		ID:           "usr-" + strconv.Itoa(f.nextID),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.users[username] = user
	copied := *user
	return &copied, nil
}

func (f *fakeAuthStore) GetUserByUsername(_ context.Context, username string) (*store.AuthUser, error) {
	user, ok := f.users[username]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (f *fakeAuthStore) GetUserByID(_ context.Context, id string) (*store.AuthUser, error) {
	for _, user := range f.users {
		if user.ID == id {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeAuthStore) ListUsers(context.Context) ([]store.AuthUser, error) {
	out := make([]store.AuthUser, 0, len(f.users))
	for _, user := range f.users {
		out = append(out, *user)
	}
	return out, nil
}

func (f *fakeAuthStore) SetUserDisabled(_ context.Context, username string, disabled bool, now time.Time) (*store.AuthUser, error) {
	user, ok := f.users[username]
	if !ok {
		return nil, nil
	}
	user.Disabled = disabled
	user.UpdatedAt = now
	copied := *user
	return &copied, nil
}

func (f *fakeAuthStore) DeleteUser(_ context.Context, username string) (bool, error) {
	if _, ok := f.users[username]; !ok {
		return false, nil
	}
	delete(f.users, username)
	return true, nil
}

func (f *fakeAuthStore) CreateSession(_ context.Context, userID, tokenHash string, expiresAt, _ time.Time) error {
	f.sessions[tokenHash] = &fakeSession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeAuthStore) GetUserBySessionTokenHash(ctx context.Context, tokenHash string, now time.Time) (*store.AuthUser, error) {
	session, ok := f.sessions[tokenHash]
	if !ok || session.revoked || !now.Before(session.expiresAt) {
		return nil, nil
	}
	return f.GetUserByID(ctx, session.userID)
}

func (f *fakeAuthStore) RevokeSessionByTokenHash(_ context.Context, tokenHash string, _ time.Time) error {
	if session, ok := f.sessions[tokenHash]; ok {
		session.revoked = true
	}
	return nil
}

func TestAuthServiceClassifiesInputErrors(t *testing.T) {
	svc := NewAuthService(newFakeAuthStore())
	now := time.Now().UTC()

	_, err := svc.Login(context.Background(), "bad name", "password-123", now)
	if !isCredentialError(err) {
		t.Fatalf("expected credential error for malformed username, got %v", err)
	}
	_, err = svc.Login(context.Background(), "nobody", "password-123", now)
	if !errors.Is(err, errInvalidCredentials) || isCredentialError(err) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
	_, err = svc.CreateUser(context.Background(), "frank", "password-123", "owner", now)
	if !isCredentialError(err) {
		t.Fatalf("expected credential error for unknown role, got %v", err)
	}
}
