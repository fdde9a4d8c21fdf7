package auth

import (
	"context"
	"testing"
	"time"

	"github.com/flowloom/loom/internal/service"
)

type fakeUsers struct {
	byID       map[string]service.User
	byUsername map[string]service.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byID:       map[string]service.User{},
		byUsername: map[string]service.User{},
	}
}

func (f *fakeUsers) add(u service.User) {
	f.byID[u.ID] = u
	f.byUsername[u.Username] = u
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (*service.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, username string) (*service.User, error) {
	u, ok := f.byUsername[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeUsers) CreateUser(_ context.Context, u service.User) (*service.User, error) {
	f.add(u)
	return &u, nil
}

func newTestUser(t *testing.T, username, password string) service.User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return service.User{ID: "user-1", Username: username, PasswordHash: hash, CreatedAt: "2026-01-01T00:00:00Z"}
}

func TestAuthenticateSuccess(t *testing.T) {
	users := newFakeUsers()
	users.add(newTestUser(t, "alice", "correct-horse"))

	svc := New(users, "test-signing-secret", time.Hour)

	token, user, err := svc.Authenticate(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("username = %q, want alice", user.Username)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	got, err := svc.CurrentUser(context.Background(), token)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("CurrentUser ID = %q, want %q", got.ID, user.ID)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	users := newFakeUsers()
	users.add(newTestUser(t, "alice", "correct-horse"))

	svc := New(users, "test-signing-secret", time.Hour)

	_, _, err := svc.Authenticate(context.Background(), "alice", "wrong-password")
	if err != ErrInvalidCredentials {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateUnknownUser(t *testing.T) {
	users := newFakeUsers()
	svc := New(users, "test-signing-secret", time.Hour)

	_, _, err := svc.Authenticate(context.Background(), "ghost", "whatever")
	if err != ErrInvalidCredentials {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestCurrentUserExpiredToken(t *testing.T) {
	users := newFakeUsers()
	users.add(newTestUser(t, "alice", "correct-horse"))

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	svc := New(users, "test-signing-secret", time.Minute, WithNow(func() time.Time { return now }))

	token, _, err := svc.Authenticate(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	now = start.Add(2 * time.Minute)

	if _, err := svc.CurrentUser(context.Background(), token); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestCurrentUserWrongSecret(t *testing.T) {
	users := newFakeUsers()
	users.add(newTestUser(t, "alice", "correct-horse"))

	svc := New(users, "secret-a", time.Hour)
	token, _, err := svc.Authenticate(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	other := New(users, "secret-b", time.Hour)
	if _, err := other.CurrentUser(context.Background(), token); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
