package auth

import (
	"context"
	"errors"
	"testing"

	"lv-exchange/internal/apperr"
	"lv-exchange/internal/storage"
	"lv-exchange/internal/types"

	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	return NewService(store, "lv-exchange-test", []byte("test-secret"), zap.NewNop()), store
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	u, err := svc.Register(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Role != types.RoleUser {
		t.Fatalf("want USER role, got %s", u.Role)
	}
	if u.APIKey == "" {
		t.Fatal("no api key issued")
	}
	if u.PasswordHash == "s3cret" {
		t.Fatal("password stored in clear")
	}

	got, err := svc.Authenticate(ctx, u.APIKey)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("wrong user: %s", got.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.Register(ctx, "ab", "pw"); err == nil {
		t.Fatal("short name accepted")
	}
	if _, err := svc.Register(ctx, "alice", ""); err == nil {
		t.Fatal("empty password accepted")
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.Register(ctx, "alice", "one"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "two"); !errors.Is(err, apperr.ErrDuplicateKey) {
		t.Fatalf("want ErrDuplicateKey, got %v", err)
	}
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := svc.Authenticate(ctx, token); !errors.Is(err, apperr.ErrUnauthorized) {
			t.Fatalf("token %q: want ErrUnauthorized, got %v", token, err)
		}
	}
}

func TestAuthenticateRejectsForeignSignature(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	other := NewService(storage.NewMemory(), "lv-exchange-test", []byte("other-secret"), zap.NewNop())

	u, err := other.Register(ctx, "mallory", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Authenticate(ctx, u.APIKey); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

// Deleting a user revokes their key even though the token itself still
// verifies.
func TestDeletedUserKeyRevoked(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	u, err := svc.Register(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	err = storage.InTx(ctx, store, func(tx storage.Tx) error {
		_, err := tx.DeleteUser(ctx, u.ID)
		return err
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Authenticate(ctx, u.APIKey); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestEnsureAdminIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	if err := svc.EnsureAdmin(ctx, "root", "pw"); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := svc.EnsureAdmin(ctx, "root", "pw"); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	u, err := store.UserByName(ctx, "root")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.Role != types.RoleAdmin {
		t.Fatalf("want ADMIN role, got %s", u.Role)
	}
}
