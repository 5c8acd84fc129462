package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newRedisBackendTest(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisBackend(rdb, "lt"), mr
}

func TestRedisBackendEstablishIsAtomic(t *testing.T) {
	backend, mr := newRedisBackendTest(t)
	store := NewStore(backend, zerolog.Nop())
	ctx := context.Background()

	if err := store.BeginPending(ctx, testPending()); err != nil {
		t.Fatalf("BeginPending failed: %v", err)
	}
	if got, _ := mr.Get("lt:" + KeyPendingEmail); got != "bob@example.com" {
		t.Fatalf("expected pending email in redis, got %q", got)
	}

	if err := store.EstablishFromPending(ctx, Session{Token: "final", Roles: []string{"ROLE_USER"}}); err != nil {
		t.Fatalf("EstablishFromPending failed: %v", err)
	}
	for _, k := range []string{KeyTempToken, KeyTempRoles, KeyPendingEmail} {
		if mr.Exists("lt:" + k) {
			t.Fatalf("expected %s to be deleted", k)
		}
	}
	if got, _ := mr.Get("lt:" + KeyToken); got != "final" {
		t.Fatalf("expected final token, got %q", got)
	}
}

func TestRedisBackendSharedAcrossStores(t *testing.T) {
	backend, _ := newRedisBackendTest(t)
	ctx := context.Background()

	first := NewStore(backend, zerolog.Nop())
	if err := first.Establish(ctx, Session{Token: "final", Roles: []string{"ROLE_ADMIN"}}); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}

	second := NewStore(backend, zerolog.Nop())
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !second.IsAuthenticated() {
		t.Fatal("expected second store to see the shared session")
	}
	if err := second.BeginPending(ctx, testPending()); err == nil {
		t.Fatal("expected BeginPending to be rejected while a shared session exists")
	}

	if err := second.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := first.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if first.IsAuthenticated() {
		t.Fatal("expected logout to be visible to the first store")
	}
}

func TestRedisBackendUnavailable(t *testing.T) {
	backend, mr := newRedisBackendTest(t)
	mr.Close()
	store := NewStore(backend, zerolog.Nop())
	if err := store.Load(context.Background()); err == nil {
		t.Fatal("expected error when redis is down")
	}
}
