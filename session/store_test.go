package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func newMemoryStore(t *testing.T) (*Store, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	return NewStore(backend, zerolog.Nop()), backend
}

func testPending() Pending {
	return Pending{
		TempToken: "temp.token.sig",
		TempRoles: []string{"ROLE_USER"},
		Email:     "bob@example.com",
	}
}

func TestBeginPendingIsNotAuthenticated(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()

	if err := store.BeginPending(ctx, testPending()); err != nil {
		t.Fatalf("BeginPending failed: %v", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("pending session must not satisfy IsAuthenticated")
	}
	p := store.Pending()
	if p == nil || p.Email != "bob@example.com" || p.TempToken != "temp.token.sig" {
		t.Fatalf("unexpected pending session: %+v", p)
	}
}

func TestEstablishFromPendingClearsTempKeys(t *testing.T) {
	store, backend := newMemoryStore(t)
	ctx := context.Background()

	if err := store.BeginPending(ctx, testPending()); err != nil {
		t.Fatalf("BeginPending failed: %v", err)
	}
	if err := store.EstablishFromPending(ctx, Session{Token: "final", Roles: []string{"ROLE_USER"}}); err != nil {
		t.Fatalf("EstablishFromPending failed: %v", err)
	}
	if !store.IsAuthenticated() {
		t.Fatal("expected authenticated after establish")
	}
	if store.Pending() != nil {
		t.Fatal("expected pending session to be cleared")
	}

	values, _ := backend.Get(ctx, AllKeys...)
	for _, k := range []string{KeyTempToken, KeyTempRoles, KeyPendingEmail} {
		if _, ok := values[k]; ok {
			t.Fatalf("expected %s to be deleted", k)
		}
	}
	if values[KeyToken] != "final" || values[KeyRoles] != `["ROLE_USER"]` {
		t.Fatalf("unexpected persisted values: %v", values)
	}
}

func TestEstablishFromPendingRequiresPending(t *testing.T) {
	store, _ := newMemoryStore(t)
	err := store.EstablishFromPending(context.Background(), Session{Token: "final"})
	if !errors.Is(err, ErrNoPendingSession) {
		t.Fatalf("expected ErrNoPendingSession, got %v", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("session must not exist without a pending session")
	}
}

func TestBeginPendingRejectedWhileAuthenticated(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()
	if err := store.Establish(ctx, Session{Token: "final"}); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	if err := store.BeginPending(ctx, testPending()); !errors.Is(err, ErrAlreadyAuthenticated) {
		t.Fatalf("expected ErrAlreadyAuthenticated, got %v", err)
	}
	if store.Pending() != nil {
		t.Fatal("pending session must not coexist with a final session")
	}
}

func TestConcurrentEstablishFromPendingSucceedsOnce(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()
	if err := store.BeginPending(ctx, testPending()); err != nil {
		t.Fatalf("BeginPending failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.EstablishFromPending(ctx, Session{Token: "final"}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one establish, got %d", successes)
	}
}

func TestClearDeletesEverything(t *testing.T) {
	store, backend := newMemoryStore(t)
	ctx := context.Background()
	if err := store.Establish(ctx, Session{Token: "final", Roles: []string{"ROLE_ADMIN"}}); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if store.IsAuthenticated() || store.Current() != nil {
		t.Fatal("expected no session after Clear")
	}
	values, _ := backend.Get(ctx, AllKeys...)
	if len(values) != 0 {
		t.Fatalf("expected no persisted keys, got %v", values)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("second Clear failed: %v", err)
	}
}

func TestLoadRestoresPersistedSession(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	_ = backend.Apply(ctx, Mutation{Set: map[string]string{
		KeyToken: "persisted",
		KeyRoles: `["ROLE_USER","ROLE_ADMIN"]`,
	}})

	store := NewStore(backend, zerolog.Nop())
	if store.IsAuthenticated() {
		t.Fatal("store must not report state before Load")
	}
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	sess := store.Current()
	if sess == nil || sess.Token != "persisted" || len(sess.Roles) != 2 {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestLoadTreatsUndecodableRolesAsAbsent(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	_ = backend.Apply(ctx, Mutation{Set: map[string]string{
		KeyToken: "persisted",
		KeyRoles: "ROLE_USER",
	}})

	store := NewStore(backend, zerolog.Nop())
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	sess := store.Current()
	if sess == nil || sess.Token != "persisted" {
		t.Fatalf("expected session to survive bad roles, got %+v", sess)
	}
	if len(sess.Roles) != 0 {
		t.Fatalf("expected no roles, got %v", sess.Roles)
	}
}

func TestCurrentReturnsCopy(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()
	if err := store.Establish(ctx, Session{Token: "final", Roles: []string{"ROLE_USER"}}); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	sess := store.Current()
	sess.Roles[0] = "ROLE_ADMIN"
	if store.Current().Roles[0] != "ROLE_USER" {
		t.Fatal("Current must not expose internal state")
	}
}

func TestEmptyTokenRejected(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()
	if err := store.Establish(ctx, Session{}); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
	if err := store.BeginPending(ctx, Pending{Email: "a@b.co"}); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, ...string) (map[string]string, error) {
	return nil, errors.New("disk gone")
}
func (failingBackend) Apply(context.Context, Mutation) error { return errors.New("disk gone") }
func (failingBackend) Close() error                          { return nil }

func TestBackendFailureWrapped(t *testing.T) {
	store := NewStore(failingBackend{}, zerolog.Nop())
	if err := store.Clear(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if err := store.Load(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func FuzzDecodeRoles(f *testing.F) {
	f.Add(`["ROLE_USER"]`)
	f.Add(`[]`)
	f.Add(`ROLE_USER`)
	f.Add(`[1,2]`)
	f.Add(`["", " "]`)

	f.Fuzz(func(t *testing.T, raw string) {
		roles, err := decodeRoles(raw)
		if err != nil {
			return
		}
		for _, r := range roles {
			if r == "" {
				t.Fatal("decoded roles must not contain blanks")
			}
		}
		again, err := decodeRoles(encodeRoles(roles))
		if err != nil || len(again) != len(roles) {
			t.Fatalf("re-encode mismatch: %v %v", roles, again)
		}
	})
}

func TestClearIfComparesToken(t *testing.T) {
	store, backend := newMemoryStore(t)
	ctx := context.Background()
	if err := store.Establish(ctx, Session{Token: "current"}); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}

	cleared, err := store.ClearIf(ctx, "older")
	if err != nil || cleared {
		t.Fatalf("expected no clear for another token, got cleared=%v err=%v", cleared, err)
	}
	if !store.IsAuthenticated() {
		t.Fatal("a mismatched token must leave the session alone")
	}

	cleared, err = store.ClearIf(ctx, "current")
	if err != nil || !cleared {
		t.Fatalf("expected clear, got cleared=%v err=%v", cleared, err)
	}
	values, _ := backend.Get(ctx, AllKeys...)
	if store.IsAuthenticated() || len(values) != 0 {
		t.Fatalf("expected everything cleared, got %v", values)
	}
}

func TestClearIfSeesOtherStoreWrites(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	stale := NewStore(backend, zerolog.Nop())
	if err := stale.Establish(ctx, Session{Token: "old"}); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}

	fresh := NewStore(backend, zerolog.Nop())
	if err := fresh.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := fresh.Establish(ctx, Session{Token: "new"}); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}

	cleared, err := stale.ClearIf(ctx, "old")
	if err != nil || cleared {
		t.Fatalf("expected persisted newer login to be kept, got cleared=%v err=%v", cleared, err)
	}
	if cur := stale.Current(); cur == nil || cur.Token != "new" {
		t.Fatalf("expected reload to pick up the newer session, got %+v", cur)
	}
}
