package session

import (
	"context"
	"testing"
)

// newTestStore connects to a local Redis instance. Tests are skipped if
// Redis is unavailable.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore("localhost:6379", "test-server")
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	const sid = "test_session_lifecycle"

	if err := store.Create(ctx, sid); err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { store.Delete(ctx, sid) })

	sess, err := store.Get(ctx, sid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess == nil || sess.Status != StatusPending || sess.Username != "" {
		t.Fatalf("unexpected fresh session: %+v", sess)
	}
	if sess.Server != "test-server" {
		t.Errorf("expected server test-server, got %q", sess.Server)
	}

	if err := store.Bind(ctx, sid, "alice", 7); err != nil {
		t.Fatalf("bind: %v", err)
	}

	sess, err = store.Get(ctx, sid)
	if err != nil {
		t.Fatalf("get after bind: %v", err)
	}
	if sess.Status != StatusActive || sess.Username != "alice" || sess.UserID != 7 {
		t.Errorf("unexpected bound session: %+v", sess)
	}

	if err := store.Delete(ctx, sid); err != nil {
		t.Fatalf("delete: %v", err)
	}
	sess, err = store.Get(ctx, sid)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil after delete, got %+v", sess)
	}
}

func TestGetMissingSession(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Get(context.Background(), "test_session_missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil for missing session, got %+v", sess)
	}
}
