package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *redisIdempotency) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return srv, NewRedisIdempotencyStore(client).(*redisIdempotency)
}

func TestAcquireLock_FirstWins(t *testing.T) {
	srv, store := newTestStore(t)
	ctx := context.Background()
	id := uuid.New()

	ok, err := store.AcquireLock(ctx, id)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got %v, %v", ok, err)
	}
	ok, err = store.AcquireLock(ctx, id)
	if err != nil || ok {
		t.Fatalf("expected second acquire to report duplicate, got %v, %v", ok, err)
	}

	if got := srv.TTL(lockKey(id)); got != lockTTL {
		t.Errorf("expected ttl %v, got %v", lockTTL, got)
	}
}

func TestAcquireLock_ExpiredLockCanBeRetaken(t *testing.T) {
	srv, store := newTestStore(t)
	ctx := context.Background()
	id := uuid.New()

	if ok, _ := store.AcquireLock(ctx, id); !ok {
		t.Fatal("expected lock")
	}
	srv.FastForward(lockTTL)

	ok, err := store.AcquireLock(ctx, id)
	if err != nil || !ok {
		t.Fatalf("expected lock after expiry, got %v, %v", ok, err)
	}
}

func TestReleaseLock_KeepsDuplicateMarker(t *testing.T) {
	srv, store := newTestStore(t)
	ctx := context.Background()
	id := uuid.New()

	if ok, _ := store.AcquireLock(ctx, id); !ok {
		t.Fatal("expected lock")
	}
	if err := store.ReleaseLock(ctx, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := srv.TTL(lockKey(id)); got != doneTTL {
		t.Errorf("expected ttl %v, got %v", doneTTL, got)
	}
	if ok, _ := store.AcquireLock(ctx, id); ok {
		t.Error("expected redelivery after release to be a duplicate")
	}
}

func TestAcquireLock_ServerDown(t *testing.T) {
	srv, store := newTestStore(t)
	srv.Close()

	if _, err := store.AcquireLock(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error when redis is unavailable")
	}
}

func TestClearLock_AllowsReprocessing(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()
	id := uuid.New()

	if ok, _ := store.AcquireLock(ctx, id); !ok {
		t.Fatal("expected lock")
	}
	if err := store.ClearLock(ctx, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := store.AcquireLock(ctx, id); !ok {
		t.Error("expected lock to be acquirable after clear")
	}
}
