package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryRevocationList_RevokeAndCheck(t *testing.T) {
	list := NewMemoryRevocationList()
	ctx := context.Background()

	if err := list.Revoke(ctx, "token-abc", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	revoked, err := list.IsRevoked(ctx, "token-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Error("expected token-abc to be revoked")
	}

	revoked, _ = list.IsRevoked(ctx, "token-other")
	if revoked {
		t.Error("expected token-other to not be revoked")
	}
}

func TestMemoryRevocationList_ExpiredEntries(t *testing.T) {
	list := NewMemoryRevocationList()
	ctx := context.Background()

	_ = list.Revoke(ctx, "old", time.Now().Add(-time.Minute))
	revoked, _ := list.IsRevoked(ctx, "old")
	if revoked {
		t.Error("expected expired revocation to be ignored")
	}

	// the next write prunes the stale entry
	_ = list.Revoke(ctx, "new", time.Now().Add(time.Hour))
	if list.Count() != 1 {
		t.Errorf("expected 1 entry after prune, got %d", list.Count())
	}
}

func TestMemoryRevocationList_Concurrent(t *testing.T) {
	list := NewMemoryRevocationList()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jti := string(rune('a' + i%26))
			_ = list.Revoke(ctx, jti, exp)
			_, _ = list.IsRevoked(ctx, jti)
		}(i)
	}
	wg.Wait()

	if list.Count() != 26 {
		t.Errorf("expected 26 entries, got %d", list.Count())
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisRevocationList_RevokeAndCheck(t *testing.T) {
	mr, client := newTestRedis(t)
	list := NewRedisRevocationList(client)
	ctx := context.Background()

	if err := list.Revoke(ctx, "token-abc", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists("auth:revoked:token-abc") {
		t.Fatal("expected revocation key to be written")
	}
	if ttl := mr.TTL("auth:revoked:token-abc"); ttl <= 0 || ttl > time.Hour {
		t.Errorf("expected ttl within an hour, got %v", ttl)
	}

	revoked, err := list.IsRevoked(ctx, "token-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Error("expected token-abc to be revoked")
	}

	mr.FastForward(2 * time.Hour)
	revoked, _ = list.IsRevoked(ctx, "token-abc")
	if revoked {
		t.Error("expected revocation to lapse with the token")
	}
}

func TestRedisRevocationList_AlreadyExpired(t *testing.T) {
	mr, client := newTestRedis(t)
	list := NewRedisRevocationList(client)

	if err := list.Revoke(context.Background(), "stale", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mr.Exists("auth:revoked:stale") {
		t.Error("expected no key for an already expired token")
	}
}

func TestRedisRevocationList_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	list := NewRedisRevocationList(client)
	mr.Close()

	if _, err := list.IsRevoked(context.Background(), "any"); err == nil {
		t.Error("expected error when redis is down")
	}
}
