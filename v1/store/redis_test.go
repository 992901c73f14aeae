package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	rlerrors "github.com/mirkobrombin/go-redlease/v1/errors"
)

func newRedisStore(t *testing.T) (*RedisStore, *redis.Client, *miniredis.Miniredis, context.Context) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return NewRedisStore(client), client, mr, context.Background()
}

func TestRedisSetIfAbsentAdmitsOnlyFirstOwner(t *testing.T) {
	s, _, _, ctx := newRedisStore(t)

	ok, err := s.SetIfAbsent(ctx, "res", "owner-a", time.Second)
	if err != nil || !ok {
		t.Fatalf("first setifabsent: ok %v err %v", ok, err)
	}
	ok, err = s.SetIfAbsent(ctx, "res", "owner-b", time.Second)
	if err != nil || ok {
		t.Fatalf("second setifabsent should fail: ok %v err %v", ok, err)
	}
	val, found, err := s.Get(ctx, "res")
	if err != nil || !found || val != "owner-a" {
		t.Fatalf("get: val %q found %v err %v", val, found, err)
	}
}

func TestRedisCompareAndExtend(t *testing.T) {
	s, _, mr, ctx := newRedisStore(t)

	if ok, err := s.SetIfAbsent(ctx, "res", "owner-a", time.Second); err != nil || !ok {
		t.Fatalf("setifabsent: ok %v err %v", ok, err)
	}
	ok, err := s.CompareAndExtend(ctx, "res", "owner-a", 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("extend with matching token: ok %v err %v", ok, err)
	}
	if ttl := mr.TTL("res"); ttl != 5*time.Second {
		t.Fatalf("ttl not extended, got %v", ttl)
	}
	ok, err = s.CompareAndExtend(ctx, "res", "owner-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("extend with foreign token should fail: ok %v err %v", ok, err)
	}
	if ttl := mr.TTL("res"); ttl != 5*time.Second {
		t.Fatalf("foreign extend touched ttl, got %v", ttl)
	}
}

func TestRedisCompareAndDelete(t *testing.T) {
	s, _, _, ctx := newRedisStore(t)

	if ok, err := s.SetIfAbsent(ctx, "res", "owner-a", time.Minute); err != nil || !ok {
		t.Fatalf("setifabsent: ok %v err %v", ok, err)
	}
	if ok, err := s.CompareAndDelete(ctx, "res", "owner-b"); err != nil || ok {
		t.Fatalf("foreign delete should fail: ok %v err %v", ok, err)
	}
	if _, found, _ := s.Get(ctx, "res"); !found {
		t.Fatal("foreign delete removed the key")
	}
	if ok, err := s.CompareAndDelete(ctx, "res", "owner-a"); err != nil || !ok {
		t.Fatalf("owner delete: ok %v err %v", ok, err)
	}
	if ok, err := s.CompareAndDelete(ctx, "res", "owner-a"); err != nil || ok {
		t.Fatalf("second delete should report false: ok %v err %v", ok, err)
	}
}

func TestRedisExpiryReclaims(t *testing.T) {
	s, _, mr, ctx := newRedisStore(t)

	if ok, err := s.SetIfAbsent(ctx, "res", "owner-a", time.Second); err != nil || !ok {
		t.Fatalf("setifabsent: ok %v err %v", ok, err)
	}
	mr.FastForward(2 * time.Second)
	ok, err := s.SetIfAbsent(ctx, "res", "owner-b", time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire after expiry: ok %v err %v", ok, err)
	}
}

func TestRedisClosedClientMapsToSentinel(t *testing.T) {
	s, client, _, ctx := newRedisStore(t)
	_ = client.Close()
	if _, _, err := s.Get(ctx, "res"); !errors.Is(err, rlerrors.ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}
