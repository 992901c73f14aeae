package store

import (
	"context"
	"testing"
	"time"
)

func TestInMemorySetIfAbsentAndExpiry(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if ok, _ := s.SetIfAbsent(ctx, "res", "a", 20*time.Millisecond); !ok {
		t.Fatal("first setifabsent should succeed")
	}
	if ok, _ := s.SetIfAbsent(ctx, "res", "b", time.Second); ok {
		t.Fatal("second setifabsent should fail while held")
	}
	time.Sleep(40 * time.Millisecond)
	if ok, _ := s.SetIfAbsent(ctx, "res", "b", time.Second); !ok {
		t.Fatal("setifabsent should succeed after expiry")
	}
	if val, found, _ := s.Get(ctx, "res"); !found || val != "b" {
		t.Fatalf("get: val %q found %v", val, found)
	}
}

func TestInMemoryCompareAndExtend(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	_, _ = s.SetIfAbsent(ctx, "res", "a", 30*time.Millisecond)
	if ok, _ := s.CompareAndExtend(ctx, "res", "b", time.Second); ok {
		t.Fatal("foreign extend should fail")
	}
	if ok, _ := s.CompareAndExtend(ctx, "res", "a", 200*time.Millisecond); !ok {
		t.Fatal("owner extend should succeed")
	}
	time.Sleep(60 * time.Millisecond)
	if _, found, _ := s.Get(ctx, "res"); !found {
		t.Fatal("key expired despite extension")
	}
}

func TestInMemoryCompareAndDelete(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	_, _ = s.SetIfAbsent(ctx, "res", "a", time.Second)
	if ok, _ := s.CompareAndDelete(ctx, "res", "b"); ok {
		t.Fatal("foreign delete should fail")
	}
	if ok, _ := s.CompareAndDelete(ctx, "res", "a"); !ok {
		t.Fatal("owner delete should succeed")
	}
	if ok, _ := s.CompareAndDelete(ctx, "res", "a"); ok {
		t.Fatal("second delete should report false")
	}
}

func TestInMemoryExpiredEntryNotDeletable(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	_, _ = s.SetIfAbsent(ctx, "res", "a", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if ok, _ := s.CompareAndDelete(ctx, "res", "a"); ok {
		t.Fatal("delete of expired entry should report false")
	}
	if ok, _ := s.Delete(ctx, "res"); ok {
		t.Fatal("unconditional delete of expired entry should report false")
	}
}
