package cache

import (
	"context"
	"testing"
	"time"
)

func TestRedisStoreBuildKey(t *testing.T) {
	store := NewRedisStore(nil, "")
	if got := store.buildKey("order:1"); got != "sl:order:1" {
		t.Fatalf("unexpected key: %s", got)
	}
	store = NewRedisStore(nil, " shop ")
	if got := store.buildKey(" "); got != "shop" {
		t.Fatalf("unexpected empty key: %s", got)
	}
}

func TestRedisStoreDisabledIsNoop(t *testing.T) {
	var store *RedisStore
	ctx := context.Background()
	if store.Enabled() {
		t.Fatalf("nil store should be disabled")
	}
	var dest map[string]interface{}
	hit, err := store.GetJSON(ctx, "k", &dest)
	if err != nil || hit {
		t.Fatalf("disabled get should miss without error, hit=%v err=%v", hit, err)
	}
	if err := store.SetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute); err != nil {
		t.Fatalf("disabled set should be noop: %v", err)
	}
	if err := store.Del(ctx, "k"); err != nil {
		t.Fatalf("disabled del should be noop: %v", err)
	}
	if n, err := store.DelPattern(ctx, "products:*"); err != nil || n != 0 {
		t.Fatalf("disabled del pattern should be noop, n=%d err=%v", n, err)
	}
}

func TestKeyHelpers(t *testing.T) {
	if ProductKey(7) != "product:7" {
		t.Fatalf("unexpected product key")
	}
	if OrderKey(9) != "order:9" {
		t.Fatalf("unexpected order key")
	}
	if UserOrdersKey(3) != "orders:user:3" {
		t.Fatalf("unexpected user orders key")
	}
	if len(ProductListKeys()) != 4 {
		t.Fatalf("unexpected list keys")
	}
}
