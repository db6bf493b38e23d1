package margin

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisCache(t *testing.T) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("REDIS_HOST not set")
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port)})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	cache := NewRedisCache(rdb)
	key := fmt.Sprintf("nimo-bom:test:%d", time.Now().UnixNano())
	defer rdb.Del(ctx, key)

	if _, ok, err := cache.Get(ctx, key); err != nil || ok {
		t.Fatalf("Expected miss, got ok=%v err=%v", ok, err)
	}
	if err := cache.Set(ctx, key, []byte(`{"items":[]}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, err := cache.Get(ctx, key)
	if err != nil || !ok || string(v) != `{"items":[]}` {
		t.Errorf("Expected hit, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestNopCache(t *testing.T) {
	var c Cache = NopCache{}
	if err := c.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(context.Background(), "k"); ok {
		t.Error("NopCache should never hit")
	}
}
