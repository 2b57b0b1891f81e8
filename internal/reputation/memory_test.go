package reputation

import (
	"context"
	"testing"
	"time"
)

func TestMemoryClientLifecycle(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryClient()

	if err := client.Set(ctx, "blacklist:ip:198.51.100.7", `{"ip":"198.51.100.7"}`, 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	value, found, err := client.Get(ctx, "blacklist:ip:198.51.100.7")
	if err != nil || !found {
		t.Fatalf("expected value, got found=%v err=%v", found, err)
	}
	if value != `{"ip":"198.51.100.7"}` {
		t.Errorf("unexpected value: %s", value)
	}

	exists, err := client.Exists(ctx, "blacklist:ip:198.51.100.7")
	if err != nil || !exists {
		t.Fatalf("expected key to exist, got exists=%v err=%v", exists, err)
	}

	keys, err := client.Keys(ctx, "blacklist:ip:*")
	if err != nil || len(keys) != 1 {
		t.Fatalf("expected one key, got %v err=%v", keys, err)
	}

	if err := client.Del(ctx, "blacklist:ip:198.51.100.7"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, found, _ := client.Get(ctx, "blacklist:ip:198.51.100.7"); found {
		t.Error("expected key deleted")
	}
}

func TestMemoryClientTTL(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryClient()

	if err := client.Set(ctx, "whitelist:ip:203.0.113.1", "{}", 50*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if _, found, _ := client.Get(ctx, "whitelist:ip:203.0.113.1"); !found {
		t.Fatal("expected key before expiry")
	}

	time.Sleep(80 * time.Millisecond)

	if _, found, _ := client.Get(ctx, "whitelist:ip:203.0.113.1"); found {
		t.Error("expected key expired")
	}
	if keys, _ := client.Keys(ctx, "whitelist:ip:*"); len(keys) != 0 {
		t.Errorf("expected expired key excluded from Keys, got %v", keys)
	}
}
