package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestManagerBlocksAfterLimit(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 10, 0, time.UTC)
	manager := NewManager(nil, func() time.Time { return now }, nil)
	key := KeyForAttempt(AttemptLogin, "203.0.113.9")

	for i := 0; i < 3; i++ {
		result, err := manager.Allow(context.Background(), key, 3, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !result.Allowed {
			t.Fatalf("expected attempt %d allowed", i)
		}
	}
	result, err := manager.Allow(context.Background(), key, 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if result.Allowed {
		t.Fatalf("expected fourth attempt blocked")
	}
	if !result.Reset.Equal(time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC)) {
		t.Fatalf("expected reset at next minute, got %s", result.Reset)
	}

	other, err := manager.Allow(context.Background(), KeyForAttempt(AttemptLogin, "198.51.100.1"), 3, time.Minute)
	if err != nil {
		t.Fatalf("allow other: %v", err)
	}
	if !other.Allowed {
		t.Fatalf("expected other client unaffected")
	}
}

func TestManagerWindowResets(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 59, 0, time.UTC)
	manager := NewManager(nil, func() time.Time { return now }, nil)
	key := KeyForAttempt(AttemptVerifyToken, "203.0.113.9")

	if result, _ := manager.Allow(context.Background(), key, 1, time.Minute); !result.Allowed {
		t.Fatalf("expected first attempt allowed")
	}
	if result, _ := manager.Allow(context.Background(), key, 1, time.Minute); result.Allowed {
		t.Fatalf("expected second attempt blocked")
	}
	now = now.Add(2 * time.Second)
	if result, _ := manager.Allow(context.Background(), key, 1, time.Minute); !result.Allowed {
		t.Fatalf("expected attempt allowed in next window")
	}
}

func TestManagerIgnoresEmptyKeyOrLimit(t *testing.T) {
	manager := NewManager(nil, nil, nil)
	if result, _ := manager.Allow(context.Background(), "", 1, time.Minute); !result.Allowed {
		t.Fatalf("expected empty key allowed")
	}
	if result, _ := manager.Allow(context.Background(), "login:x", 0, time.Minute); !result.Allowed {
		t.Fatalf("expected zero limit allowed")
	}
}

func TestManagerFallsBackToMemoryWhenRedisDown(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	dialed := 0
	factory := func(options *redis.Options) *redis.Client {
		dialed++
		options.DialTimeout = 50 * time.Millisecond
		options.MaxRetries = -1
		return redis.NewClient(options)
	}
	settings := StaticSettings(SettingsConfig{RedisEnabled: true, RedisAddr: "127.0.0.1:1", RedisPrefix: "test"})
	manager := NewManager(settings, func() time.Time { return now }, factory)
	defer manager.Close()

	key := KeyForAttempt(AttemptLogin, "203.0.113.9")
	if result, err := manager.Allow(context.Background(), key, 1, time.Minute); err != nil || !result.Allowed {
		t.Fatalf("expected memory fallback to allow, got %+v err=%v", result, err)
	}
	if result, err := manager.Allow(context.Background(), key, 1, time.Minute); err != nil || result.Allowed {
		t.Fatalf("expected memory fallback to block, got %+v err=%v", result, err)
	}
	if dialed != 1 {
		t.Fatalf("expected breaker to skip redis after first failure, dialed=%d", dialed)
	}
}

func TestKeyForAttempt(t *testing.T) {
	if got := KeyForAttempt(AttemptLogin, " 10.0.0.1 "); got != "login:10.0.0.1" {
		t.Fatalf("expected login:10.0.0.1, got %q", got)
	}
	if got := KeyForAttempt(AttemptLogin, ""); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}
