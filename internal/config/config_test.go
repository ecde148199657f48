package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("REDIS_STATUS_CHANNEL", "")
	t.Setenv("MAX_CONCURRENT_CALLS", "")
	t.Setenv("CALL_TIMEOUT", "")
	t.Setenv("MAX_RETRIES", "")
	t.Setenv("RETRY_DELAY", "")
	t.Setenv("INTELLIGENT_ROUTING", "")
}

func TestLoad_AppliesDefaults(t *testing.T) {
	setBaseEnv(t)

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Redis.StatusChannel != "calls:status" {
		t.Fatalf("expected default status channel, got %q", c.Redis.StatusChannel)
	}
	if c.Calls.MaxConcurrentCalls != 10 {
		t.Fatalf("expected default concurrency 10, got %d", c.Calls.MaxConcurrentCalls)
	}
	if c.Calls.CallTimeout != 30*time.Second {
		t.Fatalf("expected default timeout 30s, got %s", c.Calls.CallTimeout)
	}
	if c.Calls.MaxRetries != 3 {
		t.Fatalf("expected default retries 3, got %d", c.Calls.MaxRetries)
	}
	if c.Calls.RetryDelay != time.Second {
		t.Fatalf("expected default retry delay 1s, got %s", c.Calls.RetryDelay)
	}
	if !c.Calls.IntelligentRouting {
		t.Fatalf("intelligent routing must default on")
	}
}

func TestLoad_ReadsOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REDIS_STATUS_CHANNEL", "voice:events")
	t.Setenv("MAX_CONCURRENT_CALLS", "25")
	t.Setenv("CALL_TIMEOUT", "45s")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("RETRY_DELAY", "250ms")
	t.Setenv("INTELLIGENT_ROUTING", "false")

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Redis.StatusChannel != "voice:events" {
		t.Fatalf("status channel override ignored, got %q", c.Redis.StatusChannel)
	}
	if c.Calls.MaxConcurrentCalls != 25 || c.Calls.MaxRetries != 5 {
		t.Fatalf("int overrides ignored: %+v", c.Calls)
	}
	if c.Calls.CallTimeout != 45*time.Second || c.Calls.RetryDelay != 250*time.Millisecond {
		t.Fatalf("duration overrides ignored: %+v", c.Calls)
	}
	if c.Calls.IntelligentRouting {
		t.Fatalf("intelligent routing override ignored")
	}
}

func TestLoad_MissingRequiredValues(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "")
	t.Setenv("REDIS_HOST", "")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error for missing required values")
	}
	msg := err.Error()
	if !strings.Contains(msg, "APP_ENV") || !strings.Contains(msg, "REDIS_HOST") {
		t.Fatalf("expected all missing keys reported, got: %v", err)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "sandbox")
	t.Setenv("APP_PORT", "not-a-port")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error for invalid values")
	}
}

func TestConfig_Addresses(t *testing.T) {
	c := Config{}
	c.App.Port = 8080
	c.Redis.Host = "redis.internal"
	c.Redis.Port = 6379

	if got := c.HTTPAddr(); got != ":8080" {
		t.Fatalf("unexpected http addr %q", got)
	}
	if got := c.RedisAddr(); got != "redis.internal:6379" {
		t.Fatalf("unexpected redis addr %q", got)
	}
}

func TestConfig_IsProduction(t *testing.T) {
	c := Config{}
	c.App.Env = "production"
	if !c.IsProduction() {
		t.Fatalf("production env not detected")
	}
	c.App.Env = "local"
	if c.IsProduction() {
		t.Fatalf("local env reported as production")
	}
}
