package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("PROMPT_RATE_LIMIT", "")
	t.Setenv("RABBIT_QUEUE", "")

	cfg := Load()
	if cfg.AIProvider != "gemini" {
		t.Fatalf("unexpected default provider: %q", cfg.AIProvider)
	}
	if cfg.PromptRateLimit != 5 || cfg.PromptRateWindowSeconds != 60 {
		t.Fatalf("unexpected rate limit defaults: %d/%ds", cfg.PromptRateLimit, cfg.PromptRateWindowSeconds)
	}
	if cfg.RabbitQueue != "mail_jobs" {
		t.Fatalf("unexpected queue: %q", cfg.RabbitQueue)
	}
	if cfg.DBDSN == "" {
		t.Fatalf("expected a default dsn")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AI_PROVIDER", "ollama")
	t.Setenv("PROMPT_RATE_LIMIT", "9")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()
	if cfg.AIProvider != "ollama" {
		t.Fatalf("unexpected provider: %q", cfg.AIProvider)
	}
	if cfg.PromptRateLimit != 9 {
		t.Fatalf("unexpected rate limit: %d", cfg.PromptRateLimit)
	}
	if cfg.RedisDB != 0 {
		t.Fatalf("malformed REDIS_DB should fall back to 0, got %d", cfg.RedisDB)
	}
	if !cfg.MinioUseSSL {
		t.Fatalf("expected MINIO_USE_SSL to be parsed")
	}
}
