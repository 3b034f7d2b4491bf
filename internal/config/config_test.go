package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfig(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		p := writeConfig(t, `
database:
  url: postgres://localhost/concepts
redis:
  url: localhost:6379
ai:
  openai_key: sk-test
`)
		cfg, err := LoadConfig(p, false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Worker.Concurrency != 4 {
			t.Errorf("expected default concurrency 4, got %d", cfg.Worker.Concurrency)
		}
		if cfg.Task.ErrorMessageMax != 500 {
			t.Errorf("expected default error_message_max 500, got %d", cfg.Task.ErrorMessageMax)
		}
		if cfg.Pipeline.StageTimeout != 2*time.Minute {
			t.Errorf("unexpected stage timeout %s", cfg.Pipeline.StageTimeout)
		}
		if cfg.Redis.TTL != time.Minute {
			t.Errorf("expected default cache ttl 1m, got %s", cfg.Redis.TTL)
		}
		if cfg.Queue.Name != "concept_jobs" {
			t.Errorf("unexpected queue name %q", cfg.Queue.Name)
		}
	})

	t.Run("should keep explicit values", func(t *testing.T) {
		p := writeConfig(t, `
database:
  url: postgres://localhost/concepts
  privileged_url: postgres://admin@localhost/concepts
redis:
  url: localhost:6379
  ttl: 30s
ai:
  gemini_key: g-test
pipeline:
  stage_timeout: 45s
  palette_count: 5
task:
  error_message_max: 120
`)
		cfg, err := LoadConfig(p, false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Redis.TTL != 30*time.Second || cfg.Pipeline.StageTimeout != 45*time.Second {
			t.Errorf("durations not parsed: ttl=%s stage=%s", cfg.Redis.TTL, cfg.Pipeline.StageTimeout)
		}
		if cfg.Pipeline.PaletteCount != 5 || cfg.Task.ErrorMessageMax != 120 {
			t.Errorf("ints not parsed: %+v %+v", cfg.Pipeline, cfg.Task)
		}
		if cfg.Database.PrivilegedURL == "" {
			t.Error("privileged url should be kept")
		}
	})

	t.Run("environment overrides secrets", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env/concepts")
		t.Setenv("OPENAI_API_KEY", "sk-env")
		p := writeConfig(t, `
redis:
  url: localhost:6379
`)
		cfg, err := LoadConfig(p, false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Database.URL != "postgres://env/concepts" || cfg.AI.OpenAIKey != "sk-env" {
			t.Errorf("env overrides not applied: %+v", cfg.Database)
		}
	})

	t.Run("should fail without a database outside dev mode", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		p := writeConfig(t, `
redis:
  url: localhost:6379
ai:
  openai_key: sk-test
`)
		if _, err := LoadConfig(p, false); err == nil {
			t.Fatal("expected an error for missing database.url")
		}
		if _, err := LoadConfig(p, true); err != nil {
			t.Fatalf("dev mode should not require infra, got %v", err)
		}
	})

	t.Run("should fail on a missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), true); err == nil {
			t.Fatal("expected an error for a missing file")
		}
	})
	t.Run("should reject a reaper threshold shorter than a pipeline run", func(t *testing.T) {
		p := writeConfig(t, `
pipeline:
  stage_timeout: 10m
task:
  stale_after: 30m
`)
		if _, err := LoadConfig(p, true); err == nil {
			t.Fatal("expected an error: 6 stages of 10m outlast a 30m stale threshold")
		}

		p = writeConfig(t, `
pipeline:
  stage_timeout: 4m
saga:
  compensation_timeout: 10s
task:
  stale_after: 30m
`)
		if _, err := LoadConfig(p, true); err != nil {
			t.Fatalf("24m10s of stages fits in 30m, got %v", err)
		}
	})
}
