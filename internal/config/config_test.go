package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
server:
  port: "9090"
  allowed_origins: ["http://localhost:3000"]
redis:
  addr: localhost:6379
  ttl: 3h
session:
  pin_length: 8
  answer_grace: 1500ms
  require_participants: false
scoring:
  base_points: 500
  curve: exponential
events:
  kafka_brokers: ["k1:9092"]
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PORT", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected server/redis config: %+v", cfg)
	}
	if cfg.Session.PINLength != 8 || cfg.Scoring.BasePoints != 500 || cfg.Scoring.Curve != "exponential" {
		t.Fatalf("unexpected session/scoring config: %+v", cfg)
	}
	if got := TTLDuration(cfg.Session.AnswerGrace, time.Second); got != 1500*time.Millisecond {
		t.Fatalf("unexpected grace %v", got)
	}
	if cfg.RequireParticipants() {
		t.Fatalf("expected require_participants=false from file")
	}
	if len(cfg.Events.KafkaBrokers) != 1 {
		t.Fatalf("expected one broker, got %v", cfg.Events.KafkaBrokers)
	}
}

func TestLoadMissingFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("POSTGRES_URL", "postgres://x")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "7070" || cfg.Postgres.URL != "postgres://x" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Events.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Events.KafkaBrokers)
	}
	if !cfg.RequireParticipants() {
		t.Fatalf("expected require_participants default true")
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_ = os.WriteFile(path, []byte("server: [unclosed"), 0o600)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTTLDuration(t *testing.T) {
	if d := TTLDuration("", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback, got %v", d)
	}
	if d := TTLDuration("nonsense", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback for invalid, got %v", d)
	}
	if d := TTLDuration("90s", time.Minute); d != 90*time.Second {
		t.Fatalf("expected 90s, got %v", d)
	}
}
