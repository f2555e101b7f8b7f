package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DB_URL", "POSTGRES_URL", "REDIS_URL", "RUNNER_GRPC_URL", "KAFKA_BROKERS", "JWT_PUBLIC_KEY",
		"HTTP_PORT", "GRPC_PORT", "OUTBOX_POLL_SECONDS", "SYSTEM_MEMBER_ID", "SUBMISSION_RATE_LIMIT",
		"SUBMISSION_RATE_WINDOW_SECONDS", "WS_ORIGIN_PATTERNS",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	clearEnv(t)
	systemID := uuid.New()
	path := writeConfig(t, `
service:
  id: judge-test
  http_port: 18080
dependencies:
  postgres_url: postgres://judge@localhost/judge
  redis_url: localhost:6379
  kafka_brokers: [" broker-1:9092 ", ""]
  kafka_topic_submission_created: custom.created
judge:
  system_member_id: `+systemID.String()+`
  submission_rate_limit: 5
  submission_rate_window_seconds: 30
  ws_origin_patterns: ["judge.example.com"]
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceID != "judge-test" || cfg.HTTPPort != 18080 || cfg.GRPCPort != 9090 {
		t.Fatalf("service block not applied: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "broker-1:9092" {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
	if cfg.KafkaTopicSubmissionCreated != "custom.created" || cfg.KafkaTopicSubmissionRerun != "judge.submission.rerun" {
		t.Fatalf("topics = %s %s", cfg.KafkaTopicSubmissionCreated, cfg.KafkaTopicSubmissionRerun)
	}
	if cfg.SystemMemberID != systemID || cfg.SubmissionRateLimit != 5 || cfg.SubmissionRateWindow != 30*time.Second {
		t.Fatalf("judge block not applied: %+v", cfg)
	}
	if len(cfg.WSOriginPatterns) != 1 {
		t.Fatalf("origins = %v", cfg.WSOriginPatterns)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
dependencies:
  postgres_url: postgres://file
  redis_url: file:6379
`)
	t.Setenv("DB_URL", "postgres://env")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("OUTBOX_POLL_SECONDS", "5")
	t.Setenv("SUBMISSION_RATE_LIMIT", "not-a-number")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://env" || cfg.RedisURL != "file:6379" {
		t.Fatalf("urls = %s %s", cfg.DatabaseURL, cfg.RedisURL)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.HTTPPort != 9999 || cfg.OutboxPollInterval != 5*time.Second {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.SubmissionRateLimit != 20 {
		t.Fatalf("malformed numbers fall back to defaults, got %d", cfg.SubmissionRateLimit)
	}
}

func TestLoadConfigRequiresStores(t *testing.T) {
	clearEnv(t)
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	if _, err := LoadConfig(missing); err == nil {
		t.Fatalf("expected error without DB_URL")
	}
	t.Setenv("DB_URL", "postgres://env")
	if _, err := LoadConfig(missing); err == nil {
		t.Fatalf("expected error without REDIS_URL")
	}
	t.Setenv("REDIS_URL", "localhost:6379")
	if _, err := LoadConfig(missing); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_URL", "postgres://env")
	t.Setenv("REDIS_URL", "localhost:6379")

	if _, err := LoadConfig(writeConfig(t, "service: [")); err == nil {
		t.Fatalf("expected yaml error")
	}
	if _, err := LoadConfig(writeConfig(t, "judge:\n  system_member_id: nope\n")); err == nil {
		t.Fatalf("expected uuid error")
	}
	t.Setenv("SYSTEM_MEMBER_ID", "nope")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected env uuid error")
	}
}
