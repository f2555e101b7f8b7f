package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL   string
	RedisURL      string
	RunnerGRPCURL string
	KafkaBrokers  []string
	JWTPublicKey  string

	MaxDBConns                  int32
	KafkaConsumerGroup          string
	KafkaTopicSubmissionCreated string
	KafkaTopicSubmissionRerun   string
	KafkaTopicSubmissionUpdated string
	FanoutChannel               string

	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	ConsumerPollInterval time.Duration
	RunnerTimeout        time.Duration

	ContestCacheTTL      time.Duration
	IdempotencyTTL       time.Duration
	EventDedupTTL        time.Duration
	SubmissionRateLimit  int
	SubmissionRateWindow time.Duration
	SystemMemberID       uuid.UUID
	FanoutBufferSize     int
	WSOriginPatterns     []string
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL                 string   `yaml:"postgres_url"`
		RedisURL                    string   `yaml:"redis_url"`
		RunnerGRPCURL               string   `yaml:"runner_grpc_url"`
		KafkaBrokers                []string `yaml:"kafka_brokers"`
		KafkaConsumerGroup          string   `yaml:"kafka_consumer_group"`
		KafkaTopicSubmissionCreated string   `yaml:"kafka_topic_submission_created"`
		KafkaTopicSubmissionRerun   string   `yaml:"kafka_topic_submission_rerun"`
		KafkaTopicSubmissionUpdated string   `yaml:"kafka_topic_submission_updated"`
		FanoutChannel               string   `yaml:"fanout_channel"`
	} `yaml:"dependencies"`
	Judge struct {
		SystemMemberID              string   `yaml:"system_member_id"`
		SubmissionRateLimit         int      `yaml:"submission_rate_limit"`
		SubmissionRateWindowSeconds int      `yaml:"submission_rate_window_seconds"`
		ContestCacheSeconds         int      `yaml:"contest_cache_seconds"`
		RunnerTimeoutSeconds        int      `yaml:"runner_timeout_seconds"`
		FanoutBufferSize            int      `yaml:"fanout_buffer_size"`
		WSOriginPatterns            []string `yaml:"ws_origin_patterns"`
	} `yaml:"judge"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                   "M31-Judge-Service",
		HTTPPort:                    8080,
		GRPCPort:                    9090,
		MaxDBConns:                  20,
		KafkaConsumerGroup:          "m31-judge-service",
		KafkaTopicSubmissionCreated: "judge.submission.created",
		KafkaTopicSubmissionRerun:   "judge.submission.rerun",
		KafkaTopicSubmissionUpdated: "judge.submission.updated",
		FanoutChannel:               "judge:events",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		ConsumerPollInterval:        time.Second,
		RunnerTimeout:               2 * time.Minute,
		ContestCacheTTL:             30 * time.Second,
		IdempotencyTTL:              24 * time.Hour,
		EventDedupTTL:               7 * 24 * time.Hour,
		SubmissionRateLimit:         20,
		SubmissionRateWindow:        time.Minute,
		FanoutBufferSize:            64,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Dependencies.RunnerGRPCURL != "" {
			cfg.RunnerGRPCURL = f.Dependencies.RunnerGRPCURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
		}
		if f.Dependencies.KafkaConsumerGroup != "" {
			cfg.KafkaConsumerGroup = f.Dependencies.KafkaConsumerGroup
		}
		if f.Dependencies.KafkaTopicSubmissionCreated != "" {
			cfg.KafkaTopicSubmissionCreated = f.Dependencies.KafkaTopicSubmissionCreated
		}
		if f.Dependencies.KafkaTopicSubmissionRerun != "" {
			cfg.KafkaTopicSubmissionRerun = f.Dependencies.KafkaTopicSubmissionRerun
		}
		if f.Dependencies.KafkaTopicSubmissionUpdated != "" {
			cfg.KafkaTopicSubmissionUpdated = f.Dependencies.KafkaTopicSubmissionUpdated
		}
		if f.Dependencies.FanoutChannel != "" {
			cfg.FanoutChannel = f.Dependencies.FanoutChannel
		}
		if f.Judge.SystemMemberID != "" {
			id, parseErr := uuid.Parse(f.Judge.SystemMemberID)
			if parseErr != nil {
				return Config{}, fmt.Errorf("parse judge.system_member_id: %w", parseErr)
			}
			cfg.SystemMemberID = id
		}
		if f.Judge.SubmissionRateLimit > 0 {
			cfg.SubmissionRateLimit = f.Judge.SubmissionRateLimit
		}
		if f.Judge.SubmissionRateWindowSeconds > 0 {
			cfg.SubmissionRateWindow = time.Duration(f.Judge.SubmissionRateWindowSeconds) * time.Second
		}
		if f.Judge.ContestCacheSeconds > 0 {
			cfg.ContestCacheTTL = time.Duration(f.Judge.ContestCacheSeconds) * time.Second
		}
		if f.Judge.RunnerTimeoutSeconds > 0 {
			cfg.RunnerTimeout = time.Duration(f.Judge.RunnerTimeoutSeconds) * time.Second
		}
		if f.Judge.FanoutBufferSize > 0 {
			cfg.FanoutBufferSize = f.Judge.FanoutBufferSize
		}
		if len(f.Judge.WSOriginPatterns) > 0 {
			cfg.WSOriginPatterns = trimNonEmpty(f.Judge.WSOriginPatterns)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.RunnerGRPCURL = envOrDefault("RUNNER_GRPC_URL", cfg.RunnerGRPCURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = envOrDefault("KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)
	cfg.KafkaTopicSubmissionCreated = envOrDefault("KAFKA_TOPIC_SUBMISSION_CREATED", cfg.KafkaTopicSubmissionCreated)
	cfg.KafkaTopicSubmissionRerun = envOrDefault("KAFKA_TOPIC_SUBMISSION_RERUN", cfg.KafkaTopicSubmissionRerun)
	cfg.KafkaTopicSubmissionUpdated = envOrDefault("KAFKA_TOPIC_SUBMISSION_UPDATED", cfg.KafkaTopicSubmissionUpdated)
	cfg.FanoutChannel = envOrDefault("FANOUT_CHANNEL", cfg.FanoutChannel)
	cfg.JWTPublicKey = envOrDefault("JWT_PUBLIC_KEY", cfg.JWTPublicKey)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.ConsumerPollInterval = time.Duration(envInt("CONSUMER_POLL_SECONDS", int(cfg.ConsumerPollInterval.Seconds()))) * time.Second
	cfg.RunnerTimeout = time.Duration(envInt("RUNNER_TIMEOUT_SECONDS", int(cfg.RunnerTimeout.Seconds()))) * time.Second
	cfg.ContestCacheTTL = time.Duration(envInt("CONTEST_CACHE_SECONDS", int(cfg.ContestCacheTTL.Seconds()))) * time.Second
	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour
	cfg.EventDedupTTL = time.Duration(envInt("EVENT_DEDUP_TTL_HOURS", int(cfg.EventDedupTTL.Hours()))) * time.Hour
	cfg.SubmissionRateLimit = envInt("SUBMISSION_RATE_LIMIT", cfg.SubmissionRateLimit)
	cfg.SubmissionRateWindow = time.Duration(envInt("SUBMISSION_RATE_WINDOW_SECONDS", int(cfg.SubmissionRateWindow.Seconds()))) * time.Second
	cfg.FanoutBufferSize = envInt("FANOUT_BUFFER_SIZE", cfg.FanoutBufferSize)
	cfg.WSOriginPatterns = envCSV("WS_ORIGIN_PATTERNS", cfg.WSOriginPatterns)
	if raw := strings.TrimSpace(os.Getenv("SYSTEM_MEMBER_ID")); raw != "" {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("parse SYSTEM_MEMBER_ID: %w", parseErr)
		}
		cfg.SystemMemberID = id
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	items := strings.Split(raw, ",")
	return trimNonEmpty(items)
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
