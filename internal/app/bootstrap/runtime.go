package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/adapters/events"
	grpcadapter "github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/adapters/grpc"
	httpadapter "github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/adapters/security"
	wsadapter "github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/adapters/websocket"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/application"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/fanout"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
	"gorm.io/gorm"
)

type Runtime struct {
	cfg         Config
	logger      *slog.Logger
	db          *gorm.DB
	redisClient *redis.Client
	repos       postgres.Repositories
	service     *application.Service
	runner      *grpcadapter.RunnerClient
	closers     []io.Closer
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	cacheStore := cache.NewRedisCache(redisClient)

	tokens, err := newTokenVerifier(ctx, logger, cfg.JWTPublicKey)
	if err != nil {
		_ = redisClient.Close()
		_ = sqlDB.Close()
		return nil, err
	}

	r := &Runtime{cfg: cfg, logger: logger, db: db, redisClient: redisClient}
	r.closers = append(r.closers, redisClient, sqlDB)

	var runner ports.SubmissionRunner
	if cfg.RunnerGRPCURL != "" {
		client, runnerErr := grpcadapter.NewRunnerClient(cfg.RunnerGRPCURL, cfg.RunnerTimeout)
		if runnerErr != nil {
			r.close()
			return nil, runnerErr
		}
		r.runner = client
		runner = client
		r.closers = append([]io.Closer{client}, r.closers...)
	}

	r.repos = postgres.NewRepositories(db)
	service, err := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:          cfg.ServiceID,
			IdempotencyTTL:       cfg.IdempotencyTTL,
			EventDedupTTL:        cfg.EventDedupTTL,
			SubmissionRateLimit:  cfg.SubmissionRateLimit,
			SubmissionRateWindow: cfg.SubmissionRateWindow,
			SystemMemberID:       cfg.SystemMemberID,
		},
		Contests:    cache.NewContestCache(r.repos.Contests, cacheStore, cfg.ContestCacheTTL, logger),
		Members:     r.repos.Members,
		Problems:    r.repos.Problems,
		Attachments: r.repos.Attachments,
		Submissions: r.repos.Submissions,
		EventDedup:  r.repos.EventDedup,
		Idempotency: r.repos.Idempotency,
		Cache:       cacheStore,
		Runner:      runner,
		Tokens:      tokens,
		Revocations: cache.NewRedisSessionRevocationStore(redisClient),
	})
	if err != nil {
		r.close()
		return nil, err
	}
	r.service = service
	return r, nil
}

// newTokenVerifier falls back to an ephemeral key when none is configured,
// which only suits local runs: no externally issued token will verify.
func newTokenVerifier(ctx context.Context, logger *slog.Logger, publicKeyPEM string) (ports.TokenVerifier, error) {
	if publicKeyPEM != "" {
		return security.NewJWTVerifier(publicKeyPEM)
	}
	logger.WarnContext(ctx, "JWT_PUBLIC_KEY not set, using ephemeral signing key",
		"module", "bootstrap",
		"layer", "runtime",
	)
	return security.NewEphemeralJWTSigner()
}

func (r *Runtime) close() {
	for _, closer := range r.closers {
		_ = closer.Close()
	}
}

func (r *Runtime) ready(req *http.Request) error {
	if err := postgres.Ping(req.Context(), r.db); err != nil {
		return err
	}
	return r.redisClient.Ping(req.Context()).Err()
}

// RunAPI serves the HTTP API, the websocket feed and gRPC health, and feeds
// the local fanout hub from the shared event channel.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := fanout.NewHub(r.service, r.logger, r.cfg.FanoutBufferSize)
	live := wsadapter.NewHandler(hub, r.service, r.logger, r.cfg.WSOriginPatterns)
	router := httpadapter.NewRouter(httpadapter.NewHandler(r.service, r.ready), live, r.logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", r.cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer, healthSrv := grpcadapter.NewHealthServer(r.cfg.ServiceID)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		r.close()
		return err
	}
	subscriber := cache.NewFanoutSubscriber(r.redisClient, r.cfg.FanoutChannel, hub, r.logger)

	errCh := make(chan error, 3)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := subscriber.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	grpcadapter.SetServing(healthSrv, r.cfg.ServiceID, true)
	r.logger.InfoContext(ctx, "api started",
		"module", "bootstrap",
		"layer", "runtime",
		"http_port", r.cfg.HTTPPort,
		"grpc_port", r.cfg.GRPCPort,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "error", runErr)
	}
	grpcadapter.SetServing(healthSrv, r.cfg.ServiceID, false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	r.close()
	return runErr
}

// RunWorker relays the outbox and dispatches runner-bound events. Without
// Kafka brokers both sides share an in-process bus.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if r.runner == nil {
		r.close()
		return errors.New("missing RUNNER_GRPC_URL")
	}

	topicByEvent := map[string]string{
		string(domain.SubmissionEventCreated): r.cfg.KafkaTopicSubmissionCreated,
		string(domain.SubmissionEventRerun):   r.cfg.KafkaTopicSubmissionRerun,
		string(domain.SubmissionEventUpdated): r.cfg.KafkaTopicSubmissionUpdated,
	}
	dispatchTopics := []string{r.cfg.KafkaTopicSubmissionCreated, r.cfg.KafkaTopicSubmissionRerun}
	fanoutPublisher := cache.NewFanoutPublisher(r.redisClient, r.cfg.FanoutChannel)

	var (
		publisher ports.EventPublisher
		consumer  eventadapter.Consumer
	)
	if len(r.cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := eventadapter.NewKafkaPublisher(r.cfg.KafkaBrokers, topicByEvent)
		if err != nil {
			r.close()
			return err
		}
		kafkaConsumer, err := eventadapter.NewKafkaConsumer(r.cfg.KafkaBrokers, r.cfg.KafkaConsumerGroup, dispatchTopics)
		if err != nil {
			_ = kafkaPublisher.Close()
			r.close()
			return err
		}
		r.closers = append([]io.Closer{kafkaConsumer, kafkaPublisher}, r.closers...)
		publisher = eventadapter.NewMultiPublisher(kafkaPublisher, fanoutPublisher)
		consumer = kafkaConsumer
	} else {
		r.logger.WarnContext(ctx, "KAFKA_BROKERS not set, dispatching through the in-process bus",
			"module", "bootstrap",
			"layer", "runtime",
		)
		bus := eventadapter.NewMemoryBus(topicByEvent)
		publisher = eventadapter.NewMultiPublisher(eventadapter.NewLoggingPublisher(r.logger), bus, fanoutPublisher)
		consumer = bus
	}

	outbox := eventadapter.NewOutboxWorker(r.logger, r.repos.Outbox, publisher, r.cfg.OutboxPollInterval, r.cfg.OutboxBatchSize)
	dispatcher := eventadapter.NewConsumerWorker(r.logger, consumer, r.service, dispatchTopics, r.cfg.ConsumerPollInterval)

	errCh := make(chan error, 2)
	go func() {
		if err := outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "error", runErr)
	}
	r.close()
	return runErr
}
