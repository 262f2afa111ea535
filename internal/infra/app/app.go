package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/port"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/config"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/database"
	kafkainfra "github.com/bshelton-songtrust/publishing-platform/internal/infra/kafka"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/logger"
	redisinfra "github.com/bshelton-songtrust/publishing-platform/internal/infra/redis"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/security"
	"github.com/bshelton-songtrust/publishing-platform/internal/infra/telemetry"
	postgresrepo "github.com/bshelton-songtrust/publishing-platform/internal/repository/postgres"
	redisrepo "github.com/bshelton-songtrust/publishing-platform/internal/repository/redis"
	"github.com/bshelton-songtrust/publishing-platform/internal/transport/http/middleware"
	"github.com/bshelton-songtrust/publishing-platform/internal/transport/http/routes"
	"github.com/bshelton-songtrust/publishing-platform/internal/usecase"
)

// Application owns the process-level resources and the HTTP engine.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

// New wires configuration, infrastructure, repositories, and services into a
// runnable application.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if _, err := telemetry.Attach(ctx, cfg); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	keyProvider, err := security.NewFileKeyProvider(cfg.JWT.KeyDirectory)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init key provider: %w", err)
	}
	envelope := security.NewEnvelope(keyProvider, cfg.App.Name, cfg.JWT.KeyID)

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	revocations := redisrepo.NewRevocationRepository(redisClient.Client(), cfg.Redis.RevocationPrefix)
	rateLimits := redisrepo.NewRateLimitRepository(redisClient.Client(), "authz:ratelimit")
	resolverCache := redisrepo.NewResolverCacheRepository(redisClient.Client(), cfg.Redis.ResolverPrefix)

	var auditSink port.AuditSink
	var producer *kafkainfra.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub audit sink", zap.Error(err))
			auditSink = kafkainfra.NewStubSink(log)
			producer = nil
		} else {
			auditSink = kafkainfra.NewAuditSink(producer, cfg.App, log)
			log.Info("kafka audit sink initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub audit sink")
		auditSink = kafkainfra.NewStubSink(log)
	}

	tokenStore := usecase.NewTokenStore(cfg, repos.Tokens, revocations, rateLimits, auditSink, log)
	catalog := usecase.NewPermissionCatalog(repos.Roles, log)
	resolver := usecase.NewPermissionResolver(cfg, repos.Publishers, repos.Memberships, catalog, resolverCache, log)
	sessionRegistry := usecase.NewSessionRegistry(cfg, repos.Sessions, auditSink, log)
	contextManager := usecase.NewSecurityContextManager(cfg, envelope, tokenStore, sessionRegistry, resolver, repos.Users, repos.ServiceAccounts, auditSink, log)
	authService := usecase.NewAuthService(cfg, repos.Users, repos.Memberships, repos.Publishers, sessionRegistry, envelope, log)
	membershipAdmin := usecase.NewMembershipAdminService(repos.Memberships, resolver, catalog, log)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Namespace: cfg.Telemetry.Namespace,
	})
	if err != nil {
		log.Warn("failed to init http metrics", zap.Error(err))
		httpMetrics = nil
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  httpMetrics,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Auth:           authService,
			Tokens:         tokenStore,
			Sessions:       sessionRegistry,
			Memberships:    membershipAdmin,
			Catalog:        catalog,
			ContextManager: contextManager,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting authorization API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
