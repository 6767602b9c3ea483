package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/convoflow/flowmigrate/api"
	"github.com/convoflow/flowmigrate/api/handlers"
	"github.com/convoflow/flowmigrate/config"
	"github.com/convoflow/flowmigrate/internal/cache"
	"github.com/convoflow/flowmigrate/internal/database"
	"github.com/convoflow/flowmigrate/internal/metrics"
	"github.com/convoflow/flowmigrate/internal/server"
	"github.com/convoflow/flowmigrate/internal/telemetry"
	"github.com/convoflow/flowmigrate/migration"
	"github.com/convoflow/flowmigrate/store/gormstore"
)

// Server wires the full service: database pool, optional Redis cache,
// stores, migration engine, HTTP API, and the metrics endpoint.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	otel *telemetry.Providers
	db   *gorm.DB
	pool *database.PoolManager

	cache     *cache.Manager
	collector *metrics.Collector

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer builds a Server from loaded configuration. Nothing is
// started until Start.
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers, db *gorm.DB) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otel,
		db:     db,
	}
}

// Start brings up every component and begins serving. On any error the
// components started so far are torn back down.
func (s *Server) Start() error {
	pool, err := database.NewPoolManager(s.db, database.PoolConfig{
		MaxIdleConns:        s.cfg.Database.MaxIdleConns,
		MaxOpenConns:        s.cfg.Database.MaxOpenConns,
		ConnMaxLifetime:     s.cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create database pool: %w", err)
	}
	s.pool = pool

	if s.cfg.Redis.Enabled {
		cm, err := cache.NewManager(cache.Config{
			Addr:                s.cfg.Redis.Addr,
			Password:            s.cfg.Redis.Password,
			DB:                  s.cfg.Redis.DB,
			DefaultTTL:          s.cfg.Migration.CacheTTL,
			PoolSize:            s.cfg.Redis.PoolSize,
			MinIdleConns:        s.cfg.Redis.MinIdleConns,
			HealthCheckInterval: 30 * time.Second,
		}, s.logger)
		if err != nil {
			s.pool.Close()
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		s.cache = cm
	}

	s.collector = metrics.NewCollector("flowmigrate", s.logger)

	scenarioOpts := []gormstore.ScenarioStoreOption{}
	if s.cache != nil {
		scenarioOpts = append(scenarioOpts,
			gormstore.WithCache(s.cache),
			gormstore.WithCacheTTL(s.cfg.Migration.CacheTTL),
		)
	}
	scenarios := gormstore.NewScenarioStore(s.db, s.logger, scenarioOpts...)
	sessions := gormstore.NewSessionStore(s.db, s.logger)

	retention := time.Duration(s.cfg.Migration.PlanRetentionDays) * 24 * time.Hour
	planner := migration.NewPlanner(scenarios, sessions, s.logger,
		migration.WithPlanRetention(retention),
		migration.WithPlannerMetrics(s.collector),
	)
	deployer := migration.NewDeployer(scenarios, sessions, s.logger,
		migration.WithDeployConcurrency(s.cfg.Migration.DeployConcurrency),
		migration.WithDeployRate(int(s.cfg.Migration.DeployRatePerSec)),
		migration.WithDeployerMetrics(s.collector),
	)
	executor := migration.NewExecutor(scenarios, sessions, s.logger,
		migration.WithExecutorMetrics(s.collector),
	)

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewPingCheck("database", s.pool.Ping))
	if s.cache != nil {
		health.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}

	mux := api.NewRouter(api.Handlers{
		Health:    health,
		Scenario:  handlers.NewScenarioHandler(scenarios, s.logger),
		Plan:      handlers.NewPlanHandler(planner, deployer, scenarios, s.logger),
		Session:   handlers.NewSessionHandler(executor, scenarios, sessions, s.logger),
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
	}
	if s.otel != nil {
		middlewares = append(middlewares, OTelTracing())
	}
	handler := Chain(mux, middlewares...)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	if err := s.httpManager.Start(); err != nil {
		s.closeBackends()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.Handler())
	s.metricsManager = server.NewManager(metricsMux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		// Metrics are best-effort: keep serving the API without them.
		s.logger.Warn("failed to start metrics server", zap.Error(err))
		s.metricsManager = nil
	}

	s.logger.Info("flowmigrate serving",
		zap.String("addr", s.httpManager.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("cache_enabled", s.cache != nil),
	)

	return nil
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then shuts everything
// down in reverse order of startup.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.Shutdown(ctx)
}

// Shutdown stops the metrics server, closes backends, and flushes
// telemetry. The main HTTP server is assumed already drained.
func (s *Server) Shutdown(ctx context.Context) {
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}

	s.closeBackends()

	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
}

func (s *Server) closeBackends() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("cache close failed", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Warn("database pool close failed", zap.Error(err))
		}
	}
}
