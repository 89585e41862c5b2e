package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/triage-ai/portfolio-guard/internal/api"
	"github.com/triage-ai/portfolio-guard/internal/auth"
	"github.com/triage-ai/portfolio-guard/internal/chread"
	"github.com/triage-ai/portfolio-guard/internal/completion"
	"github.com/triage-ai/portfolio-guard/internal/config"
	"github.com/triage-ai/portfolio-guard/internal/engine"
	"github.com/triage-ai/portfolio-guard/internal/metrics"
	"github.com/triage-ai/portfolio-guard/internal/pipeline"
	"github.com/triage-ai/portfolio-guard/internal/ratelimit"
	"github.com/triage-ai/portfolio-guard/internal/server"
	"github.com/triage-ai/portfolio-guard/internal/storage"
	"github.com/triage-ai/portfolio-guard/internal/store"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC health servers",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// metricsReloader counts successful rule reloads.
type metricsReloader struct {
	classifier *engine.Classifier
	metrics    *metrics.Metrics
}

func (r metricsReloader) Reload(rules []engine.Rule) {
	r.classifier.Reload(rules)
	r.metrics.RecordRulesReload()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(envFile)

	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting guard server",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.Int("rate_limit_per_minute", cfg.RateLimitPerMinute),
		zap.Int64("max_body_bytes", cfg.MaxBodyBytes),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Rules: built-in defaults, optionally overridden by the rules file
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	classifier := engine.NewClassifier(rules.Rules(), logger)

	chatProfile := pipeline.ChatProfile
	chatProfile.Profile = rules.Profile(chatProfile.Profile)
	fitProfile := pipeline.FitAssessmentProfile
	fitProfile.Profile = rules.Profile(fitProfile.Profile)

	if cfg.RulesFile != "" {
		watcher := config.NewRulesWatcher(cfg.RulesFile, metricsReloader{classifier, m}, 0, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("rules watcher stopped", zap.Error(err))
			}
		}()
	}

	var checks []server.Check

	// Storage: ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	events := storage.NewEventLog(writer)
	defer events.Close()

	// ClickHouse reader (for admin event endpoints)
	var reader api.EventReader
	if cfg.ClickHouseDSN != "" {
		chReader, err := chread.NewReader(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			reader = chReader
			checks = append(checks, server.Check{Service: "guard.clickhouse", Probe: chReader.Ping})
			logger.Info("clickhouse reader connected")
		}
	}

	// Postgres pool (prompt versions); without it every profile uses its default prompt
	var prompts api.PromptStore
	var promptSource pipeline.PromptSource
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pgStore := store.NewStore(db)
		if err := migrate(ctx, pgStore); err != nil {
			logger.Warn("postgres unavailable, using default prompts", zap.Error(err))
		} else {
			logger.Info("postgres connected")
		}
		// Keep the store wired even if the first ping failed; lookups fall
		// back to defaults until it recovers.
		prompts = pgStore
		promptSource = pgStore
		checks = append(checks, server.Check{Service: "guard.postgres", Probe: pgStore.Ping})
	} else {
		logger.Info("no POSTGRES_DSN set, using default prompts")
	}

	// Rate limiter: Redis when configured so replicas share quotas
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		limiter = ratelimit.NewRedis(rdb, cfg.RateLimitPerMinute, logger)
		checks = append(checks, server.Check{Service: "guard.redis", Probe: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("redis rate limiter enabled", zap.String("addr", cfg.RedisAddr))
	} else {
		limiter = ratelimit.NewMemory(cfg.RateLimitPerMinute)
		logger.Info("no REDIS_ADDR set, using in-memory rate limiter")
	}

	if cfg.CompletionAPIKey == "" {
		logger.Warn("COMPLETION_API_KEY is empty; completion requests will likely be rejected upstream")
	}
	llm := completion.NewOpenAIClient(cfg.CompletionBaseURL, cfg.CompletionAPIKey, cfg.CompletionModel, cfg.CompletionTimeout, logger)

	p := pipeline.New(pipeline.Deps{
		Limiter:      limiter,
		Classifier:   classifier,
		Events:       events,
		Prompts:      promptSource,
		Completion:   llm,
		Metrics:      m,
		Logger:       logger,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	// Admin auth
	var authn auth.Authenticator
	adminAuth, err := auth.NewAdminAuthenticator(auth.AdminAuthConfig{
		PasswordHash: cfg.AdminPasswordHash,
		SessionTTL:   cfg.AdminSessionTTL,
		Logger:       logger,
	})
	if err != nil {
		logger.Warn("invalid ADMIN_PASSWORD_HASH, admin surface disabled", zap.Error(err))
	} else {
		authn = adminAuth
		if !adminAuth.Enabled() {
			logger.Info("no ADMIN_PASSWORD_HASH set, admin surface disabled")
		}
		go adminAuth.RunSweeper(ctx, 10*time.Minute)
	}

	// HTTP API server
	httpServer := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(&api.Dependencies{
			Pipeline:      p,
			Classifier:    classifier,
			Events:        events,
			Prompts:       prompts,
			Reader:        reader,
			Auth:          authn,
			Metrics:       m,
			Logger:        logger,
			ChatProfile:   chatProfile,
			FitProfile:    fitProfile,
			SecureCookies: cfg.SecureCookies,
			AllowedOrigin: cfg.AllowedOrigin,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: completions stream for as long as the upstream
		// takes, bounded by COMPLETION_TIMEOUT_S.
		IdleTimeout: 60 * time.Second,
	}

	// gRPC health server
	health := server.NewHealthServer(checks, server.DefaultProbeInterval, logger)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go health.Run(ctx)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc health server listening", zap.String("addr", grpcLis.Addr().String()))
		if err := health.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// Block until shutdown signal or a server failure
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	health.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("guard server stopped")
	return runErr
}

func migrate(ctx context.Context, s *store.Store) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		return err
	}
	return s.Migrate(ctx)
}
