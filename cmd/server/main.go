// Package main is the entry point of the Kleo attendance service.
//
// Layers follow the usual split:
//   - Domain: groups, sessions, passes and attendance, no I/O
//   - Application: commands and queries over the group repository
//   - Infrastructure: postgres, redis, in-process messaging
//   - Interface: the REST API
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kleo-app/kleo/config"
	"github.com/kleo-app/kleo/internal/application/command"
	"github.com/kleo-app/kleo/internal/application/query"
	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
	"github.com/kleo-app/kleo/internal/infrastructure/messaging"
	"github.com/kleo-app/kleo/internal/infrastructure/persistence/memory"
	"github.com/kleo-app/kleo/internal/infrastructure/persistence/postgres"
	"github.com/kleo-app/kleo/internal/infrastructure/persistence/redis"
	httpserver "github.com/kleo-app/kleo/internal/interface/http"
	"github.com/kleo-app/kleo/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIG & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting kleo",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	health := httpserver.NewCompositeHealthChecker(cfg.App.Version)

	opts := []group.Option{
		group.WithClock(shared.SystemClock{}),
		group.WithCodeGenerator(group.RandomCodes{Length: cfg.Attendance.PassCodeLength}),
		group.WithPassValidity(cfg.Attendance.PassValidity),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	var repo group.Repository
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, using the in-memory repository")
		repo = memory.NewGroupRepository(opts...)
	} else {
		conn, err := connectDatabase(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database connection")
			conn.Close()
		}()

		health.AddCheck("database", httpserver.PingCheck(conn))
		repo = postgres.NewGroupRepository(conn, opts...)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS & EVENTS
	// ─────────────────────────────────────────────────────────────────────────
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 4,
		Logger:         log,
	})
	defer func() { _ = bus.Close() }()

	if err := bus.SubscribeAll(messaging.LogEvents(log.With(logger.Component("events")))); err != nil {
		return fmt.Errorf("subscribe event log: %w", err)
	}

	var (
		index     group.CodeIndex       = memory.NewCodeIndex()
		locker    command.Locker        = memory.NewLocker()
		publisher shared.EventPublisher = bus
	)

	if cfg.Redis.Disabled {
		log.Info("redis disabled, using process-local index, lock and event bus")
	} else {
		cache, err := redis.NewCache(ctx, redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() {
			log.Info("closing redis connection")
			_ = cache.Close()
		}()
		log.Info("redis connection established", logger.String("addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)))

		health.AddCheck("redis", httpserver.PingCheck(cache))
		index = redis.NewCodeIndex(cache, cfg.Attendance.CodeIndexTTL)
		locker = redis.NewLocker(cache, cfg.Attendance.PassLockTTL)
		publisher = messaging.Fanout{
			messaging.NewGuarded("redis-pubsub", redis.NewEventPublisher(cache), log),
			bus,
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION
	// ─────────────────────────────────────────────────────────────────────────
	deps := command.Deps{
		Publisher: publisher,
		Clock:     shared.SystemClock{},
		Logger:    log.With(logger.Component("command")),
	}
	queryLog := log.With(logger.Component("query"))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP
	// ─────────────────────────────────────────────────────────────────────────
	server := httpserver.NewServer(httpserver.Config{
		Host:            cfg.HTTP.Host,
		Port:            cfg.HTTP.Port,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		RequestTimeout:  cfg.HTTP.RequestTimeout,
		MaxHeaderBytes:  1 << 20,
		MaxRequestBytes: cfg.HTTP.MaxRequestBytes,
		Version:         cfg.App.Version,
	}, httpserver.Dependencies{
		Groups:            command.NewGroupHandler(repo, index, deps, opts...),
		Roster:            command.NewRosterHandler(repo, deps),
		Sessions:          command.NewSessionHandler(repo, deps),
		Passes:            command.NewIssuePassHandler(repo, locker, deps),
		Attendance:        command.NewAttendanceHandler(repo, deps),
		GroupQueries:      query.NewGetGroupHandler(repo, index, queryLog),
		SessionQueries:    query.NewSessionsHandler(repo, shared.SystemClock{}),
		AttendanceQueries: query.NewAttendancesHandler(repo),
		Logger:            log.With(logger.Component("http")),
		Health:            health,
	})

	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("http shutdown: %w", err)
	}

	log.Info("kleo stopped")
	return nil
}

func connectDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	pgCfg.MinConns = int32(cfg.Database.MaxIdleConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.ConnectAttempts = cfg.Database.ConnectAttempts
	pgCfg.ConnectBackoff = cfg.Database.ConnectBackoff

	log.Info("connecting to database")
	conn, err := postgres.Connect(ctx, pgCfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, conn, log); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return conn, nil
}

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat

	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}
