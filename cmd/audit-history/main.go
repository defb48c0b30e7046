// Command audit-history consumes audit events from every service topic,
// stores them and serves the query API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/godamri/helix-audit/app"
	"github.com/godamri/helix-audit/cache"
	"github.com/godamri/helix-audit/config"
	"github.com/godamri/helix-audit/database"
	"github.com/godamri/helix-audit/history"
	"github.com/godamri/helix-audit/log"
	"github.com/godamri/helix-audit/messaging"
	"github.com/godamri/helix-audit/pkg/telemetry"
	"github.com/godamri/helix-audit/server"
	"github.com/godamri/helix-audit/server/health"
	"github.com/godamri/helix-audit/server/middleware"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "optional YAML config file")
	flag.Parse()

	loader := config.NewLoader[Config]("", *configPath)
	cfg, err := loader.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.Log.Service == "" {
		cfg.Log.Service = serviceName
	}
	logger, level := log.NewLeveled(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	runner := app.NewRunner(logger)
	runner.Main(func(ctx context.Context) error {
		return run(ctx, runner, loader, cfg, logger, level)
	})
}

func run(ctx context.Context, runner *app.Runner, loader *config.Loader[Config], cfg *Config, logger *slog.Logger, level *slog.LevelVar) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry, serviceName, version)
	if err != nil {
		return err
	}
	runner.OnShutdown("tracing", shutdownTracing)

	checker := health.NewChecker(logger)

	store, err := openStore(ctx, runner, cfg, checker)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.usesRedis() {
		rdb, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		runner.OnShutdown("redis", func(context.Context) error { return rdb.Close() })
		checker.Register("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	if cfg.History.CacheEnabled {
		store = history.NewCachedStore(store, rdb, cfg.History.CacheTTL, logger)
	}

	topics := messaging.ParseTopics(cfg.Consumer.Topics)
	if cfg.History.CreateTopics {
		bootstrap := topics
		if cfg.History.DLQTopic != "" {
			bootstrap = append(slices.Clone(topics), cfg.History.DLQTopic)
		}
		if err := messaging.EnsureTopics(ctx, cfg.Kafka, cfg.Topics, bootstrap...); err != nil {
			return err
		}
	}

	var opts []history.ProcessorOption
	if cfg.History.DLQTopic != "" {
		producer, err := messaging.NewProducer(cfg.Kafka, logger)
		if err != nil {
			return err
		}
		runner.OnShutdown("kafka producer", func(context.Context) error { return producer.Close() })
		checker.Register("kafka", producer.Ping)
		opts = append(opts, history.WithDeadLetter(producer, cfg.History.DLQTopic))
	} else {
		logger.Warn("no dead-letter topic configured, invalid events are dropped")
	}
	processor := history.NewProcessor(store, logger, opts...)

	consumer, err := messaging.NewConsumer(cfg.Kafka, cfg.Consumer, logger, processor.Handle)
	if err != nil {
		return err
	}
	manager := messaging.NewConsumerManager(logger)
	manager.Register(consumer)

	router, err := newRouter(cfg, logger, history.NewQueryService(store), checker, rdb)
	if err != nil {
		return err
	}
	srv := server.New(cfg.HTTP, logger, router)

	live := config.NewContainer(cfg)
	live.OnUpdate(func(old, updated *Config) {
		if old.Log.Level != updated.Log.Level {
			level.Set(log.ParseLevel(updated.Log.Level))
			logger.Info("log level changed", "from", old.Log.Level, "to", updated.Log.Level)
		}
	})
	go config.WatchAndReload(ctx, live, loader, 0, logger)

	// Registered last so it runs first: no commits after the store closes.
	manager.Start(ctx)
	runner.OnShutdown("consumers", func(context.Context) error { return manager.Close() })

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(ctx) }()

	logger.Info("audit history running", "topics", topics, "group", cfg.Consumer.GroupID, "version", version)

	select {
	case <-ctx.Done():
		return <-serveErr
	case <-manager.Done():
		cancel()
		<-serveErr
		return errors.New("audit consumer stopped")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}
}

func openStore(ctx context.Context, runner *app.Runner, cfg *Config, checker *health.Checker) (history.Store, error) {
	if cfg.History.Store == "memory" {
		return history.NewMemoryStore(), nil
	}

	db, err := database.NewPostgres(ctx, cfg.Database, serviceName)
	if err != nil {
		return nil, err
	}
	runner.OnShutdown("postgres", func(context.Context) error { return db.Close() })
	checker.Register("db", db.PingContext)

	store := history.NewPostgresStore(db)
	if cfg.History.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newRouter(cfg *Config, logger *slog.Logger, query *history.QueryService, checker *health.Checker, rdb *redis.Client) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.PanicRecovery(logger))
	r.Use(middleware.OTelMiddleware(serviceName))
	r.Use(middleware.TraceIDMiddleware)
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.SecurityHeaders)

	checker.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	var auth *middleware.AuthMiddleware
	if cfg.AuthEnabled {
		strategy, err := middleware.NewTrustedHeaderStrategy(cfg.Auth, logger)
		if err != nil {
			return nil, err
		}
		auth = middleware.NewAuthMiddleware(strategy)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if auth != nil {
			r.Use(auth.HTTPMiddleware)
		}
		if cfg.RateLimit.Enabled {
			r.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimit, logger))
		}
		history.NewHandler(query, logger).RegisterRoutes(r)
	})
	return r, nil
}
