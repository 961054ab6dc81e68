// Command searcher serves the search and index management API over one
// data directory, optionally caching results in Redis and following index
// events from Kafka.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/selfindex/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, "searcher")
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Index.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	engine, err := indexer.NewEngine(cfg.Index, m)
	if err != nil {
		slog.Error("failed to open index engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	if err := engine.Load(cfg.Index.DefaultIndex); err != nil {
		if errors.Is(err, apperrors.ErrIndexNotFound) {
			slog.Warn("default index not built yet; searches fail until one is loaded", "index", cfg.Index.DefaultIndex)
		} else {
			slog.Error("failed to load default index", "index", cfg.Index.DefaultIndex, "error", err)
			os.Exit(1)
		}
	}

	checker := health.NewChecker()
	checker.Register("index", health.Probe(true, func(context.Context) error {
		if _, _, ok := engine.Loaded(); !ok {
			return apperrors.ErrNotLoaded
		}
		return nil
	}))

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.Probe(false, redisClient.Ping))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var announcer handler.Announcer
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents)
		defer producer.Close()
		announcer = events.NewPublisher(producer)

		var invalidator events.Invalidator
		if queryCache != nil {
			invalidator = queryCache
		}
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents,
			events.Handle(engine, invalidator, resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond}))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index event consumer error", "error", err)
			}
		}()
		defer consumer.Close()
		slog.Info("following index events", "topic", cfg.Kafka.Topics.IndexEvents, "group", cfg.Kafka.ConsumerGroup)
	}

	h := handler.New(engine, queryCache, announcer, m, handler.Options{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
		Timeout:      cfg.Search.Timeout,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.NewRouter(h, checker, m, cfg.Server.WriteTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}
