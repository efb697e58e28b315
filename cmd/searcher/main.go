// Command searcher serves symbol lookups over the segments the indexer writes
// to the shared data directory.
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

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/searcher/refresh"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting lookup service", "port", cfg.Server.Port, "data_dir", cfg.Indexer.DataDir)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	engine, err := indexer.NewEngine(cfg.Indexer, m)
	if err != nil {
		slog.Error("failed to open index engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	slog.Info("index engine opened", "segments", engine.Stats().Segments)

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	var invalidator refresh.Invalidator
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, lookup caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		invalidator = queryCache
		slog.Info("lookup cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refresher := refresh.New(engine, invalidator)
	go refresher.Run(ctx, cfg.Search.RefreshInterval)
	completeConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, refresher.HandleIndexComplete)
	go func() {
		if err := completeConsumer.Start(ctx); err != nil {
			slog.Error("index-complete consumer error", "error", err)
		}
	}()
	slog.Info("segment refresher started",
		"interval", cfg.Search.RefreshInterval,
		"topic", cfg.Kafka.Topics.IndexComplete,
	)

	checker := health.NewChecker()
	checker.Register("index_engine", func(ctx context.Context) health.ComponentHealth {
		if n := engine.Stats().Segments; n > 0 {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d segments open", n)}
		}
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "no segments yet"}
	})
	var redisPing func(context.Context) error
	if redisClient != nil {
		redisPing = redisClient.Ping
	}
	checker.Register("redis", health.Ping(redisPing, health.StatusDegraded))

	h := handler.New(executor.New(engine), queryCache, m, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		limiter.StartCleanup(ctx, 5*time.Minute)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
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

	slog.Info("lookup service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("lookup service stopped")
}
