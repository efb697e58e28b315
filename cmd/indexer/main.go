// Command indexer builds the class-file symbol indexes.
//
// With -container it indexes one jar or class directory, flushes a segment
// and exits. Otherwise it consumes module events from Kafka, records each
// outcome in PostgreSQL when configured and announces it on the
// index-complete topic. POST /api/v1/containers queues every selected entry
// of a container under the container root.
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

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/container"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/indexer/status"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	containerPath := flag.String("container", "", "index this jar or class directory and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	engine, err := indexer.NewEngine(cfg.Indexer, m)
	if err != nil {
		slog.Error("failed to create index engine", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *containerPath != "" {
		err := indexContainer(ctx, engine, *containerPath)
		if cerr := engine.Close(); cerr != nil {
			slog.Error("closing engine failed", "error", cerr)
		}
		if err != nil {
			slog.Error("indexing failed", "container", *containerPath, "error", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, engine, m); err != nil {
		slog.Error("indexer service error", "error", err)
	}
	if err := engine.Close(); err != nil {
		slog.Error("closing engine failed", "error", err)
	}
	slog.Info("indexer service stopped")
}

func indexContainer(ctx context.Context, engine *indexer.Engine, path string) error {
	c, err := container.Open(path)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := engine.IndexContainer(ctx, c)
	if err != nil {
		return err
	}
	if err := engine.Flush(); err != nil {
		return err
	}
	slog.Info("container indexed",
		"container", result.Container,
		"indexed", result.Indexed,
		"abandoned", result.Abandoned,
		"ignored", result.Ignored,
		"skipped", result.Skipped,
		"duration", result.Duration,
		"segments", engine.Stats().Segments,
	)
	return nil
}

func serve(ctx context.Context, cfg *config.Config, engine *indexer.Engine, m *metrics.Metrics) error {
	slog.Info("starting indexer service",
		"data_dir", cfg.Indexer.DataDir,
		"container_root", cfg.Indexer.ContainerRoot,
		"workers", cfg.Indexer.Workers,
	)
	engine.StartFlushLoop(ctx)

	checker := health.NewChecker()
	checker.Register("index_engine", func(ctx context.Context) health.ComponentHealth {
		st := engine.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d segments, %d values in memory", st.Segments, st.MemoryValues),
		}
	})

	mux := http.NewServeMux()
	var recorder consumer.StatusRecorder
	if cfg.Postgres.Host != "" {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting artifact store: %w", err)
		}
		defer db.Close()
		store := status.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		recorder = store
		status.NewHandler(store).Register(mux)
		checker.Register("postgres", health.Ping(db.Ping, health.StatusDegraded))
		slog.Info("artifact status store enabled", "host", cfg.Postgres.Host)
	} else {
		checker.Register("postgres", health.Ping(nil, health.StatusDegraded))
	}

	completeProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer completeProducer.Close()
	ingestProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ModuleIngest)
	defer ingestProducer.Close()
	ingesthandler.New(publisher.New(cfg.Indexer.ContainerRoot, engine, ingestProducer)).Register(mux)

	handler := consumer.NewHandler(engine, cfg.Indexer.ContainerRoot, recorder, completeProducer, m)
	indexConsumer := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ModuleIngest, handler.Handle))

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		slog.Info("indexer admin listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("admin server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("admin server shutdown error", "error", err)
		}
	}()

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.ModuleIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)
	return indexConsumer.Start(ctx)
}
