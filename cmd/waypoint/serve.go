package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aescanero/waypoint/internal/application/orchestrator"
	"github.com/aescanero/waypoint/internal/application/workers"
	"github.com/aescanero/waypoint/internal/config"
	"github.com/aescanero/waypoint/internal/phase"
	eventsmemory "github.com/aescanero/waypoint/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/waypoint/pkg/adapters/events/redis"
	promcollector "github.com/aescanero/waypoint/pkg/adapters/metrics/prometheus"
	storagememory "github.com/aescanero/waypoint/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/waypoint/pkg/adapters/storage/redis"
	"github.com/aescanero/waypoint/pkg/api/grpc"
	"github.com/aescanero/waypoint/pkg/api/http"
	"github.com/aescanero/waypoint/pkg/api/websocket"
	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/aescanero/waypoint/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	var rf roadmapFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mission service",
		Long: `Serve the HTTP API, mission event WebSocket and gRPC health endpoint, and run
submitted missions on the worker pool until SIGINT or SIGTERM.

The memory backend keeps reports and events in process; the redis backend
stores reports with a TTL and carries events on Redis Streams.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			rf.apply(cmd, &cfg.Roadmap)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), &cfg, a.logger)
		},
	}
	rf.register(cmd)

	return cmd
}

// backend bundles the storage and event adapters selected by config
type backend struct {
	eventBus ports.EventBus
	storage  ports.ReportStorage
	close    func()
}

func newBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	if cfg.Backend == "memory" {
		bus := eventsmemory.NewInMemoryEventBus(logger)
		return &backend{
			eventBus: bus,
			storage:  storagememory.NewInMemoryReportStorage(),
			close:    func() { _ = bus.Close() },
		}, nil
	}

	// Initialize Redis client
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	// Test Redis connection
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	eventBus, err := eventsredis.NewStreamsEventBus(
		redisClient,
		"waypoint-workers",
		fmt.Sprintf("waypoint-%d", os.Getpid()),
		logger,
		domain.TopicMissionRequests,
	)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	return &backend{
		eventBus: eventBus,
		storage:  storageredis.NewReportStorage(redisClient, cfg.Redis.ReportTTL, logger),
		close: func() {
			if err := eventBus.Close(); err != nil {
				logger.Error("event bus close error", zap.Error(err))
			}
			if err := redisClient.Close(); err != nil {
				logger.Error("Redis close error", zap.Error(err))
			}
		},
	}, nil
}

// serve runs the service until ctx is cancelled
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting waypoint",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("backend", cfg.Backend))

	rm, err := loadRoadmap(cfg.Roadmap, logger)
	if err != nil {
		return err
	}

	be, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCollector := promcollector.NewCollector(registry)

	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)

	// Initialize application components
	orchestratorMgr := orchestrator.NewManager(
		phase.NewRegistry(logger, phase.WithDuration(cfg.Mission.PhaseDuration)),
		be.eventBus,
		be.storage,
		metricsCollector,
		orchestrator.NewValidator(),
		logger,
		orchestrator.WithTracer(tracerProvider.Tracer("waypoint")),
		orchestrator.WithMissionTimeout(cfg.Timeouts.MissionExecutionTimeout),
		orchestrator.WithActuationWait(cfg.Mission.ActuationWaitTimeout),
	)

	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		cfg.Workers.QueueSize,
		orchestratorMgr,
		rm.Graph,
		be.eventBus,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
		workers.WithQueueStallThreshold(cfg.Workers.QueueStallThreshold),
	)

	// Start worker pool
	if err := workerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: orchestratorMgr,
		Roadmap:      rm,
		Logger:       logger,
		Pool:         workerPool,
		Gatherer:     registry,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(be.eventBus, orchestratorMgr, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		_ = workerPool.Shutdown(context.Background())
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	// Start servers
	serverErr := make(chan error, 2)
	go func() {
		if err := httpServer.Start(); err != nil {
			serverErr <- err
		}
	}()
	go func() {
		if err := grpcServer.Start(); err != nil {
			serverErr <- err
		}
	}()

	logger.Info("waypoint started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize),
		zap.Int("roadmap_nodes", rm.Graph.NumNodes()))

	// Wait for interrupt signal or a failed server
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-serverErr:
		logger.Error("server failed", zap.Error(runErr))
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := orchestratorMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer provider shutdown error", zap.Error(err))
	}

	logger.Info("waypoint shut down complete")
	return runErr
}
