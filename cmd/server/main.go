// Package main запускает сервис анализа тональности на граничном устройстве.
// Сервис реализует:
// - загрузку и прогрев модели до приема трафика (ошибка загрузки фатальна)
// - HTTP API для анализа одного текста и пакета до 100 текстов
// - счетчики запросов и задержек воркера, /health и /metrics
// - необязательное хранение последних результатов в Redis
// - экспорт метрик в Prometheus
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"edge-sentiment/internal/cache"
	"edge-sentiment/internal/config"
	"edge-sentiment/internal/handlers"
	"edge-sentiment/internal/health"
	"edge-sentiment/internal/inference"
	"edge-sentiment/internal/metrics"
	"edge-sentiment/internal/stats"
	"edge-sentiment/internal/telemetry"
)

const version = "1.0.0"

type serverFlags struct {
	configPath string
	port       int
	logLevel   string
	workers    int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f serverFlags

	cmd := &cobra.Command{
		Use:           "sentiment-server",
		Short:         "On-premise sentiment analysis service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = f.port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = f.logLevel
			}
			if cmd.Flags().Changed("workers") {
				cfg.InferenceWorkers = f.workers
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().IntVar(&f.port, "port", 8001, "listening port")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().IntVar(&f.workers, "workers", runtime.NumCPU(), "number of inference workers")
	return cmd
}

func run(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	logger, err := telemetry.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting sentiment analysis service",
		"version", version,
		"go_version", runtime.Version(),
		"num_cpu", runtime.NumCPU(),
		"model", cfg.ModelName,
		"backend", cfg.ModelBackend,
		"port", cfg.Port,
		"inference_workers", cfg.InferenceWorkers,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracer(cfg.Tracing, cfg.ServiceName, version, os.Stdout, logger)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}()

	// Модель загружается до приема трафика; ошибка завершает процесс
	rt := inference.NewRuntime(inference.Config{
		Model: inference.LoadOptions{
			Name:    cfg.ModelName,
			Backend: cfg.ModelBackend,
			URL:     cfg.ModelURL,
			Device:  cfg.Device,
			Timeout: cfg.ModelTimeout,
		},
		Workers: cfg.InferenceWorkers,
	}, inference.DefaultLoader, logger)
	if err := rt.Load(ctx); err != nil {
		return fmt.Errorf("model startup failed: %w", err)
	}
	defer rt.Close()

	agg := stats.NewAggregator()

	redisCache := connectRedis(ctx, cfg, logger)
	var store handlers.ResultStore
	if redisCache != nil {
		store = redisCache
		defer redisCache.Close()
	}

	reporter := health.NewReporter(rt, agg, cfg.ModelName)
	handler := handlers.NewHandler(rt, agg, reporter, handlers.Options{
		SlowThreshold: cfg.SlowThreshold(),
		Store:         store,
		Logger:        logger,
	})

	var httpHandler http.Handler = handlers.NewRouter(handler, handlers.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})
	if cfg.Tracing {
		httpHandler = otelhttp.NewHandler(httpHandler, cfg.ServiceName)
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      httpHandler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.Addr(),
			"endpoints", []string{
				"POST /analyze", "POST /analyze/batch", "GET /health", "GET /metrics",
				"GET /stats", "GET /results/latest", "GET /prometheus",
			},
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		updateMetricsLoop(gctx, cfg.SnapshotInterval, rt, agg, redisCache, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// connectRedis подключается к Redis с повторами; без Redis сервис работает без кэша
func connectRedis(ctx context.Context, cfg config.Config, logger *slog.Logger) *cache.RedisCache {
	if cfg.RedisAddr == "" {
		return nil
	}

	var lastErr error
	for i := 0; i < 5; i++ {
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			logger.Info("connected to Redis", "addr", cfg.RedisAddr)
			return redisCache
		}
		lastErr = err
		logger.Warn("Redis connection attempt failed", "attempt", i+1, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(i+1) * time.Second):
		}
	}

	logger.Warn("running without result cache", "error", lastErr)
	return nil
}

// updateMetricsLoop периодически обновляет метрики Prometheus и публикует срез воркера в Redis
func updateMetricsLoop(ctx context.Context, interval time.Duration, rt *inference.Runtime, agg *stats.Aggregator, redisCache *cache.RedisCache, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	id := workerID()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, queued := rt.PoolStats()
			metrics.QueueDepth.Set(float64(queued))
			metrics.ActiveGoroutines.Set(float64(runtime.NumGoroutine()))

			if redisCache == nil {
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := redisCache.PublishSnapshot(pctx, id, agg.Snapshot(), rt.IsReady()); err != nil {
				logger.Warn("failed to publish worker snapshot", "error", err)
			}
			cancel()
		}
	}
}

func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
