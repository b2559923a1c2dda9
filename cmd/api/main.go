package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hszk-dev/mediagate/internal/access"
	"github.com/hszk-dev/mediagate/internal/api/handler"
	"github.com/hszk-dev/mediagate/internal/config"
	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/extractor"
	"github.com/hszk-dev/mediagate/internal/handle"
	"github.com/hszk-dev/mediagate/internal/infrastructure/cache"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
	"github.com/hszk-dev/mediagate/internal/infrastructure/postgres"
	"github.com/hszk-dev/mediagate/internal/infrastructure/queue"
	"github.com/hszk-dev/mediagate/internal/infrastructure/storage"
	"github.com/hszk-dev/mediagate/internal/infrastructure/tracing"
	"github.com/hszk-dev/mediagate/internal/streamproxy"
	"github.com/hszk-dev/mediagate/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	tp, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	checks := map[string]handler.Check{}

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		logger.Info("connected to Redis")
	}

	// Stream handles
	var handleStore cache.Store[model.StreamHandle]
	if cfg.Cache.Backend == "redis" {
		handleStore = cache.NewRedisStore[model.StreamHandle](redisClient, cfg.Redis.Prefix+"handle:")
	} else {
		mem := cache.NewMemoryStore[model.StreamHandle](cache.WithSweepInterval(cfg.Cache.SweepInterval))
		defer mem.Close()
		handleStore = mem
	}
	handles := handle.NewManager(handleStore, handle.WithExpiredRetention(cfg.Handle.ExpiredRetention))

	// Extraction
	ytdlpCfg := extractor.YtDlpConfig{Path: cfg.Extractor.YtDlpPath, ExtraArgs: cfg.Extractor.YtDlpArgs}
	runner := extractor.NewCommandRunner(cfg.Extractor.Timeout)
	pool := extractor.NewPool(cfg.Extractor.Workers, cfg.Extractor.QueueSize)

	var resolver repository.MediaResolver
	switch cfg.Extractor.Backend {
	case "native":
		resolver = extractor.NewNativeResolver(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Extractor.Timeout,
		})
	default:
		resolver = extractor.NewYtDlpResolver(runner, ytdlpCfg)
	}

	var search repository.SearchProvider
	switch cfg.Extractor.SearchBackend {
	case "ytdlp":
		search = extractor.NewYtDlpSearch(runner, ytdlpCfg)
	default:
		search = extractor.NewYTSearchProvider()
	}

	pooledResolver := extractor.NewPooledResolver(pool, resolver)
	pooledSearch := extractor.NewPooledSearch(pool, search)

	mediaCfg := usecase.DefaultMediaServiceConfig()
	mediaCfg.PublicBaseURL = cfg.Server.PublicBaseURL
	mediaCfg.HandleTTL = cfg.Handle.TTL
	mediaSvc := usecase.NewMediaService(pooledResolver, pooledSearch, handles, mediaCfg)

	if cfg.Cache.Enabled {
		var resultStore cache.Store[[]byte]
		cacheType := metrics.CacheTypeMemory
		if cfg.Cache.Backend == "redis" {
			resultStore = cache.NewRedisStore[[]byte](redisClient, cfg.Redis.Prefix+"result:")
			cacheType = metrics.CacheTypeRedis
		} else {
			mem := cache.NewMemoryStore[[]byte](cache.WithSweepInterval(cfg.Cache.SweepInterval))
			defer mem.Close()
			resultStore = mem
		}
		mediaSvc = usecase.NewCachedMediaService(mediaSvc, resultStore, handles, usecase.CachedMediaServiceConfig{
			TTL:           cfg.Cache.ResultTTL,
			HandleTTL:     cfg.Handle.TTL,
			PublicBaseURL: cfg.Server.PublicBaseURL,
			// A stream query searches and then resolves.
			LoadTimeout: 2 * cfg.Extractor.Timeout,
			CacheType:   cacheType,
		})
	}

	// Downloads
	if err := os.MkdirAll(cfg.Download.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	materializer := extractor.NewPooledMaterializer(pool,
		extractor.NewYtDlpDownloader(extractor.NewCommandRunner(cfg.Download.Timeout), ytdlpCfg, cfg.Download.Dir))

	var objectStorage repository.ObjectStorage
	if cfg.Download.UploadToMinIO || cfg.Download.Mode == usecase.DownloadModeQueue {
		storageClient, err := storage.NewClient(ctx, storage.ClientConfig{
			Endpoint:       cfg.MinIO.Endpoint,
			PublicEndpoint: cfg.MinIO.PublicEndpoint,
			AccessKey:      cfg.MinIO.AccessKey,
			SecretKey:      cfg.MinIO.SecretKey,
			Bucket:         cfg.MinIO.Bucket,
			UseSSL:         cfg.MinIO.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to MinIO: %w", err)
		}
		objectStorage = storageClient
		checks["minio"] = storageClient.Ping
		logger.Info("connected to MinIO", slog.String("bucket", storageClient.Bucket()))
	}

	var taskQueue repository.MessageQueue
	if cfg.Download.Mode == usecase.DownloadModeQueue {
		queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer queueClient.Close()
		taskQueue = queueClient
		logger.Info("connected to RabbitMQ")
	}

	downloadCfg := usecase.DefaultDownloadServiceConfig()
	downloadCfg.Mode = cfg.Download.Mode
	downloadCfg.PublicBaseURL = cfg.Server.PublicBaseURL
	downloadCfg.HandleTTL = cfg.Handle.TTL
	downloadCfg.PresignExpiry = cfg.Download.PresignExpiry
	downloadCfg.ObjectPrefix = cfg.Download.ObjectPrefix
	downloadSvc := usecase.NewDownloadService(pooledResolver, handles, materializer, objectStorage, taskQueue, downloadCfg)

	// Access control
	var auth access.Chain
	if keys := cfg.Auth.Keys(); len(keys) > 0 {
		auth = append(auth, access.NewStaticKeys(keys))
	}
	if cfg.Auth.UseDatabase {
		pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		defer pgClient.Close()
		prometheus.MustRegister(pgClient.Collector())

		keyCache := cache.NewMemoryStore[bool](cache.WithSweepInterval(cfg.Cache.SweepInterval))
		defer keyCache.Close()
		auth = append(auth, access.NewRepositoryKeys(postgres.NewAPIKeyRepository(pgClient.Pool()), keyCache, cfg.Auth.KeyCacheTTL))
		checks["postgres"] = pgClient.Ping
		logger.Info("connected to PostgreSQL")
	}

	var limiter access.Limiter
	if cfg.RateLimit.Backend == "redis" {
		limiter = access.NewRedisLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window,
			access.WithKeyPrefix(cfg.Redis.Prefix+"rl:"))
	} else {
		memLimiter := access.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window,
			access.WithLimiterSweep(cfg.RateLimit.Window))
		defer memLimiter.Close()
		limiter = memLimiter
	}

	proxy := streamproxy.NewProxy(handles, nil, streamproxy.Config{
		BufferSize:    cfg.Proxy.BufferSize,
		HeaderTimeout: cfg.Proxy.HeaderTimeout,
		DialTimeout:   cfg.Proxy.DialTimeout,
	})

	r := setupRouter(logger, routerDeps{
		media:             handler.NewMediaHandler(mediaSvc),
		download:          handler.NewDownloadHandler(downloadSvc),
		stream:            handler.NewStreamHandler(proxy),
		auth:              auth,
		limiter:           limiter,
		checks:            checks,
		trustProxyHeaders: cfg.Server.TrustProxyHeaders,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           otelhttp.NewHandler(r, "mediagate"),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		// No WriteTimeout: stream relays run as long as the client reads.
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.Int("port", cfg.Server.Port),
			slog.String("extractor", cfg.Extractor.Backend),
			slog.String("cache", cfg.Cache.Backend),
			slog.String("download_mode", cfg.Download.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
