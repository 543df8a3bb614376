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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"boxoffice/internal/platform/config"
	"boxoffice/internal/platform/health"
	"boxoffice/internal/platform/logger"
	redisplatform "boxoffice/internal/platform/redis"
	"boxoffice/internal/platform/tracer"
	"boxoffice/internal/ratelimit/analytics"
	rlconfig "boxoffice/internal/ratelimit/config"
	"boxoffice/internal/ratelimit/handler"
	"boxoffice/internal/ratelimit/identity"
	"boxoffice/internal/ratelimit/metrics"
	"boxoffice/internal/ratelimit/middleware"
	"boxoffice/internal/ratelimit/policy"
	"boxoffice/internal/ratelimit/service/admission"
	"boxoffice/internal/ratelimit/service/penalty"
	"boxoffice/internal/ratelimit/store/accesslist"
	httptransport "boxoffice/internal/transport/http"
	"boxoffice/pkg/platform/middleware/metadata"
	"boxoffice/pkg/platform/middleware/request"
)

const poolStatsInterval = 15 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	rlCfg, err := loadRateLimitConfig(cfg)
	if err != nil {
		return err
	}

	log.Info("initializing boxoffice",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"hardened", cfg.Hardened(),
		"redis", cfg.Redis.URL != "",
		"fail_open", rlCfg.FailOpen,
	)

	rlMetrics := metrics.New()
	redisClient, err := redisplatform.New(ctx, cfg.Redis, redisplatform.NewPoolMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // process is exiting
	}

	var shared goredis.UniversalClient
	if redisClient != nil {
		shared = redisClient
	}
	st, err := buildStores(shared, cfg.Redis.Namespace, rlCfg)
	if err != nil {
		return err
	}

	registry, err := policy.NewRegistry(rlCfg.Policies)
	if err != nil {
		return fmt.Errorf("build policy registry: %w", err)
	}
	lists, err := accesslist.NewInMemoryAccessList(rlCfg.Whitelist, rlCfg.Blacklist)
	if err != nil {
		return fmt.Errorf("build access list: %w", err)
	}
	extractor, err := metadata.NewExtractor(&metadata.Config{
		TrustedProxies:    cfg.RateLimit.TrustedProxies,
		TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
	})
	if err != nil {
		return fmt.Errorf("build address extractor: %w", err)
	}
	resolverOpts := []identity.Option{
		identity.WithLogger(log),
		identity.WithDeviceHeader(cfg.RateLimit.DeviceTokenHeader),
	}
	if cfg.RateLimit.DeviceTokenSecret != "" {
		resolverOpts = append(resolverOpts, identity.WithDeviceTokenSecret([]byte(cfg.RateLimit.DeviceTokenSecret)))
	}
	resolver, err := identity.New(extractor, resolverOpts...)
	if err != nil {
		return fmt.Errorf("build identity resolver: %w", err)
	}
	tracker, err := penalty.New(st.penalties, penalty.WithConfig(rlCfg.Penalty), penalty.WithLogger(log))
	if err != nil {
		return fmt.Errorf("build penalty tracker: %w", err)
	}

	aggOpts := []analytics.Option{analytics.WithLogger(log), analytics.WithMetrics(rlMetrics)}
	statusOpts := []handler.Option{
		handler.WithDetailedStatus(!cfg.Hardened()),
		handler.WithUsage(st.counters),
	}
	if redisClient != nil {
		sink, err := analytics.NewRedisSink(redisClient, cfg.Redis.Namespace)
		if err != nil {
			return fmt.Errorf("build analytics sink: %w", err)
		}
		aggOpts = append(aggOpts, analytics.WithSink(sink))
		statusOpts = append(statusOpts, handler.WithFleet(sink))
	}
	aggregator := analytics.New(aggOpts...)

	engine, err := admission.New(registry, resolver, st.counters, lists, tracker,
		admission.WithLogger(log),
		admission.WithConfig(rlCfg),
		admission.WithRecorder(aggregator),
		admission.WithTracer(tracer.NewOTel()),
	)
	if err != nil {
		return fmt.Errorf("build admission engine: %w", err)
	}

	mwOpts := []middleware.Option{
		middleware.WithLogger(log),
		middleware.WithMetrics(rlMetrics),
		middleware.WithFailOpen(rlCfg.FailOpen),
	}
	if cfg.RateLimit.SkipLocal {
		log.Warn("rate limits are skipped for loopback clients")
		mwOpts = append(mwOpts, middleware.WithSkip(middleware.SkipLocal))
	}
	rateLimit, err := middleware.New(engine, mwOpts...)
	if err != nil {
		return fmt.Errorf("build rate limit middleware: %w", err)
	}

	healthHandler := health.New(cfg.Environment)
	healthHandler.RegisterDegraded("ratelimit", rateLimit.Degraded)
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", redisClient.Health)
	}

	router, err := httptransport.NewRouter(httptransport.Dependencies{
		Logger:         log,
		RateLimit:      rateLimit,
		Status:         handler.New(registry, resolver, aggregator, log, statusOpts...),
		Health:         healthHandler,
		Metadata:       metadata.NewMiddleware(extractor),
		Metrics:        request.NewMetrics(),
		MetricsHandler: promhttp.Handler(),
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return aggregator.Run(gctx)
	})
	if st.cleanup != nil {
		g.Go(func() error {
			return ignoreCanceled(st.cleanup(log, rlMetrics).Start(gctx))
		})
	}
	if redisClient != nil {
		g.Go(func() error {
			return redisClient.RunPoolStats(gctx, poolStatsInterval, log)
		})
	}

	return g.Wait()
}

func loadRateLimitConfig(cfg config.Server) (*rlconfig.Config, error) {
	rlCfg := rlconfig.DefaultConfig()
	if cfg.RateLimit.ConfigPath != "" {
		loaded, err := rlconfig.Load(cfg.RateLimit.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load rate limit config: %w", err)
		}
		rlCfg = loaded
	}
	if cfg.RateLimit.FailOpen != nil {
		rlCfg.FailOpen = *cfg.RateLimit.FailOpen
	}
	if err := rlCfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate rate limit config: %w", err)
	}
	return rlCfg, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
