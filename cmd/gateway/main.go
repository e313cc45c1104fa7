package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homework-gateway/logging"
	"homework-gateway/middleware/ratelimit"
	"homework-gateway/middleware/ratelimit/application"
	"homework-gateway/middleware/ratelimit/domain"
	"homework-gateway/middleware/ratelimit/infra"
	"homework-gateway/relay"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	if err := loadDotenv(); err != nil {
		fmt.Fprintf(os.Stderr, "dotenv error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := readConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.logEnv, cfg.logLevel, cfg.logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(cfg config, log *zap.Logger) error {
	store, err := infra.NewWindowStore(
		infra.WindowConfig{
			Window:     cfg.rateWindow,
			Max:        cfg.rateMax,
			Strategy:   cfg.rateStrategy,
			Escalation: cfg.escalation,
		},
		infra.WithSweepEvery(cfg.rateSweepEvery),
		infra.WithLogger(log.Named("ratelimit")),
	)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var statsStore domain.StatsStore = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.rateStatsTrackKeys))
	if cfg.rateStatsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.rateStatsRedisAddr,
			Password: cfg.rateStatsRedisPassword,
			DB:       cfg.rateStatsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return fmt.Errorf("redis stats ping: %w", err)
		}

		statsStore = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		)
	}

	client := relay.NewClient(cfg.upstreamURL, cfg.apiKey)
	client.Timeout = cfg.upstreamTimeout
	client.Logger = log.Named("relay")
	if cfg.upstreamRPS > 0 {
		client.Pacer = rate.NewLimiter(rate.Limit(cfg.upstreamRPS), cfg.upstreamBurst)
	}
	if client.APIKey == "" {
		log.Warn("ROUTER_API_KEY not set; relay will answer 500 until configured")
	}

	handler := &relay.Handler{
		Client: client,
		Solver: &relay.Solver{
			Client:      client,
			Model:       cfg.solverModel,
			MaxAttempts: cfg.solverAttempts,
			Logger:      log.Named("solver"),
		},
		Feedback: application.Service{Limiter: store, Stats: statsStore},
		KeyFn:    ratelimit.DefaultKeyFunc(cfg.rateKeyHeader, cfg.trustXFF),
		Logger:   log.Named("relay"),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)

	srv := &http.Server{
		Addr: cfg.listenAddr,
		Handler: newRouter(deps{
			cfg:     cfg,
			log:     log,
			limiter: store,
			stats:   statsStore,
			relay:   handler,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.upstreamTimeout + 15*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	log.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", cfg.upstreamURL))
	log.Info("rate",
		zap.Bool("enabled", cfg.rateEnabled),
		zap.String("strategy", string(cfg.rateStrategy)),
		zap.Duration("window", cfg.rateWindow),
		zap.Int("max", cfg.rateMax),
		zap.Int("escalation_multiplier", cfg.escalation.Multiplier),
		zap.Int("escalation_cap", cfg.escalation.CapFactor),
		zap.Duration("sweep_every", cfg.rateSweepEvery),
		zap.Bool("trust_xff", cfg.trustXFF))
	log.Info("rate-stats",
		zap.Bool("redis", cfg.rateStatsEnabled),
		zap.String("bucket", cfg.rateStatsBucket),
		zap.Bool("track_keys", cfg.rateStatsTrackKeys))
	log.Info("concurrency",
		zap.Int("max", cfg.concurrencyMax),
		zap.Duration("acquire_timeout", cfg.concurrencyTimeout),
		zap.Float64("upstream_rps", cfg.upstreamRPS))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
