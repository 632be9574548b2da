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

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/example/chronopact/internal/application"
	"github.com/example/chronopact/internal/config"
	httptransport "github.com/example/chronopact/internal/http"
	"github.com/example/chronopact/internal/insult"
	"github.com/example/chronopact/internal/logging"
	"github.com/example/chronopact/internal/metrics"
	"github.com/example/chronopact/internal/notify"
	"github.com/example/chronopact/internal/persistence"
	"github.com/example/chronopact/internal/persistence/sqlite"
	"github.com/example/chronopact/internal/presence"
	"github.com/example/chronopact/internal/scheduler"
	"github.com/example/chronopact/internal/timeexpr"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, slog.LevelInfo).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("chronopact exited with error", "error", err)
		os.Exit(1)
	}
}

// presenceBackend is what the process needs from a presence oracle: lookups
// and arrival streams for the services plus occupancy updates from the gateway.
type presenceBackend interface {
	application.PresenceOracle
	presence.Recorder
}

// app holds every wired component of one process.
type app struct {
	cfg          config.Config
	logger       *slog.Logger
	storage      *sqlite.Storage
	stats        *persistence.StatsBuffer
	presence     presenceBackend
	redis        *redis.Client
	metrics      *metrics.Prometheus
	appointments *application.AppointmentService
	harassments  *application.HarassmentService
	loop         *scheduler.Loop
	handler      http.Handler
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	storage, err := sqlite.Open(cfg.SQLitePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		storage: storage,
		stats:   persistence.NewStatsBuffer(storage.Stats(), time.Now, uuid.NewString),
		metrics: metrics.NewPrometheus(metrics.DefaultNamespace),
	}

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		a.presence = presence.NewRedis(a.redis)
	} else {
		logger.Warn("CHRONOPACT_REDIS_ADDR not set, using in-process presence")
		a.presence = presence.NewMemory()
	}

	var notifier application.Notifier = notify.NewLog(logger)
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.WebhookURL, nil)
	}

	var insults application.InsultGenerator = insult.Canned{}
	if cfg.InsultEndpoint != "" {
		insults = insult.NewHTTP(insult.HTTPConfig{
			Endpoint: cfg.InsultEndpoint,
			APIKey:   cfg.InsultAPIKey,
			Model:    cfg.InsultModel,
			Timeout:  cfg.InsultTimeout,
		})
	}

	registry := application.NewRegistry(0)
	a.appointments = application.NewAppointmentService(application.AppointmentServiceDeps{
		Registry:         registry,
		Notifier:         notifier,
		Presence:         a.presence,
		Insults:          insults,
		Stats:            a.stats,
		Metrics:          a.metrics,
		Parser:           timeexpr.NewParser(time.Local),
		Logger:           logger,
		IDGenerator:      uuid.NewString,
		Now:              time.Now,
		StrictInvariants: cfg.StrictInvariants,
	})
	a.harassments = application.NewHarassmentService(application.HarassmentServiceDeps{
		Registry:        registry,
		Notifier:        notifier,
		Presence:        a.presence,
		Insults:         insults,
		Stats:           a.stats,
		Metrics:         a.metrics,
		Logger:          logger,
		IDGenerator:     uuid.NewString,
		Now:             time.Now,
		DefaultInterval: cfg.HarassInterval,
	})

	a.loop = scheduler.New(scheduler.Config{
		Interval:     cfg.TickInterval,
		Appointments: a.appointments,
		Harassments:  a.harassments,
		Metrics:      a.metrics,
		Logger:       logger,
	})

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Appointments: httptransport.NewAppointmentHandler(a.appointments, logger),
		Harassments:  httptransport.NewHarassmentHandler(a.harassments, logger),
		Presence:     httptransport.NewPresenceHandler(a.presence, a.dispatch(), logger),
		Leaderboard:  httptransport.NewLeaderboardHandler(storage.Stats(), logger),
		Health:       a.healthy,
		Metrics:      a.metrics.Handler(),
		Auth:         httptransport.RequireAPIToken(cfg.APITokenHash, logger),
		Middleware:   []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})
	return a, nil
}

func (a *app) dispatch() presence.ArrivalHandler {
	return presence.Dispatch(a.appointments, a.harassments)
}

func (a *app) healthy(ctx context.Context) error {
	if err := a.storage.Ping(ctx); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// close flushes buffered ledger entries and releases connections.
func (a *app) close() {
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if a.stats != nil && a.stats.Pending() > 0 {
		if err := a.stats.Flush(flushCtx); err != nil {
			a.logger.Error("failed to flush ledger entries", "pending", a.stats.Pending(), "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("failed to close redis client", "error", err)
		}
	}
	if err := a.storage.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("chronopact API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.loop.Run(gctx)
	})

	dispatch := a.dispatch()
	for _, point := range cfg.PresencePoints {
		g.Go(func() error {
			return presence.Listen(gctx, a.presence, point, dispatch, logger)
		})
	}

	return g.Wait()
}
