package server

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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"pms/internal/domain/audit"
	"pms/internal/domain/auth"
	"pms/internal/domain/notifications"
	"pms/internal/domain/performance"
	"pms/internal/platform/config"
	"pms/internal/platform/db"
	"pms/internal/platform/email"
	"pms/internal/platform/jobs"
	"pms/internal/platform/lock"
	"pms/internal/platform/metrics"
	"pms/internal/transport/http/api"
	audithandler "pms/internal/transport/http/handlers/audit"
	notificationshandler "pms/internal/transport/http/handlers/notifications"
	performancehandler "pms/internal/transport/http/handlers/performance"
	"pms/internal/transport/http/middleware"
)

type App struct {
	Config      config.Config
	DB          *pgxpool.Pool
	Router      http.Handler
	Performance *performance.Service
	Jobs        *jobs.Service
	Metrics     *metrics.Collector

	redis  *lock.RedisGuard
	cancel context.CancelFunc
}

// New connects storage, runs migrations and seed when configured, and builds the router.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.Migrate(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	app := &App{Config: cfg, DB: pool, Metrics: metrics.New()}

	var locker performance.Locker = lock.NewMemoryGuard(cfg.BusyTTL)
	if cfg.RedisAddr != "" {
		guard, err := lock.NewRedisGuard(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.BusyTTL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("redis connect: %w", err)
		}
		app.redis = guard
		locker = guard
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	app.Jobs = jobs.New(pool, jobs.DefaultRetryPolicy())
	app.Jobs.Start(jobCtx)

	notifySvc := notifications.New(notifications.NewStore(pool), email.New(cfg), cfg.EmailFrom)
	auditSvc := audit.New(pool)

	perfSvc := performance.NewService(performance.NewStore(pool), notifySvc, locker)
	perfSvc.Audit = auditSvc
	perfSvc.Jobs = app.Jobs
	perfSvc.Metrics = app.Metrics
	app.Performance = perfSvc

	if cfg.RunSeed {
		if err := db.Seed(ctx, perfSvc, cfg); err != nil {
			app.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	perms := auth.StaticPermissions{}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(app.Metrics))
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.TransitionRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if app.redis != nil {
			if err := app.redis.Ping(ctx); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, app.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		performancehandler.NewHandler(perfSvc, perms).RegisterRoutes(r)
		notificationshandler.NewHandler(notifySvc, perms).RegisterRoutes(r)
		audithandler.NewHandler(auditSvc, perms).RegisterRoutes(r)
	})

	app.Router = router
	return app, nil
}

func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("redis close failed", "err", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// Run loads configuration, serves until SIGINT/SIGTERM, then drains in-flight requests.
func Run() error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("performance server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
