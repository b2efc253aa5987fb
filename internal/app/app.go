// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/gym-subscriptions/api"
	"github.com/bissquit/gym-subscriptions/internal/config"
	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/bissquit/gym-subscriptions/internal/identity"
	"github.com/bissquit/gym-subscriptions/internal/notifications"
	notificationspostgres "github.com/bissquit/gym-subscriptions/internal/notifications/postgres"
	"github.com/bissquit/gym-subscriptions/internal/pkg/ctxlog"
	"github.com/bissquit/gym-subscriptions/internal/pkg/httputil"
	"github.com/bissquit/gym-subscriptions/internal/pkg/metrics"
	"github.com/bissquit/gym-subscriptions/internal/pkg/postgres"
	"github.com/bissquit/gym-subscriptions/internal/pkg/redis"
	"github.com/bissquit/gym-subscriptions/internal/plans"
	planspostgres "github.com/bissquit/gym-subscriptions/internal/plans/postgres"
	"github.com/bissquit/gym-subscriptions/internal/storage/memory"
	"github.com/bissquit/gym-subscriptions/internal/subscriptions"
	subscriptionspostgres "github.com/bissquit/gym-subscriptions/internal/subscriptions/postgres"
	"github.com/bissquit/gym-subscriptions/internal/version"
	"github.com/bissquit/gym-subscriptions/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *goredis.Client
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	scheduler     *subscriptions.Scheduler
}

// stores groups the repositories of the selected storage driver.
type stores struct {
	plans         plans.Repository
	subscriptions subscriptions.Repository
	notifications notifications.Repository
}

// New creates a new application instance. The expiration sweep is started
// here when enabled and stopped by Shutdown.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	metricsCtx, metricsCancel := context.WithCancel(context.Background())
	app := &App{
		config:        cfg,
		logger:        logger,
		metricsCancel: metricsCancel,
	}

	st, err := app.openStores()
	if err != nil {
		metricsCancel()
		return nil, err
	}

	if app.db != nil {
		go app.collectDBMetrics(metricsCtx)
	}

	router, err := app.setupRouter(st)
	if err != nil {
		app.closeStores()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if app.scheduler != nil {
		if err := app.scheduler.Start(); err != nil {
			app.closeStores()
			metricsCancel()
			return nil, fmt.Errorf("start expiration sweep: %w", err)
		}
	}

	return app, nil
}

func (a *App) openStores() (stores, error) {
	cfg := a.config

	if cfg.Database.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory storage: data is lost on restart")
		store := memory.NewStore()
		return stores{
			plans:         store.Plans(),
			subscriptions: store.Subscriptions(),
			notifications: store.Notifications(),
		}, nil
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(),
		cfg.Database.ConnectTimeout*time.Duration(max(cfg.Database.ConnectAttempts, 1)))
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return stores{}, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(migrations.FS, cfg.Database.URL); err != nil {
			db.Close()
			a.db = nil
			return stores{}, fmt.Errorf("migrate database: %w", err)
		}
		a.logger.Info("database migrations applied")
	}

	plansRepo := planspostgres.NewRepository(db)
	notificationsRepo := notificationspostgres.NewRepository(db)
	return stores{
		plans:         plansRepo,
		subscriptions: subscriptionspostgres.NewRepository(db, plansRepo, notificationsRepo),
		notifications: notificationsRepo,
	}, nil
}

func (a *App) closeStores() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("failed to close redis client", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// sweepLocker connects to Redis when configured. A nil Locker keeps the
// sweep single-replica.
func (a *App) sweepLocker() (subscriptions.Locker, error) {
	cfg := a.config.Redis
	if cfg.URL == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		cfg.ConnectTimeout*time.Duration(max(cfg.ConnectAttempts, 1)))
	defer cancel()

	client, err := redis.Connect(ctx, redis.Config{
		URL:             cfg.URL,
		ConnectTimeout:  cfg.ConnectTimeout,
		ConnectAttempts: cfg.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	return redis.NewLocker(client, "gym:"), nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"storage", a.config.Database.Driver,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	var (
		wg   sync.WaitGroup
		errs []error
		mu   sync.Mutex
	)
	collect := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	// Stop scheduling first so no sweep starts against closing stores
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			collect(fmt.Errorf("stop expiration sweep: %w", err))
		}
	}

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			collect(fmt.Errorf("shutdown server: %w", err))
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			collect(fmt.Errorf("shutdown metrics server: %w", err))
		}
	}()

	wg.Wait()

	a.closeStores()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Scheduler returns the expiration sweep scheduler, or nil when the sweep
// is disabled. Used in tests to trigger a pass.
func (a *App) Scheduler() *subscriptions.Scheduler {
	return a.scheduler
}

func (a *App) setupRouter(st stores) (*chi.Mux, error) {
	cfg := a.config

	authenticator, err := identity.NewAuthenticator(cfg.JWT.SecretKey, cfg.JWT.Issuer)
	if err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}

	renderer, err := notifications.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create notification renderer: %w", err)
	}

	engine := subscriptions.NewService(st.subscriptions, renderer, subscriptions.Config{
		MinPeriod:     cfg.Subscriptions.MinPeriod,
		RenewalPeriod: cfg.Subscriptions.RenewalPeriod,
		StoreTimeout:  cfg.Subscriptions.StoreTimeout,
	})

	sweepCfg := cfg.Subscriptions.Sweep
	sweeper := subscriptions.NewSweeper(engine, subscriptions.ExpiryPolicy{Location: sweepCfg.Location()}, sweepCfg.RatePerSecond)

	locker, err := a.sweepLocker()
	if err != nil {
		return nil, err
	}
	scheduler := subscriptions.NewScheduler(subscriptions.SchedulerConfig{
		Interval: sweepCfg.Interval,
		Timeout:  sweepCfg.Timeout,
		LockKey:  sweepCfg.LockKey,
		LockTTL:  sweepCfg.LockTTL,
	}, sweeper, locker, a.logger)

	a.logger.Info("expiration sweep configured",
		"enabled", sweepCfg.Enabled,
		"interval", sweepCfg.Interval,
		"timezone", sweepCfg.Timezone,
		"distributed_lock", locker != nil,
	)
	if sweepCfg.Enabled {
		a.scheduler = scheduler
	}

	plansHandler := plans.NewHandler(plans.NewService(st.plans))
	subscriptionsHandler := subscriptions.NewHandler(engine)
	notificationsHandler := notifications.NewHandler(notifications.NewService(st.notifications))

	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		_, _ = w.Write(api.OpenAPISpec)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.AuthMiddleware(authenticator))

		plansHandler.RegisterRoutes(r)
		subscriptionsHandler.RegisterRoutes(r)
		notificationsHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireRole(domain.RoleAdmin, domain.RoleGymOwner))
			subscriptionsHandler.RegisterAdminRoutes(r, scheduler)
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if a.db != nil {
		if err := a.db.Ping(ctx); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Redis unavailable")
			return
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
