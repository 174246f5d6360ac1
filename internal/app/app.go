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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsdrill/opsdrill/internal/cascade"
	cascadepostgres "github.com/opsdrill/opsdrill/internal/cascade/postgres"
	"github.com/opsdrill/opsdrill/internal/config"
	"github.com/opsdrill/opsdrill/internal/domain"
	"github.com/opsdrill/opsdrill/internal/escalation"
	escalationpostgres "github.com/opsdrill/opsdrill/internal/escalation/postgres"
	"github.com/opsdrill/opsdrill/internal/events"
	eventspostgres "github.com/opsdrill/opsdrill/internal/events/postgres"
	"github.com/opsdrill/opsdrill/internal/events/webhook"
	"github.com/opsdrill/opsdrill/internal/health"
	healthpostgres "github.com/opsdrill/opsdrill/internal/health/postgres"
	"github.com/opsdrill/opsdrill/internal/pkg/ctxlog"
	"github.com/opsdrill/opsdrill/internal/pkg/httputil"
	"github.com/opsdrill/opsdrill/internal/pkg/metrics"
	"github.com/opsdrill/opsdrill/internal/pkg/postgres"
	"github.com/opsdrill/opsdrill/internal/scheduler"
	schedulerpostgres "github.com/opsdrill/opsdrill/internal/scheduler/postgres"
	"github.com/opsdrill/opsdrill/internal/simgraph"
	simgraphpostgres "github.com/opsdrill/opsdrill/internal/simgraph/postgres"
	"github.com/opsdrill/opsdrill/internal/sla"
	slapostgres "github.com/opsdrill/opsdrill/internal/sla/postgres"
	"github.com/opsdrill/opsdrill/internal/version"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	sched         *scheduler.Scheduler
	outboxWorker  *events.Worker
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MinIdleConns:    cfg.Database.MinIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.MigrateOnStart {
		if err := runMigrations(cfg.Database); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: bgCancel,
	}

	go app.collectDBMetrics(bgCtx)

	router := app.setupRouter(bgCtx)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Stop background loops before the store goes away
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.outboxWorker != nil {
		a.outboxWorker.Stop()
	}

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

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

func (a *App) setupRouter(ctx context.Context) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	graphService := simgraph.NewService(simgraphpostgres.NewRepository(a.db))
	graphHandler := simgraph.NewHandler(graphService)

	aggregator := health.NewAggregator(healthpostgres.NewRepository(a.db))
	healthHandler := health.NewHandler(aggregator)

	propagator := cascade.NewPropagator(cascadepostgres.NewRepository(a.db))
	cascadeHandler := cascade.NewHandler(propagator)

	monitor := sla.NewMonitor(slapostgres.NewRepository(a.db), a.config.Engine.MoralePenalty)
	slaHandler := sla.NewHandler(monitor)

	engine := escalation.NewEngine(escalationpostgres.NewRepository(a.db), a.config.Engine.EscalationPenalty)
	escalationHandler := escalation.NewHandler(engine)

	eventsRepo := eventspostgres.NewRepository(a.db)
	eventsHandler := events.NewHandler(eventsRepo)

	// Scheduled passes cover every active game
	a.sched = scheduler.New(
		scheduler.Config{PassTimeout: a.config.Engine.PassTimeout},
		schedulerpostgres.NewRepository(a.db),
		scheduler.SLAPass(monitor, a.config.Engine.SLAInterval),
		scheduler.EscalationPass(engine, a.config.Engine.EscalationInterval),
	)
	a.sched.Start(ctx)

	if a.config.Events.OutboxEnabled {
		sink := webhook.NewSink(webhook.Config{
			URL:           a.config.Events.WebhookURL,
			Token:         a.config.Events.WebhookToken,
			RatePerSecond: a.config.Events.RatePerSecond,
		})
		a.outboxWorker = events.NewWorker(events.WorkerConfig{
			BatchSize:    a.config.Events.BatchSize,
			PollInterval: a.config.Events.PollInterval,
		}, eventsRepo, sink)
		a.outboxWorker.Start(ctx)
	}

	r.Route("/api/v1", func(r chi.Router) {
		readOnly := func(r chi.Router) {
			graphHandler.RegisterRoutes(r)
			healthHandler.RegisterRoutes(r)
			cascadeHandler.RegisterRoutes(r)
			escalationHandler.RegisterRoutes(r)
			eventsHandler.RegisterRoutes(r)
		}
		instructorOnly := func(r chi.Router) {
			graphHandler.RegisterInstructorRoutes(r)
			healthHandler.RegisterInstructorRoutes(r)
			cascadeHandler.RegisterInstructorRoutes(r)
			slaHandler.RegisterInstructorRoutes(r)
			escalationHandler.RegisterInstructorRoutes(r)
		}

		if !a.config.Auth.Enabled {
			readOnly(r)
			instructorOnly(r)
			return
		}

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(a.config.Auth.JWTSecret))

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleObserver))
				readOnly(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleInstructor))
				instructorOnly(r)
			})
		})
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
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

func runMigrations(cfg config.DatabaseConfig) error {
	m, err := migrate.New("file://"+cfg.MigrationsPath, cfg.URL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	slog.Info("database migrations applied")
	return nil
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
