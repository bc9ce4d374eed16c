package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"notifycsc/internal/domain/announcements"
	"notifycsc/internal/domain/audit"
	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/documents"
	"notifycsc/internal/domain/notifications"
	"notifycsc/internal/domain/policy"
	"notifycsc/internal/domain/reports"
	"notifycsc/internal/domain/support"
	"notifycsc/internal/platform/config"
	"notifycsc/internal/platform/crypto"
	"notifycsc/internal/platform/db"
	"notifycsc/internal/platform/db/seed"
	"notifycsc/internal/platform/email"
	"notifycsc/internal/platform/jobs"
	"notifycsc/internal/platform/metrics"
	"notifycsc/internal/platform/storage"
	"notifycsc/internal/transport/http/api"
	announcementshandler "notifycsc/internal/transport/http/handlers/announcements"
	audithandler "notifycsc/internal/transport/http/handlers/audit"
	authhandler "notifycsc/internal/transport/http/handlers/auth"
	documentshandler "notifycsc/internal/transport/http/handlers/documents"
	notificationshandler "notifycsc/internal/transport/http/handlers/notifications"
	policieshandler "notifycsc/internal/transport/http/handlers/policies"
	publichandler "notifycsc/internal/transport/http/handlers/public"
	reportshandler "notifycsc/internal/transport/http/handlers/reports"
	supporthandler "notifycsc/internal/transport/http/handlers/support"
	"notifycsc/internal/transport/http/middleware"
)

const idempotencyRetention = 48 * time.Hour

type App struct {
	Config  config.Config
	DB      *db.Pool
	Router  http.Handler
	Auth    *auth.Service
	Jobs    *jobs.Service
	Metrics *metrics.Collector
}

type options struct {
	mailer email.Sender
	clock  clockwork.Clock
}

type Option func(*options)

// WithMailer replaces the SMTP sender built from config.
func WithMailer(sender email.Sender) Option {
	return func(o *options) { o.mailer = sender }
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// New connects to the database, prepares the schema and wires every service
// and route. Scheduled jobs are registered but not started; see Start.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.mailer == nil {
		o.mailer = email.New(cfg)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	box, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("data encryption key: %w", err)
	}
	if !box.Configured() {
		slog.Warn("DATA_ENCRYPTION_KEY not set, personal fields are stored unsealed")
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := seed.Run(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	objects, err := storage.New(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	collector := metrics.New()
	authSvc := auth.NewService(auth.NewStore(pool), cfg.JWTSecret, box, auth.WithClock(o.clock), auth.WithSessionTTL(cfg.TokenTTL))
	auditSvc := audit.New(pool)
	notifySvc := notifications.New(notifications.NewStore(pool), o.mailer, cfg.EmailFrom)
	policySvc := policy.NewService(policy.NewStore(pool), box,
		policy.WithClock(o.clock),
		policy.WithLocation(loc),
		policy.WithNotifier(notifySvc),
		policy.WithMailer(o.mailer, cfg.EmailFrom),
	)
	documentSvc := documents.NewService(documents.NewStore(pool), objects, notifySvc, authSvc, o.clock)
	announcementSvc := announcements.NewService(announcements.NewStore(pool), notifySvc, authSvc, o.clock)
	supportSvc := support.NewService(support.NewStore(pool), notifySvc)
	reportSvc := reports.NewService(reports.NewStore(pool), o.clock, loc)
	idempotency := middleware.NewIdempotencyStore(pool)

	tasks := map[string]jobs.Task{
		jobs.JobExpiryDigest:     jobs.ExpiryDigest(reportSvc, authSvc, notifySvc),
		jobs.JobSessionCleanup:   jobs.SessionCleanup(authSvc, o.clock),
		jobs.JobIdempotencyPurge: jobs.IdempotencyPurge(idempotency, o.clock, idempotencyRetention),
	}
	scheduler := jobs.New(jobs.DBRecorder{DB: pool}, loc)
	for jobType, spec := range map[string]string{
		jobs.JobExpiryDigest:     cfg.ExpiryDigestCron,
		jobs.JobSessionCleanup:   cfg.SessionCleanupCron,
		jobs.JobIdempotencyPurge: cfg.SessionCleanupCron,
	} {
		if spec == "" {
			continue
		}
		if err := scheduler.Schedule(spec, jobType, tasks[jobType]); err != nil {
			pool.Close()
			return nil, fmt.Errorf("schedule %s: %w", jobType, err)
		}
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(collector))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes, cfg.MaxUploadBytes))
	router.Use(middleware.Auth(cfg.JWTSecret, authSvc))

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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Get("/metrics", metricsHandler(collector))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

		authhandler.NewHandler(authSvc, auditSvc, o.mailer, cfg.EmailFrom, cfg.AppBaseURL).RegisterRoutes(r)

		publicHandler := publichandler.NewHandler(policySvc, announcementSvc, cfg.PublicLookupPerMinute)
		publicHandler.Events = collector
		publicHandler.RegisterRoutes(r)

		policiesHandler := policieshandler.NewHandler(policySvc, authSvc, auditSvc, idempotency)
		policiesHandler.Events = collector
		policiesHandler.RegisterRoutes(r)

		documentsHandler := documentshandler.NewHandler(documentSvc, authSvc, auditSvc)
		documentsHandler.Events = collector
		documentsHandler.RegisterRoutes(r)

		announcementshandler.NewHandler(announcementSvc, authSvc, auditSvc).RegisterRoutes(r)

		supportHandler := supporthandler.NewHandler(supportSvc, authSvc, auditSvc)
		supportHandler.Events = collector
		supportHandler.RegisterRoutes(r)

		notificationshandler.NewHandler(notifySvc, authSvc, auditSvc).RegisterRoutes(r)
		reportshandler.NewHandler(reportSvc, authSvc, scheduler, tasks).RegisterRoutes(r)
		audithandler.NewHandler(auditSvc, authSvc).RegisterRoutes(r)
	})

	router.Mount("/", spaHandler{staticPath: cfg.FrontendDir, indexPath: "index.html"})

	return &App{
		Config:  cfg,
		DB:      pool,
		Router:  router,
		Auth:    authSvc,
		Jobs:    scheduler,
		Metrics: collector,
	}, nil
}

// Start runs the job scheduler until Close.
func (a *App) Start(ctx context.Context) {
	a.Jobs.Start(ctx)
}

func (a *App) Close() {
	a.Jobs.Stop()
	a.DB.Close()
}

// Run serves HTTP on cfg.Addr until ctx is cancelled, then drains in-flight
// requests and stops the scheduler.
func Run(ctx context.Context, cfg config.Config) error {
	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	app.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("notifycsc server listening", "addr", cfg.Addr, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.staticPath, filepath.Clean("/"+r.URL.Path))
	_, err := os.Stat(path)
	if err == nil {
		http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
		return
	}

	if os.IsNotExist(err) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}

	http.NotFound(w, r)
}

func metricsHandler(collector *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, collector.Snapshot(), middleware.GetRequestID(r.Context()))
	}
}
