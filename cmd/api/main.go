package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bronn-dev/dentalbridge/cmd/mainconfig"
	"github.com/bronn-dev/dentalbridge/internal/app/bootstrap"
	"github.com/bronn-dev/dentalbridge/internal/auth"
	"github.com/bronn-dev/dentalbridge/internal/booking"
	"github.com/bronn-dev/dentalbridge/internal/compliance"
	appconfig "github.com/bronn-dev/dentalbridge/internal/config"
	"github.com/bronn-dev/dentalbridge/internal/dispatch"
	"github.com/bronn-dev/dentalbridge/internal/events"
	"github.com/bronn-dev/dentalbridge/internal/history"
	"github.com/bronn-dev/dentalbridge/internal/httpapi"
	"github.com/bronn-dev/dentalbridge/internal/jobstore"
	"github.com/bronn-dev/dentalbridge/internal/notify"
	"github.com/bronn-dev/dentalbridge/internal/observability/metrics"
	"github.com/bronn-dev/dentalbridge/internal/ratelimit"
	"github.com/bronn-dev/dentalbridge/internal/schedule"
	triageworker "github.com/bronn-dev/dentalbridge/internal/worker/triage"
	"github.com/bronn-dev/dentalbridge/internal/webchat"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dentalbridge API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	planner, dir, err := bootstrap.BuildTriagePipeline(ctx, cfg, pool, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build triage pipeline", "error", err)
		os.Exit(1)
	}

	// Persistence and domain services.
	bookingSvc := booking.NewService(pool, logger)
	outbox := events.NewOutboxStore(pool)
	auditSvc := compliance.NewAuditService(pool, logger)
	slotRouter := schedule.NewRouter(schedule.NewEngine(dir, schedule.NewCalendarStore(pool), logger), dir, logger)

	var exporter *compliance.Exporter
	if cfg.AuditArchiveBucket != "" {
		exporter = compliance.NewExporter(auditSvc, s3.NewFromConfig(awsCfg), cfg.AuditArchiveBucket, logger)
	}

	// Queue wiring. SQS in production; a channel-backed queue plus inline
	// workers for development; no queue at all means synchronous triage.
	var (
		queue dispatch.Queue
		jobs  *jobstore.Store
	)
	switch {
	case cfg.UseMemoryQueue:
		queue = dispatch.NewMemoryQueue(64)
		jobs = jobstore.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.TriageJobsTable, logger)
	case cfg.TriageQueueURL != "":
		queue = dispatch.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TriageQueueURL)
		jobs = jobstore.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.TriageJobsTable, logger)
	default:
		logger.Info("no triage queue configured, running triage synchronously")
	}

	if cfg.UseMemoryQueue {
		handler := triageworker.NewHandler(planner, jobs, outbox, auditSvc, logger)
		inline := dispatch.NewPool(queue, handler, cfg.WorkerCount, logger)
		go inline.Run(ctx)
		logger.Info("inline triage workers started", "workers", cfg.WorkerCount)
	}

	// Redis: rate limits and webchat sessions. Optional; both degrade.
	redisClient, err := bootstrap.BuildRedisClient(ctx, cfg, logger, false)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	var limiter *ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewLimiter(redisClient, logger)
	}

	// Notifications ride the outbox relay.
	emailSender := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	notifySvc := notify.NewService(emailSender, dir, cfg.OpsAlertEmail, logger)
	go events.NewRelay(outbox, notifySvc, logger).Start(ctx)

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			logger.Error("failed to generate dev jwt secret", "error", err)
			os.Exit(1)
		}
		jwtSecret = hex.EncodeToString(buf)
		logger.Warn("JWT_SECRET not set, using an ephemeral secret; tokens will not survive restarts")
	}
	issuer := auth.NewIssuer(jwtSecret, cfg.JWTExpiry)

	// Dashboard aggregates read through database/sql against the same
	// database; a missing replica just disables the endpoint.
	var dashDB *sql.DB
	if db, err := sql.Open("postgres", cfg.DatabaseURL); err == nil {
		dashDB = db
		defer dashDB.Close()
	} else {
		logger.Warn("dashboard db unavailable", "error", err)
	}

	var webchatFn http.HandlerFunc
	if redisClient != nil {
		sessions := history.NewStore(redisClient)
		webchatFn = webchat.NewHandler(planner, sessions, logger).HandleWebSocket
	} else {
		logger.Warn("webchat disabled: redis session store unavailable")
	}

	reqMetrics := metrics.NewRequestMetrics(prometheus.DefaultRegisterer)

	// A typed-nil job store must not reach the handler as a non-nil interface.
	var triageHandler *httpapi.TriageHandler
	if jobs != nil {
		triageHandler = httpapi.NewTriageHandler(planner, jobs, queue, outbox, auditSvc, logger)
	} else {
		triageHandler = httpapi.NewTriageHandler(planner, nil, nil, outbox, auditSvc, logger)
	}

	routerCfg := &httpapi.Config{
		Logger:         logger,
		Issuer:         issuer,
		RequestMetrics: reqMetrics,
		MetricsHandler: promhttp.Handler(),

		Triage:       triageHandler,
		Slots:        httpapi.NewSlotsHandler(slotRouter, dir, logger),
		Appointments: httpapi.NewAppointmentsHandler(bookingSvc, outbox, auditSvc, logger),
		Patients:     httpapi.NewPatientsHandler(dir, issuer, auditSvc, logger),
		Auth:         httpapi.NewAuthHandler(pool, issuer, auditSvc, logger),
		Onboarding:   httpapi.NewOnboardingHandler(dir, auditSvc, logger),
		Dashboard:    httpapi.NewDashboardHandler(dashDB, prometheus.DefaultGatherer, cfg.DashboardCacheTTL, logger),
		Audit:        httpapi.NewAuditHandler(auditSvc, exporter, logger),
		Webchat:      webchatFn,

		Limiter: limiter,
		ChatLimits: httpapi.ChatLimits{
			PerUser:   ratelimit.ChatPerUser(cfg.ChatRatePerUserHour),
			PerTenant: ratelimit.ChatPerTenant(cfg.ChatRatePerTenantDay),
		},
		BookingLimit: ratelimit.BookingPerUser(cfg.BookingRatePerUserHr),
		CORSOrigins:  []string{cfg.FrontendOrigin},
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpapi.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
