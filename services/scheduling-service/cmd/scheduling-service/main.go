package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/omerkatz/dentsched/libs/config"
	"github.com/omerkatz/dentsched/libs/db"
	"github.com/omerkatz/dentsched/libs/httpx"
	"github.com/omerkatz/dentsched/libs/kafkax"
	otelx "github.com/omerkatz/dentsched/libs/otel"
	"github.com/omerkatz/dentsched/libs/runtime"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/admission"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/availability"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/catalog"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/consumer"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/handlers"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/inbox"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/lifecycle"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/outbox"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/storage"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/validate"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
	} else {
		logger.Warn("redis disabled: availability cache off, rate limits per-instance")
	}

	clinicLoc, err := time.LoadLocation(config.String("CLINIC_TIMEZONE", "Asia/Jerusalem"))
	if err != nil {
		logger.Error("invalid clinic timezone, falling back to UTC", "err", err)
		clinicLoc = time.UTC
	}

	staffSecret, err := config.RequiredString("STAFF_TOKEN_SECRET")
	if err != nil {
		panic(err)
	}

	outboxRepo := outbox.NewRepository(pool)
	repo := storage.NewRepository(pool, outboxRepo)
	treatmentRepo := storage.NewTreatmentRepository(pool)
	inboxRepo := inbox.NewRepository(pool)

	avail := availability.NewIndex(repo, rdb,
		config.Duration("AVAILABILITY_CACHE_TTL", 30*time.Second), logger)
	limiter := admission.NewRateLimiter(rdb,
		config.Int("BOOKING_RATE_LIMIT", 5),
		config.Duration("BOOKING_RATE_WINDOW", 15*time.Minute), logger)
	guard := admission.NewGuard(repo, limiter, avail, clinicLoc, logger)
	manager := lifecycle.NewManager(repo, avail, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	// The treatment catalog lives in the clinic CMS; these consumers keep the
	// local cache in sync so appointments can be tagged and filtered.
	if brokers == "" {
		logger.Warn("catalog sync disabled (no kafka brokers configured)")
	} else {
		groupID := config.String("KAFKA_GROUP_ID", "scheduling-service")
		go consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   config.String("KAFKA_CATALOG_TOPIC", "catalog.treatment.updated.v1"),
		}, catalog.UpsertHandler(treatmentRepo, logger)).Run(ctx)
		go consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   config.String("KAFKA_CATALOG_REMOVED_TOPIC", "catalog.treatment.removed.v1"),
		}, catalog.RemoveHandler(treatmentRepo, logger)).Run(ctx)
	}

	bookingHandler := handlers.NewBookingHandler(guard, validate.New(), avail, logger)
	staffHandler := handlers.NewStaffHandler(repo, treatmentRepo, manager, staffSecret, logger)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	mux.HandleFunc("/api/v1/appointments", staffHandler.RequireStaff(staffHandler.List))
	mux.HandleFunc("/api/v1/appointments/transition", staffHandler.RequireStaff(staffHandler.Transition))
	mux.HandleFunc("/api/v1/appointments/attachments", staffHandler.RequireStaff(staffHandler.Attach))
	mux.HandleFunc("/api/v1/treatments", staffHandler.RequireStaff(staffHandler.Treatments))

	// Coarse per-IP limiter in front of everything; the per-phone booking
	// budget is enforced separately inside admission. Shared through Redis
	// when available, per-instance in memory otherwise.
	var ipLimit httpx.Middleware
	if rdb != nil {
		ipLimit = httpx.NewRedisRateLimiter(rdb,
			config.Int("HTTP_RATE_LIMIT", 60), time.Minute, "sched_rl").Middleware(logger, true)
	} else {
		ipLimit = httpx.NewRateLimiter(config.Int("HTTP_RATE_LIMIT", 60), time.Minute).Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         10 * time.Minute,
		}),
		ipLimit,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
