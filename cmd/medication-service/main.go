package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/medflow/medication-ledger/internal/medication/catalog"
	"github.com/medflow/medication-ledger/internal/medication/consumers"
	"github.com/medflow/medication-ledger/internal/medication/events"
	"github.com/medflow/medication-ledger/internal/medication/handler"
	"github.com/medflow/medication-ledger/internal/medication/prescription"
	"github.com/medflow/medication-ledger/internal/medication/repository"
	"github.com/medflow/medication-ledger/internal/medication/service"
	"github.com/medflow/medication-ledger/pkg/config"
	"github.com/medflow/medication-ledger/pkg/database"
	"github.com/medflow/medication-ledger/pkg/httputil"
	"github.com/medflow/medication-ledger/pkg/logger"
	"github.com/medflow/medication-ledger/pkg/messaging"
)

const serviceName = "medication-service"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Str("store", cfg.Ledger.StoreDriver).Msg("starting Medication Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := map[string]func(context.Context) interface{}{}

	// Ledger store
	var store repository.Store
	switch cfg.Ledger.StoreDriver {
	case config.StorePostgres:
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if _, err := repository.Migrate(ctx, db, log); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate ledger schema")
		}
		store = repository.NewPostgres(db)
		health["database"] = func(ctx context.Context) interface{} { return db.Health(ctx) }
	default:
		log.Warn().Msg("using in-memory ledger store; data is lost on restart")
		store = repository.NewMemory()
	}

	// RabbitMQ is optional: without it, administrations arrive over HTTP only
	var (
		rmq       *messaging.RabbitMQ
		publisher *events.LedgerEventPublisher
	)
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = events.NewLedgerEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		health["rabbitmq"] = func(context.Context) interface{} { return rmq.Health() }
	}

	oracle := loadCatalog(cfg, log)
	lookup := loadPrescriptions(cfg, log)

	loc, err := cfg.Ledger.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid ledger timezone")
	}

	ledger, err := service.NewLedger(ctx, store, service.Options{
		Prescriptions:          lookup,
		Catalog:                oracle,
		Publisher:              publisher,
		Logger:                 log,
		Clock:                  service.SystemClock,
		Location:               loc,
		ExpirationWarningDays:  cfg.Ledger.ExpirationWarningDays,
		ExpirationCriticalDays: cfg.Ledger.ExpirationCriticalDays,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize ledger")
	}

	if rmq != nil {
		adminConsumer, err := consumers.NewAdministrationEventConsumer(rmq, ledger.Dispense, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create administration event consumer")
		}
		if err := adminConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start administration event consumer")
		}
	}

	scheduler := service.NewAlertScheduler(ledger.Alerts, publisher, cfg.Ledger.AlertScanInterval, log)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Create router
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173", "https://*.medflow.de"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.Operator(cfg.JWT.Secret, log))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":  "healthy",
			"service": serviceName,
			"store":   cfg.Ledger.StoreDriver,
		}
		for name, check := range health {
			body[name] = check(r.Context())
		}
		httputil.JSON(w, http.StatusOK, body)
	})

	handler.Mount(r, ledger, oracle, log)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop consumers and the alert scan
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// loadCatalog returns nil when no catalog file is configured.
func loadCatalog(cfg *config.Config, log *logger.Logger) catalog.Oracle {
	if cfg.Ledger.CatalogFile == "" {
		log.Warn().Msg("no supplier catalog configured; XML imports must carry full descriptors")
		return nil
	}

	static, err := catalog.LoadStaticOracle(cfg.Ledger.CatalogFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.Ledger.CatalogFile).Msg("failed to load supplier catalog")
	}
	if !cfg.Redis.Enabled() {
		return static
	}

	cache := catalog.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("catalog cache unreachable; lookups fall through")
	}
	return catalog.NewCachedOracle(static, cache, cfg.Redis.TTL, log.WithComponent("catalog"))
}

func loadPrescriptions(cfg *config.Config, log *logger.Logger) prescription.Lookup {
	if url := cfg.Services.PrescriptionServiceURL; url != "" {
		return prescription.NewClient(url, log.WithComponent("prescriptions"))
	}
	if cfg.Ledger.PrescriptionFile != "" {
		lookup, err := prescription.LoadStaticLookup(cfg.Ledger.PrescriptionFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Ledger.PrescriptionFile).Msg("failed to load prescriptions")
		}
		return lookup
	}
	log.Warn().Msg("no prescription source configured; administrations will not reconcile")
	return prescription.NewStaticLookup()
}
