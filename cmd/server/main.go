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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/atlascaucasus/service-booking/internal/application"
	"github.com/atlascaucasus/service-booking/internal/common/auth"
	"github.com/atlascaucasus/service-booking/internal/common/database"
	"github.com/atlascaucasus/service-booking/internal/common/health"
	"github.com/atlascaucasus/service-booking/internal/common/kafka"
	"github.com/atlascaucasus/service-booking/internal/common/logger"
	"github.com/atlascaucasus/service-booking/internal/common/middleware"
	"github.com/atlascaucasus/service-booking/internal/config"
	bookingDomain "github.com/atlascaucasus/service-booking/internal/domain/booking"
	bookingEvents "github.com/atlascaucasus/service-booking/internal/events"
	"github.com/atlascaucasus/service-booking/internal/handler"
	"github.com/atlascaucasus/service-booking/internal/repository"
)

const serviceName = "service-booking"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting service-booking",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.AppEnv),
		zap.String("store", cfg.StoreDriver),
	)

	// Initialize booking store
	var (
		db          *gorm.DB
		bookingRepo bookingDomain.BookingRepository
	)
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("using in-memory booking store; data is lost on restart")
		bookingRepo = repository.NewMemoryBookingRepository()
	default:
		db = connectDatabase(cfg, log)
		bookingRepo = repository.NewGormBookingRepository(db)
	}

	// Initialize JWT manager. Tokens are issued by the identity service.
	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, cfg.JWTConfig.Issuer, 15*time.Minute)

	// Initialize event delivery
	var sink bookingEvents.Sink = bookingEvents.NewLogSink(log.Named("events"))
	if cfg.Events.KafkaEnabled {
		kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
		defer func() { _ = kafkaProducer.Close() }()
		sink = bookingEvents.NewKafkaSink(kafkaProducer, cfg.Events.Topic, cfg.Events.Source)
	}
	dispatcher := bookingEvents.NewDispatcher(sink, bookingEvents.DispatcherConfig{
		QueueSize:        cfg.Events.QueueSize,
		ResendBufferSize: cfg.Events.ResendBufferSize,
		PublishTimeout:   cfg.Events.PublishTimeout,
		ResendInterval:   cfg.Events.ResendInterval,
		MaxAttempts:      cfg.Events.MaxAttempts,
	}, log)
	dispatcher.Start()

	// Initialize pricing strategy
	rates := make(map[bookingDomain.EntityType]int64, len(cfg.Engine.PerGuestCents))
	for entity, cents := range cfg.Engine.PerGuestCents {
		rates[bookingDomain.EntityType(entity)] = cents
	}
	pricingStrategy := bookingDomain.NewStandardPricingStrategy(rates)

	// Initialize application service
	bookingService := application.NewBookingService(
		bookingRepo,
		pricingStrategy,
		bookingDomain.NewReferenceGenerator(),
		dispatcher,
		application.BookingServiceConfig{
			MaxTransitionAttempts: cfg.Engine.MaxTransitionAttempts,
			RetryBaseDelay:        cfg.Engine.RetryBaseDelay,
			ActionTimeout:         cfg.Engine.ActionTimeout,
			MaxReferenceAttempts:  cfg.Engine.MaxReferenceAttempts,
			DefaultCurrency:       cfg.Engine.DefaultCurrency,
		},
		log,
	)

	// Rate limiter with periodic cleanup of idle clients
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitPerMinute, cfg.HTTP.RateLimitBurst)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rateLimiter.Cleanup(10 * time.Minute)
			}
		}
	}()

	// Setup Gin router
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.CORSMiddleware(cfg.HTTP.CORSAllowedOrigins))
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check routes
	healthHandler := health.NewHandler(db, serviceName)
	healthHandler.RegisterRoutes(router)

	// Register routes
	bookingHandler := handler.NewBookingHandler(bookingService)
	bookingHandler.RegisterRoutes(&router.RouterGroup, jwtManager,
		middleware.CSRFMiddleware(cfg.HTTP.CSRFEnabled),
		middleware.RateLimitMiddleware(rateLimiter),
	)

	adminBookingHandler := handler.NewAdminBookingHandler(bookingService)
	adminBookingHandler.RegisterRoutes(&router.RouterGroup, jwtManager)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down service-booking...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting requests first so no new events are produced, then drain the dispatcher.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Error("event dispatcher did not drain in time", zap.Error(err))
	}
	stats := dispatcher.Stats()
	log.Info("event dispatcher stopped",
		zap.Int64("delivered", stats.Delivered),
		zap.Int64("dropped", stats.Dropped),
		zap.Int("pending", stats.Pending),
	)

	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	log.Info("service-booking stopped")
}

// connectDatabase opens PostgreSQL and brings the schema up to date.
func connectDatabase(cfg *config.ServiceConfig, log *zap.Logger) *gorm.DB {
	dbConfig := database.PostgresConfig{
		Host:            cfg.DBConfig.Host,
		Port:            cfg.DBConfig.Port,
		User:            cfg.DBConfig.User,
		Password:        cfg.DBConfig.Password,
		DBName:          cfg.DBConfig.DBName,
		SSLMode:         cfg.DBConfig.SSLMode,
		MaxOpenConns:    cfg.DBConfig.MaxOpenConns,
		MaxIdleConns:    cfg.DBConfig.MaxIdleConns,
		ConnMaxLifetime: cfg.DBConfig.ConnMaxLifetime,
	}
	db, err := database.Connect(dbConfig, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	switch {
	case cfg.RunMigrations:
		if err := database.RunMigrations(dbConfig.DatabaseURL(), cfg.MigrationsDir, log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
	case cfg.AppEnv == "development":
		if err := db.AutoMigrate(&repository.BookingModel{}); err != nil {
			log.Fatal("failed to run auto-migration", zap.Error(err))
		}
		log.Info("database migration completed (dev auto-migrate)")
	}
	return db
}
