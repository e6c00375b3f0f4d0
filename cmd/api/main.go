package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/hibiken/asynq"
	_ "github.com/skillpath/backend/docs"
	"github.com/skillpath/backend/internal/authz"
	"github.com/skillpath/backend/internal/handlers"
	"github.com/skillpath/backend/internal/idempotency"
	"github.com/skillpath/backend/internal/notifications"
	"github.com/skillpath/backend/internal/repositories"
	"github.com/skillpath/backend/internal/services"
	"github.com/skillpath/backend/libs/auth/middleware"
	"github.com/skillpath/backend/libs/auth/service"
	"github.com/skillpath/backend/libs/config"
	"github.com/skillpath/backend/libs/logger"
	loggerMiddleware "github.com/skillpath/backend/libs/logger/middleware"
	sharedMiddleware "github.com/skillpath/backend/libs/middlewares"
	"github.com/skillpath/backend/libs/retry"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// @title SkillPath API
// @version 1.0
// @description Course catalog, enrollment and progression API

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting SkillPath API")

	// Connect to database
	db, err := connectDB(cfg.DSN())
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(db, cfg.MigrationsPath); err != nil {
		logger.Logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	courseRepo := repositories.NewCourseRepository(db)
	lessonRepo := repositories.NewLessonRepository(db)
	enrollmentRepo := repositories.NewEnrollmentRepository(db)
	creatorAppRepo := repositories.NewCreatorApplicationRepository(db)

	// Idempotency ledger
	var (
		ledgerStore idempotency.Store
		sweeper     *idempotency.Sweeper
		rdb         *redis.Client
	)
	if cfg.Idempotency.Backend == config.IdempotencyBackendRedis || cfg.Notifications.Enabled {
		rdb, err = connectRedis(cfg.Redis)
		if err != nil {
			logger.Logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	switch cfg.Idempotency.Backend {
	case config.IdempotencyBackendRedis:
		ledgerStore = repositories.NewIdempotencyRedisRepository(rdb, cfg.Idempotency.PendingTimeout)
	default:
		idempotencyRepo := repositories.NewIdempotencyRepository(db)
		ledgerStore = idempotencyRepo
		sweeper = idempotency.NewSweeper(idempotencyRepo, cfg.Idempotency.PendingTimeout, logger.Logger)
		if err := sweeper.Start(cfg.Idempotency.SweepSchedule); err != nil {
			logger.Logger.Fatal("Failed to start idempotency sweeper", zap.Error(err))
		}
		defer sweeper.Stop()
	}
	logger.Logger.Info("Idempotency ledger ready", zap.String("backend", cfg.Idempotency.Backend))

	ledger := idempotency.NewLedger(ledgerStore, idempotency.Options{
		TTL:            cfg.Idempotency.TTL,
		PendingTimeout: cfg.Idempotency.PendingTimeout,
	}, logger.Logger)

	// Notification publisher
	var notifier services.Notifier = notifications.Noop{}
	if cfg.Notifications.Enabled {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		notifier = notifications.NewPublisher(client, logger.Logger)
	}

	// Initialize JWT token generator
	tokenGenerator := service.NewTokenGenerator(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	// Initialize services
	gate := authz.NewGate(logger.Logger)
	policy := retry.DefaultPolicy().WithAttempts(cfg.StoreRetries)

	authService := services.NewAuthService(userRepo, tokenGenerator, policy, logger.Logger)
	creatorService := services.NewCreatorService(creatorAppRepo, userRepo, gate, notifier, policy, logger.Logger)
	catalogService := services.NewCatalogService(courseRepo, lessonRepo, gate, notifier, policy, logger.Logger)
	enrollmentService := services.NewEnrollmentService(enrollmentRepo, courseRepo, lessonRepo, gate, notifier, policy, logger.Logger)

	if cfg.Admin.Email != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := authService.EnsureAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password)
		cancel()
		if err != nil {
			logger.Logger.Fatal("Failed to bootstrap admin account", zap.Error(err))
		}
	}

	// Initialize handlers
	guards := handlers.NewGuards(gate, ledger, logger.Logger)
	authHandler := handlers.NewAuthHandler(authService, creatorService, guards, logger.Logger)
	courseHandler := handlers.NewCourseHandler(catalogService, guards, logger.Logger)
	enrollmentHandler := handlers.NewEnrollmentHandler(enrollmentService, guards, logger.Logger)
	adminHandler := handlers.NewAdminHandler(catalogService, creatorService, guards, logger.Logger)

	// Initialize auth middleware
	authMiddleware := middleware.AuthMiddleware(tokenGenerator, authService, logger.Logger)

	// Setup router
	r := chi.NewRouter()

	// Apply middleware
	r.Use(sharedMiddleware.RequestIDMiddleware)
	r.Use(loggerMiddleware.LoggerMiddleware(logger.Logger))
	r.Use(sharedMiddleware.RecoveryMiddleware(logger.Logger))
	r.Use(sharedMiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(httprate.LimitByIP(100, time.Minute))
	r.Use(sharedMiddleware.RequestSizeLimitMiddleware(10 * 1024 * 1024)) // 10MB

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost:%d/swagger/doc.json", cfg.Server.Port)),
	))

	r.Route("/api", func(r chi.Router) {
		authHandler.RegisterPublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			authHandler.RegisterRoutes(r)
			courseHandler.RegisterRoutes(r)
			enrollmentHandler.RegisterRoutes(r)
			adminHandler.RegisterRoutes(r)
		})
	})

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Logger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Logger.Info("Server exited")
}

// connectDB connects to the database
func connectDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// connectRedis connects to Redis and checks the connection
func connectRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB, dir string) error {
	driver, err := mysql.WithInstance(db, &mysql.Config{
		MigrationsTable: "skillpath_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Fall back to the parent directory when running from cmd/api
	migrationPath := "file://" + dir
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if _, err := os.Stat("../" + dir); err == nil {
			migrationPath = "file://../" + dir
		}
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrationPath,
		"mysql",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
