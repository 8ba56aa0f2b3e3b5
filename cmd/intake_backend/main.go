package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/SscSPs/movement_intake/internal/adapters/analyzer"
	"github.com/SscSPs/movement_intake/internal/adapters/analyzer/gemini"
	"github.com/SscSPs/movement_intake/internal/adapters/analyzer/openai"
	"github.com/SscSPs/movement_intake/internal/adapters/einvoice"
	"github.com/SscSPs/movement_intake/internal/adapters/storage/gcs"
	"github.com/SscSPs/movement_intake/internal/adapters/storage/local"
	portssvc "github.com/SscSPs/movement_intake/internal/core/ports/services"
	"github.com/SscSPs/movement_intake/internal/core/services"
	"github.com/SscSPs/movement_intake/internal/handlers"
	"github.com/SscSPs/movement_intake/internal/middleware"
	"github.com/SscSPs/movement_intake/internal/platform/config"
	"github.com/SscSPs/movement_intake/internal/platform/metrics"
	"github.com/SscSPs/movement_intake/internal/repositories/database/pgsql"
	"github.com/SscSPs/movement_intake/pkg/database"
)

// @title Movement Intake API
// @version 1.0
// @description Draft, document ingestion and commit of financial movements.

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @security BearerAuth
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx := context.Background()

	// Initialize database connection pool (for application use)
	dbPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, cfg.EnableDBCheck)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.ClosePgxPool(dbPool)
	logger.Info("Database connection pool established.")

	if err := runMigrations(logger, cfg.DatabaseURL); err != nil {
		logger.Error("Failed to apply migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	storage, closeStorage, err := newDocumentStorage(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize document storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStorage()

	intakeMetrics := metrics.NewIntakeMetrics()
	draftOpts := []services.DraftServiceOption{
		services.WithInvoiceParser(einvoice.NewParser()),
		services.WithIntakeObserver(intakeMetrics),
	}
	if router := newAnalyzerRouter(ctx, cfg, logger); router.Len() > 0 {
		draftOpts = append(draftOpts, services.WithDocumentAnalyzer(router))
	} else {
		logger.Warn("No AI analyzer configured, only XML e-invoices can be ingested")
	}

	repos := pgsql.NewRepositoryProvider(dbPool)
	serviceContainer := services.NewServiceContainer(cfg, repos, storage, draftOpts...)

	uploadLimiter, err := middleware.NewMemoryLimiter(cfg.UploadRateLimit)
	if err != nil {
		logger.Error("Invalid upload rate limit", slog.String("rate", cfg.UploadRateLimit), slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware (logging, recovery, CORS)
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if err := r.SetTrustedProxies(nil); err != nil {
		logger.Error("Failed to set trusted proxies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handlers.RegisterRoutes(r, cfg, serviceContainer, intakeMetrics.Handler(), uploadLimiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to run", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", slog.String("error", err.Error()))
	}
	if draftService, ok := serviceContainer.Draft.(*services.DraftService); ok {
		// Let running ingestions finish before the pool and storage close.
		draftService.Wait()
	}
	logger.Info("Server exited")
}

// runMigrations applies all pending "up" migrations from ./migrations.
func runMigrations(logger *slog.Logger, databaseURL string) error {
	logger.Info("Running database migrations...")
	// Using pgx/v5/stdlib driver to be compatible with the main pool
	migrationDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := migrationDB.Close(); cerr != nil {
			logger.Error("Error closing migration DB connection", slog.String("error", cerr.Error()))
		}
	}()
	if err := migrationDB.Ping(); err != nil {
		return err
	}

	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return err
	}

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return upErr
	}
	if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
		return errors.Join(sourceErr, dbErr)
	}

	if errors.Is(upErr, migrate.ErrNoChange) {
		logger.Info("No new migrations to apply.")
	} else {
		logger.Info("Database migrations applied successfully.")
	}
	return nil
}

func newDocumentStorage(ctx context.Context, cfg *config.Config) (portssvc.DocumentStorage, func(), error) {
	if cfg.StorageDriver == config.StorageGCS {
		s, err := gcs.NewStorage(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	s, err := local.NewOSStorage(cfg.LocalStorageDir)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {}, nil
}

// newAnalyzerRouter puts the configured provider first. The other one, when it has a key,
// covers the media types the first cannot read.
func newAnalyzerRouter(ctx context.Context, cfg *config.Config, logger *slog.Logger) *analyzer.Router {
	var geminiAnalyzer, openaiAnalyzer analyzer.MediaAnalyzer
	if cfg.GeminiAPIKey != "" {
		a, err := gemini.NewAnalyzer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("Failed to initialize Gemini analyzer", slog.String("error", err.Error()))
		} else {
			geminiAnalyzer = a
		}
	}
	if cfg.OpenAIAPIKey != "" {
		a, err := openai.NewAnalyzer(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			logger.Error("Failed to initialize OpenAI analyzer", slog.String("error", err.Error()))
		} else {
			openaiAnalyzer = a
		}
	}
	if cfg.AIProvider == config.ProviderOpenAI {
		return analyzer.NewRouter(openaiAnalyzer, geminiAnalyzer)
	}
	return analyzer.NewRouter(geminiAnalyzer, openaiAnalyzer)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
