package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/forgeline-inc/forgeline-engine/pkg/auth"
	"github.com/forgeline-inc/forgeline-engine/pkg/bridge"
	"github.com/forgeline-inc/forgeline-engine/pkg/config"
	"github.com/forgeline-inc/forgeline-engine/pkg/database"
	"github.com/forgeline-inc/forgeline-engine/pkg/handlers"
	"github.com/forgeline-inc/forgeline-engine/pkg/logging"
	"github.com/forgeline-inc/forgeline-engine/pkg/middleware"
	"github.com/forgeline-inc/forgeline-engine/pkg/repositories"
	"github.com/forgeline-inc/forgeline-engine/pkg/retry"
	"github.com/forgeline-inc/forgeline-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("port", cfg.Port),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.Host),
		zap.String("bridge", cfg.Bridge.BaseURL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The database may still be starting alongside us; transient connect
	// failures get the standard backoff.
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:             cfg.Database.ConnectionString(),
			MaxConns:        cfg.Database.MaxConnections,
			ConnMaxLifetime: cfg.Database.MaxConnLifetime,
			ConnMaxIdleTime: cfg.Database.MaxConnIdleTime,
		}, logger)
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Repositories
	schemaRepo := repositories.NewSchemaRepository(db)
	recordRepo := repositories.NewRecordRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	integrationRepo := repositories.NewIntegrationLogRepository(db)

	// Services
	registry := services.NewSchemaRegistry(schemaRepo, logger)
	validator := services.NewValidator()
	permissions, err := services.NewPermissionEvaluator(cfg.Permissions.RouteTablePath)
	if err != nil {
		logger.Fatal("Failed to load route permission table", zap.Error(err))
	}
	auditService := services.NewAuditService(auditRepo, cfg.Audit.WriteTimeout, logger)
	integrationService := services.NewIntegrationService(integrationRepo, nil, logger)

	// Bridge client, if configured. It records through the integration
	// service and also serves as that service's retry dispatcher.
	var bridgeClient *bridge.Client
	if cfg.Bridge.BaseURL != "" {
		bridgeClient = bridge.NewClient(bridge.Config{
			BaseURL:       cfg.Bridge.BaseURL,
			Timeout:       cfg.Bridge.Timeout,
			HealthTimeout: cfg.Bridge.HealthTimeout,
		}, integrationService, logger)
		integrationService.SetDispatcher(bridgeClient)
	}

	// Authentication
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	authMiddleware := auth.NewMiddleware(jwksClient, logger)

	mux := http.NewServeMux()

	var prober handlers.BridgeProber
	if bridgeClient != nil {
		prober = bridgeClient
	}
	handlers.NewHealthHandler(cfg, prober, logger).RegisterRoutes(mux)
	handlers.NewSchemaHandler(registry, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewRecordHandler(registry, validator, permissions, recordRepo, auditService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAuditHandler(auditService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewIntegrationHandler(integrationService, logger).RegisterRoutes(mux, authMiddleware)

	server := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: middleware.RequestLogger(logger)(mux),
	}

	go func() {
		logger.Info("Starting forgeline-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}

	// Let in-flight audit writes land before the pool closes.
	auditService.Wait()
}

// runMigrations opens a short-lived database/sql connection for the migration
// runner. The pgx pool used by the repositories stays separate.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
}
