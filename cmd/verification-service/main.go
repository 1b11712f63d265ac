package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/verimed/scribe-verify/internal/emr"
	"github.com/verimed/scribe-verify/internal/engine"
	"github.com/verimed/scribe-verify/internal/gateway"
	"github.com/verimed/scribe-verify/internal/protocol"
	"github.com/verimed/scribe-verify/internal/verification"
	"github.com/verimed/scribe-verify/pkg/config"
	"github.com/verimed/scribe-verify/pkg/database"
	"github.com/verimed/scribe-verify/pkg/logger"
	"github.com/verimed/scribe-verify/pkg/monitoring"
	"github.com/verimed/scribe-verify/pkg/repository"
)

const serviceVersion = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel)
	log.WithService("verification-service").Info("Starting Verification Service")

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.CreateSchema(ctx); err != nil {
		cancel()
		log.WithError(err).Fatal("Failed to create database schema")
	}
	cancel()
	log.Info("Database connection established")

	// Load the declarative protocol rule file
	protocols, err := protocol.LoadConfig(cfg.Protocol.RulesFile)
	if err != nil {
		log.WithError(err).WithField("rules_file", cfg.Protocol.RulesFile).
			Fatal("Failed to load protocol rules")
	}
	registry := protocol.NewRegistry(protocols)
	log.WithFields(map[string]interface{}{
		"version":    protocols.Version(),
		"rule_count": protocols.RuleCount(),
		"checkers":   registry.EnabledCheckers(),
	}).Info("Protocol rules loaded")

	// Initialize the EMR integration
	var emrSource verification.EMRSource
	if cfg.FHIR.BaseURL != "" {
		emrSource = emr.NewFHIRClient(&emr.FHIRClientConfig{
			BaseURL: cfg.FHIR.BaseURL,
			Timeout: time.Duration(cfg.FHIR.TimeoutSeconds) * time.Second,
		}, log)
		log.WithField("base_url", cfg.FHIR.BaseURL).Info("FHIR integration enabled")
	}

	// Initialize the verification pipeline
	verifyEngine := engine.New(registry, log)
	runStore := repository.NewVerificationRunsRepository(db.DB, log)
	service := verification.NewService(verifyEngine, protocols, registry, runStore, emrSource, log)
	handlers := verification.NewHandlers(service, log)

	// Initialize authentication middleware
	validator := gateway.NewTokenValidator(cfg.JWT.SecretKey, cfg.JWT.Issuer)
	middleware := gateway.NewMiddleware(validator, log, "verification-service",
		cfg.Monitoring.HealthPath, cfg.Monitoring.MetricsPath)

	// Initialize health checks
	healthManager := monitoring.NewHealthManager("verification-service", serviceVersion)
	healthManager.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))
	healthManager.RegisterChecker("protocols", monitoring.NewProtocolConfigHealthChecker(protocols.Version(), protocols.RuleCount()))

	// Setup HTTP router
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.SecurityHeaders)
	router.Use(middleware.Logging)
	router.Use(middleware.Auth)

	router.HandleFunc(cfg.Monitoring.HealthPath, healthManager.Handler()).Methods("GET")
	if cfg.Monitoring.Enabled {
		router.Handle(cfg.Monitoring.MetricsPath, monitoring.MetricsHandler()).Methods("GET")
	}

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	handlers.RegisterRoutes(apiRouter)

	// Setup HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithField("addr", server.Addr).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Verification Service")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to shutdown server gracefully")
	}

	log.Info("Verification Service stopped")
}
