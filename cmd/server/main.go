// Package main is the entry point for the diagnostics service HTTP server.
package main

import (
	"context"
	"log"

	"github.com/xilian/diagnostics-service/internal/alerting"
	"github.com/xilian/diagnostics-service/internal/anomaly"
	"github.com/xilian/diagnostics-service/internal/config"
	"github.com/xilian/diagnostics-service/internal/database"
	"github.com/xilian/diagnostics-service/internal/diagnostics"
	"github.com/xilian/diagnostics-service/internal/models"
	"github.com/xilian/diagnostics-service/internal/reasoning"
	"github.com/xilian/diagnostics-service/internal/repository"
	"github.com/xilian/diagnostics-service/internal/server"
	"github.com/xilian/diagnostics-service/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Select the telemetry backend
	var telemetryRepo repository.TelemetryRepository
	switch cfg.Database.Backend {
	case "postgres":
		db, err := database.New(&cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			}
		}()
		log.Println("Successfully connected to database")
		telemetryRepo = repository.NewPostgresTelemetryRepository(db)
	case "memory":
		log.Println("Using in-memory telemetry store - data will not survive restarts")
		telemetryRepo = repository.NewMemoryTelemetryRepository()
	default:
		log.Fatalf("Unknown storage backend: %s", cfg.Database.Backend)
	}

	// Initialize the reasoning capability
	var capability reasoning.Capability
	switch cfg.Reasoning.Provider {
	case "gemini":
		capability, err = reasoning.NewGeminiCapability(context.Background(), cfg.Reasoning.APIKey, cfg.Reasoning.Model)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini reasoning: %v", err)
		}
		log.Println("Reasoning initialized with Gemini provider")
	case "mock":
		capability = reasoning.NewMockCapability()
		log.Println("Reasoning initialized with mock provider")
	default:
		capability = reasoning.NewConsoleCapability()
		log.Println("Reasoning initialized with console provider - diagnoses will be canned responses")
	}

	// Anomaly detector with configured z-score cutoffs
	detector := anomaly.NewDetector(anomaly.ZThresholds{
		Medium:   cfg.Diagnostics.ZThresholdMedium,
		High:     cfg.Diagnostics.ZThresholdHigh,
		Critical: cfg.Diagnostics.ZThresholdCritical,
	})

	// Session cache and orchestrator
	sessionStore := session.NewStore(cfg.Diagnostics.SessionCapacity)
	orchestrator := diagnostics.NewOrchestrator(
		sessionStore,
		telemetryRepo,
		detector,
		capability,
		diagnostics.Config{
			ReasoningTimeout: cfg.Diagnostics.ReasoningTimeout,
			MaxBatchSize:     cfg.Diagnostics.MaxBatchSize,
			TimeRangeHours:   cfg.Diagnostics.TimeRangeHours,
		},
	)

	// Alert dispatcher: webhook if configured, otherwise log-only
	var notifier alerting.Notifier
	if cfg.Alerting.WebhookURL != "" {
		notifier = alerting.NewWebhookNotifier(cfg.Alerting.WebhookURL)
		log.Println("Alerting initialized with webhook notifier")
	} else {
		notifier = alerting.NewLogNotifier()
		log.Println("Alerting initialized with log notifier")
	}
	dispatcher := alerting.NewDispatcher(notifier, models.Severity(cfg.Alerting.MinSeverity))
	dispatcher.Start()
	defer dispatcher.Stop()

	// Create server dependencies
	deps := &server.Dependencies{
		Config:        cfg,
		TelemetryRepo: telemetryRepo,
		Orchestrator:  orchestrator,
		Dispatcher:    dispatcher,
	}

	// Create and start the server
	srv := server.New(deps)

	log.Printf("Starting server on port %s", cfg.Server.Port)
	if err := srv.Run(":" + cfg.Server.Port); err != nil {
		log.Printf("Failed to start server: %v", err)
		panic(err) // Use panic instead of log.Fatalf to ensure defer runs
	}
}
