// Package server provides HTTP server setup and configuration.
package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/xilian/diagnostics-service/internal/alerting"
	"github.com/xilian/diagnostics-service/internal/auth"
	"github.com/xilian/diagnostics-service/internal/config"
	"github.com/xilian/diagnostics-service/internal/diagnostics"
	"github.com/xilian/diagnostics-service/internal/handlers"
	"github.com/xilian/diagnostics-service/internal/middleware"
	"github.com/xilian/diagnostics-service/internal/repository"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check if request ID already exists in header
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			// Generate new UUID for request ID
			requestID = uuid.New().String()
		}

		// Set request ID in context and response header
		c.Set("RequestID", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// NewRateLimitMiddleware creates a rate limiting middleware using ulule/limiter.
// It allows 100 requests per minute per IP address.
func NewRateLimitMiddleware() gin.HandlerFunc {
	// Define rate: 100 requests per 1 minute
	rate := limiter.Rate{
		Period: 1 * time.Minute,
		Limit:  100,
	}

	// Create in-memory store
	store := memory.NewStore()

	// Create rate limiter instance
	instance := limiter.New(store, rate)

	// Create and return Gin middleware
	middleware := mgin.NewMiddleware(instance)

	return middleware
}

// Dependencies holds all dependencies needed to create a server
type Dependencies struct {
	Config        *config.Config
	TelemetryRepo repository.TelemetryRepository
	Orchestrator  *diagnostics.Orchestrator
	Dispatcher    *alerting.Dispatcher // Optional: nil if alerting not configured
}

// New creates a new Gin router with all routes configured
func New(deps *Dependencies) *gin.Engine {
	// Set Gin to release mode to disable ANSI colors in logs
	gin.SetMode(gin.ReleaseMode)

	// Use gin.New() instead of gin.Default() to have explicit control over middleware
	// gin.Default() includes colored logging which contaminates HTTP responses with ANSI codes
	router := gin.New()

	// Add recovery middleware (without colored output)
	router.Use(gin.Recovery())

	// Add logger middleware without colored output
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(_ gin.LogFormatterParams) string {
			// Custom log format without ANSI color codes
			return ""
		},
		Output:    nil,                        // Disable output to prevent any log contamination
		SkipPaths: []string{"/api/v1/health"}, // Skip health check logging
	}))

	// Add CORS middleware for web client support
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Content-Encoding", "Authorization", "X-Request-ID", "X-Batch-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Add middlewares
	router.Use(RequestIDMiddleware())
	router.Use(NewRateLimitMiddleware())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithDecompressFn(gzip.DefaultDecompressHandle)))

	// Initialize JWT service
	jwtService := auth.NewJWTService(
		deps.Config.Auth.JWTSecret,
		deps.Config.Auth.JWTTokenTTL,
	)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService)

	diagnoseLimit := int64(deps.Config.Server.DiagnoseRateLimit)
	if diagnoseLimit <= 0 {
		diagnoseLimit = middleware.DefaultDiagnoseRateLimit
	}
	diagnoseRateLimiter := middleware.NewDiagnoseRateLimitMiddlewareWithConfig(diagnoseLimit, time.Minute)

	// Initialize handlers
	telemetryHandler := handlers.NewTelemetryHandler(deps.TelemetryRepo)
	anomalyHandler := handlers.NewAnomalyHandler(deps.TelemetryRepo)
	if deps.Dispatcher != nil {
		anomalyHandler = anomalyHandler.WithDispatcher(deps.Dispatcher)
	}
	diagnosticsHandler := handlers.NewDiagnosticsHandler(deps.Orchestrator)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint for network quality detection
		v1.GET("/health", handlers.HealthHandler)

		// Telemetry routes: writes need the ingest scope, reads are open
		telemetry := v1.Group("/telemetry")
		{
			telemetry.POST("/readings", authMiddleware.Required(auth.ScopeIngest), telemetryHandler.HandleInsertReadings)
			telemetry.GET("/readings", telemetryHandler.HandleQueryReadings)
			telemetry.GET("/aggregate", telemetryHandler.HandleQueryAggregated)
		}

		// Anomaly routes: acknowledging needs the operator scope
		anomalies := v1.Group("/anomalies")
		{
			anomalies.POST("", authMiddleware.Required(auth.ScopeIngest), anomalyHandler.HandleInsertAnomaly)
			anomalies.GET("", anomalyHandler.HandleQueryAnomalies)
			anomalies.POST("/:id/acknowledge", authMiddleware.Required(auth.ScopeOperator), anomalyHandler.HandleAcknowledgeAnomaly)
		}

		// Diagnostics routes (reasoning calls get stricter rate limiting)
		diag := v1.Group("/diagnostics")
		{
			diag.POST("/diagnose", diagnoseRateLimiter, diagnosticsHandler.HandleDiagnose)
			diag.POST("/batch", diagnoseRateLimiter, diagnosticsHandler.HandleBatchDiagnose)
			diag.GET("/status", diagnosticsHandler.HandleStatus)
			diag.GET("/sessions/:id", diagnosticsHandler.HandleSessionHistory)
			diag.DELETE("/sessions/:id", diagnosticsHandler.HandleClearSession)
		}
	}

	return router
}
