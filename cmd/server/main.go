package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/settler-api/internal/analytics"
	"github.com/ksred/settler-api/internal/config"
	"github.com/ksred/settler-api/internal/database"
	"github.com/ksred/settler-api/internal/events"
	"github.com/ksred/settler-api/internal/rules"
	"github.com/ksred/settler-api/internal/settlement"
	"github.com/ksred/settler-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the settlement engine with graceful shutdown
// support. It wires the rule service, the pipeline, the batch processor and
// the analytics surface onto one HTTP server.
func main() {
	cfg, err := config.Load(".")
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	router := gin.Default()

	// Initialize services and handlers
	sink := events.NewLogSink()
	calculator := rules.NewCalculator(cfg.GasFee)
	queue := settlement.NewQueue(cfg.QueueCapacity)

	ruleService := rules.NewService(db)
	ruleHandlers := rules.NewGinHandlers(ruleService)

	settlementService := settlement.NewService(db, ruleService, calculator, queue, sink, cfg.DefaultMaxRetries)
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	analyticsService := analytics.NewService(settlementService.GetDB(), ruleService, map[string]interface{}{
		"tick_interval":        cfg.TickInterval.String(),
		"batch_size":           cfg.BatchSize,
		"queue_capacity":       cfg.QueueCapacity,
		"default_max_retries":  cfg.DefaultMaxRetries,
		"escalation_threshold": cfg.EscalationThreshold.String(),
		"gas_fee":              cfg.GasFee,
	})
	analyticsHandlers := analytics.NewGinHandlers(analyticsService)

	// Create and start the batch processor
	dispatcher := settlement.NewDispatcher()
	engine := settlement.NewEngine(settlementService.GetDB(), dispatcher, sink)
	processor := settlement.NewProcessor(
		settlementService.GetDB(), queue, engine, sink,
		cfg.TickInterval, cfg.BatchSize, cfg.EscalationThreshold,
	)

	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go processor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg, settlementHandlers, ruleHandlers, analyticsHandlers)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Stop the processor first so no new batch starts, then let outstanding
	// HTTP requests finish
	processorCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Pipeline routes: settlement/refund creation and lookups, internal auth
// - Rule routes: administration endpoints, JWT auth
// - Analytics routes: summary, export and import surfaces, JWT auth
func setupRoutes(
	router *gin.Engine,
	cfg config.Config,
	settlementHandlers *settlement.GinHandlers,
	ruleHandlers *rules.GinHandlers,
	analyticsHandlers *analytics.GinHandlers,
) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Pipeline routes (called by the auction engine and operators)
		pipeline := v1.Group("")
		pipeline.Use(middleware.InternalAuth(cfg.JWTSecret))
		{
			pipeline.POST("/settlements", settlementHandlers.CreateSettlementHandler())
			pipeline.POST("/refunds", settlementHandlers.CreateRefundHandler())
			pipeline.GET("/settlements/:record_id", settlementHandlers.GetRecordHandler())
			pipeline.GET("/settlements", settlementHandlers.GetUserRecordsHandler())
			pipeline.POST("/settlements/:record_id/retry", settlementHandlers.RetryRecordHandler())
			pipeline.GET("/batches/:batch_id", settlementHandlers.GetBatchHandler())
		}

		// Rule administration
		admin := v1.Group("/rules")
		admin.Use(middleware.JWTAuth(cfg.JWTSecret))
		{
			admin.POST("", ruleHandlers.CreateRuleHandler())
			admin.GET("", ruleHandlers.ListRulesHandler())
			admin.GET("/:rule_id", ruleHandlers.GetRuleHandler())
			admin.POST("/:rule_id/deactivate", ruleHandlers.DeactivateRuleHandler())
		}

		// Analytics and export
		reporting := v1.Group("")
		reporting.Use(middleware.JWTAuth(cfg.JWTSecret))
		{
			reporting.GET("/analytics/summary", analyticsHandlers.SummaryHandler())
			reporting.GET("/export", analyticsHandlers.ExportHandler())
			reporting.POST("/import", analyticsHandlers.ImportHandler())
		}
	}
}
