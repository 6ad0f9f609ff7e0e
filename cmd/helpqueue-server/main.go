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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/helpqueue/helpqueue/internal/config"
	"github.com/helpqueue/helpqueue/internal/geoip"
	"github.com/helpqueue/helpqueue/internal/metrics"
	"github.com/helpqueue/helpqueue/internal/provider"
	"github.com/helpqueue/helpqueue/internal/queue"
	"github.com/helpqueue/helpqueue/internal/sessions"
)

// AppState holds all application services
type AppState struct {
	Logger           *zap.Logger
	DB               *bun.DB
	Store            sessions.SessionStore
	QueueService     *queue.Service
	LifecycleService *sessions.LifecycleService
	MetricsService   *metrics.Service
}

func main() {
	// Load configuration
	config.Load()

	// Initialize logger with config
	logger := initLogger()

	// Initialize application state
	as, err := newAppState(logger)
	if err != nil {
		logger.Fatal("Failed to initialize application state", zap.Error(err))
	}

	// Run schema migrations
	ctx := context.Background()
	if err := sessions.CreateTables(ctx, as.DB); err != nil {
		logger.Fatal("Failed to create tables", zap.Error(err))
	}
	if err := sessions.CreateIndexes(ctx, as.DB); err != nil {
		logger.Fatal("Failed to create indexes", zap.Error(err))
	}

	// Create HTTP server
	router := setupRouter(as)

	addr := fmt.Sprintf("%s:%d", config.Http().Host, config.Http().Port)

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Setup graceful shutdown
	done := setupSignalHandler(as, server, logger)

	// Start server
	logger.Info("Starting help-queue server", zap.String("address", addr))

	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	<-done
	logger.Info("Server shutdown complete")
}

// newAppState creates and initializes the application state
func newAppState(logger *zap.Logger) (*AppState, error) {
	pgConfig := config.Postgres()

	logger.Info("Database configuration",
		zap.String("host", pgConfig.Host),
		zap.Int("port", pgConfig.Port),
		zap.String("database", pgConfig.Database),
		zap.String("user", pgConfig.User))

	db := sessions.NewDB(pgConfig.DSN(), pgConfig.MaxOpenConnections)
	store := sessions.NewPostgresStore(db)

	otConfig := config.OpenTok()
	if otConfig.APIKey == "" || otConfig.APISecret == "" {
		return nil, fmt.Errorf("OpenTok credentials are required - please configure opentok.api_key and opentok.api_secret")
	}
	prov := provider.NewOpenTokClient(provider.Config{
		APIKey:    otConfig.APIKey,
		APISecret: otConfig.APISecret,
		APIURL:    otConfig.APIURL,
		TokenTTL:  time.Duration(otConfig.TokenTTLHours) * time.Hour,
	}, logger)

	var resolver geoip.Resolver
	geoConfig := config.GeoIP()
	if geoConfig.Enabled {
		resolver = geoip.NewClient(geoConfig.BaseURL, time.Duration(geoConfig.TimeoutSeconds)*time.Second, logger)
	} else {
		resolver = geoip.Disabled{}
	}

	queueService := queue.NewService(store, logger)
	lifecycleService := sessions.NewLifecycleService(store, queueService, prov, resolver, logger)
	metricsService := metrics.NewService(store, logger)

	return &AppState{
		Logger:           logger,
		DB:               db,
		Store:            store,
		QueueService:     queueService,
		LifecycleService: lifecycleService,
		MetricsService:   metricsService,
	}, nil
}

func initLogger() *zap.Logger {
	logConfig := config.Logger()

	var config zap.Config
	if logConfig.Format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	// Set log level
	switch logConfig.Level {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	return logger
}

func setupRouter(as *AppState) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// The call widget is embedded on campaign pages across origins.
	router.Use(cors.Default())

	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Health endpoint
	router.GET("/health", func(c *gin.Context) {
		if err := as.DB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"timestamp": time.Now().Format(time.RFC3339),
				"error":     err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	root := router.Group("/")
	sessions.NewLifecycleHandlers(as.LifecycleService, as.Logger).RegisterRoutes(root)
	metrics.NewMetricsHandlers(as.MetricsService).RegisterRoutes(root)

	return router
}

func setupSignalHandler(as *AppState, server *http.Server, logger *zap.Logger) chan struct{} {
	done := make(chan struct{}, 1)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signalCh

		logger.Info("Shutting down server...")

		// Create context with timeout for graceful shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Shutdown server
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Error during server shutdown", zap.Error(err))
		}

		// Close database handle
		if err := as.DB.Close(); err != nil {
			logger.Error("Error closing database", zap.Error(err))
		}

		done <- struct{}{}
	}()

	return done
}
