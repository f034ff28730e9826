// Control room gateway
// Local HTTP gateway in front of UK transport and civic data providers:
// attaches secrets server-side, normalizes rail boards and proxies everything else
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"control-room/gateway/internal/adapters"
	"control-room/gateway/internal/auth"
	"control-room/gateway/internal/config"
	"control-room/gateway/internal/handlers"
	"control-room/gateway/internal/metrics"
	"control-room/gateway/internal/middleware"
	"control-room/gateway/internal/proxy"
	"control-room/gateway/internal/services"
	"control-room/gateway/internal/stations"
	"control-room/gateway/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Application gateway process
type Application struct {
	Config      *types.Config            // gateway configuration
	Proxy       *proxy.ReverseProxy      // passthrough proxy
	Handler     *handlers.GatewayHandler // route dispatcher
	RateLimiter *middleware.RateLimiter  // inbound limiter
	Metrics     *metrics.Metrics         // prometheus collectors
	Server      *http.Server             // HTTP server
	Logger      *logrus.Logger           // logger
}

func main() {
	app, err := NewApplication()
	if err != nil {
		logrus.Fatalf("failed to create gateway: %v", err)
	}

	if err := app.Run(); err != nil {
		logrus.Fatalf("gateway stopped with error: %v", err)
	}
}

// NewApplication wires configuration, providers and the HTTP server
func NewApplication() (*Application, error) {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	store := config.NewEnvStore()

	// 2. Logger and metrics
	logger := initLogger(cfg)
	logger.Infof("starting control room gateway - environment: %s", cfg.Server.Environment)
	m := metrics.New()

	// 3. Credentials and shared state
	logger.Info("initializing token source and station catalog...")
	tokens := auth.NewTokenSource(types.ProviderRailData, cfg.Providers.RailDataAuth, store, m, logger)
	catalog := stations.NewCatalog(cfg.Providers.StationCatalog, m, logger)

	// 4. Provider adapters
	logger.Info("initializing provider adapters...")
	ldbws := adapters.NewLDBWSAdapter(cfg.Providers.LDBWS, store, m, logger)
	raildata := adapters.NewRailDataLiveAdapter(cfg.Providers.RailDataLive, store, m, logger)
	schedules := adapters.NewAviationstackAdapter(cfg.Providers.Aviationstack, store, m, logger)
	flights := adapters.NewFlightRadarAdapter(cfg.Providers.FR24Feed, cfg.Providers.FR24Details, m, logger)
	vehicles := adapters.NewDVLAAdapter(cfg.Providers.DVLA, store, m, logger)

	// 5. Fallback chains: LDBWS first, RailData REST second
	resolver := services.NewFallbackResolver(ldbws, raildata, ldbws, raildata, m, logger)

	// 6. Passthrough proxy and rate limiter
	reverseProxy := proxy.NewReverseProxy(m, logger)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, logger)

	// 7. Dispatcher
	var static http.Handler
	if cfg.Server.StaticDir != "" {
		static = http.FileServer(http.Dir(cfg.Server.StaticDir))
	}
	gatewayHandler := handlers.NewGatewayHandler(handlers.Dependencies{
		Config:    cfg,
		Store:     store,
		Proxy:     reverseProxy,
		Resolver:  resolver,
		Catalog:   catalog,
		Tokens:    tokens,
		LDBWS:     ldbws,
		RailData:  raildata,
		Schedules: schedules,
		Flights:   flights,
		Vehicles:  vehicles,
		Static:    static,
		Logger:    logger,
	})

	// 8. Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 9. Router and server
	router := setupRouter(cfg, gatewayHandler, rateLimiter, m, logger)
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	return &Application{
		Config:      cfg,
		Proxy:       reverseProxy,
		Handler:     gatewayHandler,
		RateLimiter: rateLimiter,
		Metrics:     m,
		Server:      server,
		Logger:      logger,
	}, nil
}

// Run serves until SIGINT/SIGTERM, then shuts down gracefully
func (app *Application) Run() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		app.Logger.Infof("gateway listening on %s", app.Server.Addr)
		app.Logger.Infof("  health: http://localhost%s%s", app.Server.Addr, app.Config.Monitoring.HealthCheckPath)
		app.Logger.Infof("  stats:  http://localhost%s%s", app.Server.Addr, app.Config.Monitoring.StatsPath)
		if app.Config.Monitoring.MetricsEnabled {
			app.Logger.Infof("  metrics: http://localhost%s%s", app.Server.Addr, app.Config.Monitoring.MetricsPath)
		}
		app.Logger.Infof("  routes: %d provider prefixes", len(app.Handler.Routes().Routes()))

		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-quit
	app.Logger.Info("shutdown signal received, draining connections...")

	return app.Shutdown()
}

// Shutdown stops the HTTP server within 30 seconds
func (app *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Server.Shutdown(ctx); err != nil {
		app.Logger.Errorf("HTTP server shutdown failed: %v", err)
		return err
	}

	app.Logger.Info("gateway stopped")
	return nil
}

// initLogger JSON in production, coloured text otherwise
func initLogger(cfg *types.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Server.Environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		})
	}

	return logger
}

// setupRouter middleware stack, gateway self routes, then the dispatcher
func setupRouter(cfg *types.Config, handler *handlers.GatewayHandler, rateLimiter *middleware.RateLimiter, m *metrics.Metrics, logger *logrus.Logger) *gin.Engine {
	router := gin.New()

	// ========================================
	// Global middleware
	// ========================================

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger, &cfg.Monitoring))
	router.Use(middleware.Security())
	router.Use(middleware.CORS(&cfg.Security.CORS))
	router.Use(rateLimiter.RateLimit())

	// ========================================
	// Gateway self routes
	// ========================================

	router.GET(cfg.Monitoring.HealthCheckPath, handler.HealthCheck)
	router.GET(cfg.Monitoring.StatsPath, handler.GetStats)
	if cfg.Monitoring.MetricsEnabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(m.Handler()))
	}

	// ========================================
	// Provider routes
	// ========================================

	// Prefix matching lives in the route table, so every other path goes to the dispatcher
	router.NoRoute(handler.HandleRequest)
	router.HandleMethodNotAllowed = false

	return router
}
