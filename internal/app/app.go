package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"spcpulse/internal/cache"
	"spcpulse/internal/config"
	apierrors "spcpulse/internal/errors"
	"spcpulse/internal/infrastructure"
	customMiddleware "spcpulse/internal/middleware"
	"spcpulse/internal/services"
	"spcpulse/internal/spc"
	handlers "spcpulse/internal/transport/http"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.SPCMetrics
	Runtime       *infrastructure.RuntimeMetrics
	Cache         *cache.ResultCache
	SPCService    *services.SPCService
	HealthService *services.HealthService
	ErrorHandler  *apierrors.ErrorHandler
}

// NewApplication loads the configuration from the environment and builds
// the application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New wires every component from cfg
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		ErrorHandler:  apierrors.NewErrorHandler(logger, false),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	metrics, err := infrastructure.CreateSPCMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	a.Metrics = metrics

	runtimeMetrics, err := infrastructure.NewRuntimeMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create runtime metrics: %w", err)
	}
	a.Runtime = runtimeMetrics

	analysis := a.Config.Analysis
	if analysis.CacheSize > 0 {
		a.Cache = cache.New(analysis.CacheTTL, analysis.CacheSize)
	}

	var defaultSpec *spc.SpecLimits
	if analysis.HasDefaultSpec() {
		defaultSpec = &spc.SpecLimits{LSL: analysis.DefaultLSL, USL: analysis.DefaultUSL}
	}

	svc, err := services.NewSPCService(services.SPCServiceOptions{
		Cache:             a.Cache,
		Metrics:           metrics,
		Tracer:            a.OTelProviders.Tracer,
		DefaultSpec:       defaultSpec,
		HistogramBinWidth: analysis.HistogramBinWidth,
		Sheet:             analysis.Sheet,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.SPCService = svc

	a.HealthService = services.NewHealthService(config.AppVersion, svc, runtimeMetrics, a.Logger)
	return nil
}

// setupRouter configures middleware and routes.
// Order: RequestID → RealIP → OTel → Logger → Recoverer → security → rate limit
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders, a.Metrics).Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(a.ErrorHandler.RecoveryMiddleware)
	r.Use(customMiddleware.SecurityHeaders)

	if a.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			Logger:         a.Logger,
		}))
	}

	if a.Config.Security.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	r.Route(config.APIBasePath, func(r chi.Router) {
		r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))

		healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
		r.Mount("/health", healthHandler.Routes())

		spcHandler := handlers.NewSPCHandler(a.SPCService, a.ErrorHandler, a.Config.Analysis.MaxUploadBytes, a.Logger)
		r.With(customMiddleware.BodyLimit(a.Config.Analysis.MaxUploadBytes)).
			Mount("/spc", spcHandler.Routes())
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle(config.MetricsEndpoint, a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Server.Address(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start begins serving on the configured address. A listener failure
// cancels ctx through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln, cancel)
}

// Serve begins serving on ln
func (a *Application) Serve(ctx context.Context, ln net.Listener, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting HTTP server",
		slog.String("address", ln.Addr().String()),
		slog.String("level", a.Config.Logging.Level))

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.Cache != nil {
		a.Cache.Stop()
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	return a.Stop(context.Background())
}
