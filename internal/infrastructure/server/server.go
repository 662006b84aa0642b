package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/opsdeck/appman/internal/api/http"
	"github.com/opsdeck/appman/internal/api/middleware"
	"github.com/opsdeck/appman/internal/domain/auth"
	"github.com/opsdeck/appman/internal/domain/executor"
	"github.com/opsdeck/appman/internal/domain/probe"
	"github.com/opsdeck/appman/internal/domain/registry"
	"github.com/opsdeck/appman/internal/domain/supervisor"
	"github.com/opsdeck/appman/internal/infrastructure/config"
	"github.com/opsdeck/appman/internal/infrastructure/logging"
	"github.com/opsdeck/appman/internal/infrastructure/monitoring"
	"github.com/opsdeck/appman/internal/infrastructure/notify"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	super   *supervisor.Supervisor
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		lg, err := logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: false,
			OutputPaths: []string{"stdout"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
		logger = lg
	}

	logger.Info("Initializing appman server",
		zap.String("port", cfg.Server.Port),
		zap.String("apps_file", cfg.Apps.File),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	// Load the application registry; an unusable registry is fatal.
	reg, err := registry.LoadFile(cfg.Apps.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load app registry: %w", err)
	}
	logger.Info("Loaded app registry",
		zap.Int("apps", reg.Len()),
		zap.String("default", reg.Default()),
	)

	exec := executor.New(logger.Logger,
		executor.WithGracePeriod(cfg.Exec.GracePeriod),
		executor.WithCaptureBytes(cfg.Exec.CaptureBytes),
	)
	prb := probe.New(logger.Logger, cfg.Exec.GracePeriod)

	var notifier *notify.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.New(cfg.Notify.WebhookURL, cfg.Notify.Timeout, logger.Logger)
		logger.Info("Action webhook enabled", zap.String("url", cfg.Notify.WebhookURL))
	}

	super := supervisor.New(reg, exec, prb, notifier, metrics, logger.Logger, supervisor.Options{
		ActionTimeout: cfg.Exec.ActionTimeout,
		UpdateTimeout: cfg.Exec.UpdateTimeout,
		LockWait:      cfg.Exec.LockWait,
		DefaultLines:  cfg.Logs.DefaultLines,
		MaxLines:      cfg.Logs.MaxLines,
		Noise:         cfg.Logs.Noise,
	})

	authorizer := auth.New(cfg.Auth.AdminTokens, cfg.Auth.AllowedTokens)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		// Unset or nonsense limits fall back to the middleware defaults.
		rl := middleware.DefaultRateLimitConfig()
		if cfg.RateLimit.RequestsPerSecond > 0 {
			rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		}
		if cfg.RateLimit.Burst > 0 {
			rl.Burst = cfg.RateLimit.Burst
		}
		logger.Info("Rate limiting enabled",
			zap.Int("rps", rl.RequestsPerSecond),
			zap.Int("burst", rl.Burst),
		)
		router.Use(middleware.RateLimit(rl))
	}
	// Create handlers
	handlers := apihttp.NewHandlers(super, logger.Logger)
	streamHandler := apihttp.NewStreamHandler(super, metrics, logger.Logger)

	// Health and metrics stay public for probes and scrapers.
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// With no tokens configured the service runs open and every caller
	// holds admin rights. With tokens, identity is mandatory on /apps.
	authEnabled := len(cfg.Auth.AdminTokens)+len(cfg.Auth.AllowedTokens) > 0
	apps := router.Group("/apps")
	if authEnabled {
		apps.Use(middleware.Identify(authorizer))
	} else {
		logger.Warn("No auth tokens configured, running open")
	}

	apps.GET("", handlers.ListApps)
	apps.GET("/:name/status", handlers.Status)
	apps.GET("/:name/logs", handlers.Logs)
	apps.GET("/:name/logs/stream", streamHandler.HandleConnection)
	apps.POST("/:name/actions/:action", handlers.Action)

	// Admin operations
	admin := apps.Group("")
	if authEnabled {
		admin.Use(middleware.RequireAdmin())
	}
	admin.POST("/:name/update", handlers.Update)
	admin.POST("/:name/branch", handlers.Branch)
	admin.POST("/:name/rollback", handlers.Rollback)
	admin.POST("/:name/force-stop", handlers.ForceStop)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		super:   super,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Router exposes the configured engine for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))

	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("Graceful shutdown failed", zap.Error(err))
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
	}

	// Sync logger before exit
	s.logger.Sync()

	return nil
}
