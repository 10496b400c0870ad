package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/scriptbridge/scriptbridge/internal/api/http"
	"github.com/scriptbridge/scriptbridge/internal/api/middleware"
	"github.com/scriptbridge/scriptbridge/internal/engine/orchestrator"
	"github.com/scriptbridge/scriptbridge/internal/infrastructure/config"
	"github.com/scriptbridge/scriptbridge/internal/infrastructure/logging"
	"github.com/scriptbridge/scriptbridge/internal/infrastructure/monitoring"
	"github.com/scriptbridge/scriptbridge/internal/spec/provider"
)

// Server wraps the HTTP server and its dependencies
type Server struct {
	router  *gin.Engine
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// New creates a new server instance
func New(cfg *config.Config) *Server {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing ScriptBridge server",
		zap.String("port", cfg.Server.Port),
		zap.String("isolate_binary", cfg.Engine.IsolateBinary),
		zap.String("spec_source", cfg.Spec.Source),
	)

	metrics := monitoring.NewMetrics()

	orch := orchestrator.New(orchestrator.Config{
		Binary:        cfg.Engine.IsolateBinary,
		OuterTimeout:  cfg.Engine.OuterTimeout(),
		MaxConcurrent: cfg.Engine.MaxConcurrentRuns,
	}, logger)

	var specs apihttp.Descriptions
	if cfg.Spec.Source != "" {
		specs = provider.New(provider.Config{
			Source:  cfg.Spec.Source,
			Methods: cfg.Spec.Methods,
		}, logger)
	}

	handlers := apihttp.NewHandlers(orch, specs, cfg.API, cfg.Engine, metrics, logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	router.POST("/tools/execute", handlers.Execute)
	router.POST("/tools/query", handlers.Query)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("Server initialized")

	return &Server{
		router:  router,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close flushes buffered log entries
func (s *Server) Close() error {
	s.logger.Info("Shutting down server")
	return s.logger.Sync()
}
