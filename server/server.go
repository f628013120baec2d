// Package server exposes a cinefusion engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oarkflow/xid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/oarkflow/cinefusion"
)

const apiPrefix = "/api"

// Config holds the HTTP settings of the server.
type Config struct {
	Addr string
	// Mode is the gin mode: debug, release or test. Admin routes are only
	// mounted in debug mode.
	Mode string
}

// Server represents the HTTP server
type Server struct {
	config   Config
	engine   *cinefusion.Engine
	log      *zap.SugaredLogger
	registry *prometheus.Registry
	router   *gin.Engine
	server   *http.Server
	started  time.Time
}

// New creates a new server instance. The engine's metrics are registered
// on a private registry served at /metrics.
func New(cfg Config, engine *cinefusion.Engine, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		cinefusion.NewCollector(engine),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Server{
		config:   cfg,
		engine:   engine,
		log:      log,
		registry: reg,
		started:  time.Now(),
	}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	if s.config.Mode != "" {
		gin.SetMode(s.config.Mode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger(s.log))
	s.router.Use(corsMiddleware())

	s.setupRoutes()

	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) setupRoutes() {
	h := &handlers{engine: s.engine, log: s.log, started: s.started}

	s.router.GET("/health", h.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := s.router.Group(apiPrefix)
	{
		api.GET("/health", h.health)
		api.GET("/suggestions", h.suggestions)
		api.GET("/search", h.search)
		api.GET("/movies", h.movies)
		api.GET("/movies/:id", h.movie)
		api.GET("/genres", h.genres)
		api.GET("/directors", h.directors)
		api.GET("/stats", h.stats)
	}
	if gin.Mode() == gin.DebugMode {
		admin := api.Group("/admin")
		admin.POST("/cache/clear", h.clearCache)
		admin.GET("/cache/stats", h.cacheStats)
		admin.GET("/performance", h.performance)
	}
}

// Handler returns the configured router. Setup must have been called.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.log.Infow("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.log.Infow("stopping server")
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request and tags the response with a
// request id.
func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = xid.New().String()
		}
		c.Header("X-Request-ID", id)
		c.Next()
		log.Infow("request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
			"took", time.Since(start).String(),
		)
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Expose-Headers", "X-RateLimit-Remaining, X-RateLimit-Reset, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
