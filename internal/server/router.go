// Package server exposes the generation pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/abhisek/vizlearn/internal/content"
	"github.com/abhisek/vizlearn/internal/logger"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Handler        *Handler
	Logger         *logger.Logger
	AllowedOrigins []string
	MaxBodyBytes   int64

	// ServiceName enables otelgin spans when non-empty.
	ServiceName string
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(Recovery(log))
	r.Use(AttachRequestID())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(RequestLogger(log))
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(LimitBody(cfg.MaxBodyBytes))

	h := cfg.Handler
	r.GET("/healthcheck", h.Health)

	api := r.Group("/api")
	{
		api.POST("/generate", h.Generate(content.SourceText))
		api.POST("/wiki", h.Generate(content.SourceWikipedia))
		api.POST("/generate-image", h.GenerateImage(false))
		api.POST("/upload_gpt4v/route", h.GenerateImage(true))
		api.POST("/enhanced-mcq-generation", h.MCQ)
		api.POST("/mcq", h.MCQ)
	}

	r.NoMethod(func(c *gin.Context) {
		respond(c, http.StatusMethodNotAllowed, Envelope{Error: "method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		respond(c, http.StatusNotFound, Envelope{Error: "not found"})
	})

	return r
}

// Server wraps an http.Server around the router.
type Server struct {
	srv *http.Server
	log *logger.Logger
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, handler http.Handler, readHeaderTimeout time.Duration, log *logger.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log: log,
	}
}

// Run serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Run() error {
	s.log.Info("server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
