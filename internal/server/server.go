// Package server hosts the HTTP surface: probes, status and the mounted
// webhook routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"opomelilla_bot/internal/logging"
)

const (
	mongoPingTimeout  = 2 * time.Second
	statsTimeout      = 3 * time.Second
	readHeaderTimeout = 2 * time.Second
	listenPrefix      = ":"
)

// MongoChecker defines the subset of MongoDB client behavior required for health.
type MongoChecker interface {
	Ping(ctx context.Context) error
}

// Counter reports audience sizes for the status endpoint.
type Counter interface {
	CountProfiles(ctx context.Context) (int64, error)
	CountGroups(ctx context.Context) (int64, error)
}

// RouteRegistrar mounts additional routes on the engine.
type RouteRegistrar interface {
	Register(r gin.IRouter)
}

// Options configures a Server.
type Options struct {
	Port         int
	MongoChecker MongoChecker
	Counter      Counter
	StartedAt    time.Time
	Routes       []RouteRegistrar
	Logger       *logrus.Entry
}

// Server owns the gin engine and the underlying HTTP server.
type Server struct {
	server       *http.Server
	engine       *gin.Engine
	logger       *logrus.Entry
	mongoChecker MongoChecker
	counter      Counter
	startedAt    time.Time
	now          func() time.Time
}

type healthResponse struct {
	Status string `json:"status"`
	Mongo  string `json:"mongo,omitempty"`
}

type statusResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Profiles      *int64 `json:"profiles,omitempty"`
	Groups        *int64 `json:"groups,omitempty"`
}

// NewServer constructs a server exposing GET /healthz, GET /status and every
// registered route.
func NewServer(opts Options) *Server {
	logger := logging.OrDefault(opts.Logger)

	startedAt := opts.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	srv := &Server{
		logger:       logger,
		mongoChecker: opts.MongoChecker,
		counter:      opts.Counter,
		startedAt:    startedAt,
		now:          time.Now,
	}

	engine := gin.New()
	engine.Use(srv.accessLog())
	engine.GET("/healthz", srv.handleHealth)
	engine.GET("/status", srv.handleStatus)
	for _, routes := range opts.Routes {
		if routes != nil {
			routes.Register(engine)
		}
	}
	srv.engine = engine

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", listenPrefix, opts.Port),
		Handler:           engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "http_listen",
		"addr":  s.server.Addr,
	}).Info("starting http server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "http_stopped").Info("http server stopped")
			return nil
		}

		return fmt.Errorf("http server listen: %w", err)
	}

	s.logger.WithField("event", "http_stopped").Info("http server stopped")
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if path == "/healthz" {
			return
		}

		s.logger.WithFields(logging.Fields{
			"event":       "http_request",
			"method":      c.Request.Method,
			"path":        path,
			"status":      c.Writer.Status(),
			"duration_ms": s.now().Sub(start).Milliseconds(),
		}).Debug("http request served")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := healthResponse{Status: "ok"}

	if s.mongoChecker == nil {
		resp.Status, resp.Mongo = "degraded", "error"
		s.logger.WithField("event", "health_mongo_missing").Warn("mongo checker is not configured for health endpoint")
	} else {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), mongoPingTimeout)
		err := s.mongoChecker.Ping(pingCtx)
		cancel()

		if err != nil {
			resp.Status, resp.Mongo = "degraded", "error"
			s.logger.WithFields(logging.Fields{
				"event": "health_mongo_error",
			}).WithError(err).Warn("mongo ping failed during health check")
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{
		Status:        "ok",
		UptimeSeconds: int64(s.now().Sub(s.startedAt).Seconds()),
	}

	if s.counter != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), statsTimeout)
		defer cancel()

		if profiles, err := s.counter.CountProfiles(ctx); err != nil {
			resp.Status = "degraded"
			s.logger.WithField("event", "status_count_error").WithError(err).Warn("failed to count profiles")
		} else {
			resp.Profiles = &profiles
		}

		if groups, err := s.counter.CountGroups(ctx); err != nil {
			resp.Status = "degraded"
			s.logger.WithField("event", "status_count_error").WithError(err).Warn("failed to count groups")
		} else {
			resp.Groups = &groups
		}
	}

	c.JSON(http.StatusOK, resp)
}
