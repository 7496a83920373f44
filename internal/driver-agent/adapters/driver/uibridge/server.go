package uibridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/ports/driver"
	"driver-agent/internal/event"
	"driver-agent/internal/mylogger"

	"github.com/gin-gonic/gin"
)

const (
	WaitTime = 10

	healthCheckTimeout = 2 * time.Second
)

// HealthCheck reports whether a backing connection is usable.
type HealthCheck func(ctx context.Context) error

// PositionFeed accepts fixes from the device GPS collaborator.
type PositionFeed interface {
	Push(p model.Position) bool
}

// Server is the local control API the driver UI talks to.
type Server struct {
	svc    driver.ISessionService
	feed   PositionFeed
	events *EventStream
	engine *gin.Engine
	port   int
	mylog  mylogger.Logger

	mu       sync.Mutex
	srv      *http.Server
	verifier TokenVerifier
	driverID string
	checks   map[string]HealthCheck
}

// NewServer builds the bridge. feed may be nil when positions come from elsewhere.
func NewServer(svc driver.ISessionService, feed PositionFeed, bus *event.Bus, port int, mylog mylogger.Logger) *Server {
	s := &Server{
		svc:    svc,
		feed:   feed,
		events: NewEventStream(bus, svc.View, mylog),
		engine: gin.New(),
		port:   port,
		mylog:  mylog,
	}
	s.engine.Use(gin.Recovery(), requestLogger(mylog))
	s.registerRoutes()
	return s
}

// AddHealthCheck makes /healthz report 503 while check fails.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checks == nil {
		s.checks = make(map[string]HealthCheck)
	}
	s.checks[name] = check
}

func (s *Server) healthChecks() map[string]HealthCheck {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]HealthCheck, len(s.checks))
	for name, check := range s.checks {
		out[name] = check
	}
	return out
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.srv
	s.mu.Unlock()

	s.mylog.Action("ui_bridge_started").WithGroup("details").With("port", s.port).Info("ui bridge is running")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop closes event streams and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.events.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, WaitTime*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.mylog.Error("failed to shut down ui bridge gracefully", err)
		return fmt.Errorf("ui bridge shutdown: %w", err)
	}
	s.mylog.Info("ui bridge shut down gracefully")
	return nil
}

func requestLogger(mylog mylogger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		mylog.Action("ui_request").Debug("request handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}
