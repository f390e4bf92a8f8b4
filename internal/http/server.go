// Package http provides the HTTP API for transformd.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transformd/internal/config"
	"github.com/fyrsmithlabs/transformd/internal/events"
	"github.com/fyrsmithlabs/transformd/internal/githost"
	"github.com/fyrsmithlabs/transformd/internal/logging"
	"github.com/fyrsmithlabs/transformd/internal/pipeline"
	"github.com/fyrsmithlabs/transformd/internal/session"
)

// Server provides HTTP endpoints for transformd.
type Server struct {
	echo     *echo.Echo
	registry *session.Registry
	emitter  *events.Emitter
	orch     *pipeline.Orchestrator
	host     githost.Host
	metrics  *Metrics
	logger   *logging.Logger
	config   config.ServerConfig

	// baseCtx is the lifetime context handed to pipeline goroutines, so
	// runs survive their originating request.
	baseCtx context.Context
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(
	baseCtx context.Context,
	cfg config.ServerConfig,
	registry *session.Registry,
	emitter *events.Emitter,
	orch *pipeline.Orchestrator,
	host githost.Host,
	logger *logging.Logger,
) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("emitter is required")
	}
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewMetrics()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		registry: registry,
		emitter:  emitter,
		orch:     orch,
		host:     host,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
		baseCtx:  baseCtx,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", s.metrics.Handler())

	v1 := s.echo.Group("/api/v1")
	v1.POST("/repositories", s.handleListRepositories)
	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.GET("/sessions/:id/events", s.handleSessionEvents)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleListRepositories lists the caller's repositories via the git host.
// The token travels in the body so it stays out of access logs.
func (s *Server) handleListRepositories(c echo.Context) error {
	if s.host == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "repository listing is not configured")
	}

	var req RepositoriesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.GitHubToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "github_token field is required")
	}

	repos, err := s.host.ListRepositories(c.Request().Context(), config.Secret(req.GitHubToken))
	if err != nil {
		s.logger.Warn(c.Request().Context(), "repository listing failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "failed to retrieve repositories")
	}

	items := make([]RepositoryItem, 0, len(repos))
	for _, r := range repos {
		items = append(items, RepositoryItem{
			Owner:       r.Owner,
			Name:        r.Name,
			URL:         r.URL,
			Description: r.Description,
			Language:    r.Language,
		})
	}
	return c.JSON(http.StatusOK, RepositoriesResponse{Repositories: items})
}

// handleCreateSession registers a session and starts its pipeline.
func (s *Server) handleCreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RepoURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repo_url field is required")
	}
	if req.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt field is required")
	}

	sess := s.registry.Create(
		session.Request{
			RepoURL:       req.RepoURL,
			Prompt:        req.Prompt,
			BranchName:    req.BranchName,
			CommitMessage: req.CommitMessage,
		},
		session.Credentials{
			GitHubToken: config.Secret(req.GitHubToken),
			Username:    req.Username,
		},
	)
	s.metrics.SessionsCreated.Inc()

	s.logger.Info(logging.WithSessionID(c.Request().Context(), sess.ID), "session created",
		zap.String("repo", req.RepoURL))

	s.orch.Start(s.baseCtx, *sess)

	return c.JSON(http.StatusAccepted, toSessionResponse(*sess))
}

// handleGetSession returns the current session state.
func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.registry.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load session")
	}
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

// handleSessionEvents streams session events over SSE. The stream starts
// with the backlog, so reconnecting clients see the full sequence, and ends
// after the terminal event.
func (s *Server) handleSessionEvents(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.registry.Get(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load session")
	}

	ch, cancel := s.emitter.Subscribe(id)
	defer cancel()

	s.metrics.ActiveEventStreams.Inc()
	defer s.metrics.ActiveEventStreams.Dec()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := writeSSE(w, string(ev.Kind), strconv.Itoa(ev.Seq), ev); err != nil {
				return nil
			}
			if ev.Kind.Terminal() {
				s.metrics.SessionsTerminal.WithLabelValues(terminalStatus(ev.Kind)).Inc()
			}
		}
	}
}

func terminalStatus(k events.Kind) string {
	if k == events.KindCompleted {
		return string(session.StatusCompleted)
	}
	return string(session.StatusFailed)
}

// writeSSE writes one server-sent event frame and flushes it.
func writeSSE(w *echo.Response, event, id string, payload any) error {
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", blob); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
