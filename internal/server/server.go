// Package server exposes the conversation store over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rcliao/agent-convo/internal/model"
	"github.com/rcliao/agent-convo/internal/reply"
	"github.com/rcliao/agent-convo/internal/store"
)

// Server is the HTTP front end for a Store.
type Server struct {
	echo     *echo.Echo
	store    *store.Store
	log      *slog.Logger
	upgrader websocket.Upgrader
	ws       WSConfig
}

// NewServer builds a Server. gatherer backs /metrics and may be nil.
func NewServer(st *store.Store, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("http_request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds())
			return nil
		},
	}))

	s := &Server{
		echo:  e,
		store: st,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ws: DefaultWSConfig(),
	}

	e.GET("/health", s.handleHealth)
	e.GET("/v1/agents", s.handleListAgents)
	e.POST("/v1/conversations", s.handleCreate)
	e.GET("/v1/conversations", s.handleList)
	e.GET("/v1/conversations/:id", s.handleGet)
	e.POST("/v1/conversations/:id/messages", s.handleAddMessage)
	e.DELETE("/v1/conversations/:id/pending", s.handleCancelPending)
	e.GET("/v1/conversations/:id/ws", s.handleWatch)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type createRequest struct {
	AgentName string            `json:"agent_name"`
	Metadata  map[string]string `json:"metadata"`
}

type messageRequest struct {
	Role     model.Role        `json:"role"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// GET /v1/agents
func (s *Server) handleListAgents(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents":  reply.All(),
		"default": reply.DefaultAgent,
	})
}

// POST /v1/conversations
func (s *Server) handleCreate(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	conv, err := s.store.CreateConversation(c.Request().Context(), store.CreateParams{
		AgentName: req.AgentName,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, conv)
}

// GET /v1/conversations?agent=&limit=
func (s *Server) handleList(c echo.Context) error {
	limit := 0
	if l := c.QueryParam("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = val
	}
	convs, err := s.store.ListConversations(c.Request().Context(), store.ListParams{
		AgentName: c.QueryParam("agent"),
		Limit:     limit,
	})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversations": convs,
	})
}

// GET /v1/conversations/:id
func (s *Server) handleGet(c echo.Context) error {
	conv, err := s.store.GetConversation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// POST /v1/conversations/:id/messages
func (s *Server) handleAddMessage(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Role == "" {
		req.Role = model.RoleUser
	}
	conv, err := s.store.AddMessage(c.Request().Context(), store.ByID(c.Param("id")), store.MessageParams{
		Role:     req.Role,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// DELETE /v1/conversations/:id/pending
func (s *Server) handleCancelPending(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.store.GetConversation(c.Request().Context(), id); err != nil {
		return s.writeError(c, err)
	}
	n := s.store.CancelPending(c.Request().Context(), id)
	return c.JSON(http.StatusOK, map[string]int{"cancelled": n})
}

func (s *Server) writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidRole):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	s.log.Error("request_failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
