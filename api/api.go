package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/citysql/pkg/metrics"
	"github.com/papercomputeco/citysql/relay"
)

// Server is the citysql HTTP server.
type Server struct {
	config Config
	relay  *relay.Relay
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
func NewServer(config Config, logger *slog.Logger) (*Server, error) {
	if config.Agent == nil {
		return nil, errors.New("agent is required")
	}
	if config.Querier == nil {
		return nil, errors.New("querier is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := config.Relay
	if r == nil {
		r = relay.New(relay.Config{Logger: logger})
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		relay:  r,
		logger: logger,
		app:    app,
	}

	app.Use(s.observe)

	app.Get("/ping", s.handlePing)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post("/api/chat", s.handleChat)
	app.Post("/api/search", s.handleSearch)
	app.Get("/api/data", s.handleData)
	app.Get("/api/history", s.handleListHistory)
	app.Get("/api/history/:id", s.handleGetHistory)

	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"streaming", s.config.Streaming,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// observe records request counts and latency by route.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}

	path := c.Route().Path
	if path == "/" && c.Path() != "/" {
		path = "unmatched"
	}
	metrics.ObserveHTTPRequest(c.Method(), path, status, time.Since(start))
	return err
}
