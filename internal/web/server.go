// Package web provides the HTTP server for the landing pages. It serves the
// static page assets and forwards credential requests to the external token
// service; it does not issue tokens itself.
package web

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/aaliyacoding/progrify/internal/config"
)

// Server is the pages HTTP server.
type Server struct {
	echo     *echo.Echo
	cfg      *config.Config
	upstream *http.Client
}

// NewServer creates the pages server.
func NewServer(cfg *config.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		echo: e,
		cfg:  cfg,
		upstream: &http.Client{
			Timeout: cfg.TokenTimeout,
		},
	}

	// Register routes
	e.GET("/health", s.handleHealth)
	e.POST("/api/token", s.handleToken)
	e.Static("/", cfg.StaticDir)

	return s
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "healthy",
	})
}

// handleToken forwards the credential request to the token service and
// relays its response verbatim.
func (s *Server) handleToken(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	url := strings.TrimSuffix(s.cfg.TokenUpstream, "/") + "/api/token"
	req, err := http.NewRequestWithContext(c.Request().Context(), "POST", url, bytes.NewReader(body))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to build upstream request"})
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.upstream.Do(req)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "token service unavailable"})
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	return c.Stream(resp.StatusCode, contentType, resp.Body)
}
