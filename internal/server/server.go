// Package server exposes the sweep platform over HTTP: control endpoints,
// status and health reports, push event streams and rendered waterfalls.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Graveside2022/ArgosFinal-sub003/internal/gps"
	"github.com/Graveside2022/ArgosFinal-sub003/internal/sweep"
	"github.com/Graveside2022/ArgosFinal-sub003/internal/waterfall"
	"github.com/Graveside2022/ArgosFinal-sub003/internal/wifi"
)

// Option configures optional server dependencies
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.With(slog.String("component", "server"))
	}
}

// WithWiFi wires the WiFi proxy endpoints
func WithWiFi(client *wifi.Client) Option {
	return func(s *Server) { s.wifi = client }
}

// WithGPS wires the position endpoint
func WithGPS(provider gps.Provider) Option {
	return func(s *Server) { s.gps = provider }
}

// WithWaterfall wires the waterfall snapshot endpoint
func WithWaterfall(w *waterfall.Waterfall) Option {
	return func(s *Server) { s.fall = w }
}

// WithMetrics wires the Prometheus endpoint
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server is the HTTP surface over the sweep manager and its companions
type Server struct {
	manager *sweep.Manager
	bus     *sweep.Bus
	wifi    *wifi.Client
	gps     gps.Provider
	fall    *waterfall.Waterfall
	metrics *Metrics
	logger  *slog.Logger
	engine  *gin.Engine
}

// New builds the router around the sweep manager and event bus
func New(manager *sweep.Manager, bus *sweep.Bus, options ...Option) *Server {
	s := Server{
		manager: manager,
		bus:     bus,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	api := engine.Group("/api")
	{
		api.POST("/sweep/start", s.handleStart)
		api.POST("/sweep/stop", s.handleStop)
		api.POST("/sweep/emergency-stop", s.handleEmergencyStop)
		api.POST("/sweep/cleanup", s.handleCleanup)
		api.GET("/sweep/status", s.handleStatus)
		api.GET("/sweep/health", s.handleHealth)

		api.GET("/events", s.handleEvents)
		api.GET("/events/ws", s.handleEventsWS)

		api.GET("/waterfall.png", s.handleWaterfall)
		api.GET("/gps/position", s.handlePosition)
		api.GET("/wifi/status", s.proxyWiFi((*wifi.Client).Status))
		api.GET("/wifi/networks", s.proxyWiFi((*wifi.Client).Networks))
	}

	if s.metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	s.engine = engine
	return &s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// startRequest is the body of POST /api/sweep/start. CycleTime is in
// milliseconds; frequencies accept bare numbers (MHz) or {value, unit}.
type startRequest struct {
	Frequencies []sweep.FrequencyTarget `json:"frequencies"`
	CycleTime   int64                   `json:"cycleTime"`
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	err := s.manager.StartSweep(c.Request.Context(), req.Frequencies, time.Duration(req.CycleTime)*time.Millisecond)
	if err != nil {
		var verr *sweep.ValidationError
		var derr *sweep.DeviceError
		switch {
		case errors.Is(err, sweep.ErrAlreadyRunning):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &derr):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, s.manager.Status())
}

func (s *Server) handleStop(c *gin.Context) {
	if err := s.manager.StopSweep(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.manager.Status())
}

func (s *Server) handleEmergencyStop(c *gin.Context) {
	s.manager.EmergencyStop()
	c.JSON(http.StatusOK, s.manager.Status())
}

func (s *Server) handleCleanup(c *gin.Context) {
	s.manager.ForceCleanup()
	c.JSON(http.StatusOK, s.manager.Status())
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Status())
}

func (s *Server) handleHealth(c *gin.Context) {
	probe := s.manager.CheckHealth(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"device":  probe,
		"process": s.manager.Health(),
	})
}

func (s *Server) handleWaterfall(c *gin.Context) {
	if s.fall == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "waterfall rendering not configured"})
		return
	}

	var buf bytes.Buffer
	if err := s.fall.WritePNG(&buf); err != nil {
		if errors.Is(err, waterfall.ErrNoData) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("waterfall render failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) handlePosition(c *gin.Context) {
	if s.gps == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "gps not configured"})
		return
	}

	pos := s.gps.Get()
	if pos == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no position fix yet"})
		return
	}
	c.JSON(http.StatusOK, pos)
}

// proxyWiFi relays one WiFi service endpoint verbatim
func (s *Server) proxyWiFi(fetch func(*wifi.Client, context.Context) (json.RawMessage, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.wifi == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wifi proxy not configured"})
			return
		}

		body, err := fetch(s.wifi, c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json", body)
	}
}
