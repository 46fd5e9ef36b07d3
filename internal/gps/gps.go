// Package gps maintains the current position fix by watching a local gpsd
// daemon over its JSON TCP protocol.
package gps

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Fix modes reported by gpsd TPV records
const (
	ModeUnknown = 0
	ModeNoFix   = 1
	Mode2D      = 2
	Mode3D      = 3
)

// watchCommand enables streaming JSON reports on a gpsd connection
const watchCommand = `?WATCH={"enable":true,"json":true};` + "\n"

// Position is the latest fix. Fields are pointers because gpsd omits what
// the receiver cannot measure.
type Position struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Track     *float64  `json:"track,omitempty"`
	Mode      int       `json:"mode"`
}

// Provider is the read side handed to consumers of position data
type Provider interface {
	// Get returns the latest known position, or nil before the first fix
	Get() *Position
}

// Config describes how to reach gpsd
type Config struct {
	Addr           string        `yaml:"addr"`
	DialTimeout    time.Duration `yaml:"dialTimeout"`
	ReconnectDelay time.Duration `yaml:"reconnectDelay"`
}

// DefaultConfig returns the standard local gpsd endpoint
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:2947",
		DialTimeout:    5 * time.Second,
		ReconnectDelay: 5 * time.Second,
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger.With(slog.String("component", "gps"))
	}
}

// Client connects to gpsd, keeps the latest TPV report and reconnects on
// failure. A lost daemon degrades position data, never the sweep.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	pos *Position
}

// NewClient creates a gpsd client with a discard logger
func NewClient(cfg Config, options ...func(*Client)) *Client {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultConfig().DialTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultConfig().ReconnectDelay
	}

	c := Client{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Get implements Provider
func (c *Client) Get() *Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos == nil {
		return nil
	}

	pos := *c.pos
	pos.Latitude = copyFloat(c.pos.Latitude)
	pos.Longitude = copyFloat(c.pos.Longitude)
	pos.Altitude = copyFloat(c.pos.Altitude)
	pos.Speed = copyFloat(c.pos.Speed)
	pos.Track = copyFloat(c.pos.Track)
	return &pos
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Run watches gpsd until the context ends, reconnecting after failures.
// Run it in its own goroutine.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.watch(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("gpsd connection lost", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) watch(ctx context.Context) error {
	conn, err := net.DialTimeout("tcp", c.cfg.Addr, c.cfg.DialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	// unblock the reader when the context ends
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.Write([]byte(watchCommand)); err != nil {
		return err
	}

	c.logger.Info("watching gpsd", slog.String("addr", c.cfg.Addr))

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		c.handleReport(scanner.Bytes())
	}
	return scanner.Err()
}

// tpvReport is the subset of a gpsd TPV record the platform consumes
type tpvReport struct {
	Class string    `json:"class"`
	Mode  int       `json:"mode"`
	Time  time.Time `json:"time"`
	Lat   *float64  `json:"lat"`
	Lon   *float64  `json:"lon"`
	Alt   *float64  `json:"alt"`
	Speed *float64  `json:"speed"`
	Track *float64  `json:"track"`
}

func (c *Client) handleReport(line []byte) {
	var report tpvReport
	if err := json.Unmarshal(line, &report); err != nil || report.Class != "TPV" {
		return // VERSION, SKY and malformed lines are ignored
	}

	pos := Position{
		Timestamp: report.Time,
		Latitude:  report.Lat,
		Longitude: report.Lon,
		Altitude:  report.Alt,
		Speed:     report.Speed,
		Track:     report.Track,
		Mode:      report.Mode,
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = time.Now()
	}

	c.mu.Lock()
	c.pos = &pos
	c.mu.Unlock()
}
