// Package wifi proxies requests to the local WiFi scanning service. The
// payloads are passed through opaquely; this platform only relays them.
package wifi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Config describes how to reach the WiFi scanning service
type Config struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the standard local endpoint
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8005",
		Timeout: 10 * time.Second,
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger.With(slog.String("component", "wifi"))
	}
}

// Client is a thin JSON pass-through to the WiFi scanning service
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a WiFi proxy client
func NewClient(cfg Config, options ...func(*Client)) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	c := Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Status returns the scanner's status document verbatim
func (c *Client) Status(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/api/status")
}

// Networks returns the most recent scan results verbatim
func (c *Client) Networks(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/api/networks")
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wifi service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wifi service returned %s", resp.Status)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("wifi service returned invalid JSON")
	}

	return body, nil
}
