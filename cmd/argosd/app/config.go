package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Graveside2022/ArgosFinal-sub003/internal/sweep"
	"github.com/Graveside2022/ArgosFinal-sub003/internal/waterfall"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Server    ServerConfig    `yaml:"server"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Health    HealthConfig    `yaml:"health"`
	Waterfall WaterfallConfig `yaml:"waterfall"`
	GPS       GPSConfig       `yaml:"gps"`
	WiFi      WiFiConfig      `yaml:"wifi"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// SlogLevel maps the configured level name onto a slog level
func (s Settings) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ServerConfig represents the HTTP listener settings
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// SweepConfig represents the sweep tool invocation settings
type SweepConfig struct {
	Binary               string   `yaml:"binary"`
	InfoBinary           string   `yaml:"infoBinary"`
	LNAGain              *int     `yaml:"lnaGain"`
	VGAGain              *int     `yaml:"vgaGain"`
	BinWidth             int64    `yaml:"binWidth"`
	EnableAmp            bool     `yaml:"enableAmp"`
	MaxConsecutiveErrors int      `yaml:"maxConsecutiveErrors"`
	PreflightSettle      Duration `yaml:"preflightSettle"`
	ProbeTimeout         Duration `yaml:"probeTimeout"`
}

// HealthConfig represents the watchdog settings
type HealthConfig struct {
	CheckInterval       Duration `yaml:"checkInterval"`
	StartupSilence      Duration `yaml:"startupSilence"`
	DataSilence         Duration `yaml:"dataSilence"`
	RecoveryCooldown    Duration `yaml:"recoveryCooldown"`
	RecoverySettle      Duration `yaml:"recoverySettle"`
	MaxRecoveryAttempts int      `yaml:"maxRecoveryAttempts"`
	LowMemoryPercent    float64  `yaml:"lowMemoryPercent"`
}

// WaterfallConfig represents the waterfall rendering settings
type WaterfallConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Depth    int     `yaml:"depth"`
	Width    int     `yaml:"width"`
	Theme    string  `yaml:"theme"`
	PowerMin float64 `yaml:"powerMin"`
	PowerMax float64 `yaml:"powerMax"`
}

// GPSConfig represents the gpsd bridge settings
type GPSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Addr           string   `yaml:"addr"`
	DialTimeout    Duration `yaml:"dialTimeout"`
	ReconnectDelay Duration `yaml:"reconnectDelay"`
}

// WiFiConfig represents the WiFi proxy settings
type WiFiConfig struct {
	Enabled bool     `yaml:"enabled"`
	BaseURL string   `yaml:"baseUrl"`
	Timeout Duration `yaml:"timeout"`
}

// LoadConfig reads and parses the YAML configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8092"
	}
	if config.Server.ShutdownTimeout <= 0 {
		config.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	return &config, nil
}

// ManagerConfig maps the file settings onto the sweep orchestration
// configuration, keeping the built-in defaults where the file is silent.
func (c *Config) ManagerConfig() sweep.ManagerConfig {
	cfg := sweep.DefaultManagerConfig()

	if c.Sweep.Binary != "" {
		cfg.Supervisor.Binary = c.Sweep.Binary
	}
	if c.Sweep.LNAGain != nil {
		cfg.Supervisor.LNAGain = c.Sweep.LNAGain
	}
	if c.Sweep.VGAGain != nil {
		cfg.Supervisor.VGAGain = c.Sweep.VGAGain
	}
	if c.Sweep.BinWidth > 0 {
		cfg.Supervisor.BinWidth = c.Sweep.BinWidth
	}
	cfg.Supervisor.EnableAmp = c.Sweep.EnableAmp

	if c.Sweep.InfoBinary != "" {
		cfg.InfoBinary = c.Sweep.InfoBinary
	}
	if c.Sweep.MaxConsecutiveErrors > 0 {
		cfg.MaxConsecutiveErrors = c.Sweep.MaxConsecutiveErrors
	}
	if c.Sweep.PreflightSettle > 0 {
		cfg.PreflightSettle = c.Sweep.PreflightSettle.Std()
	}
	if c.Sweep.ProbeTimeout > 0 {
		cfg.ProbeTimeout = c.Sweep.ProbeTimeout.Std()
	}

	if c.Health.CheckInterval > 0 {
		cfg.Health.CheckInterval = c.Health.CheckInterval.Std()
	}
	if c.Health.StartupSilence > 0 {
		cfg.Health.StartupSilence = c.Health.StartupSilence.Std()
	}
	if c.Health.DataSilence > 0 {
		cfg.Health.DataSilence = c.Health.DataSilence.Std()
	}
	if c.Health.RecoveryCooldown > 0 {
		cfg.Health.RecoveryCooldown = c.Health.RecoveryCooldown.Std()
	}
	if c.Health.RecoverySettle > 0 {
		cfg.Health.RecoverySettle = c.Health.RecoverySettle.Std()
	}
	if c.Health.MaxRecoveryAttempts > 0 {
		cfg.Health.MaxRecoveryAttempts = c.Health.MaxRecoveryAttempts
	}
	if c.Health.LowMemoryPercent > 0 {
		cfg.Health.LowMemoryPercent = c.Health.LowMemoryPercent
	}

	return cfg
}

// WaterfallSettings maps the file settings onto the renderer configuration
func (c *Config) WaterfallSettings() waterfall.Config {
	cfg := waterfall.DefaultConfig()
	if c.Waterfall.Depth > 0 {
		cfg.Depth = c.Waterfall.Depth
	}
	if c.Waterfall.Width > 0 {
		cfg.Width = c.Waterfall.Width
	}
	if c.Waterfall.Theme != "" {
		cfg.Theme = waterfall.Theme(c.Waterfall.Theme)
	}
	if c.Waterfall.PowerMin != 0 || c.Waterfall.PowerMax != 0 {
		cfg.PowerMin = c.Waterfall.PowerMin
		cfg.PowerMax = c.Waterfall.PowerMax
	}
	return cfg
}
